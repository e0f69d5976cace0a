package domain

import (
	"time"
)

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingStatusConfirmed      BookingStatus = "CONFIRMED"
	BookingStatusPaymentFailed  BookingStatus = "PAYMENT_FAILED"
	BookingStatusCancelled      BookingStatus = "CANCELLED"
	BookingStatusExpired        BookingStatus = "EXPIRED"
	BookingStatusCompleted      BookingStatus = "COMPLETED"
)

// legalTransitions is the closed set of allowed status changes.
// COMPLETED is reached only from CONFIRMED, by the completion sweep
// once the slot end time has passed.
var legalTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPendingPayment: {
		BookingStatusConfirmed,
		BookingStatusPaymentFailed,
		BookingStatusExpired,
	},
	BookingStatusConfirmed: {
		BookingStatusCancelled,
		BookingStatusCompleted,
	},
}

// IsValid reports whether s is a known booking status
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPendingPayment, BookingStatusConfirmed, BookingStatusPaymentFailed,
		BookingStatusCancelled, BookingStatusExpired, BookingStatusCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s
func (s BookingStatus) IsTerminal() bool {
	return len(legalTransitions[s]) == 0
}

// CanTransition reports whether from -> to is in the transition table
func CanTransition(from, to BookingStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Booking is the aggregate record of a court reservation
type Booking struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	CourtID      string        `json:"court_id"`
	CourtName    string        `json:"court_name"`
	FacilityName string        `json:"facility_name"`
	Sport        string        `json:"sport"`
	Date         time.Time     `json:"date"`
	Slots        []Slot        `json:"slots"`
	TotalAmount  float64       `json:"total_amount"`
	Currency     string        `json:"currency"`
	Status       BookingStatus `json:"status"`

	// CancelDeadline is fixed at creation time and never recomputed
	CancelDeadline time.Time `json:"cancel_deadline"`

	// HoldExpiresAt is when the tentative slot hold lapses if payment
	// never settles
	HoldExpiresAt time.Time `json:"hold_expires_at"`

	PaymentOrderID string     `json:"payment_order_id,omitempty"`
	PaymentID      string     `json:"payment_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

// StartTime returns the start of the earliest slot
func (b *Booking) StartTime() time.Time {
	if len(b.Slots) == 0 {
		return time.Time{}
	}
	earliest := b.Slots[0].Start
	for _, s := range b.Slots[1:] {
		if s.Start.Before(earliest) {
			earliest = s.Start
		}
	}
	return earliest
}

// EndTime returns the end of the latest slot
func (b *Booking) EndTime() time.Time {
	if len(b.Slots) == 0 {
		return time.Time{}
	}
	latest := b.Slots[0].End
	for _, s := range b.Slots[1:] {
		if s.End.After(latest) {
			latest = s.End
		}
	}
	return latest
}

// Validate checks the structural invariants of a booking
func (b *Booking) Validate() error {
	if b.UserID == "" {
		return ErrInvalidUserID
	}
	if b.CourtID == "" {
		return ErrInvalidCourtID
	}
	if len(b.Slots) == 0 {
		return ErrNoSlots
	}
	day := b.Slots[0].Start.Truncate(24 * time.Hour)
	var total float64
	for _, s := range b.Slots {
		if err := s.Validate(); err != nil {
			return err
		}
		if !s.Start.Truncate(24 * time.Hour).Equal(day) {
			return ErrSlotsAcrossDates
		}
		total += s.UnitPrice
	}
	if b.TotalAmount != total {
		return ErrPriceMismatch
	}
	return nil
}

// CanCancelAt reports whether the booking may be cancelled at the given
// instant. False once now reaches the deadline, boundary included.
func (b *Booking) CanCancelAt(now time.Time) bool {
	if b.Status != BookingStatusConfirmed {
		return false
	}
	return now.Before(b.CancelDeadline)
}

// IsSettleable reports whether a settlement may still confirm this booking
func (b *Booking) IsSettleable() bool {
	return b.Status == BookingStatusPendingPayment
}
