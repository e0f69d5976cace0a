package domain

import (
	"time"

	"github.com/google/uuid"
)

// BookingEventType identifies a lifecycle event on the booking stream
type BookingEventType string

const (
	EventBookingCreated   BookingEventType = "booking.created"
	EventBookingConfirmed BookingEventType = "booking.confirmed"
	EventBookingCancelled BookingEventType = "booking.cancelled"
	EventBookingExpired   BookingEventType = "booking.expired"
	EventPaymentFailed    BookingEventType = "booking.payment_failed"
)

// BookingEvent is the envelope published to the booking event stream
type BookingEvent struct {
	EventID     string           `json:"event_id"`
	EventType   BookingEventType `json:"event_type"`
	BookingID   string           `json:"booking_id"`
	UserID      string           `json:"user_id"`
	CourtID     string           `json:"court_id"`
	Status      BookingStatus    `json:"status"`
	TotalAmount float64          `json:"total_amount"`
	Currency    string           `json:"currency"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// NewBookingEvent builds an event envelope from a booking snapshot
func NewBookingEvent(eventType BookingEventType, b *Booking) *BookingEvent {
	return &BookingEvent{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		BookingID:   b.ID,
		UserID:      b.UserID,
		CourtID:     b.CourtID,
		Status:      b.Status,
		TotalAmount: b.TotalAmount,
		Currency:    b.Currency,
		OccurredAt:  time.Now().UTC(),
	}
}
