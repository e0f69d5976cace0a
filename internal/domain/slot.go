package domain

import (
	"fmt"
	"time"
)

// Slot is a half-open [Start, End) unit of court time with its price
// frozen at booking creation.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	UnitPrice float64   `json:"unit_price"`
}

// Validate checks the slot time range
func (s *Slot) Validate() error {
	if !s.End.After(s.Start) {
		return ErrInvalidTimeRange
	}
	if s.UnitPrice < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Overlaps reports whether two half-open ranges intersect
func (s *Slot) Overlaps(other *Slot) bool {
	return s.Start.Before(other.End) && other.Start.Before(s.End)
}

// HoldKind distinguishes tentative holds awaiting payment from
// committed holds backing a confirmed booking.
type HoldKind string

const (
	HoldTentative HoldKind = "TENTATIVE"
	HoldCommitted HoldKind = "COMMITTED"
)

// SlotHold is a ledger entry reserving one slot for one booking
type SlotHold struct {
	CourtID   string    `json:"court_id"`
	Slot      Slot      `json:"slot"`
	BookingID string    `json:"booking_id"`
	Kind      HoldKind  `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HoldKey builds the ledger key for one unit slot of a court. Booking
// creation only admits grid-aligned unit slots, so any two slots on
// the same court either share this key or do not intersect at all.
func HoldKey(courtID string, start time.Time) string {
	return fmt.Sprintf("hold:%s:%s", courtID, start.UTC().Format(time.RFC3339))
}
