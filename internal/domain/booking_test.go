package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    BookingStatus
		to      BookingStatus
		allowed bool
	}{
		{"pending to confirmed", BookingStatusPendingPayment, BookingStatusConfirmed, true},
		{"pending to payment failed", BookingStatusPendingPayment, BookingStatusPaymentFailed, true},
		{"pending to expired", BookingStatusPendingPayment, BookingStatusExpired, true},
		{"confirmed to cancelled", BookingStatusConfirmed, BookingStatusCancelled, true},
		{"confirmed to completed", BookingStatusConfirmed, BookingStatusCompleted, true},
		{"pending to cancelled", BookingStatusPendingPayment, BookingStatusCancelled, false},
		{"pending to completed", BookingStatusPendingPayment, BookingStatusCompleted, false},
		{"confirmed to pending", BookingStatusConfirmed, BookingStatusPendingPayment, false},
		{"confirmed to expired", BookingStatusConfirmed, BookingStatusExpired, false},
		{"cancelled is terminal", BookingStatusCancelled, BookingStatusConfirmed, false},
		{"expired is terminal", BookingStatusExpired, BookingStatusPendingPayment, false},
		{"completed is terminal", BookingStatusCompleted, BookingStatusCancelled, false},
		{"failed is terminal", BookingStatusPaymentFailed, BookingStatusConfirmed, false},
		{"self transition rejected", BookingStatusConfirmed, BookingStatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestBookingStatus_IsTerminal(t *testing.T) {
	assert.False(t, BookingStatusPendingPayment.IsTerminal())
	assert.False(t, BookingStatusConfirmed.IsTerminal())
	assert.True(t, BookingStatusPaymentFailed.IsTerminal())
	assert.True(t, BookingStatusCancelled.IsTerminal())
	assert.True(t, BookingStatusExpired.IsTerminal())
	assert.True(t, BookingStatusCompleted.IsTerminal())
}

func TestBooking_Validate(t *testing.T) {
	start := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)

	valid := func() *Booking {
		return &Booking{
			ID:      "bk-1",
			UserID:  "user-1",
			CourtID: "court-1",
			Slots: []Slot{
				{Start: start, End: start.Add(time.Hour), UnitPrice: 500},
				{Start: start.Add(time.Hour), End: start.Add(2 * time.Hour), UnitPrice: 500},
			},
			TotalAmount: 1000,
		}
	}

	t.Run("valid booking", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("missing user", func(t *testing.T) {
		b := valid()
		b.UserID = ""
		assert.ErrorIs(t, b.Validate(), ErrInvalidUserID)
	})

	t.Run("missing court", func(t *testing.T) {
		b := valid()
		b.CourtID = ""
		assert.ErrorIs(t, b.Validate(), ErrInvalidCourtID)
	})

	t.Run("no slots", func(t *testing.T) {
		b := valid()
		b.Slots = nil
		assert.ErrorIs(t, b.Validate(), ErrNoSlots)
	})

	t.Run("end not after start", func(t *testing.T) {
		b := valid()
		b.Slots[1].End = b.Slots[1].Start
		assert.ErrorIs(t, b.Validate(), ErrInvalidTimeRange)
	})

	t.Run("slots on different dates", func(t *testing.T) {
		b := valid()
		b.Slots[1].Start = start.Add(24 * time.Hour)
		b.Slots[1].End = start.Add(25 * time.Hour)
		assert.ErrorIs(t, b.Validate(), ErrSlotsAcrossDates)
	})

	t.Run("total mismatch", func(t *testing.T) {
		b := valid()
		b.TotalAmount = 999
		assert.ErrorIs(t, b.Validate(), ErrPriceMismatch)
	})
}

func TestBooking_CanCancelAt(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		status   BookingStatus
		deadline time.Time
		want     bool
	}{
		{"confirmed before deadline", BookingStatusConfirmed, now.Add(time.Hour), true},
		{"confirmed at exact deadline", BookingStatusConfirmed, now, false},
		{"confirmed after deadline", BookingStatusConfirmed, now.Add(-time.Hour), false},
		{"pending never cancellable", BookingStatusPendingPayment, now.Add(time.Hour), false},
		{"cancelled never cancellable", BookingStatusCancelled, now.Add(time.Hour), false},
		{"completed never cancellable", BookingStatusCompleted, now.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Booking{Status: tt.status, CancelDeadline: tt.deadline}
			assert.Equal(t, tt.want, b.CanCancelAt(now))
		})
	}
}

// A booking starting 2 hours from now under a 24 hour policy window has
// its deadline 22 hours in the past, so cancellation is already closed.
func TestBooking_CanCancelAt_PolicyWindow(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(2 * time.Hour)

	b := &Booking{
		Status:         BookingStatusConfirmed,
		CancelDeadline: start.Add(-24 * time.Hour),
	}
	assert.False(t, b.CanCancelAt(now))

	// A 1 hour window keeps the same booking cancellable until 1 hour
	// before start.
	b.CancelDeadline = start.Add(-time.Hour)
	assert.True(t, b.CanCancelAt(now))
}

func TestBooking_SlotBounds(t *testing.T) {
	start := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	b := &Booking{
		Slots: []Slot{
			{Start: start.Add(time.Hour), End: start.Add(2 * time.Hour)},
			{Start: start, End: start.Add(time.Hour)},
		},
	}
	assert.Equal(t, start, b.StartTime())
	assert.Equal(t, start.Add(2*time.Hour), b.EndTime())
}

func TestSlot_Overlaps(t *testing.T) {
	base := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	slot := &Slot{Start: base, End: base.Add(time.Hour)}

	tests := []struct {
		name  string
		other Slot
		want  bool
	}{
		{"identical", Slot{Start: base, End: base.Add(time.Hour)}, true},
		{"contained", Slot{Start: base.Add(15 * time.Minute), End: base.Add(30 * time.Minute)}, true},
		{"partial overlap", Slot{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)}, true},
		{"adjacent after", Slot{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}, false},
		{"adjacent before", Slot{Start: base.Add(-time.Hour), End: base}, false},
		{"disjoint", Slot{Start: base.Add(3 * time.Hour), End: base.Add(4 * time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, slot.Overlaps(&tt.other))
		})
	}
}

func TestCanTransitionAttempt(t *testing.T) {
	assert.True(t, CanTransitionAttempt(AttemptStatusCreated, AttemptStatusCallbackVerified))
	assert.True(t, CanTransitionAttempt(AttemptStatusCreated, AttemptStatusFailed))
	assert.True(t, CanTransitionAttempt(AttemptStatusCallbackVerified, AttemptStatusSettled))
	assert.True(t, CanTransitionAttempt(AttemptStatusCallbackVerified, AttemptStatusFailed))
	assert.False(t, CanTransitionAttempt(AttemptStatusCreated, AttemptStatusSettled))
	assert.False(t, CanTransitionAttempt(AttemptStatusSettled, AttemptStatusFailed))
	assert.False(t, CanTransitionAttempt(AttemptStatusFailed, AttemptStatusCallbackVerified))
}
