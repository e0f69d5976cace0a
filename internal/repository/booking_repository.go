package repository

import (
	"context"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
)

// BookingRepository is the durable booking aggregate store. Status
// changes go through Transition only, a guarded compare-and-set.
type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByOrderID(ctx context.Context, orderID string) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Booking, error)

	// Transition moves the booking from -> to atomically. Returns
	// domain.ErrInvalidTransition when the current status is not the
	// expected from status, so concurrent settlement, cancellation and
	// expiry cannot all win.
	Transition(ctx context.Context, id string, from, to domain.BookingStatus) error

	// AttachPaymentOrder stores the gateway order id opened for the
	// booking.
	AttachPaymentOrder(ctx context.Context, id, orderID string) error

	// RecordSettlement stores the captured gateway payment reference
	RecordSettlement(ctx context.Context, id, paymentID string) error

	// ListExpiredPending returns PENDING_PAYMENT bookings whose hold
	// deadline passed before cutoff. Used by the expiry sweep.
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error)

	// ListConfirmedSince returns bookings confirmed after the given
	// instant. Used by the reconciliation sweep to re-check that every
	// confirmed booking still has a committed hold.
	ListConfirmedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Booking, error)

	// ListConfirmedEnded returns CONFIRMED bookings whose last slot
	// ended before now. Used by the completion sweep.
	ListConfirmedEnded(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error)
}
