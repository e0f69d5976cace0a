package repository

import (
	"context"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
)

// PaymentAttemptRepository stores the settlement state machine record
// for each gateway order. All status changes are guarded CAS updates
// keyed on the current status, so concurrent callbacks or settle
// retries resolve to exactly one winner.
type PaymentAttemptRepository interface {
	Create(ctx context.Context, attempt *domain.PaymentAttempt) error
	GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentAttempt, error)
	GetByBookingID(ctx context.Context, bookingID string) (*domain.PaymentAttempt, error)

	// RecordCallback moves CREATED -> CALLBACK_VERIFIED and stores the
	// payment reference and signature. Fails with
	// domain.ErrOutOfSequence when the attempt is not in CREATED.
	RecordCallback(ctx context.Context, orderID, paymentID, signature string, verifiedAt time.Time) error

	// MarkSettled moves CALLBACK_VERIFIED -> SETTLED
	MarkSettled(ctx context.Context, orderID string, settledAt time.Time) error

	// MarkFailed moves any non-terminal status to FAILED
	MarkFailed(ctx context.Context, orderID string) error
}
