package repository

import (
	"context"
	"testing"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAttempt(orderID, bookingID string) *domain.PaymentAttempt {
	now := time.Now().UTC()
	return &domain.PaymentAttempt{
		OrderID:   orderID,
		BookingID: bookingID,
		Amount:    500,
		Currency:  "INR",
		Status:    domain.AttemptStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryPaymentRepository_Lifecycle(t *testing.T) {
	repo := NewMemoryPaymentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testAttempt("order-1", "bk-1")))

	// One attempt per booking
	assert.ErrorIs(t, repo.Create(ctx, testAttempt("order-2", "bk-1")), domain.ErrAttemptExists)

	got, err := repo.GetByOrderID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStatusCreated, got.Status)

	byBooking, err := repo.GetByBookingID(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", byBooking.OrderID)

	now := time.Now().UTC()
	require.NoError(t, repo.RecordCallback(ctx, "order-1", "pay-1", "sig", now))

	// Callback is accepted once
	assert.ErrorIs(t, repo.RecordCallback(ctx, "order-1", "pay-1", "sig", now), domain.ErrOutOfSequence)

	require.NoError(t, repo.MarkSettled(ctx, "order-1", now))

	got, err = repo.GetByOrderID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStatusSettled, got.Status)
	assert.Equal(t, "pay-1", got.PaymentID)

	// Terminal attempts cannot fail
	assert.ErrorIs(t, repo.MarkFailed(ctx, "order-1"), domain.ErrOutOfSequence)
}

func TestMemoryPaymentRepository_OutOfSequence(t *testing.T) {
	repo := NewMemoryPaymentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testAttempt("order-1", "bk-1")))

	// Settle before callback
	assert.ErrorIs(t, repo.MarkSettled(ctx, "order-1", time.Now()), domain.ErrOutOfSequence)

	// Unknown order
	assert.ErrorIs(t, repo.MarkSettled(ctx, "missing", time.Now()), domain.ErrAttemptNotFound)
	assert.ErrorIs(t, repo.RecordCallback(ctx, "missing", "p", "s", time.Now()), domain.ErrAttemptNotFound)

	require.NoError(t, repo.MarkFailed(ctx, "order-1"))
	got, err := repo.GetByOrderID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStatusFailed, got.Status)
}
