package repository

import (
	"context"
	"sync"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
)

// MemoryPaymentRepository is an in-memory PaymentAttemptRepository
// with the same guarded status updates as the Postgres store.
type MemoryPaymentRepository struct {
	mu       sync.Mutex
	attempts map[string]*domain.PaymentAttempt // order id -> attempt
}

// NewMemoryPaymentRepository creates an empty in-memory store
func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{attempts: make(map[string]*domain.PaymentAttempt)}
}

func cloneAttempt(a *domain.PaymentAttempt) *domain.PaymentAttempt {
	clone := *a
	if a.VerifiedAt != nil {
		t := *a.VerifiedAt
		clone.VerifiedAt = &t
	}
	if a.SettledAt != nil {
		t := *a.SettledAt
		clone.SettledAt = &t
	}
	return &clone
}

// Create stores a new payment attempt, one per booking
func (r *MemoryPaymentRepository) Create(ctx context.Context, attempt *domain.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.attempts {
		if a.BookingID == attempt.BookingID {
			return domain.ErrAttemptExists
		}
	}
	if _, ok := r.attempts[attempt.OrderID]; ok {
		return domain.ErrAttemptExists
	}
	r.attempts[attempt.OrderID] = cloneAttempt(attempt)
	return nil
}

// GetByOrderID retrieves a payment attempt by gateway order id
func (r *MemoryPaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[orderID]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return cloneAttempt(a), nil
}

// GetByBookingID retrieves the payment attempt opened for a booking
func (r *MemoryPaymentRepository) GetByBookingID(ctx context.Context, bookingID string) (*domain.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.attempts {
		if a.BookingID == bookingID {
			return cloneAttempt(a), nil
		}
	}
	return nil, domain.ErrAttemptNotFound
}

// RecordCallback stores the verified callback, guarded on CREATED
func (r *MemoryPaymentRepository) RecordCallback(ctx context.Context, orderID, paymentID, signature string, verifiedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[orderID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if a.Status != domain.AttemptStatusCreated {
		return domain.ErrOutOfSequence
	}

	a.Status = domain.AttemptStatusCallbackVerified
	a.PaymentID = paymentID
	a.Signature = signature
	a.VerifiedAt = &verifiedAt
	a.UpdatedAt = verifiedAt
	return nil
}

// MarkSettled finalizes the attempt, guarded on CALLBACK_VERIFIED
func (r *MemoryPaymentRepository) MarkSettled(ctx context.Context, orderID string, settledAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[orderID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if a.Status != domain.AttemptStatusCallbackVerified {
		return domain.ErrOutOfSequence
	}

	a.Status = domain.AttemptStatusSettled
	a.SettledAt = &settledAt
	a.UpdatedAt = settledAt
	return nil
}

// MarkFailed moves any non-terminal attempt to FAILED
func (r *MemoryPaymentRepository) MarkFailed(ctx context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[orderID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if a.Status.IsTerminal() {
		return domain.ErrOutOfSequence
	}

	a.Status = domain.AttemptStatusFailed
	a.UpdatedAt = time.Now().UTC()
	return nil
}
