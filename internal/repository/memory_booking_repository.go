package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
)

// MemoryBookingRepository is an in-memory BookingRepository with the
// same CAS semantics as the Postgres store. Used in tests and
// single-node development.
type MemoryBookingRepository struct {
	mu       sync.Mutex
	bookings map[string]*domain.Booking
}

// NewMemoryBookingRepository creates an empty in-memory store
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{bookings: make(map[string]*domain.Booking)}
}

func cloneBooking(b *domain.Booking) *domain.Booking {
	clone := *b
	clone.Slots = append([]domain.Slot(nil), b.Slots...)
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		clone.CancelledAt = &t
	}
	return &clone
}

// Create stores a new booking
func (r *MemoryBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[booking.ID]; ok {
		return domain.ErrBookingAlreadyExists
	}
	r.bookings[booking.ID] = cloneBooking(booking)
	return nil
}

// GetByID returns a copy of the stored booking
func (r *MemoryBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

// GetByOrderID returns the booking holding the given gateway order id
func (r *MemoryBookingRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.bookings {
		if b.PaymentOrderID == orderID && orderID != "" {
			return cloneBooking(b), nil
		}
	}
	return nil, domain.ErrBookingNotFound
}

// ListByUser returns all bookings owned by a user, newest first
func (r *MemoryBookingRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var bookings []*domain.Booking
	for _, b := range r.bookings {
		if b.UserID == userID {
			bookings = append(bookings, cloneBooking(b))
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		if !bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
		}
		return bookings[i].ID < bookings[j].ID
	})
	return bookings, nil
}

// Transition performs the guarded compare-and-set status change
func (r *MemoryBookingRepository) Transition(ctx context.Context, id string, from, to domain.BookingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	if !domain.CanTransition(from, to) || b.Status != from {
		return domain.ErrInvalidTransition
	}

	now := time.Now().UTC()
	b.Status = to
	b.UpdatedAt = now
	if to == domain.BookingStatusCancelled {
		b.CancelledAt = &now
	}
	return nil
}

// AttachPaymentOrder stores the gateway order id opened for the booking
func (r *MemoryBookingRepository) AttachPaymentOrder(ctx context.Context, id, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	b.PaymentOrderID = orderID
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordSettlement stores the captured gateway payment reference
func (r *MemoryBookingRepository) RecordSettlement(ctx context.Context, id, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	b.PaymentID = paymentID
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// ListExpiredPending returns pending bookings whose hold deadline passed
func (r *MemoryBookingRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var bookings []*domain.Booking
	for _, b := range r.bookings {
		if b.Status == domain.BookingStatusPendingPayment && b.HoldExpiresAt.Before(cutoff) {
			bookings = append(bookings, cloneBooking(b))
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].HoldExpiresAt.Before(bookings[j].HoldExpiresAt)
	})
	if limit > 0 && len(bookings) > limit {
		bookings = bookings[:limit]
	}
	return bookings, nil
}

// ListConfirmedSince returns bookings confirmed after the given instant
func (r *MemoryBookingRepository) ListConfirmedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var bookings []*domain.Booking
	for _, b := range r.bookings {
		if b.Status == domain.BookingStatusConfirmed && !b.UpdatedAt.Before(since) {
			bookings = append(bookings, cloneBooking(b))
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].UpdatedAt.Before(bookings[j].UpdatedAt)
	})
	if limit > 0 && len(bookings) > limit {
		bookings = bookings[:limit]
	}
	return bookings, nil
}

// ListConfirmedEnded returns confirmed bookings whose play time is over
func (r *MemoryBookingRepository) ListConfirmedEnded(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var bookings []*domain.Booking
	for _, b := range r.bookings {
		if b.Status == domain.BookingStatusConfirmed && b.EndTime().Before(now) {
			bookings = append(bookings, cloneBooking(b))
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].Date.Before(bookings[j].Date)
	})
	if limit > 0 && len(bookings) > limit {
		bookings = bookings[:limit]
	}
	return bookings, nil
}
