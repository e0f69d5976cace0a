package repository

import (
	"context"
	"sync"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
)

type memoryHold struct {
	bookingID string
	kind      domain.HoldKind
	expiresAt time.Time
}

// MemoryHoldRepository is an in-memory HoldRepository with the same
// atomicity and TTL semantics as the Redis ledger. Used in tests and
// single-node development.
type MemoryHoldRepository struct {
	mu    sync.Mutex
	holds map[string]*memoryHold // slot key -> hold
	index map[string][]string    // booking id -> slot keys
	now   func() time.Time
}

// NewMemoryHoldRepository creates an empty in-memory ledger
func NewMemoryHoldRepository() *MemoryHoldRepository {
	return &MemoryHoldRepository{
		holds: make(map[string]*memoryHold),
		index: make(map[string][]string),
		now:   time.Now,
	}
}

// SetClock overrides the time source, for expiry tests
func (r *MemoryHoldRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// expired reports whether a hold has lapsed. Committed holds never
// expire.
func (h *memoryHold) expired(now time.Time) bool {
	return h.kind == domain.HoldTentative && !now.Before(h.expiresAt)
}

// TryHold atomically places tentative holds on every requested slot
func (r *MemoryHoldRepository) TryHold(ctx context.Context, params TryHoldParams) (*HoldResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	keys := make([]string, 0, len(params.Starts))
	for _, start := range params.Starts {
		keys = append(keys, domain.HoldKey(params.CourtID, start))
	}

	for _, key := range keys {
		if h, ok := r.holds[key]; ok && !h.expired(now) && h.bookingID != params.BookingID {
			return &HoldResult{
				Success:      false,
				ErrorCode:    ErrCodeSlotConflict,
				ErrorMessage: "slot is held by another booking",
				ConflictKey:  key,
			}, nil
		}
	}

	for _, key := range keys {
		r.holds[key] = &memoryHold{
			bookingID: params.BookingID,
			kind:      domain.HoldTentative,
			expiresAt: now.Add(params.TTL),
		}
	}
	r.index[params.BookingID] = keys

	return &HoldResult{Success: true, HeldSlots: int64(len(keys))}, nil
}

// Commit promotes a booking's holds to committed
func (r *MemoryHoldRepository) Commit(ctx context.Context, bookingID string) (*CommitResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	keys := r.index[bookingID]
	if len(keys) == 0 {
		return &CommitResult{Success: false, ErrorCode: ErrCodeHoldExpired, ErrorMessage: "no hold found for booking"}, nil
	}

	for _, key := range keys {
		h, ok := r.holds[key]
		if !ok || h.expired(now) || h.bookingID != bookingID {
			return &CommitResult{Success: false, ErrorCode: ErrCodeHoldExpired, ErrorMessage: "slot hold lapsed before commit"}, nil
		}
	}

	for _, key := range keys {
		r.holds[key].kind = domain.HoldCommitted
	}

	return &CommitResult{Success: true, Committed: int64(len(keys))}, nil
}

// Release removes all holds owned by the booking
func (r *MemoryHoldRepository) Release(ctx context.Context, bookingID string) (*ReleaseResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var released int64
	for _, key := range r.index[bookingID] {
		if h, ok := r.holds[key]; ok && h.bookingID == bookingID {
			delete(r.holds, key)
			released++
		}
	}
	delete(r.index, bookingID)

	return &ReleaseResult{Success: true, Released: released}, nil
}

// ForceCommit rebuilds committed holds for a confirmed booking
func (r *MemoryHoldRepository) ForceCommit(ctx context.Context, bookingID, courtID string, starts []time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	keys := make([]string, 0, len(starts))
	for _, start := range starts {
		keys = append(keys, domain.HoldKey(courtID, start))
	}

	for _, key := range keys {
		if h, ok := r.holds[key]; ok && !h.expired(now) && h.bookingID != bookingID {
			return domain.ErrSlotConflict
		}
	}

	for _, key := range keys {
		r.holds[key] = &memoryHold{bookingID: bookingID, kind: domain.HoldCommitted}
	}
	r.index[bookingID] = keys

	return nil
}

// Kind reports the current hold kind for a booking
func (r *MemoryHoldRepository) Kind(ctx context.Context, bookingID string) (domain.HoldKind, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, key := range r.index[bookingID] {
		h, ok := r.holds[key]
		if ok && h.bookingID == bookingID && !h.expired(now) {
			return h.kind, nil
		}
	}
	return "", domain.ErrHoldNotFound
}
