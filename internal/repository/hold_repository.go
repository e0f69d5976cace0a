package repository

import (
	"context"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
)

// Ledger error codes returned by the hold scripts
const (
	ErrCodeSlotConflict = "SLOT_CONFLICT"
	ErrCodeHoldExpired  = "HOLD_EXPIRED"
)

// TryHoldParams carries one atomic hold request. Every listed slot
// start must be holdable or none are reserved.
type TryHoldParams struct {
	BookingID string
	CourtID   string
	Starts    []time.Time
	TTL       time.Duration
}

// HoldResult is the outcome of a TryHold call
type HoldResult struct {
	Success      bool
	HeldSlots    int64
	ErrorCode    string
	ErrorMessage string
	ConflictKey  string
}

// CommitResult is the outcome of a Commit call
type CommitResult struct {
	Success      bool
	Committed    int64
	ErrorCode    string
	ErrorMessage string
}

// ReleaseResult is the outcome of a Release call
type ReleaseResult struct {
	Success  bool
	Released int64
}

// HoldRepository is the slot availability ledger. Tentative holds
// carry a TTL; committed holds persist until released.
type HoldRepository interface {
	// TryHold atomically reserves all requested slots as TENTATIVE,
	// failing whole if any slot is held by another booking.
	TryHold(ctx context.Context, params TryHoldParams) (*HoldResult, error)

	// Commit promotes all of a booking's holds to COMMITTED. No-op if
	// already committed. Fails if the tentative hold lapsed.
	Commit(ctx context.Context, bookingID string) (*CommitResult, error)

	// Release removes all holds owned by the booking
	Release(ctx context.Context, bookingID string) (*ReleaseResult, error)

	// ForceCommit re-creates committed holds for a confirmed booking
	// whose ledger entries were lost between transition and commit.
	// Used only by the reconciliation sweep.
	ForceCommit(ctx context.Context, bookingID, courtID string, starts []time.Time) error

	// Kind reports the current hold kind for a booking, or
	// domain.ErrHoldNotFound when no hold exists.
	Kind(ctx context.Context, bookingID string) (domain.HoldKind, error)
}
