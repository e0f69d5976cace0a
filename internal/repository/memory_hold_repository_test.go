package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slotStarts(base time.Time, n int) []time.Time {
	starts := make([]time.Time, n)
	for i := range starts {
		starts[i] = base.Add(time.Duration(i) * time.Hour)
	}
	return starts
}

func TestMemoryHoldRepository_TryHoldAndCommit(t *testing.T) {
	repo := NewMemoryHoldRepository()
	ctx := context.Background()
	base := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)

	res, err := repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-1",
		CourtID:   "court-1",
		Starts:    slotStarts(base, 2),
		TTL:       15 * time.Minute,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, int64(2), res.HeldSlots)

	kind, err := repo.Kind(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldTentative, kind)

	commit, err := repo.Commit(ctx, "bk-1")
	require.NoError(t, err)
	require.True(t, commit.Success)
	assert.Equal(t, int64(2), commit.Committed)

	kind, err = repo.Kind(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldCommitted, kind)

	// Commit is idempotent
	commit, err = repo.Commit(ctx, "bk-1")
	require.NoError(t, err)
	assert.True(t, commit.Success)
}

func TestMemoryHoldRepository_Conflict(t *testing.T) {
	repo := NewMemoryHoldRepository()
	ctx := context.Background()
	base := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)

	res, err := repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-1",
		CourtID:   "court-1",
		Starts:    slotStarts(base, 1),
		TTL:       15 * time.Minute,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	// Overlapping request from a different booking fails whole, even
	// though its second slot is free.
	res, err = repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-2",
		CourtID:   "court-1",
		Starts:    slotStarts(base, 2),
		TTL:       15 * time.Minute,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ErrCodeSlotConflict, res.ErrorCode)

	// The free slot was not partially reserved
	res, err = repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-3",
		CourtID:   "court-1",
		Starts:    []time.Time{base.Add(time.Hour)},
		TTL:       15 * time.Minute,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Same court, different time is free
	res, err = repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-4",
		CourtID:   "court-1",
		Starts:    []time.Time{base.Add(5 * time.Hour)},
		TTL:       15 * time.Minute,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Different court, same time is free
	res, err = repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-5",
		CourtID:   "court-2",
		Starts:    slotStarts(base, 1),
		TTL:       15 * time.Minute,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestMemoryHoldRepository_Expiry(t *testing.T) {
	repo := NewMemoryHoldRepository()
	ctx := context.Background()
	base := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)

	now := base
	repo.SetClock(func() time.Time { return now })

	res, err := repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-1",
		CourtID:   "court-1",
		Starts:    slotStarts(base, 1),
		TTL:       15 * time.Minute,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	// 16 minutes later the tentative hold is gone
	now = base.Add(16 * time.Minute)

	_, err = repo.Kind(ctx, "bk-1")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)

	commit, err := repo.Commit(ctx, "bk-1")
	require.NoError(t, err)
	assert.False(t, commit.Success)
	assert.Equal(t, ErrCodeHoldExpired, commit.ErrorCode)

	// The slot is free for another booking
	res, err = repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-2",
		CourtID:   "court-1",
		Starts:    slotStarts(base, 1),
		TTL:       15 * time.Minute,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestMemoryHoldRepository_CommittedNeverExpires(t *testing.T) {
	repo := NewMemoryHoldRepository()
	ctx := context.Background()
	base := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)

	now := base
	repo.SetClock(func() time.Time { return now })

	_, err := repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-1",
		CourtID:   "court-1",
		Starts:    slotStarts(base, 1),
		TTL:       15 * time.Minute,
	})
	require.NoError(t, err)

	commit, err := repo.Commit(ctx, "bk-1")
	require.NoError(t, err)
	require.True(t, commit.Success)

	now = base.Add(24 * time.Hour)

	kind, err := repo.Kind(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldCommitted, kind)

	res, err := repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-2",
		CourtID:   "court-1",
		Starts:    slotStarts(base, 1),
		TTL:       15 * time.Minute,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestMemoryHoldRepository_Release(t *testing.T) {
	repo := NewMemoryHoldRepository()
	ctx := context.Background()
	base := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)

	_, err := repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-1",
		CourtID:   "court-1",
		Starts:    slotStarts(base, 3),
		TTL:       15 * time.Minute,
	})
	require.NoError(t, err)

	rel, err := repo.Release(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rel.Released)

	_, err = repo.Kind(ctx, "bk-1")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)

	// Releasing again is harmless
	rel, err = repo.Release(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rel.Released)
}

func TestMemoryHoldRepository_ForceCommit(t *testing.T) {
	repo := NewMemoryHoldRepository()
	ctx := context.Background()
	base := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	starts := slotStarts(base, 2)

	// No prior hold: force commit rebuilds it
	require.NoError(t, repo.ForceCommit(ctx, "bk-1", "court-1", starts))

	kind, err := repo.Kind(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldCommitted, kind)

	// Refuses to steal a slot now owned by someone else
	repo2 := NewMemoryHoldRepository()
	_, err = repo2.TryHold(ctx, TryHoldParams{
		BookingID: "bk-other",
		CourtID:   "court-1",
		Starts:    starts[:1],
		TTL:       15 * time.Minute,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, repo2.ForceCommit(ctx, "bk-1", "court-1", starts), domain.ErrSlotConflict)
}

func TestMemoryHoldRepository_ConcurrentContention(t *testing.T) {
	repo := NewMemoryHoldRepository()
	ctx := context.Background()
	base := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	starts := slotStarts(base, 1)

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := make([]string, 0, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res, err := repo.TryHold(ctx, TryHoldParams{
				BookingID: fmt.Sprintf("bk-%d", n),
				CourtID:   "court-1",
				Starts:    starts,
				TTL:       15 * time.Minute,
			})
			if err == nil && res.Success {
				mu.Lock()
				winners = append(winners, fmt.Sprintf("bk-%d", n))
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1, "exactly one booking must win the slot")

	kind, err := repo.Kind(ctx, winners[0])
	require.NoError(t, err)
	assert.Equal(t, domain.HoldTentative, kind)
}
