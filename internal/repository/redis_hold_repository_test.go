package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
	pkgredis "github.com/quickcourt/court-booking/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getRedisClient creates a Redis client for testing
func getRedisClient(t *testing.T) *pkgredis.Client {
	skipIfNoIntegration(t)

	host := os.Getenv("TEST_REDIS_HOST")
	if host == "" {
		host = "localhost"
	}

	password := os.Getenv("TEST_REDIS_PASSWORD")

	cfg := &pkgredis.Config{
		Host:          host,
		Port:          6379,
		Password:      password,
		DB:            15, // Use DB 15 for testing
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxRetries:    3,
		RetryInterval: time.Second,
	}

	ctx := context.Background()
	client, err := pkgredis.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create Redis client: %v", err)
	}

	// Flush test database
	if err := client.Client().FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}

	return client
}

func newHoldRepo(t *testing.T) (*RedisHoldRepository, func()) {
	client := getRedisClient(t)
	repo := NewRedisHoldRepository(client)
	if err := repo.LoadScripts(context.Background()); err != nil {
		t.Fatalf("Failed to load scripts: %v", err)
	}
	return repo, func() { client.Close() }
}

func holdStarts(base time.Time, hours ...int) []time.Time {
	starts := make([]time.Time, 0, len(hours))
	for _, h := range hours {
		starts = append(starts, base.Add(time.Duration(h)*time.Hour))
	}
	return starts
}

func TestRedisHoldRepository_TryHold(t *testing.T) {
	repo, cleanup := newHoldRepo(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	res, err := repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-hold-1",
		CourtID:   "court-1",
		Starts:    holdStarts(base, 0, 1),
		TTL:       time.Minute,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, int64(2), res.HeldSlots)

	kind, err := repo.Kind(ctx, "bk-hold-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldTentative, kind)

	// Overlapping request fails whole, including the free slot
	res, err = repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-hold-2",
		CourtID:   "court-1",
		Starts:    holdStarts(base, 1, 2),
		TTL:       time.Minute,
	})
	require.NoError(t, err)
	require.False(t, res.Success)
	assert.Equal(t, ErrCodeSlotConflict, res.ErrorCode)

	// The free slot was not taken by the failed attempt
	res, err = repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-hold-3",
		CourtID:   "court-1",
		Starts:    holdStarts(base, 2),
		TTL:       time.Minute,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Same slot on another court is independent
	res, err = repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-hold-4",
		CourtID:   "court-2",
		Starts:    holdStarts(base, 0),
		TTL:       time.Minute,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRedisHoldRepository_CommitAndRelease(t *testing.T) {
	repo, cleanup := newHoldRepo(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC)

	res, err := repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-commit-1",
		CourtID:   "court-1",
		Starts:    holdStarts(base, 0, 1),
		TTL:       time.Minute,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	commit, err := repo.Commit(ctx, "bk-commit-1")
	require.NoError(t, err)
	require.True(t, commit.Success)
	assert.Equal(t, int64(2), commit.Committed)

	kind, err := repo.Kind(ctx, "bk-commit-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldCommitted, kind)

	// Commit is idempotent
	commit, err = repo.Commit(ctx, "bk-commit-1")
	require.NoError(t, err)
	assert.True(t, commit.Success)

	released, err := repo.Release(ctx, "bk-commit-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), released.Released)

	_, err = repo.Kind(ctx, "bk-commit-1")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)

	// Released slots are holdable again
	res, err = repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-commit-2",
		CourtID:   "court-1",
		Starts:    holdStarts(base, 0),
		TTL:       time.Minute,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRedisHoldRepository_TentativeHoldExpires(t *testing.T) {
	repo, cleanup := newHoldRepo(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2025, 7, 3, 9, 0, 0, 0, time.UTC)

	res, err := repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-ttl-1",
		CourtID:   "court-1",
		Starts:    holdStarts(base, 0),
		TTL:       time.Second,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	time.Sleep(1500 * time.Millisecond)

	_, err = repo.Kind(ctx, "bk-ttl-1")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)

	commit, err := repo.Commit(ctx, "bk-ttl-1")
	require.NoError(t, err)
	assert.False(t, commit.Success)
	assert.Equal(t, ErrCodeHoldExpired, commit.ErrorCode)

	// Lapsed slot is free for the next booking
	res, err = repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-ttl-2",
		CourtID:   "court-1",
		Starts:    holdStarts(base, 0),
		TTL:       time.Minute,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRedisHoldRepository_ForceCommit(t *testing.T) {
	repo, cleanup := newHoldRepo(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2025, 7, 4, 9, 0, 0, 0, time.UTC)
	starts := holdStarts(base, 0, 1)

	// No prior hold, the sweep rebuilds from the booking record
	require.NoError(t, repo.ForceCommit(ctx, "bk-force-1", "court-1", starts))

	kind, err := repo.Kind(ctx, "bk-force-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldCommitted, kind)

	// Rebuilding again is a no-op
	require.NoError(t, repo.ForceCommit(ctx, "bk-force-1", "court-1", starts))

	// A slot owned by another booking blocks the rebuild
	res, err := repo.TryHold(ctx, TryHoldParams{
		BookingID: "bk-force-2",
		CourtID:   "court-1",
		Starts:    holdStarts(base, 2),
		TTL:       time.Minute,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	err = repo.ForceCommit(ctx, "bk-force-3", "court-1", holdStarts(base, 2))
	assert.ErrorIs(t, err, domain.ErrSlotConflict)
}
