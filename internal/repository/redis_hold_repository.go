package repository

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
	pkgredis "github.com/quickcourt/court-booking/pkg/redis"
	"github.com/quickcourt/court-booking/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed scripts/try_hold.lua
var tryHoldScript string

//go:embed scripts/commit_holds.lua
var commitHoldsScript string

//go:embed scripts/release_holds.lua
var releaseHoldsScript string

//go:embed scripts/force_commit.lua
var forceCommitScript string

// Script names for caching
const (
	scriptTryHold      = "try_hold"
	scriptCommitHolds  = "commit_holds"
	scriptReleaseHolds = "release_holds"
	scriptForceCommit  = "force_commit"
)

func holdIndexKey(bookingID string) string {
	return fmt.Sprintf("holdidx:%s", bookingID)
}

// RedisHoldRepository implements HoldRepository on Redis. Slot keys
// carry the hold owner and kind; tentative holds expire via key TTL.
type RedisHoldRepository struct {
	client *pkgredis.Client
}

// NewRedisHoldRepository creates a new RedisHoldRepository
func NewRedisHoldRepository(client *pkgredis.Client) *RedisHoldRepository {
	return &RedisHoldRepository{client: client}
}

// LoadScripts loads all ledger Lua scripts into Redis
func (r *RedisHoldRepository) LoadScripts(ctx context.Context) error {
	scripts := map[string]string{
		scriptTryHold:      tryHoldScript,
		scriptCommitHolds:  commitHoldsScript,
		scriptReleaseHolds: releaseHoldsScript,
		scriptForceCommit:  forceCommitScript,
	}

	for name, script := range scripts {
		if _, err := r.client.LoadScript(ctx, name, script); err != nil {
			return fmt.Errorf("failed to load script %s: %w", name, err)
		}
	}

	return nil
}

// TryHold atomically places tentative holds on every requested slot
func (r *RedisHoldRepository) TryHold(ctx context.Context, params TryHoldParams) (*HoldResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.hold.try_hold")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", params.BookingID),
		attribute.String("court_id", params.CourtID),
		attribute.Int("slots", len(params.Starts)),
	)

	keys := make([]string, 0, len(params.Starts)+1)
	keys = append(keys, holdIndexKey(params.BookingID))
	for _, start := range params.Starts {
		keys = append(keys, domain.HoldKey(params.CourtID, start))
	}

	ttlSeconds := int64(params.TTL / time.Second)
	result := r.client.EvalWithFallback(ctx, scriptTryHold, tryHoldScript, keys, params.BookingID, ttlSeconds)
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		return nil, fmt.Errorf("failed to execute try_hold script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 2 {
		span.SetStatus(codes.Error, "unexpected result length")
		return nil, fmt.Errorf("unexpected script result length: %d", len(values))
	}

	success, _ := toInt64(values[0])
	if success == 1 {
		held, _ := toInt64(values[1])
		span.SetStatus(codes.Ok, "")
		return &HoldResult{Success: true, HeldSlots: held}, nil
	}

	errorCode, _ := values[1].(string)
	conflictKey := ""
	if len(values) > 2 {
		conflictKey, _ = values[2].(string)
	}
	span.SetAttributes(attribute.String("error_code", errorCode))
	span.SetStatus(codes.Error, errorCode)
	return &HoldResult{
		Success:      false,
		ErrorCode:    errorCode,
		ErrorMessage: "slot is held by another booking",
		ConflictKey:  conflictKey,
	}, nil
}

// Commit promotes a booking's holds to committed
func (r *RedisHoldRepository) Commit(ctx context.Context, bookingID string) (*CommitResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.hold.commit")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	keys := []string{holdIndexKey(bookingID)}
	result := r.client.EvalWithFallback(ctx, scriptCommitHolds, commitHoldsScript, keys, bookingID)
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		return nil, fmt.Errorf("failed to execute commit_holds script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 2 {
		span.SetStatus(codes.Error, "unexpected result length")
		return nil, fmt.Errorf("unexpected script result length: %d", len(values))
	}

	success, _ := toInt64(values[0])
	if success == 1 {
		committed, _ := toInt64(values[1])
		span.SetStatus(codes.Ok, "")
		return &CommitResult{Success: true, Committed: committed}, nil
	}

	errorCode, _ := values[1].(string)
	errorMessage := ""
	if len(values) > 2 {
		errorMessage, _ = values[2].(string)
	}
	span.SetAttributes(attribute.String("error_code", errorCode))
	span.SetStatus(codes.Error, errorCode)
	return &CommitResult{Success: false, ErrorCode: errorCode, ErrorMessage: errorMessage}, nil
}

// Release removes all holds owned by the booking
func (r *RedisHoldRepository) Release(ctx context.Context, bookingID string) (*ReleaseResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.hold.release")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	keys := []string{holdIndexKey(bookingID)}
	result := r.client.EvalWithFallback(ctx, scriptReleaseHolds, releaseHoldsScript, keys, bookingID)
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		return nil, fmt.Errorf("failed to execute release_holds script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 2 {
		span.SetStatus(codes.Error, "unexpected result length")
		return nil, fmt.Errorf("unexpected script result length: %d", len(values))
	}

	released, _ := toInt64(values[1])
	span.SetAttributes(attribute.Int64("released", released))
	span.SetStatus(codes.Ok, "")
	return &ReleaseResult{Success: true, Released: released}, nil
}

// ForceCommit rebuilds committed holds for a confirmed booking
func (r *RedisHoldRepository) ForceCommit(ctx context.Context, bookingID, courtID string, starts []time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.hold.force_commit")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("court_id", courtID),
	)

	keys := make([]string, 0, len(starts)+1)
	keys = append(keys, holdIndexKey(bookingID))
	for _, start := range starts {
		keys = append(keys, domain.HoldKey(courtID, start))
	}

	result := r.client.EvalWithFallback(ctx, scriptForceCommit, forceCommitScript, keys, bookingID)
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		return fmt.Errorf("failed to execute force_commit script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 2 {
		span.SetStatus(codes.Error, "unexpected result length")
		return fmt.Errorf("unexpected script result length: %d", len(values))
	}

	success, _ := toInt64(values[0])
	if success != 1 {
		span.SetStatus(codes.Error, ErrCodeSlotConflict)
		return domain.ErrSlotConflict
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Kind reports the current hold kind for a booking
func (r *RedisHoldRepository) Kind(ctx context.Context, bookingID string) (domain.HoldKind, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.hold.kind")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	members, err := r.client.SMembers(ctx, holdIndexKey(bookingID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to read hold index: %w", err)
	}
	if len(members) == 0 {
		return "", domain.ErrHoldNotFound
	}

	value, err := r.client.Get(ctx, members[0]).Result()
	if err == redis.Nil {
		return "", domain.ErrHoldNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to read hold key: %w", err)
	}

	parts := strings.SplitN(value, "|", 2)
	if len(parts) != 2 || parts[0] != bookingID {
		return "", domain.ErrHoldNotFound
	}

	span.SetStatus(codes.Ok, "")
	return domain.HoldKind(parts[1]), nil
}

// toInt64 converts a Lua script return value to int64
func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		var parsed int64
		_, err := fmt.Sscanf(n, "%d", &parsed)
		return parsed, err == nil
	}
	return 0, false
}
