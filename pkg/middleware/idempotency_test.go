package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdempotencyRedis struct {
	mu    sync.Mutex
	store map[string]string
}

func newFakeIdempotencyRedis() *fakeIdempotencyRedis {
	return &fakeIdempotencyRedis{store: make(map[string]string)}
}

func (f *fakeIdempotencyRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.store[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeIdempotencyRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeIdempotencyRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.store[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.store[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func idempotencyRouter(rdb IdempotencyRedis) (*gin.Engine, *int) {
	gin.SetMode(gin.TestMode)
	calls := 0
	router := gin.New()
	router.POST("/bookings",
		func(c *gin.Context) { c.Set(ContextKeyUserID, "user-1") },
		IdempotencyMiddleware(DefaultIdempotencyConfig(rdb)),
		func(c *gin.Context) {
			calls++
			c.JSON(http.StatusCreated, gin.H{"booking_id": "bk-1"})
		})
	return router, &calls
}

func postBooking(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdempotency_MissingKeyRejected(t *testing.T) {
	router, calls := idempotencyRouter(newFakeIdempotencyRedis())

	w := postBooking(router, "", `{"court_id":"court-1"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_IDEMPOTENCY_KEY")
	assert.Equal(t, 0, *calls)
}

func TestIdempotency_RetryReplaysResponse(t *testing.T) {
	router, calls := idempotencyRouter(newFakeIdempotencyRedis())
	body := `{"court_id":"court-1"}`

	first := postBooking(router, "key-1", body)
	require.Equal(t, http.StatusCreated, first.Code)

	second := postBooking(router, "key-1", body)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())

	// The handler ran once, the retry was answered from Redis
	assert.Equal(t, 1, *calls)
}

func TestIdempotency_KeyReuseWithDifferentPayload(t *testing.T) {
	router, calls := idempotencyRouter(newFakeIdempotencyRedis())

	first := postBooking(router, "key-1", `{"court_id":"court-1"}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := postBooking(router, "key-1", `{"court_id":"court-2"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
	assert.Contains(t, second.Body.String(), "IDEMPOTENCY_KEY_REUSED")
	assert.Equal(t, 1, *calls)
}

func TestIdempotency_InFlightDuplicateConflicts(t *testing.T) {
	rdb := newFakeIdempotencyRedis()
	router, calls := idempotencyRouter(rdb)
	body := `{"court_id":"court-1"}`

	// Seed a processing record the way a concurrent request would
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req
	c.Set(ContextKeyUserID, "user-1")
	record := &idempotencyRecord{
		Key:         "key-1",
		Status:      statusProcessing,
		RequestHash: requestHash(c, []byte(body)),
		CreatedAt:   time.Now(),
	}
	require.True(t, claimKey(context.Background(), rdb, idempotencyKeyPrefix+"key-1", record, time.Minute))

	w := postBooking(router, "key-1", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "REQUEST_IN_PROGRESS")
	assert.Equal(t, 0, *calls)
}

func TestIdempotency_KeysScopedToUser(t *testing.T) {
	rdb := newFakeIdempotencyRedis()
	gin.SetMode(gin.TestMode)
	calls := 0
	router := gin.New()
	router.POST("/bookings",
		func(c *gin.Context) { c.Set(ContextKeyUserID, c.GetHeader("X-Test-User")) },
		IdempotencyMiddleware(DefaultIdempotencyConfig(rdb)),
		func(c *gin.Context) {
			calls++
			c.JSON(http.StatusCreated, gin.H{"booking_id": "bk-1"})
		})

	body := `{"court_id":"court-1"}`
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	req.Header.Set(IdempotencyKeyHeader, "key-1")
	req.Header.Set("X-Test-User", "user-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	// Another user reusing the key gets rejected, not a replay
	req = httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	req.Header.Set(IdempotencyKeyHeader, "key-1")
	req.Header.Set("X-Test-User", "user-2")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1, calls)
}
