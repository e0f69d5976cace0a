// Package retry provides bounded exponential backoff for calls to
// flaky downstreams, plus a dead letter publisher for event payloads
// that exhaust their attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

var (
	// ErrExhausted reports that every allowed attempt failed.
	ErrExhausted = errors.New("retry attempts exhausted")
	// ErrCanceled reports that the context ended mid-retry.
	ErrCanceled = errors.New("retry canceled by context")
)

// Operation is retried until it returns nil or attempts run out.
type Operation func(ctx context.Context) error

// Config bounds the backoff schedule. Zero fields take defaults.
type Config struct {
	// MaxRetries counts retries after the initial attempt.
	MaxRetries int
	// InitialInterval is the wait before the first retry.
	InitialInterval time.Duration
	// MaxInterval caps the grown interval.
	MaxInterval time.Duration
	// Multiplier grows the interval after each failed attempt.
	Multiplier float64
	// JitterFactor spreads each wait by up to that fraction either way
	// so concurrent publishers do not retry in lockstep.
	JitterFactor float64
	// OnRetry, when set, observes each failure before the wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig suits short publish calls: 200ms, 400ms, 800ms waits
// before giving up.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.2,
	}
}

// PermanentError stops the retry loop immediately
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks an error as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Result reports how a retried operation ended.
type Result struct {
	// Err is nil on success, ErrExhausted or ErrCanceled otherwise,
	// or the unwrapped error when the operation failed permanently.
	Err error
	// Attempts counts every call made, including the first.
	Attempts int
	// LastErr is the error from the final attempt.
	LastErr error
	// Elapsed is wall time spent including waits.
	Elapsed time.Duration
}

// Retrier runs operations under one backoff schedule
type Retrier struct {
	cfg *Config
}

// New builds a Retrier, filling zero config fields from DefaultConfig.
func New(cfg *Config) *Retrier {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.JitterFactor < 0 {
		cfg.JitterFactor = 0
	}
	if cfg.JitterFactor > 1 {
		cfg.JitterFactor = 1
	}
	return &Retrier{cfg: cfg}
}

// Do runs op until it succeeds, fails permanently, the context ends,
// or the attempt budget runs out.
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	start := time.Now()
	res := &Result{}

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			res.Err = ErrCanceled
			res.Elapsed = time.Since(start)
			return res
		}

		res.Attempts = attempt + 1
		err := op(ctx)
		if err == nil {
			res.Elapsed = time.Since(start)
			return res
		}
		res.LastErr = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			res.Err = perm.Err
			res.LastErr = perm.Err
			res.Elapsed = time.Since(start)
			return res
		}

		if attempt == r.cfg.MaxRetries {
			break
		}

		wait := r.wait(attempt)
		if r.cfg.OnRetry != nil {
			r.cfg.OnRetry(attempt+1, err, wait)
		}
		select {
		case <-ctx.Done():
			res.Err = ErrCanceled
			res.Elapsed = time.Since(start)
			return res
		case <-time.After(wait):
		}
	}

	res.Err = ErrExhausted
	res.Elapsed = time.Since(start)
	return res
}

// wait computes the backoff before retry number attempt+1
func (r *Retrier) wait(attempt int) time.Duration {
	d := float64(r.cfg.InitialInterval) * math.Pow(r.cfg.Multiplier, float64(attempt))
	if r.cfg.JitterFactor > 0 {
		d += d * r.cfg.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d > float64(r.cfg.MaxInterval) {
		d = float64(r.cfg.MaxInterval)
	}
	if d < 0 {
		d = float64(r.cfg.InitialInterval)
	}
	return time.Duration(d)
}

// Do is shorthand for New(cfg).Do(ctx, op)
func Do(ctx context.Context, cfg *Config, op Operation) *Result {
	return New(cfg).Do(ctx, op)
}
