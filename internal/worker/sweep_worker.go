package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
	"github.com/quickcourt/court-booking/internal/metrics"
	"github.com/quickcourt/court-booking/internal/repository"
	"github.com/quickcourt/court-booking/internal/service"
	"github.com/quickcourt/court-booking/pkg/logger"
	"go.uber.org/zap"
)

// SweepWorkerConfig contains configuration for the sweep worker
type SweepWorkerConfig struct {
	// Interval is the time between sweep passes
	Interval time.Duration
	// BatchSize is the maximum rows processed per pass and listing
	BatchSize int
	// ReconcileWindow is how far back the reconciliation pass looks
	// for confirmed bookings with missing ledger entries
	ReconcileWindow time.Duration
	// Clock overrides time.Now, used in tests
	Clock func() time.Time
}

// DefaultSweepWorkerConfig returns default configuration
func DefaultSweepWorkerConfig() *SweepWorkerConfig {
	return &SweepWorkerConfig{
		Interval:        time.Minute,
		BatchSize:       100,
		ReconcileWindow: time.Hour,
	}
}

// SweepWorker runs the three periodic passes that keep bookings and
// the slot ledger consistent: expiring stale pending bookings,
// rebuilding ledger entries for confirmed bookings, and completing
// bookings whose slots have ended.
type SweepWorker struct {
	bookingRepo    repository.BookingRepository
	holdRepo       repository.HoldRepository
	eventPublisher service.EventPublisher
	config         *SweepWorkerConfig
	log            *zap.Logger
	now            func() time.Time
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool

	totalExpired   int64
	totalRebuilt   int64
	totalCompleted int64
	lastSweepTime  time.Time
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(
	bookingRepo repository.BookingRepository,
	holdRepo repository.HoldRepository,
	eventPublisher service.EventPublisher,
	config *SweepWorkerConfig,
) *SweepWorker {
	if config == nil {
		config = DefaultSweepWorkerConfig()
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.ReconcileWindow <= 0 {
		config.ReconcileWindow = time.Hour
	}
	now := config.Clock
	if now == nil {
		now = time.Now
	}
	if eventPublisher == nil {
		eventPublisher = service.NewNoOpEventPublisher()
	}

	return &SweepWorker{
		bookingRepo:    bookingRepo,
		holdRepo:       holdRepo,
		eventPublisher: eventPublisher,
		config:         config,
		log:            logger.Get(),
		now:            now,
		stopCh:         make(chan struct{}),
	}
}

// Start starts the sweep worker
func (w *SweepWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sweep worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("starting sweep worker",
		zap.Duration("interval", w.config.Interval),
		zap.Int("batch_size", w.config.BatchSize),
	)

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop stops the sweep worker and waits for the current pass
func (w *SweepWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("sweep worker stopped")
}

func (w *SweepWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one full pass of all three sweeps
func (w *SweepWorker) Sweep(ctx context.Context) {
	w.mu.Lock()
	w.lastSweepTime = w.now()
	w.mu.Unlock()

	w.expirePending(ctx)
	w.reconcileConfirmed(ctx)
	w.completeEnded(ctx)
}

// expirePending expires PENDING_PAYMENT bookings whose hold deadline
// has passed and frees their slots.
func (w *SweepWorker) expirePending(ctx context.Context) {
	now := w.now()
	expired, err := w.bookingRepo.ListExpiredPending(ctx, now, w.config.BatchSize)
	if err != nil {
		w.log.Error("failed to list expired pending bookings", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}

	var count int64
	for _, booking := range expired {
		err := w.bookingRepo.Transition(ctx, booking.ID, domain.BookingStatusPendingPayment, domain.BookingStatusExpired)
		if errors.Is(err, domain.ErrInvalidTransition) {
			// A settlement won the race, leave the booking alone
			continue
		}
		if err != nil {
			w.log.Error("failed to expire booking",
				zap.String("booking_id", booking.ID),
				zap.Error(err),
			)
			continue
		}

		if _, err := w.holdRepo.Release(ctx, booking.ID); err != nil {
			w.log.Warn("failed to release holds for expired booking",
				zap.String("booking_id", booking.ID),
				zap.Error(err),
			)
		}

		booking.Status = domain.BookingStatusExpired
		if err := w.eventPublisher.PublishBookingExpired(ctx, booking); err != nil {
			w.log.Warn("failed to publish booking expired event",
				zap.String("booking_id", booking.ID),
				zap.Error(err),
			)
		}
		count++
	}

	if count > 0 {
		metrics.RecordExpiration(ctx, count)
		w.mu.Lock()
		w.totalExpired += count
		w.mu.Unlock()
		w.log.Info("expired stale pending bookings", zap.Int64("count", count))
	}
}

// reconcileConfirmed rebuilds committed ledger entries for confirmed
// bookings whose holds were lost between confirmation and commit.
func (w *SweepWorker) reconcileConfirmed(ctx context.Context) {
	since := w.now().Add(-w.config.ReconcileWindow)
	confirmed, err := w.bookingRepo.ListConfirmedSince(ctx, since, w.config.BatchSize)
	if err != nil {
		w.log.Error("failed to list confirmed bookings", zap.Error(err))
		return
	}

	for _, booking := range confirmed {
		kind, err := w.holdRepo.Kind(ctx, booking.ID)
		if err == nil && kind == domain.HoldCommitted {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrHoldNotFound) {
			w.log.Error("failed to check hold kind",
				zap.String("booking_id", booking.ID),
				zap.Error(err),
			)
			continue
		}

		starts := make([]time.Time, 0, len(booking.Slots))
		for _, slot := range booking.Slots {
			starts = append(starts, slot.Start)
		}
		if err := w.holdRepo.ForceCommit(ctx, booking.ID, booking.CourtID, starts); err != nil {
			w.log.Error("failed to rebuild holds for confirmed booking",
				zap.String("booking_id", booking.ID),
				zap.Error(err),
			)
			continue
		}

		metrics.RecordForcedCommit(ctx, booking.ID)
		w.mu.Lock()
		w.totalRebuilt++
		w.mu.Unlock()
		w.log.Warn("rebuilt ledger entries for confirmed booking",
			zap.String("booking_id", booking.ID),
		)
	}
}

// completeEnded moves confirmed bookings whose last slot has ended to
// COMPLETED.
func (w *SweepWorker) completeEnded(ctx context.Context) {
	now := w.now()
	ended, err := w.bookingRepo.ListConfirmedEnded(ctx, now, w.config.BatchSize)
	if err != nil {
		w.log.Error("failed to list ended bookings", zap.Error(err))
		return
	}

	var count int64
	for _, booking := range ended {
		if !booking.EndTime().Before(now) {
			continue
		}
		err := w.bookingRepo.Transition(ctx, booking.ID, domain.BookingStatusConfirmed, domain.BookingStatusCompleted)
		if errors.Is(err, domain.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			w.log.Error("failed to complete booking",
				zap.String("booking_id", booking.ID),
				zap.Error(err),
			)
			continue
		}

		// The play time is over, the ledger entries can go
		if _, err := w.holdRepo.Release(ctx, booking.ID); err != nil {
			w.log.Warn("failed to release holds for completed booking",
				zap.String("booking_id", booking.ID),
				zap.Error(err),
			)
		}
		count++
	}

	if count > 0 {
		w.mu.Lock()
		w.totalCompleted += count
		w.mu.Unlock()
		w.log.Info("completed ended bookings", zap.Int64("count", count))
	}
}

// GetStats returns worker statistics
func (w *SweepWorker) GetStats() *SweepWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &SweepWorkerStats{
		IsRunning:      w.running,
		TotalExpired:   w.totalExpired,
		TotalRebuilt:   w.totalRebuilt,
		TotalCompleted: w.totalCompleted,
		LastSweepTime:  w.lastSweepTime,
	}
}

// SweepWorkerStats contains worker statistics
type SweepWorkerStats struct {
	IsRunning      bool      `json:"is_running"`
	TotalExpired   int64     `json:"total_expired"`
	TotalRebuilt   int64     `json:"total_rebuilt"`
	TotalCompleted int64     `json:"total_completed"`
	LastSweepTime  time.Time `json:"last_sweep_time"`
}
