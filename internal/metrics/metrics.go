package metrics

import (
	"context"
	"sync"

	"github.com/quickcourt/court-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Booking counters
	BookingsCreated   *telemetry.Counter
	BookingsConfirmed *telemetry.Counter
	BookingsExpired   *telemetry.Counter
	BookingsCancelled *telemetry.Counter
	PaymentsFailed    *telemetry.Counter

	// Settlement counters
	SettlementsTotal *telemetry.Counter
	ForcedCommits    *telemetry.Counter

	// Error tracking counters
	ErrorsTotal *telemetry.Counter

	// Histograms
	SettlementDuration *telemetry.Histogram
	RequestDuration    *telemetry.Histogram

	// Gauges
	ActiveHolds *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all booking metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	BookingsCreated, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_creations_total",
		Description: "Total number of bookings created",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsConfirmed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_confirmations_total",
		Description: "Total number of bookings confirmed",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsExpired, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_expirations_total",
		Description: "Total number of expired pending bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsCancelled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_cancellations_total",
		Description: "Total number of cancelled bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PaymentsFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_payment_failures_total",
		Description: "Total number of failed payment attempts",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SettlementsTotal, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_settlements_total",
		Description: "Total number of settled payments",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	ForcedCommits, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "sweep_forced_commits_total",
		Description: "Total number of holds rebuilt by the reconciliation sweep",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	ErrorsTotal, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_errors_total",
		Description: "Total number of errors by type and operation",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SettlementDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "payment_settlement_duration_seconds",
		Description: "Time from order creation to settlement",
		Unit:        "s",
	})
	if err != nil {
		return err
	}

	RequestDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "http_request_duration_seconds",
		Description: "HTTP request duration",
		Unit:        "s",
	})
	if err != nil {
		return err
	}

	ActiveHolds, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "booking_active_holds",
		Description: "Number of bookings currently holding slots",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordCreation records a booking creation metric
func RecordCreation(ctx context.Context, courtID string, slots int) {
	BookingsCreated.Inc(ctx,
		attribute.String("court_id", courtID),
		attribute.Int("slots", slots),
	)
	ActiveHolds.Inc(ctx)
}

// RecordConfirmation records a booking confirmation metric
func RecordConfirmation(ctx context.Context, courtID string, settlementSeconds float64) {
	BookingsConfirmed.Inc(ctx,
		attribute.String("court_id", courtID),
	)
	SettlementsTotal.Inc(ctx)
	SettlementDuration.Record(ctx, settlementSeconds,
		attribute.String("court_id", courtID),
	)
}

// RecordExpiration records pending bookings expired by the sweep
func RecordExpiration(ctx context.Context, count int64) {
	BookingsExpired.Add(ctx, count)
	ActiveHolds.Add(ctx, -count)
}

// RecordPaymentFailure records a failed payment attempt
func RecordPaymentFailure(ctx context.Context, reason string) {
	PaymentsFailed.Inc(ctx,
		attribute.String("reason", reason),
	)
	ActiveHolds.Dec(ctx)
}

// RecordCancellation records a booking cancellation metric
func RecordCancellation(ctx context.Context, courtID string) {
	BookingsCancelled.Inc(ctx,
		attribute.String("court_id", courtID),
	)
}

// RecordForcedCommit records a ledger rebuild by the reconciliation sweep
func RecordForcedCommit(ctx context.Context, bookingID string) {
	ForcedCommits.Inc(ctx,
		attribute.String("booking_id", bookingID),
	)
}

// RecordError records an error by type and operation
func RecordError(ctx context.Context, errorType, operation string) {
	ErrorsTotal.Inc(ctx,
		attribute.String("error_type", errorType),
		attribute.String("operation", operation),
	)
}

// RecordRequestDuration records HTTP request duration
func RecordRequestDuration(ctx context.Context, operation string, durationSeconds float64) {
	RequestDuration.Record(ctx, durationSeconds,
		attribute.String("operation", operation),
	)
}
