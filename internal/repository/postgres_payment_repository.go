package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quickcourt/court-booking/internal/domain"
	"github.com/quickcourt/court-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresPaymentRepository implements PaymentAttemptRepository using PostgreSQL
type PostgresPaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPaymentRepository creates a new PostgresPaymentRepository
func NewPostgresPaymentRepository(pool *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{pool: pool}
}

const attemptColumns = `
	order_id, booking_id, amount, currency, status,
	payment_id, signature, verified_at, settled_at, created_at, updated_at
`

// Create inserts a new payment attempt keyed by gateway order id
func (r *PostgresPaymentRepository) Create(ctx context.Context, attempt *domain.PaymentAttempt) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", attempt.OrderID),
		attribute.String("booking_id", attempt.BookingID),
	)

	query := `
		INSERT INTO payment_attempts (
			order_id, booking_id, amount, currency, status,
			payment_id, signature, verified_at, settled_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (booking_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		attempt.OrderID,
		attempt.BookingID,
		attempt.Amount,
		attempt.Currency,
		string(attempt.Status),
		nullString(attempt.PaymentID),
		nullString(attempt.Signature),
		attempt.VerifiedAt,
		attempt.SettledAt,
		attempt.CreatedAt,
		attempt.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create payment attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttemptExists
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func scanAttempt(row pgx.Row) (*domain.PaymentAttempt, error) {
	attempt := &domain.PaymentAttempt{}
	var (
		status    string
		paymentID *string
		signature *string
	)

	err := row.Scan(
		&attempt.OrderID,
		&attempt.BookingID,
		&attempt.Amount,
		&attempt.Currency,
		&status,
		&paymentID,
		&signature,
		&attempt.VerifiedAt,
		&attempt.SettledAt,
		&attempt.CreatedAt,
		&attempt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	attempt.Status = domain.AttemptStatus(status)
	if paymentID != nil {
		attempt.PaymentID = *paymentID
	}
	if signature != nil {
		attempt.Signature = *signature
	}
	return attempt, nil
}

// GetByOrderID retrieves a payment attempt by gateway order id
func (r *PostgresPaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentAttempt, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_by_order_id")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID))

	query := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE order_id = $1`

	attempt, err := scanAttempt(r.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAttemptNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get payment attempt: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return attempt, nil
}

// GetByBookingID retrieves the payment attempt opened for a booking
func (r *PostgresPaymentRepository) GetByBookingID(ctx context.Context, bookingID string) (*domain.PaymentAttempt, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_by_booking_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	query := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE booking_id = $1`

	attempt, err := scanAttempt(r.pool.QueryRow(ctx, query, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAttemptNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get payment attempt by booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return attempt, nil
}

// RecordCallback stores the verified callback, guarded on CREATED
func (r *PostgresPaymentRepository) RecordCallback(ctx context.Context, orderID, paymentID, signature string, verifiedAt time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.record_callback")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID))

	query := `
		UPDATE payment_attempts
		SET status = 'CALLBACK_VERIFIED',
		    payment_id = $2,
		    signature = $3,
		    verified_at = $4,
		    updated_at = $4
		WHERE order_id = $1 AND status = 'CREATED'
	`

	tag, err := r.pool.Exec(ctx, query, orderID, paymentID, signature, verifiedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to record callback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.sequenceError(ctx, orderID)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// MarkSettled finalizes the attempt, guarded on CALLBACK_VERIFIED
func (r *PostgresPaymentRepository) MarkSettled(ctx context.Context, orderID string, settledAt time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.mark_settled")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID))

	query := `
		UPDATE payment_attempts
		SET status = 'SETTLED', settled_at = $2, updated_at = $2
		WHERE order_id = $1 AND status = 'CALLBACK_VERIFIED'
	`

	tag, err := r.pool.Exec(ctx, query, orderID, settledAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to mark attempt settled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.sequenceError(ctx, orderID)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// MarkFailed moves any non-terminal attempt to FAILED
func (r *PostgresPaymentRepository) MarkFailed(ctx context.Context, orderID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.mark_failed")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID))

	query := `
		UPDATE payment_attempts
		SET status = 'FAILED', updated_at = $2
		WHERE order_id = $1 AND status IN ('CREATED', 'CALLBACK_VERIFIED')
	`

	tag, err := r.pool.Exec(ctx, query, orderID, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to mark attempt failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.sequenceError(ctx, orderID)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// sequenceError distinguishes a missing attempt from a guard miss
func (r *PostgresPaymentRepository) sequenceError(ctx context.Context, orderID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payment_attempts WHERE order_id = $1)`, orderID).Scan(&exists); err == nil && !exists {
		return domain.ErrAttemptNotFound
	}
	return domain.ErrOutOfSequence
}
