package repository

import (
	"context"
	"encoding/json"
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

// PostgresBookingRepository implements BookingRepository using PostgreSQL with pgxpool
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

const bookingColumns = `
	id, user_id, court_id, court_name, facility_name, sport,
	date, slots, total_amount, currency, status,
	cancel_deadline, hold_expires_at, payment_order_id, payment_id,
	created_at, updated_at, cancelled_at
`

// Create creates a new booking record in the database
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("user_id", booking.UserID),
		attribute.String("court_id", booking.CourtID),
	)

	slots, err := json.Marshal(booking.Slots)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to encode slots: %w", err)
	}

	query := `
		INSERT INTO bookings (
			id, user_id, court_id, court_name, facility_name, sport,
			date, slots, total_amount, currency, status,
			cancel_deadline, hold_expires_at, payment_order_id, payment_id,
			created_at, updated_at, cancelled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18
		)
	`

	_, err = r.pool.Exec(ctx, query,
		booking.ID,
		booking.UserID,
		booking.CourtID,
		booking.CourtName,
		booking.FacilityName,
		booking.Sport,
		booking.Date,
		slots,
		booking.TotalAmount,
		booking.Currency,
		string(booking.Status),
		booking.CancelDeadline,
		booking.HoldExpiresAt,
		nullString(booking.PaymentOrderID),
		nullString(booking.PaymentID),
		booking.CreatedAt,
		booking.UpdatedAt,
		booking.CancelledAt,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var (
		status         string
		slots          []byte
		paymentOrderID *string
		paymentID      *string
		cancelledAt    *time.Time
	)

	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.CourtID,
		&booking.CourtName,
		&booking.FacilityName,
		&booking.Sport,
		&booking.Date,
		&slots,
		&booking.TotalAmount,
		&booking.Currency,
		&status,
		&booking.CancelDeadline,
		&booking.HoldExpiresAt,
		&paymentOrderID,
		&paymentID,
		&booking.CreatedAt,
		&booking.UpdatedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(slots, &booking.Slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots: %w", err)
	}
	booking.Status = domain.BookingStatus(status)
	if paymentOrderID != nil {
		booking.PaymentOrderID = *paymentOrderID
	}
	if paymentID != nil {
		booking.PaymentID = *paymentID
	}
	booking.CancelledAt = cancelledAt

	return booking, nil
}

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetByOrderID retrieves a booking by its gateway order id
func (r *PostgresBookingRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_order_id")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE payment_order_id = $1`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking by order id: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// ListByUser retrieves all bookings owned by a user, newest first
func (r *PostgresBookingRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_by_user")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", userID))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// Transition performs the guarded compare-and-set status change
func (r *PostgresBookingRepository) Transition(ctx context.Context, id string, from, to domain.BookingStatus) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.transition")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", id),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	)

	if !domain.CanTransition(from, to) {
		span.SetStatus(codes.Error, "transition not in table")
		return domain.ErrInvalidTransition
	}

	query := `
		UPDATE bookings
		SET status = $3,
		    updated_at = $4,
		    cancelled_at = CASE WHEN $3 = 'CANCELLED' THEN $4 ELSE cancelled_at END
		WHERE id = $1 AND status = $2
	`

	tag, err := r.pool.Exec(ctx, query, id, string(from), string(to), time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to transition booking: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists); err == nil && !exists {
			return domain.ErrBookingNotFound
		}
		span.SetStatus(codes.Error, "status mismatch")
		return domain.ErrInvalidTransition
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// AttachPaymentOrder stores the gateway order id opened for the booking
func (r *PostgresBookingRepository) AttachPaymentOrder(ctx context.Context, id, orderID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.attach_payment_order")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", id),
		attribute.String("order_id", orderID),
	)

	query := `UPDATE bookings SET payment_order_id = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, orderID, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to attach payment order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// RecordSettlement stores the captured gateway payment reference
func (r *PostgresBookingRepository) RecordSettlement(ctx context.Context, id, paymentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.record_settlement")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", id),
		attribute.String("payment_id", paymentID),
	)

	query := `UPDATE bookings SET payment_id = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, paymentID, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to record settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListExpiredPending returns pending bookings whose hold deadline passed
func (r *PostgresBookingRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_expired_pending")
	defer span.End()

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'PENDING_PAYMENT' AND hold_expires_at < $1
		ORDER BY hold_expires_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list expired pending bookings: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// ListConfirmedSince returns bookings confirmed after the given instant
func (r *PostgresBookingRepository) ListConfirmedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_confirmed_since")
	defer span.End()

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'CONFIRMED' AND updated_at >= $1
		ORDER BY updated_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list confirmed bookings: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// ListConfirmedEnded returns confirmed bookings whose play time is over
func (r *PostgresBookingRepository) ListConfirmedEnded(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_confirmed_ended")
	defer span.End()

	// Candidates by calendar date; the caller re-checks exact slot end
	// times before marking anything completed.
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'CONFIRMED' AND date < $1
		ORDER BY date
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list ended bookings: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

func collectBookings(rows pgx.Rows) ([]*domain.Booking, error) {
	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
