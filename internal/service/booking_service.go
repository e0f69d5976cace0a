package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/quickcourt/court-booking/internal/domain"
	"github.com/quickcourt/court-booking/internal/dto"
	"github.com/quickcourt/court-booking/internal/metrics"
	"github.com/quickcourt/court-booking/internal/pricing"
	"github.com/quickcourt/court-booking/internal/query"
	"github.com/quickcourt/court-booking/internal/repository"
	"github.com/quickcourt/court-booking/pkg/logger"
	"github.com/quickcourt/court-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// BookingService defines the interface for booking business logic
type BookingService interface {
	// CreateBooking places a tentative hold on the requested slots and
	// creates the booking in PENDING_PAYMENT.
	CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error)

	// GetBooking retrieves one booking owned by the user
	GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error)

	// ListBookings returns a filtered, sorted page of the user's
	// bookings plus the total match count.
	ListBookings(ctx context.Context, userID string, q query.Query) ([]*dto.BookingResponse, int, error)

	// GetStats returns the aggregate view of the user's bookings
	GetStats(ctx context.Context, userID string) (*dto.BookingStatsResponse, error)

	// CancelBooking cancels a confirmed booking inside its
	// cancellation window and frees the held slots.
	CancelBooking(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error)
}

// bookingService implements BookingService
type bookingService struct {
	bookingRepo    repository.BookingRepository
	holdRepo       repository.HoldRepository
	pricing        pricing.Provider
	eventPublisher EventPublisher
	holdTTL        time.Duration
	cancelWindow   time.Duration
	slotLength     time.Duration
	maxSlots       int
	currency       string
	now            func() time.Time
}

// BookingServiceConfig contains configuration for the booking service
type BookingServiceConfig struct {
	HoldTTL      time.Duration
	CancelWindow time.Duration
	SlotLength   time.Duration
	MaxSlots     int
	Currency     string

	// Clock overrides time.Now, used in tests
	Clock func() time.Time
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookingRepo repository.BookingRepository,
	holdRepo repository.HoldRepository,
	pricingProvider pricing.Provider,
	eventPublisher EventPublisher,
	cfg *BookingServiceConfig,
) BookingService {
	holdTTL := 15 * time.Minute
	cancelWindow := 24 * time.Hour
	slotLength := time.Hour
	maxSlots := 8
	currency := "INR"
	now := time.Now
	if cfg != nil {
		if cfg.HoldTTL > 0 {
			holdTTL = cfg.HoldTTL
		}
		if cfg.CancelWindow > 0 {
			cancelWindow = cfg.CancelWindow
		}
		if cfg.SlotLength > 0 {
			slotLength = cfg.SlotLength
		}
		if cfg.MaxSlots > 0 {
			maxSlots = cfg.MaxSlots
		}
		if cfg.Currency != "" {
			currency = cfg.Currency
		}
		if cfg.Clock != nil {
			now = cfg.Clock
		}
	}
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	return &bookingService{
		bookingRepo:    bookingRepo,
		holdRepo:       holdRepo,
		pricing:        pricingProvider,
		eventPublisher: eventPublisher,
		holdTTL:        holdTTL,
		cancelWindow:   cancelWindow,
		slotLength:     slotLength,
		maxSlots:       maxSlots,
		currency:       currency,
		now:            now,
	}
}

// subunits converts a major-currency amount to the smallest unit
func subunits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreateBooking validates the request against the court catalog, holds
// the slots atomically and persists the booking. Prices are frozen at
// creation from the pricing provider, never from the client.
func (s *bookingService) CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if req == nil || req.CourtID == "" {
		span.SetStatus(codes.Error, "invalid court_id")
		return nil, domain.ErrInvalidCourtID
	}
	if len(req.Slots) == 0 {
		span.SetStatus(codes.Error, "no slots")
		return nil, domain.ErrNoSlots
	}
	if len(req.Slots) > s.maxSlots {
		span.SetStatus(codes.Error, "too many slots")
		return nil, domain.ErrTooManySlots
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("court_id", req.CourtID),
		attribute.Int("slots", len(req.Slots)),
	)

	court, err := s.pricing.Court(ctx, req.CourtID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown court")
		return nil, domain.ErrInvalidCourtID
	}

	now := s.now()

	slots := make([]domain.Slot, 0, len(req.Slots))
	starts := make([]time.Time, 0, len(req.Slots))
	var total float64
	for _, sr := range req.Slots {
		price, err := s.pricing.UnitPrice(ctx, req.CourtID, sr.Start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "pricing unavailable")
			return nil, err
		}
		slot := domain.Slot{Start: sr.Start, End: sr.End, UnitPrice: price}
		if err := slot.Validate(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		// The ledger keys holds by slot start, so every hold must cover
		// exactly one grid-aligned unit slot or offset ranges would slip
		// past each other.
		if slot.End.Sub(slot.Start) != s.slotLength || !slot.Start.Truncate(s.slotLength).Equal(slot.Start) {
			span.SetStatus(codes.Error, "slot off grid")
			return nil, domain.ErrSlotNotAligned
		}
		for _, existing := range slots {
			if slot.Overlaps(&existing) {
				span.SetStatus(codes.Error, "overlapping slots")
				return nil, domain.ErrSlotConflict
			}
		}
		slots = append(slots, slot)
		starts = append(starts, sr.Start)
		total += price
	}

	// Quotes are compared in subunits; float sums drift below that
	if subunits(req.TotalAmount) != subunits(total) {
		span.SetStatus(codes.Error, "price mismatch")
		return nil, domain.ErrPriceMismatch
	}

	booking := &domain.Booking{
		ID:            uuid.New().String(),
		UserID:        userID,
		CourtID:       court.CourtID,
		CourtName:     court.CourtName,
		FacilityName:  court.FacilityName,
		Sport:         court.Sport,
		Slots:         slots,
		TotalAmount:   total,
		Currency:      s.currency,
		Status:        domain.BookingStatusPendingPayment,
		HoldExpiresAt: now.Add(s.holdTTL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	booking.Date = booking.StartTime().Truncate(24 * time.Hour)
	booking.CancelDeadline = booking.StartTime().Add(-s.cancelWindow)

	if err := booking.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hold, err := s.holdRepo.TryHold(ctx, repository.TryHoldParams{
		BookingID: booking.ID,
		CourtID:   booking.CourtID,
		Starts:    starts,
		TTL:       s.holdTTL,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hold failed")
		return nil, err
	}
	if !hold.Success {
		span.SetAttributes(attribute.String("conflict_key", hold.ConflictKey))
		span.SetStatus(codes.Error, "slot conflict")
		return nil, domain.ErrSlotConflict
	}

	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		if _, relErr := s.holdRepo.Release(ctx, booking.ID); relErr != nil {
			logger.Get().Error("failed to release holds after create failure",
				zap.String("booking_id", booking.ID),
				zap.Error(relErr),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}

	if err := s.eventPublisher.PublishBookingCreated(ctx, booking); err != nil {
		logger.Get().Warn("failed to publish booking created event",
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
	}
	metrics.RecordCreation(ctx, booking.CourtID, len(booking.Slots))

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return &dto.CreateBookingResponse{
		BookingID:     booking.ID,
		Status:        string(booking.Status),
		TotalAmount:   booking.TotalAmount,
		Currency:      booking.Currency,
		HoldExpiresAt: booking.HoldExpiresAt,
	}, nil
}

// GetBooking retrieves one booking owned by the user. Bookings of
// other users read as not found.
func (s *bookingService) GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	if bookingID == "" {
		return nil, domain.ErrInvalidBookingID
	}
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "not found")
		return nil, err
	}
	if booking.UserID != userID {
		span.SetStatus(codes.Error, "owner mismatch")
		return nil, domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(booking, s.now()), nil
}

// ListBookings loads the user's bookings and runs the query pipeline
func (s *bookingService) ListBookings(ctx context.Context, userID string, q query.Query) ([]*dto.BookingResponse, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list")
	defer span.End()

	if userID == "" {
		return nil, 0, domain.ErrInvalidUserID
	}
	span.SetAttributes(attribute.String("user_id", userID))

	bookings, err := s.bookingRepo.ListByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, 0, err
	}

	now := s.now()
	page, total := query.Apply(bookings, q, now)

	span.SetAttributes(attribute.Int("total", total))
	span.SetStatus(codes.Ok, "")
	return dto.FromDomainList(page, now), total, nil
}

// GetStats aggregates the user's full booking history
func (s *bookingService) GetStats(ctx context.Context, userID string) (*dto.BookingStatsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.stats")
	defer span.End()

	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}

	bookings, err := s.bookingRepo.ListByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.StatsFromQuery(query.Aggregate(bookings, s.now())), nil
}

// CancelBooking cancels a confirmed booking before its cancel deadline.
// The deadline was fixed at creation; reaching it exactly means the
// window is closed.
func (s *bookingService) CancelBooking(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()

	if bookingID == "" {
		return nil, domain.ErrInvalidBookingID
	}
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "not found")
		return nil, err
	}
	if booking.UserID != userID {
		span.SetStatus(codes.Error, "owner mismatch")
		return nil, domain.ErrBookingNotFound
	}

	now := s.now()
	if booking.Status != domain.BookingStatusConfirmed {
		span.SetStatus(codes.Error, "not cancellable")
		return nil, domain.ErrNotCancellable
	}
	if !now.Before(booking.CancelDeadline) {
		span.SetStatus(codes.Error, "window closed")
		return nil, domain.ErrCancellationWindowClosed
	}

	if err := s.bookingRepo.Transition(ctx, bookingID, domain.BookingStatusConfirmed, domain.BookingStatusCancelled); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return nil, err
	}

	if _, err := s.holdRepo.Release(ctx, bookingID); err != nil {
		logger.Get().Error("failed to release holds for cancelled booking",
			zap.String("booking_id", bookingID),
			zap.Error(err),
		)
	}

	booking.Status = domain.BookingStatusCancelled
	booking.CancelledAt = &now
	if err := s.eventPublisher.PublishBookingCancelled(ctx, booking); err != nil {
		logger.Get().Warn("failed to publish booking cancelled event",
			zap.String("booking_id", bookingID),
			zap.Error(err),
		)
	}
	metrics.RecordCancellation(ctx, booking.CourtID)

	span.SetStatus(codes.Ok, "")
	return &dto.CancelBookingResponse{
		BookingID:   bookingID,
		Status:      string(domain.BookingStatusCancelled),
		CancelledAt: now,
	}, nil
}
