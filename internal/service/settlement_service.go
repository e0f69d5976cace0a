package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
	"github.com/quickcourt/court-booking/internal/dto"
	"github.com/quickcourt/court-booking/internal/gateway"
	"github.com/quickcourt/court-booking/internal/metrics"
	"github.com/quickcourt/court-booking/internal/repository"
	"github.com/quickcourt/court-booking/pkg/logger"
	"github.com/quickcourt/court-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// SettlementService drives the payment attempt state machine:
// CREATED -> CALLBACK_VERIFIED -> SETTLED, with FAILED reachable from
// any non-terminal step.
type SettlementService interface {
	// OpenOrder opens (or returns the already open) gateway order for
	// a pending booking.
	OpenOrder(ctx context.Context, bookingID, userID string) (*dto.OpenOrderResponse, error)

	// ReceiveCallback verifies the gateway redirect signature. An
	// invalid signature fails the payment and frees the held slots.
	ReceiveCallback(ctx context.Context, req *dto.PaymentCallbackRequest) (*dto.PaymentCallbackResponse, error)

	// Settle captures the verified payment and confirms the booking.
	// Settling an already settled order returns the prior success.
	Settle(ctx context.Context, orderID string) (*dto.SettleResponse, error)
}

// settlementService implements SettlementService
type settlementService struct {
	bookingRepo    repository.BookingRepository
	attemptRepo    repository.PaymentAttemptRepository
	holdRepo       repository.HoldRepository
	gateway        gateway.PaymentGateway
	eventPublisher EventPublisher
	keySecret      string
	now            func() time.Time
}

// SettlementServiceConfig contains configuration for the settlement service
type SettlementServiceConfig struct {
	// KeySecret signs and verifies gateway callback signatures
	KeySecret string

	// Clock overrides time.Now, used in tests
	Clock func() time.Time
}

// NewSettlementService creates a new settlement service
func NewSettlementService(
	bookingRepo repository.BookingRepository,
	attemptRepo repository.PaymentAttemptRepository,
	holdRepo repository.HoldRepository,
	gw gateway.PaymentGateway,
	eventPublisher EventPublisher,
	cfg *SettlementServiceConfig,
) SettlementService {
	now := time.Now
	keySecret := ""
	if cfg != nil {
		keySecret = cfg.KeySecret
		if cfg.Clock != nil {
			now = cfg.Clock
		}
	}
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	return &settlementService{
		bookingRepo:    bookingRepo,
		attemptRepo:    attemptRepo,
		holdRepo:       holdRepo,
		gateway:        gw,
		eventPublisher: eventPublisher,
		keySecret:      keySecret,
		now:            now,
	}
}

// Signature computes the callback signature for an order and payment
// pair. The gateway signs the same string with the shared key secret.
func Signature(orderID, paymentID, keySecret string) string {
	mac := hmac.New(sha256.New, []byte(keySecret))
	fmt.Fprintf(mac, "%s|%s", orderID, paymentID)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *settlementService) verifySignature(orderID, paymentID, signature string) bool {
	expected := Signature(orderID, paymentID, s.keySecret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// OpenOrder opens a gateway order for the booking. Retrying after a
// gateway outage reuses the existing attempt instead of opening twice.
func (s *settlementService) OpenOrder(ctx context.Context, bookingID, userID string) (*dto.OpenOrderResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.settlement.open_order")
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
	if userID != "" && booking.UserID != userID {
		span.SetStatus(codes.Error, "owner mismatch")
		return nil, domain.ErrBookingNotFound
	}
	if !booking.IsSettleable() {
		span.SetStatus(codes.Error, "not settleable")
		return nil, domain.ErrInvalidTransition
	}

	if attempt, err := s.attemptRepo.GetByBookingID(ctx, bookingID); err == nil {
		if attempt.Status == domain.AttemptStatusFailed {
			span.SetStatus(codes.Error, "attempt already failed")
			return nil, domain.ErrOutOfSequence
		}
		span.SetStatus(codes.Ok, "")
		return &dto.OpenOrderResponse{
			BookingID:      bookingID,
			PaymentOrderID: attempt.OrderID,
			Amount:         attempt.Amount,
			Currency:       attempt.Currency,
		}, nil
	} else if !errors.Is(err, domain.ErrAttemptNotFound) {
		span.RecordError(err)
		return nil, err
	}

	order, err := s.gateway.CreateOrder(ctx, &gateway.CreateOrderRequest{
		Amount:   booking.TotalAmount,
		Currency: booking.Currency,
		Receipt:  bookingID,
		Notes:    map[string]string{"booking_id": bookingID},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway create order failed")
		return nil, err
	}

	now := s.now()
	attempt := &domain.PaymentAttempt{
		OrderID:   order.ID,
		BookingID: bookingID,
		Amount:    booking.TotalAmount,
		Currency:  booking.Currency,
		Status:    domain.AttemptStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create attempt failed")
		return nil, err
	}
	if err := s.bookingRepo.AttachPaymentOrder(ctx, bookingID, order.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attach order failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("order_id", order.ID))
	span.SetStatus(codes.Ok, "")
	return &dto.OpenOrderResponse{
		BookingID:      bookingID,
		PaymentOrderID: order.ID,
		Amount:         booking.TotalAmount,
		Currency:       booking.Currency,
	}, nil
}

// ReceiveCallback verifies the redirect signature. Verification fails
// closed: a bad signature fails the attempt, fails the booking and
// frees the slots immediately.
func (s *settlementService) ReceiveCallback(ctx context.Context, req *dto.PaymentCallbackRequest) (*dto.PaymentCallbackResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.settlement.callback")
	defer span.End()

	if req == nil || req.OrderID == "" || req.PaymentID == "" {
		return nil, domain.ErrAttemptNotFound
	}
	span.SetAttributes(attribute.String("order_id", req.OrderID))

	attempt, err := s.attemptRepo.GetByOrderID(ctx, req.OrderID)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		// A callback can only follow an opened order; anything else is
		// a stale or fabricated session.
		span.SetStatus(codes.Error, "no attempt for order")
		return nil, domain.ErrOutOfSequence
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt lookup failed")
		return nil, err
	}

	// A replay of an already verified callback is answered from state
	if attempt.Status == domain.AttemptStatusCallbackVerified || attempt.Status == domain.AttemptStatusSettled {
		if attempt.PaymentID == req.PaymentID && s.verifySignature(req.OrderID, req.PaymentID, req.Signature) {
			span.SetStatus(codes.Ok, "")
			return &dto.PaymentCallbackResponse{
				BookingID: attempt.BookingID,
				OrderID:   req.OrderID,
				Status:    string(attempt.Status),
				Verified:  true,
			}, nil
		}
		span.SetStatus(codes.Error, "out of sequence")
		return nil, domain.ErrOutOfSequence
	}

	if !s.verifySignature(req.OrderID, req.PaymentID, req.Signature) {
		s.failAttempt(ctx, attempt, "signature_invalid")
		span.SetStatus(codes.Error, "signature invalid")
		return nil, domain.ErrSignatureInvalid
	}

	if err := s.attemptRepo.RecordCallback(ctx, req.OrderID, req.PaymentID, req.Signature, s.now()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record callback failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return &dto.PaymentCallbackResponse{
		BookingID: attempt.BookingID,
		OrderID:   req.OrderID,
		Status:    string(domain.AttemptStatusCallbackVerified),
		Verified:  true,
	}, nil
}

// Settle captures the payment and confirms the booking. The order of
// writes favors the customer: once the booking is CONFIRMED, a crash
// before the ledger commit is repaired by the reconciliation sweep.
func (s *settlementService) Settle(ctx context.Context, orderID string) (*dto.SettleResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.settlement.settle")
	defer span.End()

	if orderID == "" {
		return nil, domain.ErrAttemptNotFound
	}
	span.SetAttributes(attribute.String("order_id", orderID))

	attempt, err := s.attemptRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt not found")
		return nil, err
	}

	if attempt.Status == domain.AttemptStatusSettled {
		span.SetStatus(codes.Ok, "already settled")
		return s.settledResponse(attempt), nil
	}
	if attempt.Status != domain.AttemptStatusCallbackVerified {
		span.SetStatus(codes.Error, "out of sequence")
		return nil, domain.ErrOutOfSequence
	}

	booking, err := s.bookingRepo.GetByID(ctx, attempt.BookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "booking not found")
		return nil, err
	}

	// A previous settle may have confirmed the booking and crashed
	// before marking the attempt. Finish the remaining steps only.
	if booking.Status == domain.BookingStatusConfirmed {
		return s.finishSettlement(ctx, attempt, booking)
	}
	if !booking.IsSettleable() {
		span.SetStatus(codes.Error, "booking not settleable")
		return nil, domain.ErrInvalidTransition
	}

	if _, err := s.gateway.Capture(ctx, &gateway.CaptureRequest{
		PaymentID: attempt.PaymentID,
		Amount:    attempt.Amount,
		Currency:  attempt.Currency,
	}); err != nil {
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			// Transient: no state change, the caller retries
			span.RecordError(err)
			span.SetStatus(codes.Error, "gateway unavailable")
			return nil, err
		}
		s.failAttempt(ctx, attempt, "capture_rejected")
		span.RecordError(err)
		span.SetStatus(codes.Error, "capture rejected")
		return nil, err
	}

	if err := s.bookingRepo.Transition(ctx, booking.ID, domain.BookingStatusPendingPayment, domain.BookingStatusConfirmed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm failed")
		return nil, err
	}
	if err := s.bookingRepo.RecordSettlement(ctx, booking.ID, attempt.PaymentID); err != nil {
		logger.Get().Error("failed to record payment reference on booking",
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
	}

	booking.Status = domain.BookingStatusConfirmed
	return s.finishSettlement(ctx, attempt, booking)
}

// finishSettlement commits the ledger and marks the attempt settled
// for a booking that is already CONFIRMED.
func (s *settlementService) finishSettlement(ctx context.Context, attempt *domain.PaymentAttempt, booking *domain.Booking) (*dto.SettleResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.settlement.finish")
	defer span.End()

	if commit, err := s.holdRepo.Commit(ctx, booking.ID); err != nil || !commit.Success {
		// The booking stays CONFIRMED. The reconciliation sweep
		// rebuilds the ledger with a forced commit.
		logger.Get().Error("failed to commit holds for confirmed booking",
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
	}

	now := s.now()
	if err := s.attemptRepo.MarkSettled(ctx, attempt.OrderID, now); err != nil && !errors.Is(err, domain.ErrOutOfSequence) {
		span.RecordError(err)
		return nil, err
	}

	if err := s.eventPublisher.PublishBookingConfirmed(ctx, booking); err != nil {
		logger.Get().Warn("failed to publish booking confirmed event",
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
	}
	metrics.RecordConfirmation(ctx, booking.CourtID, now.Sub(attempt.CreatedAt).Seconds())

	span.SetStatus(codes.Ok, "")
	attempt.Status = domain.AttemptStatusSettled
	attempt.SettledAt = &now
	return s.settledResponse(attempt), nil
}

func (s *settlementService) settledResponse(attempt *domain.PaymentAttempt) *dto.SettleResponse {
	return &dto.SettleResponse{
		BookingID:     attempt.BookingID,
		OrderID:       attempt.OrderID,
		BookingStatus: string(domain.BookingStatusConfirmed),
		AttemptStatus: string(domain.AttemptStatusSettled),
		SettledAt:     attempt.SettledAt,
	}
}

// failAttempt fails the payment attempt and the booking together and
// frees the held slots.
func (s *settlementService) failAttempt(ctx context.Context, attempt *domain.PaymentAttempt, reason string) {
	if err := s.attemptRepo.MarkFailed(ctx, attempt.OrderID); err != nil {
		logger.Get().Error("failed to mark attempt failed",
			zap.String("order_id", attempt.OrderID),
			zap.Error(err),
		)
	}

	booking, err := s.bookingRepo.GetByID(ctx, attempt.BookingID)
	if err != nil {
		logger.Get().Error("failed to load booking for failed payment",
			zap.String("booking_id", attempt.BookingID),
			zap.Error(err),
		)
		return
	}

	if booking.Status == domain.BookingStatusPendingPayment {
		if err := s.bookingRepo.Transition(ctx, booking.ID, domain.BookingStatusPendingPayment, domain.BookingStatusPaymentFailed); err != nil {
			logger.Get().Error("failed to fail booking after payment failure",
				zap.String("booking_id", booking.ID),
				zap.Error(err),
			)
			return
		}
		booking.Status = domain.BookingStatusPaymentFailed
	}

	if _, err := s.holdRepo.Release(ctx, booking.ID); err != nil {
		logger.Get().Error("failed to release holds after payment failure",
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
	}

	if err := s.eventPublisher.PublishPaymentFailed(ctx, booking); err != nil {
		logger.Get().Warn("failed to publish payment failed event",
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
	}
	metrics.RecordPaymentFailure(ctx, reason)
}
