package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quickcourt/court-booking/internal/domain"
	"github.com/quickcourt/court-booking/internal/dto"
	"github.com/quickcourt/court-booking/internal/service"
	"github.com/quickcourt/court-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PaymentHandler handles payment settlement HTTP requests
type PaymentHandler struct {
	settlementService service.SettlementService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(settlementService service.SettlementService) *PaymentHandler {
	return &PaymentHandler{settlementService: settlementService}
}

// Callback handles POST /payments/callback
// The gateway redirect lands here with the signed order and payment
// pair. A bad signature fails the payment permanently.
func (h *PaymentHandler) Callback(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.callback")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.PaymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request",
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	span.SetAttributes(attribute.String("order_id", req.OrderID))

	result, err := h.settlementService.ReceiveCallback(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// Settle handles POST /payments/:order_id/settle
// Idempotent: settling an already settled order returns the prior
// success.
func (h *PaymentHandler) Settle(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.settle")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	orderID := c.Param("order_id")
	span.SetAttributes(attribute.String("order_id", orderID))

	result, err := h.settlementService.Settle(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// handleError maps settlement errors to HTTP status codes
func (h *PaymentHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "NOT_FOUND",
		})
	case errors.Is(err, domain.ErrSignatureInvalid):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "SIGNATURE_INVALID",
		})
	case errors.Is(err, domain.ErrOutOfSequence),
		errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "OUT_OF_SEQUENCE",
		})
	case errors.Is(err, domain.ErrHoldExpired):
		c.JSON(http.StatusGone, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "HOLD_EXPIRED",
		})
	case errors.Is(err, domain.ErrGatewayUnavailable):
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "GATEWAY_UNAVAILABLE",
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
