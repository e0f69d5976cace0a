package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/quickcourt/court-booking/internal/domain"
	"github.com/quickcourt/court-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Config holds Razorpay client settings
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// RazorpayGateway implements PaymentGateway against the Razorpay
// Orders and Payments REST API.
type RazorpayGateway struct {
	config     *Config
	httpClient *http.Client
}

// NewRazorpayGateway creates a new Razorpay client
func NewRazorpayGateway(cfg *Config) *RazorpayGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RazorpayGateway{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns the gateway identifier
func (g *RazorpayGateway) Name() string {
	return "razorpay"
}

// toSubunits converts a major-currency amount to the smallest unit
func toSubunits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type razorpayCaptureRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type razorpayPaymentResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Captured bool   `json:"captured"`
}

// CreateOrder opens a gateway order for the booking amount
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.razorpay.create_order")
	defer span.End()

	span.SetAttributes(
		attribute.Float64("amount", req.Amount),
		attribute.String("currency", req.Currency),
	)

	body := &razorpayOrderRequest{
		Amount:   toSubunits(req.Amount),
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	}

	var resp razorpayOrderResponse
	if err := g.post(ctx, "/orders", body, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("order_id", resp.ID))
	span.SetStatus(codes.Ok, "")
	return &Order{
		ID:        resp.ID,
		Amount:    float64(resp.Amount) / 100,
		Currency:  resp.Currency,
		Status:    resp.Status,
		CreatedAt: time.Unix(resp.CreatedAt, 0).UTC(),
	}, nil
}

// Capture finalizes funds for a verified payment
func (g *RazorpayGateway) Capture(ctx context.Context, req *CaptureRequest) (*CaptureResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.razorpay.capture")
	defer span.End()

	span.SetAttributes(attribute.String("payment_id", req.PaymentID))

	body := &razorpayCaptureRequest{
		Amount:   toSubunits(req.Amount),
		Currency: req.Currency,
	}

	var resp razorpayPaymentResponse
	path := fmt.Sprintf("/payments/%s/capture", req.PaymentID)
	if err := g.post(ctx, path, body, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return &CaptureResult{
		PaymentID: resp.ID,
		Status:    resp.Status,
		Captured:  resp.Captured || resp.Status == "captured",
	}, nil
}

// post sends an authenticated JSON request and decodes the response.
// Network and 5xx failures surface as ErrGatewayUnavailable so callers
// can retry safely.
func (g *RazorpayGateway) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.config.KeyID, g.config.KeySecret)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", domain.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: gateway returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway rejected request with %d: %s", resp.StatusCode, string(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
