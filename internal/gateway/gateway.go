package gateway

import (
	"context"
	"time"
)

// CreateOrderRequest asks the gateway to open an order for a booking
type CreateOrderRequest struct {
	Amount   float64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is the gateway's record of an opened payment order
type Order struct {
	ID        string
	Amount    float64
	Currency  string
	Status    string
	CreatedAt time.Time
}

// CaptureRequest finalizes funds for a verified payment
type CaptureRequest struct {
	PaymentID string
	Amount    float64
	Currency  string
}

// CaptureResult is the gateway's capture outcome
type CaptureResult struct {
	PaymentID string
	Status    string
	Captured  bool
}

// PaymentGateway is the external payment provider port. Both calls
// block on network I/O; callers must not hold store or ledger locks
// while invoking them.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error)
	Capture(ctx context.Context, req *CaptureRequest) (*CaptureResult, error)
	Name() string
}
