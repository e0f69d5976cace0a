package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/quickcourt/court-booking/internal/domain"
)

// MockGateway is an in-process PaymentGateway for tests and local
// development. Orders succeed unless a failure is armed.
type MockGateway struct {
	mu sync.Mutex

	FailCreateOrder bool
	FailCapture     bool

	orders   map[string]*Order
	captures []string
}

// NewMockGateway creates a new mock gateway
func NewMockGateway() *MockGateway {
	return &MockGateway{orders: make(map[string]*Order)}
}

// Name returns the gateway identifier
func (g *MockGateway) Name() string {
	return "mock"
}

// CreateOrder records and returns a synthetic order
func (g *MockGateway) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailCreateOrder {
		return nil, fmt.Errorf("%w: create order refused", domain.ErrGatewayUnavailable)
	}

	order := &Order{
		ID:       "order_" + uuid.New().String(),
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   "created",
	}
	g.orders[order.ID] = order
	return order, nil
}

// Capture records the capture and succeeds unless armed to fail
func (g *MockGateway) Capture(ctx context.Context, req *CaptureRequest) (*CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailCapture {
		return nil, fmt.Errorf("%w: capture refused", domain.ErrGatewayUnavailable)
	}

	g.captures = append(g.captures, req.PaymentID)
	return &CaptureResult{PaymentID: req.PaymentID, Status: "captured", Captured: true}, nil
}

// Captures returns the payment ids captured so far
func (g *MockGateway) Captures() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.captures...)
}

// OrderCount returns how many orders were opened
func (g *MockGateway) OrderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}
