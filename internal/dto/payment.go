package dto

import "time"

// PaymentCallbackRequest is the gateway redirect payload delivered by
// the client after checkout.
type PaymentCallbackRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// PaymentCallbackResponse is returned after callback verification
type PaymentCallbackResponse struct {
	BookingID string `json:"booking_id"`
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Verified  bool   `json:"verified"`
}

// SettleResponse is returned after settlement completes
type SettleResponse struct {
	BookingID     string     `json:"booking_id"`
	OrderID       string     `json:"order_id"`
	BookingStatus string     `json:"booking_status"`
	AttemptStatus string     `json:"attempt_status"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
}
