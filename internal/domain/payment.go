package domain

import "time"

// AttemptStatus is the settlement state of a payment attempt
type AttemptStatus string

const (
	AttemptStatusCreated          AttemptStatus = "CREATED"
	AttemptStatusCallbackVerified AttemptStatus = "CALLBACK_VERIFIED"
	AttemptStatusSettled          AttemptStatus = "SETTLED"
	AttemptStatusFailed           AttemptStatus = "FAILED"
)

// attemptTransitions mirrors the settlement state machine. SETTLED and
// FAILED are terminal.
var attemptTransitions = map[AttemptStatus][]AttemptStatus{
	AttemptStatusCreated:          {AttemptStatusCallbackVerified, AttemptStatusFailed},
	AttemptStatusCallbackVerified: {AttemptStatusSettled, AttemptStatusFailed},
}

// CanTransitionAttempt reports whether from -> to is a legal attempt
// status change.
func CanTransitionAttempt(from, to AttemptStatus) bool {
	for _, next := range attemptTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the attempt can no longer change state
func (s AttemptStatus) IsTerminal() bool {
	return len(attemptTransitions[s]) == 0
}

// PaymentAttempt tracks one gateway order through the settlement
// handshake. Keyed by the gateway order id, one-to-one with a booking
// while it is pending payment.
type PaymentAttempt struct {
	OrderID    string        `json:"order_id"`
	BookingID  string        `json:"booking_id"`
	Amount     float64       `json:"amount"`
	Currency   string        `json:"currency"`
	Status     AttemptStatus `json:"status"`
	PaymentID  string        `json:"payment_id,omitempty"`
	Signature  string        `json:"signature,omitempty"`
	VerifiedAt *time.Time    `json:"verified_at,omitempty"`
	SettledAt  *time.Time    `json:"settled_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
