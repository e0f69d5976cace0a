package domain

import "errors"

// Domain errors
var (
	// Booking errors
	ErrBookingNotFound      = errors.New("booking not found")
	ErrBookingAlreadyExists = errors.New("booking already exists")
	ErrInvalidTransition    = errors.New("invalid booking status transition")

	// Slot ledger errors
	ErrSlotConflict = errors.New("slot is held by another booking")
	ErrHoldExpired  = errors.New("slot hold has expired")
	ErrHoldNotFound = errors.New("slot hold not found")

	// Settlement errors
	ErrAttemptNotFound    = errors.New("payment attempt not found")
	ErrAttemptExists      = errors.New("payment attempt already exists")
	ErrOutOfSequence      = errors.New("settlement step out of sequence")
	ErrSignatureInvalid   = errors.New("payment signature verification failed")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// Cancellation errors
	ErrNotCancellable           = errors.New("booking is not in a cancellable status")
	ErrCancellationWindowClosed = errors.New("cancellation window has closed")

	// Validation errors
	ErrInvalidUserID    = errors.New("invalid user id")
	ErrInvalidBookingID = errors.New("invalid booking id")
	ErrInvalidCourtID   = errors.New("invalid court id")
	ErrNoSlots          = errors.New("booking must contain at least one slot")
	ErrTooManySlots     = errors.New("booking exceeds the slot limit")
	ErrSlotsAcrossDates = errors.New("all slots must be on the same date")
	ErrSlotNotAligned   = errors.New("slot must cover exactly one grid-aligned unit")
	ErrInvalidTimeRange = errors.New("slot end must be after start")
	ErrInvalidPrice     = errors.New("unit price cannot be negative")
	ErrPriceMismatch    = errors.New("total amount does not equal sum of slot prices")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrHoldNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidBookingID) ||
		errors.Is(err, ErrInvalidCourtID) ||
		errors.Is(err, ErrNoSlots) ||
		errors.Is(err, ErrTooManySlots) ||
		errors.Is(err, ErrSlotsAcrossDates) ||
		errors.Is(err, ErrSlotNotAligned) ||
		errors.Is(err, ErrInvalidTimeRange) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrPriceMismatch)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSlotConflict) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrBookingAlreadyExists) ||
		errors.Is(err, ErrAttemptExists) ||
		errors.Is(err, ErrOutOfSequence) ||
		errors.Is(err, ErrNotCancellable) ||
		errors.Is(err, ErrCancellationWindowClosed)
}

// IsExpiredError checks if the error is an expiration error
func IsExpiredError(err error) bool {
	return errors.Is(err, ErrHoldExpired)
}
