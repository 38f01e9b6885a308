package payment

import "errors"

var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrInvalidMethod    = errors.New("invalid payment method, expected cash or card")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCard      = errors.New("invalid card details")
	ErrInsufficientCash = errors.New("cash tendered is less than the amount")
	ErrAlreadyExists    = errors.New("appointment already has a payment")
	ErrChargeBusy       = errors.New("appointment is currently being charged, please retry")

	// ErrNotAvailable is the soft no-op: the charge or confirmation target is
	// missing, foreign, or no longer in a state that accepts it.
	ErrNotAvailable = errors.New("not_available")
)
