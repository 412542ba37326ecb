// Package core holds the domain types shared by the order book, matching,
// ledger and settlement packages, and the error taxonomy of the exchange.
package core

import "errors"

var (
	// ErrValidation marks a malformed request. Returned before any lock is taken.
	ErrValidation = errors.New("validation error")

	// ErrUnknownInstrument is a validation failure for an unregistered instrument
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrInsufficientFunds marks a failed balance precheck. Nothing was mutated.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrPersistence marks a failed store write. The whole submission was
	// discarded and may be retried as a whole.
	ErrPersistence = errors.New("persistence error")

	// ErrInvariantViolation signals a logic or data-corruption bug. Not retryable.
	ErrInvariantViolation = errors.New("invariant violation")
)

// IsValidation reports whether err is a caller mistake
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrUnknownInstrument)
}
