/*
errors.go - Centralized error types for the wallet-ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Service packages wrap these with additional context.

ERROR CATEGORIES:
  1. Money errors     - Insufficient funds/deposit, invalid amounts
  2. Lifecycle errors - Ride state machine violations
  3. Store errors     - Conflicts, duplicates, missing rows

RETRY SEMANTICS:
  Callers must be able to distinguish "retry later" from "do not retry":
  ErrConcurrencyConflict is the only retryable error; everything else is
  either a client mistake or a terminal business outcome.

USAGE:
    if errors.Is(err, ledger.ErrInsufficientFunds) { ... }

SEE ALSO:
  - store.go: Uses these errors
  - wallet/service.go: Produces the structured variants
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotConfigured is returned when no active pricing catalog exists.
	// Billing never invents default rates; only the public quote endpoint
	// may fall back to display-only figures.
	ErrNotConfigured = errors.New("no active pricing configuration")

	// ErrInsufficientFunds is returned when a balance debit exceeds the
	// spendable balance. Not retryable.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientDeposit is returned when a deposit charge exceeds the
	// held deposit. The charge is rejected outright - never clamped.
	ErrInsufficientDeposit = errors.New("insufficient deposit")

	// ErrInvalidAmount is returned for non-positive or non-finite amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrSessionAlreadyActive is returned when a user already has a ride
	// in progress.
	ErrSessionAlreadyActive = errors.New("session already active")

	// ErrBikeUnavailable is returned when the requested bike is not
	// available for rental.
	ErrBikeUnavailable = errors.New("bike unavailable")

	// ErrSessionNotFound is returned for an unknown ride ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrWrongState is returned when a lifecycle transition is illegal,
	// e.g. ending an already-completed ride.
	ErrWrongState = errors.New("wrong session state")

	// ErrConcurrencyConflict is returned when the wallet lock cannot be
	// acquired in time. Retryable; the caller owns backoff policy.
	ErrConcurrencyConflict = errors.New("concurrent wallet modification")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the
	// same idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrWalletNotFound is returned for an unknown user wallet.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrTransactionNotFound is returned for an unknown transaction ID.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrIncidentNotFound is returned for an unknown incident ID.
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrAlreadyReversed is returned when reversing a transaction that
	// already has an offsetting refund.
	ErrAlreadyReversed = errors.New("transaction already reversed")

	// ErrStatusFinal is returned when moving a transaction's status more
	// than once. pending -> completed/failed/rejected happens exactly once.
	ErrStatusFinal = errors.New("transaction status is final")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError details a balance shortage.
type InsufficientFundsError struct {
	UserID    UserID
	Available Money
	Requested Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, requested %s, shortfall %s",
		e.Available, e.Requested, e.Requested.Sub(e.Available))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// InsufficientDepositError details a deposit shortage.
type InsufficientDepositError struct {
	UserID    UserID
	Available Money
	Requested Money
}

func (e *InsufficientDepositError) Error() string {
	return fmt.Sprintf("insufficient deposit: held %s, charge %s",
		e.Available, e.Requested)
}

func (e *InsufficientDepositError) Unwrap() error { return ErrInsufficientDeposit }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid client input
// or a terminal business outcome the client must not retry.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientDeposit) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrSessionAlreadyActive) ||
		errors.Is(err, ErrBikeUnavailable) ||
		errors.Is(err, ErrWrongState) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrStatusFinal) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWalletNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrIncidentNotFound)
}
