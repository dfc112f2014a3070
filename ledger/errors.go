/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  Sentinel errors shared across the engine plus structured errors that
  carry context. Domain packages (billing, exam) add their own sentinels
  and wrap these where appropriate.

USAGE:
  Callers branch with errors.Is:

    if errors.Is(err, ledger.ErrDuplicateReference) {
        // already credited, safe to treat as success
    }

SEE ALSO:
  - billing/errors.go: Payment-flow sentinels (AlreadyPaid, PlanAlreadyChosen)
  - gateway/gateway.go: Gateway reachability errors
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateReference is returned when an entry with the same external
	// reference already exists. This is the idempotency guard firing; for
	// retried gateway callbacks it is expected behavior, not a fault.
	ErrDuplicateReference = errors.New("duplicate external reference")

	// ErrInsufficientFunds is returned when a debit exceeds the wallet balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAmount is returned for non-positive or over-precise amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrEntryTerminal is returned when trying to move a completed or failed
	// entry to another status.
	ErrEntryTerminal = errors.New("ledger entry already terminal")

	// ErrConcurrentModification is returned when a guarded write detects a
	// conflicting concurrent update. Safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports how short the wallet is.
type InsufficientFundsError struct {
	UserID    UserID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, requested %s",
		e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation might succeed on retry with
// identical arguments.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error was caused by bad caller input
// rather than engine or storage state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNotFound)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
