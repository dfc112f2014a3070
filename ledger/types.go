/*
Package ledger provides the core wallet ledger for the tuition engine.

PURPOSE:
  This package contains the domain-agnostic types for tracking money moving
  in and out of a user's wallet. Every credit from a payment gateway and
  every tuition debit becomes an immutable Entry; the wallet balance is
  always derived by summing completed entries, never stored as an
  independently mutable counter.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: A single wallet fund movement (credit or debit)
  - Direction: Which way the money moves
  - EntryStatus: pending -> completed | failed, the only mutation allowed
  - Reference: The external gateway reference, unique when present - this
    is the idempotency key guaranteeing at-most-once crediting

DESIGN PRINCIPLES:
  1. Immutability: A completed or failed entry is never modified
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Derivation: Balance is sum(completed credits) - sum(completed debits)
  4. Idempotency: A reference, once completed, can never credit again

SEE ALSO:
  - store.go: Persistence interfaces
  - errors.go: Sentinel and structured errors
  - billing/reconciler.go: The only writer of ledger entries
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type EntryID string
type EnrollmentID string
type InstallmentID string

// =============================================================================
// ENTRY - One wallet fund movement
// =============================================================================

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
)

// Entry is a single row in the wallet ledger.
//
// Entries are append-only: once written, only the Status field may change,
// and only along pending -> completed | failed. The Amount of a pending
// credit may be corrected by the verified gateway amount at completion;
// after that the entry is frozen.
type Entry struct {
	ID        EntryID
	UserID    UserID
	Direction Direction
	Amount    decimal.Decimal // always positive; Direction carries the sign

	// Reference is the external payment gateway reference. Empty for
	// internal movements (wallet debits). Unique across the ledger when
	// present: the store rejects a second entry with the same reference.
	Reference string

	// InstallmentID links a gateway top-up to the tuition installment it
	// was initiated for. Empty for plain wallet funding.
	InstallmentID InstallmentID

	Status      EntryStatus
	Description string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Signed returns the entry amount with the direction applied.
func (e Entry) Signed() decimal.Decimal {
	if e.Direction == DirectionDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Terminal reports whether the entry can no longer change status.
func (e Entry) Terminal() bool {
	return e.Status == EntryCompleted || e.Status == EntryFailed
}

// BalanceOf replays entries and returns the completed balance.
// Store implementations compute this in SQL; this is the reference
// definition used by the in-memory store and by tests.
func BalanceOf(entries []Entry) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range entries {
		if e.Status != EntryCompleted {
			continue
		}
		balance = balance.Add(e.Signed())
	}
	return balance
}
