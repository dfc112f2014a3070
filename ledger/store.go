/*
store.go - Persistence interface for the wallet ledger

PURPOSE:
  Defines the interface between the reconciliation logic and the database.
  The Store keeps the ledger append-only: entries are inserted once, and
  the only permitted update is the pending -> completed | failed status
  transition.

IDEMPOTENCY:
  InsertEntry reserves the external reference via a unique constraint.
  A second insert with the same reference fails with ErrDuplicateReference.
  This reservation is what makes verify-and-credit safe under concurrent
  gateway callbacks: exactly one caller wins the insert, every other caller
  observes the existing entry.

BALANCE:
  Balance is computed by the store (SUM over completed entries), never read
  from a counter column. Computing it inside the same transaction that
  writes a debit is what makes the insufficient-funds check race-free.

IMPLEMENTATIONS:
  - store/sqlite: Durable SQLite store (production)
  - store/memory: In-memory store (tests, dev)

SEE ALSO:
  - billing/store.go: Transactional store union used by the Reconciler
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store handles persistence of wallet ledger entries.
//
// IMPORTANT: entries are append-only. There is no delete, and the only
// update is the status transition performed by CompleteEntry / FailEntry.
type Store interface {
	// InsertEntry persists a new entry. If the entry carries a Reference
	// that already exists, returns ErrDuplicateReference and writes nothing.
	InsertEntry(ctx context.Context, e Entry) error

	// EntryByReference returns the entry holding the given external
	// reference, or nil if no entry holds it.
	EntryByReference(ctx context.Context, reference string) (*Entry, error)

	// CompleteEntry moves a pending entry to completed and records the
	// verified amount. Returns ErrEntryTerminal if the entry is already
	// completed or failed, ErrNotFound if it doesn't exist.
	CompleteEntry(ctx context.Context, id EntryID, amount decimal.Decimal) error

	// FailEntry moves a pending entry to failed. Same guards as CompleteEntry.
	FailEntry(ctx context.Context, id EntryID) error

	// Balance returns the wallet balance for a user: the sum of all
	// completed entries, credits minus debits.
	Balance(ctx context.Context, userID UserID) (decimal.Decimal, error)

	// EntriesByUser returns all entries for a user, oldest first.
	EntriesByUser(ctx context.Context, userID UserID) ([]Entry, error)
}
