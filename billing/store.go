/*
store.go - Transactional store union for the Reconciler

PURPOSE:
  The Reconciler's atomic units touch the ledger, installments, and the
  enrollment aggregate in one commit. Store is the union of everything it
  needs; TxStore adds the all-or-nothing boundary.

ATOMICITY CONTRACT:
  WithTx runs fn against a Store view whose writes all commit together or
  not at all. Implementations serialize conflicting writers (SQLite:
  single-writer + a store mutex; the in-memory store: one mutex), so the
  guarded installment transition below can only succeed once.

GUARDED TRANSITIONS:
  MarkInstallmentPaid must be conditional on the row still being unpaid
  (UPDATE ... WHERE status != 'paid'). Two concurrent payers race to
  exactly one success; the loser gets ErrAlreadyPaid.
*/
package billing

import (
	"context"
	"time"

	"github.com/lumen/tuition-engine/ledger"
)

// Store is everything the Reconciler reads and writes.
type Store interface {
	ledger.Store

	// GetEnrollment returns nil (not an error) when the id is unknown.
	GetEnrollment(ctx context.Context, id ledger.EnrollmentID) (*Enrollment, error)

	// InsertEnrollment persists a new enrollment.
	InsertEnrollment(ctx context.Context, e Enrollment) error

	// SetEnrollmentPaymentStatus writes the recomputed aggregate.
	SetEnrollmentPaymentStatus(ctx context.Context, id ledger.EnrollmentID, status PaymentStatus) error

	// InsertInstallments persists a freshly built plan. All or nothing.
	InsertInstallments(ctx context.Context, installments []Installment) error

	// InstallmentsByEnrollment returns the full set, ordered by due date.
	InstallmentsByEnrollment(ctx context.Context, id ledger.EnrollmentID) ([]Installment, error)

	// GetInstallment returns nil when the id is unknown.
	GetInstallment(ctx context.Context, id ledger.InstallmentID) (*Installment, error)

	// MarkInstallmentPaid transitions pending -> paid. Guarded: returns
	// ErrAlreadyPaid if the installment is no longer unpaid.
	MarkInstallmentPaid(ctx context.Context, id ledger.InstallmentID, paidAt time.Time) error
}

// TxStore is a Store that can open an atomic unit.
type TxStore interface {
	Store

	// WithTx executes fn within one transaction. If fn returns an error the
	// transaction rolls back and nothing fn wrote is observable.
	WithTx(ctx context.Context, fn func(Store) error) error
}
