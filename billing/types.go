/*
Package billing implements tuition installment plans and the payment
reconciler.

PURPOSE:
  This is the domain package sitting on top of the ledger core. It owns the
  two invariants that make tuition billing correct:

  1. An enrollment's installments always sum exactly to its tuition total.
  2. The enrollment's payment status is a pure function of its installment
     set and the current time - recomputed on every change, never drifting.

KEY CONCEPTS:
  - Enrollment: one (user, course) pairing carrying a tuition total
  - Installment: one scheduled partial tuition payment
  - PlanKind: full (one installment, due now) or split (two, a month apart)
  - PaymentStatus: derived enrollment-level aggregate

SEE ALSO:
  - plan.go: Plan construction and the sum invariant
  - status.go: Payment status derivation
  - reconciler.go: The atomic credit/debit orchestrator
*/
package billing

import (
	"time"

	"github.com/lumen/tuition-engine/ledger"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PLAN
// =============================================================================

type PlanKind string

const (
	PlanFull  PlanKind = "full"
	PlanSplit PlanKind = "split"
)

// ParsePlanKind validates a plan kind from the outside world.
func ParsePlanKind(s string) (PlanKind, bool) {
	switch PlanKind(s) {
	case PlanFull, PlanSplit:
		return PlanKind(s), true
	}
	return "", false
}

// =============================================================================
// INSTALLMENT
// =============================================================================

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentOverdue InstallmentStatus = "overdue"
)

// Installment is one scheduled partial tuition payment. Mutated only by the
// Reconciler: the single allowed transition is pending -> paid.
type Installment struct {
	ID           ledger.InstallmentID
	EnrollmentID ledger.EnrollmentID
	Amount       decimal.Decimal
	DueDate      time.Time
	Status       InstallmentStatus
	PaidAt       *time.Time
	CreatedAt    time.Time
}

// =============================================================================
// ENROLLMENT
// =============================================================================

type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "pending"
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
)

// PaymentStatus is the derived aggregate over an enrollment's installments.
// Never set directly by callers; see ComputePaymentStatus.
type PaymentStatus string

const (
	PaymentNotStarted    PaymentStatus = "not_started"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentOverdue       PaymentStatus = "overdue"
	PaymentFullyPaid     PaymentStatus = "fully_paid"
)

type Enrollment struct {
	ID            ledger.EnrollmentID
	UserID        ledger.UserID
	CourseID      string
	Status        EnrollmentStatus
	PaymentStatus PaymentStatus
	TuitionTotal  decimal.Decimal
	Progress      int // percent
	EnrolledAt    time.Time
	CompletedAt   *time.Time
}
