/*
plan.go - Installment plan construction

PURPOSE:
  Turns a chosen plan kind into concrete installments. This is a pure
  function; persistence and the once-per-enrollment rule live in the
  Reconciler.

ROUNDING:
  A split plan halves the tuition to cent precision with the remainder on
  the second installment, so the parts always sum exactly to the total:

    100.00 -> 50.00 + 50.00
     99.99 -> 49.99 + 50.00

  The sum is then re-checked as a hard invariant. If rounding ever produced
  a mismatch the plan is rejected outright rather than persisted off by a
  cent.
*/
package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lumen/tuition-engine/ledger"
	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// BuildPlan constructs the installments for a plan choice.
//
//	full:  one installment of the whole tuition, due now.
//	split: two installments of half each, due now and one month out.
func BuildPlan(kind PlanKind, enrollmentID ledger.EnrollmentID, tuition decimal.Decimal, now time.Time) ([]Installment, error) {
	if !tuition.IsPositive() {
		return nil, fmt.Errorf("%w: tuition %s", ledger.ErrInvalidAmount, tuition)
	}

	var installments []Installment
	switch kind {
	case PlanFull:
		installments = []Installment{
			newInstallment(enrollmentID, tuition, now),
		}
	case PlanSplit:
		first := tuition.Div(two).RoundDown(2)
		second := tuition.Sub(first) // remainder lands here
		installments = []Installment{
			newInstallment(enrollmentID, first, now),
			newInstallment(enrollmentID, second, now.AddDate(0, 1, 0)),
		}
	default:
		return nil, fmt.Errorf("unknown plan kind %q", kind)
	}

	// Hard invariant: parts sum to the total, exactly.
	sum := decimal.Zero
	for _, in := range installments {
		sum = sum.Add(in.Amount)
	}
	if !sum.Equal(tuition) {
		return nil, fmt.Errorf("%w: %s != %s", ErrPlanInvariant, sum, tuition)
	}

	return installments, nil
}

func newInstallment(enrollmentID ledger.EnrollmentID, amount decimal.Decimal, due time.Time) Installment {
	return Installment{
		ID:           ledger.InstallmentID(uuid.NewString()),
		EnrollmentID: enrollmentID,
		Amount:       amount,
		DueDate:      due,
		Status:       InstallmentPending,
	}
}
