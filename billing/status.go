/*
status.go - Payment status derivation

PURPOSE:
  ComputePaymentStatus is the single source of truth for an enrollment's
  aggregate payment state. The stored enrollments.payment_status column is
  only a cache of this function over the current installment set; the
  Reconciler recomputes it inside the same transaction as every installment
  change, so the cache can never drift from its inputs.

RULES (evaluated in order):
  1. every installment paid           -> fully_paid
  2. any unpaid installment past due  -> overdue   (strictly before now)
  3. at least one installment paid    -> partially_paid
  4. otherwise                        -> not_started
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaidSummary aggregates the paid side of an installment set.
type PaidSummary struct {
	Paid  decimal.Decimal
	Count int
}

// ComputePaymentStatus derives the aggregate payment state from an
// installment set. Pure: same installments + same now = same answer.
func ComputePaymentStatus(installments []Installment, now time.Time) PaymentStatus {
	if len(installments) == 0 {
		return PaymentNotStarted
	}

	allPaid := true
	anyPaid := false
	anyOverdue := false
	for _, in := range installments {
		if in.Status == InstallmentPaid {
			anyPaid = true
			continue
		}
		allPaid = false
		if in.DueDate.Before(now) {
			anyOverdue = true
		}
	}

	switch {
	case allPaid:
		return PaymentFullyPaid
	case anyOverdue:
		return PaymentOverdue
	case anyPaid:
		return PaymentPartiallyPaid
	default:
		return PaymentNotStarted
	}
}

// PaidTotal sums the paid installments. Used for the paid_amount the API
// reports after a successful installment payment.
func PaidTotal(installments []Installment) (total PaidSummary) {
	for _, in := range installments {
		if in.Status == InstallmentPaid {
			total.Paid = total.Paid.Add(in.Amount)
			total.Count++
		}
	}
	return total
}
