package billing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen/tuition-engine/billing"
	"github.com/lumen/tuition-engine/ledger"
)

var planNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestBuildPlan_Full_SingleInstallmentDueNow(t *testing.T) {
	// GIVEN: A 1500.00 tuition total
	// WHEN: Choosing the full plan
	// THEN: One installment for the whole amount, due immediately

	plan, err := billing.BuildPlan(billing.PlanFull, "enr-1", ledger.MustMoney("1500.00"), planNow)
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.True(t, plan[0].Amount.Equal(ledger.MustMoney("1500.00")))
	assert.Equal(t, planNow, plan[0].DueDate)
	assert.Equal(t, billing.InstallmentPending, plan[0].Status)
	assert.Equal(t, ledger.EnrollmentID("enr-1"), plan[0].EnrollmentID)
}

func TestBuildPlan_Split_EvenAmount(t *testing.T) {
	// GIVEN: A tuition total that halves to cent precision
	// WHEN: Choosing the split plan
	// THEN: Two equal halves, due now and one month out

	plan, err := billing.BuildPlan(billing.PlanSplit, "enr-1", ledger.MustMoney("100.00"), planNow)
	require.NoError(t, err)
	require.Len(t, plan, 2)

	assert.Equal(t, "50.00", plan[0].Amount.StringFixed(2))
	assert.Equal(t, "50.00", plan[1].Amount.StringFixed(2))
	assert.Equal(t, planNow, plan[0].DueDate)
	assert.Equal(t, planNow.AddDate(0, 1, 0), plan[1].DueDate)
}

func TestBuildPlan_Split_OddCent_RemainderOnSecond(t *testing.T) {
	// GIVEN: A tuition total with an odd cent
	// WHEN: Choosing the split plan
	// THEN: The extra cent lands on the second installment and the parts
	//       still sum to the total exactly

	plan, err := billing.BuildPlan(billing.PlanSplit, "enr-1", ledger.MustMoney("99.99"), planNow)
	require.NoError(t, err)
	require.Len(t, plan, 2)

	assert.Equal(t, "49.99", plan[0].Amount.StringFixed(2))
	assert.Equal(t, "50.00", plan[1].Amount.StringFixed(2))

	sum := plan[0].Amount.Add(plan[1].Amount)
	assert.True(t, sum.Equal(ledger.MustMoney("99.99")), "parts must sum to total")
}

func TestBuildPlan_Split_SumInvariantHoldsAcrossAmounts(t *testing.T) {
	// The halving rule must never lose or invent a cent, whatever the total.
	for _, raw := range []string{"0.01", "0.03", "10.00", "33.33", "1234.56", "9999.99"} {
		total := ledger.MustMoney(raw)
		plan, err := billing.BuildPlan(billing.PlanSplit, "enr-1", total, planNow)
		require.NoError(t, err, "total %s", raw)

		sum := decimal.Zero
		for _, in := range plan {
			sum = sum.Add(in.Amount)
			assert.False(t, in.Amount.IsNegative(), "total %s produced a negative part", raw)
		}
		assert.True(t, sum.Equal(total), "total %s: parts sum to %s", raw, sum)
	}
}

func TestBuildPlan_RejectsNonPositiveTuition(t *testing.T) {
	_, err := billing.BuildPlan(billing.PlanFull, "enr-1", decimal.Zero, planNow)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = billing.BuildPlan(billing.PlanSplit, "enr-1", decimal.NewFromInt(-5), planNow)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestBuildPlan_RejectsUnknownKind(t *testing.T) {
	_, err := billing.BuildPlan(billing.PlanKind("quarterly"), "enr-1", ledger.MustMoney("100.00"), planNow)
	assert.Error(t, err)
}

func TestParsePlanKind(t *testing.T) {
	kind, ok := billing.ParsePlanKind("full")
	assert.True(t, ok)
	assert.Equal(t, billing.PlanFull, kind)

	kind, ok = billing.ParsePlanKind("split")
	assert.True(t, ok)
	assert.Equal(t, billing.PlanSplit, kind)

	_, ok = billing.ParsePlanKind("weekly")
	assert.False(t, ok)
}
