package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen/tuition-engine/billing"
	"github.com/lumen/tuition-engine/exam"
	"github.com/lumen/tuition-engine/ledger"
	"github.com/lumen/tuition-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func creditEntry(id, userID, reference, amount string, status ledger.EntryStatus) ledger.Entry {
	return ledger.Entry{
		ID:        ledger.EntryID(id),
		UserID:    ledger.UserID(userID),
		Direction: ledger.DirectionCredit,
		Amount:    ledger.MustMoney(amount),
		Reference: reference,
		Status:    status,
	}
}

func debitEntry(id, userID, amount string) ledger.Entry {
	return ledger.Entry{
		ID:        ledger.EntryID(id),
		UserID:    ledger.UserID(userID),
		Direction: ledger.DirectionDebit,
		Amount:    ledger.MustMoney(amount),
		Status:    ledger.EntryCompleted,
	}
}

// =============================================================================
// LEDGER: REFERENCE UNIQUENESS
// =============================================================================

func TestInsertEntry_DuplicateReferenceRejected(t *testing.T) {
	// GIVEN: An entry with external reference REF-1
	// WHEN: Inserting a second entry with the same reference
	// THEN: Rejected with ErrDuplicateReference; the first row is untouched

	store := newTestStore(t)
	ctx := context.Background()

	err := store.InsertEntry(ctx, creditEntry("e1", "user-1", "REF-1", "100.00", ledger.EntryCompleted))
	require.NoError(t, err)

	err = store.InsertEntry(ctx, creditEntry("e2", "user-1", "REF-1", "100.00", ledger.EntryCompleted))
	assert.ErrorIs(t, err, ledger.ErrDuplicateReference)

	entry, err := store.EntryByReference(ctx, "REF-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, ledger.EntryID("e1"), entry.ID)
}

func TestInsertEntry_EmptyReferencesDoNotCollide(t *testing.T) {
	// Internal debits carry no external reference; the partial index must
	// not treat them as duplicates of each other.

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertEntry(ctx, debitEntry("d1", "user-1", "10.00")))
	require.NoError(t, store.InsertEntry(ctx, debitEntry("d2", "user-1", "10.00")))
}

func TestEntryByReference_MissingIsNilNil(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.EntryByReference(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

// =============================================================================
// LEDGER: TERMINAL TRANSITIONS AND BALANCE
// =============================================================================

func TestCompleteEntry_PendingOnly(t *testing.T) {
	// GIVEN: A pending entry
	// WHEN: Completing it, then completing it again
	// THEN: First completes; second is ErrEntryTerminal

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertEntry(ctx, creditEntry("e1", "user-1", "REF-1", "50.00", ledger.EntryPending)))

	require.NoError(t, store.CompleteEntry(ctx, "e1", ledger.MustMoney("50.00")))

	err := store.CompleteEntry(ctx, "e1", ledger.MustMoney("50.00"))
	assert.ErrorIs(t, err, ledger.ErrEntryTerminal)

	err = store.FailEntry(ctx, "e1")
	assert.ErrorIs(t, err, ledger.ErrEntryTerminal, "completed can never become failed")

	err = store.CompleteEntry(ctx, "missing", ledger.MustMoney("1.00"))
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestBalance_DerivedFromCompletedEntriesOnly(t *testing.T) {
	// GIVEN: Completed credits, a completed debit, a pending and a failed credit
	// THEN: Balance = completed credits - completed debits; pending and
	//       failed rows contribute nothing

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertEntry(ctx, creditEntry("e1", "user-1", "REF-1", "100.00", ledger.EntryCompleted)))
	require.NoError(t, store.InsertEntry(ctx, creditEntry("e2", "user-1", "REF-2", "49.99", ledger.EntryCompleted)))
	require.NoError(t, store.InsertEntry(ctx, debitEntry("d1", "user-1", "30.00")))
	require.NoError(t, store.InsertEntry(ctx, creditEntry("e3", "user-1", "REF-3", "500.00", ledger.EntryPending)))
	require.NoError(t, store.InsertEntry(ctx, creditEntry("e4", "user-1", "REF-4", "500.00", ledger.EntryFailed)))

	balance, err := store.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "119.99", balance.StringFixed(2))

	// Another user's entries are invisible
	balance, err = store.Balance(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackEverythingOnError(t *testing.T) {
	// GIVEN: A unit inserting an entry and an enrollment, then failing
	// WHEN: The unit returns an error
	// THEN: Neither write is visible afterward

	store := newTestStore(t)
	ctx := context.Background()

	boom := assert.AnError
	err := store.WithTx(ctx, func(s billing.Store) error {
		if err := s.InsertEntry(ctx, creditEntry("e1", "user-1", "REF-1", "10.00", ledger.EntryCompleted)); err != nil {
			return err
		}
		if err := s.InsertEnrollment(ctx, billing.Enrollment{
			ID: "enr-1", UserID: "user-1", CourseID: "course-go",
			Status: billing.EnrollmentActive, PaymentStatus: billing.PaymentNotStarted,
			TuitionTotal: ledger.MustMoney("100.00"),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	entry, err := store.EntryByReference(ctx, "REF-1")
	require.NoError(t, err)
	assert.Nil(t, entry, "entry write must roll back")

	enr, err := store.GetEnrollment(ctx, "enr-1")
	require.NoError(t, err)
	assert.Nil(t, enr, "enrollment write must roll back")
}

func TestWithTx_ReadsSeeOwnWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s billing.Store) error {
		if err := s.InsertEntry(ctx, creditEntry("e1", "user-1", "REF-1", "25.00", ledger.EntryCompleted)); err != nil {
			return err
		}
		balance, err := s.Balance(ctx, "user-1")
		if err != nil {
			return err
		}
		assert.Equal(t, "25.00", balance.StringFixed(2), "balance inside the unit includes the uncommitted credit")
		return nil
	})
	require.NoError(t, err)

	balance, err := store.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "25.00", balance.StringFixed(2))
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

func seedEnrollmentWithPlan(t *testing.T, store *sqlite.Store) (ledger.EnrollmentID, []billing.Installment) {
	t.Helper()
	ctx := context.Background()

	enrID := ledger.EnrollmentID("enr-1")
	require.NoError(t, store.InsertEnrollment(ctx, billing.Enrollment{
		ID: enrID, UserID: "user-1", CourseID: "course-go",
		Status: billing.EnrollmentActive, PaymentStatus: billing.PaymentNotStarted,
		TuitionTotal: ledger.MustMoney("100.00"),
	}))

	now := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	plan, err := billing.BuildPlan(billing.PlanSplit, enrID, ledger.MustMoney("100.00"), now)
	require.NoError(t, err)
	require.NoError(t, store.InsertInstallments(ctx, plan))
	return enrID, plan
}

func TestMarkInstallmentPaid_GuardedTransition(t *testing.T) {
	// GIVEN: A pending installment
	// WHEN: Marking it paid twice
	// THEN: First succeeds; second reports ErrAlreadyPaid

	store := newTestStore(t)
	ctx := context.Background()
	_, plan := seedEnrollmentWithPlan(t, store)

	paidAt := time.Date(2026, time.June, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkInstallmentPaid(ctx, plan[0].ID, paidAt))

	err := store.MarkInstallmentPaid(ctx, plan[0].ID, paidAt)
	assert.ErrorIs(t, err, billing.ErrAlreadyPaid)

	err = store.MarkInstallmentPaid(ctx, "missing", paidAt)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	got, err := store.GetInstallment(ctx, plan[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, billing.InstallmentPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.Equal(t, paidAt, got.PaidAt.UTC())
}

func TestInstallmentsByEnrollment_OrderedByDueDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	enrID, plan := seedEnrollmentWithPlan(t, store)

	got, err := store.InstallmentsByEnrollment(ctx, enrID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, plan[0].ID, got[0].ID)
	assert.Equal(t, plan[1].ID, got[1].ID)
	assert.True(t, got[0].DueDate.Before(got[1].DueDate))

	// Round-trip keeps the amounts exact
	assert.Equal(t, "50.00", got[0].Amount.StringFixed(2))
	assert.Equal(t, "50.00", got[1].Amount.StringFixed(2))
}

func TestSetEnrollmentPaymentStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	enrID, _ := seedEnrollmentWithPlan(t, store)

	require.NoError(t, store.SetEnrollmentPaymentStatus(ctx, enrID, billing.PaymentPartiallyPaid))

	enr, err := store.GetEnrollment(ctx, enrID)
	require.NoError(t, err)
	require.NotNil(t, enr)
	assert.Equal(t, billing.PaymentPartiallyPaid, enr.PaymentStatus)

	err = store.SetEnrollmentPaymentStatus(ctx, "missing", billing.PaymentFullyPaid)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// EXAM ATTEMPTS
// =============================================================================

func seedExam(t *testing.T, store *sqlite.Store) exam.Definition {
	t.Helper()
	def := exam.Definition{
		ID:             "exam-1",
		CourseID:       "course-go",
		ScheduledAt:    time.Date(2026, time.June, 10, 0, 0, 0, 0, time.UTC),
		PassPercentage: 50,
		TotalScore:     100,
		Mandatory:      true,
	}
	require.NoError(t, store.InsertDefinition(context.Background(), def))
	return def
}

func TestInsertAttempt_UniquePerUserAndExam(t *testing.T) {
	// The (user, exam) pair is unique; a second insert is a lost race, not a
	// second row.

	store := newTestStore(t)
	ctx := context.Background()
	def := seedExam(t, store)

	a := exam.Attempt{
		ID: "att-1", UserID: "user-1", ExamID: def.ID,
		Status: exam.RecordedInProgress, TotalScore: def.TotalScore, Attempts: 1,
	}
	require.NoError(t, store.InsertAttempt(ctx, a))

	a.ID = "att-2"
	err := store.InsertAttempt(ctx, a)
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)

	// A different user gets their own row
	a.ID = "att-3"
	a.UserID = "user-2"
	require.NoError(t, store.InsertAttempt(ctx, a))
}

func TestUpdateAttempt_OptimisticGuard(t *testing.T) {
	// GIVEN: An attempt at count 1
	// WHEN: Updating with the right and the wrong expected count
	// THEN: Only the matching expectation wins

	store := newTestStore(t)
	ctx := context.Background()
	def := seedExam(t, store)

	a := exam.Attempt{
		ID: "att-1", UserID: "user-1", ExamID: def.ID,
		Status: exam.RecordedInProgress, TotalScore: def.TotalScore, Attempts: 1,
	}
	require.NoError(t, store.InsertAttempt(ctx, a))

	a.Attempts = 2
	err := store.UpdateAttempt(ctx, a, 5)
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification, "stale expectation must lose")

	require.NoError(t, store.UpdateAttempt(ctx, a, 1))

	got, err := store.GetAttempt(ctx, "user-1", def.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Attempts)
}

func TestUpdateAttempt_CompletedIsFinal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	def := seedExam(t, store)

	score := 88.0
	completedAt := time.Date(2026, time.June, 10, 11, 0, 0, 0, time.UTC)
	a := exam.Attempt{
		ID: "att-1", UserID: "user-1", ExamID: def.ID,
		Status: exam.RecordedCompleted, Score: &score,
		TotalScore: def.TotalScore, Attempts: 1, CompletedAt: &completedAt,
	}
	require.NoError(t, store.InsertAttempt(ctx, a))

	a.Attempts = 2
	err := store.UpdateAttempt(ctx, a, 1)
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification, "completed rows accept no writes")

	got, err := store.GetAttempt(ctx, "user-1", def.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Score)
	assert.Equal(t, 88.0, *got.Score)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, completedAt, got.CompletedAt.UTC())
}

func TestGetAttempt_MissingIsNilNil(t *testing.T) {
	store := newTestStore(t)

	attempt, err := store.GetAttempt(context.Background(), "user-1", "exam-x")
	require.NoError(t, err)
	assert.Nil(t, attempt)
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestEntryRoundTrip_PreservesInstallmentLink(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := creditEntry("e1", "user-1", "REF-1", "33.33", ledger.EntryPending)
	e.InstallmentID = "inst-9"
	e.Description = "tuition installment via gateway"
	require.NoError(t, store.InsertEntry(ctx, e))

	got, err := store.EntryByReference(ctx, "REF-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ledger.InstallmentID("inst-9"), got.InstallmentID)
	assert.Equal(t, "tuition installment via gateway", got.Description)
	assert.True(t, got.Amount.Equal(ledger.MustMoney("33.33")))
}
