package exam_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen/tuition-engine/exam"
	"github.com/lumen/tuition-engine/ledger"
	"github.com/lumen/tuition-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var engineNow = time.Date(2026, time.May, 20, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *exam.Engine {
	t.Helper()
	e := exam.NewEngine(memory.New())
	e.Now = func() time.Time { return engineNow }
	return e
}

func publish(t *testing.T, e *exam.Engine, scheduledAt time.Time) exam.Definition {
	t.Helper()
	def, err := e.PublishDefinition(context.Background(), exam.Definition{
		CourseID:       "course-go",
		ScheduledAt:    scheduledAt,
		PassPercentage: 50,
		TotalScore:     100,
	})
	require.NoError(t, err)
	return def
}

// =============================================================================
// PARTICIPATION
// =============================================================================

func TestStartParticipation_CreatesAttemptLazily(t *testing.T) {
	// GIVEN: A published exam the user never touched
	// WHEN: Starting participation
	// THEN: An attempt appears with count 1, in_progress, started-at set

	e := newTestEngine(t)
	ctx := context.Background()
	def := publish(t, e, engineNow)

	attempt, err := e.StartParticipation(ctx, "user-1", def.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, attempt.Attempts)
	assert.Equal(t, exam.RecordedInProgress, attempt.Status)
	require.NotNil(t, attempt.StartedAt)
	assert.Equal(t, engineNow, *attempt.StartedAt)

	view, err := e.Status(ctx, "user-1", def.ID)
	require.NoError(t, err)
	assert.Equal(t, exam.StatusInProgress, view.Status)
}

func TestStartParticipation_RepeatBumpsCountKeepsFirstStart(t *testing.T) {
	// GIVEN: A started attempt
	// WHEN: Starting again (page reload, second device)
	// THEN: Count increases; the original started-at stays

	e := newTestEngine(t)
	ctx := context.Background()
	def := publish(t, e, engineNow)

	first, err := e.StartParticipation(ctx, "user-1", def.ID)
	require.NoError(t, err)

	e.Now = func() time.Time { return engineNow.Add(10 * time.Minute) }
	second, err := e.StartParticipation(ctx, "user-1", def.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, second.Attempts)
	require.NotNil(t, second.StartedAt)
	assert.Equal(t, *first.StartedAt, *second.StartedAt, "first start time is kept")
}

func TestStartParticipation_UnknownExam(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.StartParticipation(context.Background(), "user-1", "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestStartParticipation_ConcurrentStarts_AllCounted(t *testing.T) {
	// GIVEN: Several concurrent starts for the same (user, exam)
	// THEN: With one optimistic retry each, no start is lost silently:
	//       every call either lands or reports the conflict

	e := newTestEngine(t)
	ctx := context.Background()
	def := publish(t, e, engineNow)

	const starters = 4
	errs := make([]error, starters)

	var wg sync.WaitGroup
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.StartParticipation(ctx, "user-1", def.ID)
		}(i)
	}
	wg.Wait()

	landed := 0
	for i, err := range errs {
		if err == nil {
			landed++
			continue
		}
		assert.ErrorIs(t, err, ledger.ErrConcurrentModification, "starter %d", i)
	}
	assert.GreaterOrEqual(t, landed, 1, "at least one start lands")
}

// =============================================================================
// COMPLETION
// =============================================================================

func TestComplete_RecordsScoreOnce(t *testing.T) {
	// GIVEN: An in-progress attempt
	// WHEN: Completing with a score
	// THEN: Score and completed-at are recorded; the derived view grades it

	e := newTestEngine(t)
	ctx := context.Background()
	def := publish(t, e, engineNow)

	_, err := e.StartParticipation(ctx, "user-1", def.ID)
	require.NoError(t, err)

	attempt, err := e.Complete(ctx, "user-1", def.ID, 72)
	require.NoError(t, err)
	assert.Equal(t, exam.RecordedCompleted, attempt.Status)
	require.NotNil(t, attempt.Score)
	assert.Equal(t, 72.0, *attempt.Score)
	require.NotNil(t, attempt.CompletedAt)

	view, err := e.Status(ctx, "user-1", def.ID)
	require.NoError(t, err)
	assert.Equal(t, exam.StatusCompleted, view.Status)
	require.NotNil(t, view.Passed)
	assert.True(t, *view.Passed)
}

func TestComplete_SecondCompletionRejected(t *testing.T) {
	// Completion is final: neither a re-complete nor a restart may touch the
	// recorded score.

	e := newTestEngine(t)
	ctx := context.Background()
	def := publish(t, e, engineNow)

	_, err := e.StartParticipation(ctx, "user-1", def.ID)
	require.NoError(t, err)
	_, err = e.Complete(ctx, "user-1", def.ID, 72)
	require.NoError(t, err)

	_, err = e.Complete(ctx, "user-1", def.ID, 95)
	assert.ErrorIs(t, err, exam.ErrAlreadyCompleted)

	_, err = e.StartParticipation(ctx, "user-1", def.ID)
	assert.ErrorIs(t, err, exam.ErrAlreadyCompleted)

	view, err := e.Status(ctx, "user-1", def.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Score)
	assert.Equal(t, 72.0, *view.Score, "original score untouched")
}

func TestComplete_WithoutAttempt(t *testing.T) {
	e := newTestEngine(t)
	def := publish(t, e, engineNow)

	_, err := e.Complete(context.Background(), "user-1", def.ID, 80)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestComplete_RejectsNegativeScore(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	def := publish(t, e, engineNow)

	_, err := e.StartParticipation(ctx, "user-1", def.ID)
	require.NoError(t, err)

	_, err = e.Complete(ctx, "user-1", def.ID, -1)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

// =============================================================================
// DEFINITIONS
// =============================================================================

func TestPublishDefinition_AssignsIDAndValidates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	def, err := e.PublishDefinition(ctx, exam.Definition{
		CourseID:       "course-go",
		ScheduledAt:    engineNow,
		PassPercentage: 60,
		TotalScore:     50,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, def.ID)

	_, err = e.PublishDefinition(ctx, exam.Definition{CourseID: "course-go", TotalScore: 0})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestStatus_MovesWithTheClock(t *testing.T) {
	// GIVEN: An exam scheduled today that the user started but never finished
	// WHEN: Reading the status today and then after the day passes
	// THEN: in_progress today; once the day is over the view stops being
	//       in_progress without any write having happened

	e := newTestEngine(t)
	ctx := context.Background()
	def := publish(t, e, engineNow)

	_, err := e.StartParticipation(ctx, "user-1", def.ID)
	require.NoError(t, err)

	view, err := e.Status(ctx, "user-1", def.ID)
	require.NoError(t, err)
	assert.Equal(t, exam.StatusInProgress, view.Status)

	e.Now = func() time.Time { return engineNow.AddDate(0, 0, 2) }
	view, err = e.Status(ctx, "user-1", def.ID)
	require.NoError(t, err)
	assert.NotEqual(t, exam.StatusInProgress, view.Status)
}
