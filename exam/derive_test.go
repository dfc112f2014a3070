package exam_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen/tuition-engine/exam"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

var (
	deriveNow = time.Date(2026, time.May, 20, 14, 30, 0, 0, time.UTC)
	yesterday = deriveNow.AddDate(0, 0, -1)
	tomorrow  = deriveNow.AddDate(0, 0, 1)
)

func defOn(day time.Time) exam.Definition {
	return exam.Definition{
		ID:             "exam-1",
		CourseID:       "course-go",
		ScheduledAt:    day,
		PassPercentage: 50,
		TotalScore:     100,
	}
}

func f64(v float64) *float64 { return &v }

// =============================================================================
// DERIVATION RULES
// =============================================================================

func TestDerive_NoAttempt(t *testing.T) {
	tests := []struct {
		name string
		day  time.Time
		want exam.DerivedStatus
	}{
		{"scheduled yesterday, never touched", yesterday, exam.StatusMissed},
		{"scheduled today, never touched", deriveNow, exam.StatusNotStarted},
		{"scheduled tomorrow, never touched", tomorrow, exam.StatusNotStarted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := exam.Derive(defOn(tt.day), nil, deriveNow)
			assert.Equal(t, tt.want, v.Status)
		})
	}
}

func TestDerive_MissedOnlyWithoutInteraction(t *testing.T) {
	// GIVEN: An exam scheduled yesterday
	// WHEN: The user had started an attempt before the day passed
	// THEN: Not missed; interaction suppresses the missed derivation

	started := yesterday
	attempt := &exam.Attempt{
		Status:    exam.RecordedInProgress,
		Attempts:  1,
		StartedAt: &started,
	}
	v := exam.Derive(defOn(yesterday), attempt, deriveNow)
	assert.NotEqual(t, exam.StatusMissed, v.Status)
}

func TestDerive_InProgressToday(t *testing.T) {
	// GIVEN: An exam scheduled today with a started, uncompleted attempt
	// THEN: in_progress

	started := deriveNow.Add(-time.Hour)
	attempt := &exam.Attempt{
		Status:    exam.RecordedInProgress,
		Attempts:  1,
		StartedAt: &started,
	}
	v := exam.Derive(defOn(deriveNow), attempt, deriveNow)
	assert.Equal(t, exam.StatusInProgress, v.Status)
}

func TestDerive_UpcomingRequiresPriorInteraction(t *testing.T) {
	// A future exam shows upcoming only once an attempt record with a
	// nonzero count exists; without one it stays not_started.

	withAttempt := &exam.Attempt{Status: exam.RecordedInProgress, Attempts: 1}
	v := exam.Derive(defOn(tomorrow), withAttempt, deriveNow)
	assert.Equal(t, exam.StatusUpcoming, v.Status)

	v = exam.Derive(defOn(tomorrow), nil, deriveNow)
	assert.Equal(t, exam.StatusNotStarted, v.Status)
}

func TestDerive_CompletedWithScore(t *testing.T) {
	// GIVEN: A completed attempt scoring 42 of 100 with a 50% pass mark
	// THEN: completed, 42%, failed

	attempt := &exam.Attempt{
		Status:     exam.RecordedCompleted,
		Score:      f64(42),
		TotalScore: 100,
		Attempts:   1,
	}
	v := exam.Derive(defOn(yesterday), attempt, deriveNow)

	assert.Equal(t, exam.StatusCompleted, v.Status)
	require.NotNil(t, v.Percentage)
	assert.InDelta(t, 42.0, *v.Percentage, 1e-9)
	require.NotNil(t, v.Passed)
	assert.False(t, *v.Passed)
}

func TestDerive_CompletedAtPassBoundary(t *testing.T) {
	// Exactly the pass percentage passes.
	attempt := &exam.Attempt{
		Status:     exam.RecordedCompleted,
		Score:      f64(50),
		TotalScore: 100,
	}
	v := exam.Derive(defOn(yesterday), attempt, deriveNow)

	require.NotNil(t, v.Passed)
	assert.True(t, *v.Passed)
}

func TestDerive_CompletedWithoutScore_AwaitingResult(t *testing.T) {
	// A completed attempt with no score yet is a display state, not an error.
	attempt := &exam.Attempt{
		Status:   exam.RecordedCompleted,
		Attempts: 1,
	}
	v := exam.Derive(defOn(yesterday), attempt, deriveNow)

	assert.Equal(t, exam.StatusAwaitingResult, v.Status)
	assert.Nil(t, v.Score)
	assert.Nil(t, v.Passed)
}

func TestDerive_CompletionWinsOverDate(t *testing.T) {
	// Completion is terminal whatever the calendar says: past, today, or
	// future exam days all derive completed.
	attempt := &exam.Attempt{
		Status:     exam.RecordedCompleted,
		Score:      f64(80),
		TotalScore: 100,
	}
	for _, day := range []time.Time{yesterday, deriveNow, tomorrow} {
		v := exam.Derive(defOn(day), attempt, deriveNow)
		assert.Equal(t, exam.StatusCompleted, v.Status)
	}
}

func TestDerive_DayBoundaryIsCalendarNotDuration(t *testing.T) {
	// 23:59 yesterday vs 00:01 today: the comparison is by calendar day in
	// UTC, not by elapsed hours.
	lateYesterday := time.Date(2026, time.May, 19, 23, 59, 0, 0, time.UTC)
	v := exam.Derive(defOn(lateYesterday), nil, deriveNow)
	assert.Equal(t, exam.StatusMissed, v.Status)

	earlyToday := time.Date(2026, time.May, 20, 0, 1, 0, 0, time.UTC)
	v = exam.Derive(defOn(earlyToday), nil, deriveNow)
	assert.Equal(t, exam.StatusNotStarted, v.Status)
}
