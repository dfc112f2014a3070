/*
derive.go - Exam status derivation rules

PURPOSE:
  One pure function from {definition, attempt, now} to the display view.
  All date comparisons are calendar-day comparisons in UTC.

RULES (evaluated in order):
  completed        recorded status is completed; with a score the view adds
                   percentage and pass/fail, without one it shows
                   awaiting_result rather than an error
  missed           exam day strictly past, no completion or in-progress
                   recorded, and zero attempts. Terminal.
  in_progress      exam day is today and a started attempt has no
                   completion
  upcoming         exam day is in the future and at least one attempt
                   record exists (a registration acknowledgement counts)
  not_started      default: future-or-today exam with no interaction

  Note the upcoming/not_started pair keys on prior interaction: a future
  exam only shows upcoming once an attempt record exists.
*/
package exam

import (
	"time"

	"github.com/lumen/tuition-engine/ledger"
)

// Derive computes the display view. attempt may be nil (no interaction yet).
func Derive(def Definition, attempt *Attempt, now time.Time) View {
	if attempt != nil && attempt.Status == RecordedCompleted {
		return completedView(def, attempt)
	}

	examDay := ledger.DateOnly(def.ScheduledAt)
	today := ledger.DateOnly(now)

	switch {
	case examDay.Before(today) && noInteraction(attempt):
		return View{Status: StatusMissed}

	case examDay.Equal(today) && started(attempt):
		return View{Status: StatusInProgress}

	case examDay.After(today) && attempt != nil && attempt.Attempts > 0:
		return View{Status: StatusUpcoming}

	default:
		return View{Status: StatusNotStarted}
	}
}

// noInteraction: nothing recorded that counts as showing up.
func noInteraction(attempt *Attempt) bool {
	if attempt == nil {
		return true
	}
	return attempt.Status != RecordedInProgress && attempt.Attempts == 0
}

func started(attempt *Attempt) bool {
	return attempt != nil && attempt.StartedAt != nil && attempt.CompletedAt == nil
}

func completedView(def Definition, attempt *Attempt) View {
	if attempt.Score == nil {
		// Completed but ungraded: a display state, not a failure.
		return View{Status: StatusAwaitingResult}
	}

	total := attempt.TotalScore
	if total == 0 {
		total = def.TotalScore
	}

	v := View{
		Status:     StatusCompleted,
		Score:      attempt.Score,
		TotalScore: &total,
	}
	if total > 0 {
		pct := *attempt.Score / total * 100
		passed := pct >= def.PassPercentage
		v.Percentage = &pct
		v.Passed = &passed
	}
	return v
}
