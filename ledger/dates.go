package ledger

import "time"

// =============================================================================
// DATE HELPERS - Day-granularity comparisons for derived statuses
// =============================================================================
// Exam lifecycle and overdue checks compare calendar days, not instants.
// All comparisons normalize to midnight UTC so "today" means the same thing
// on both sides regardless of the wall-clock component.

// DateOnly truncates a time to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two times fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}

// DayBefore reports whether a's calendar day is strictly before b's.
func DayBefore(a, b time.Time) bool {
	return DateOnly(a).Before(DateOnly(b))
}

// DayAfter reports whether a's calendar day is strictly after b's.
func DayAfter(a, b time.Time) bool {
	return DateOnly(a).After(DateOnly(b))
}
