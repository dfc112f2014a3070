/*
Package exam derives an exam's lifecycle status from attempt records and
the clock.

PURPOSE:
  The display status of an exam is a view, never stored truth. This package
  holds the attempt records, the one pure derivation function, and the
  Engine that performs the two recorded transitions (start participation,
  record completion). Clients render the returned enum; they never
  re-derive it.

KEY INVARIANTS:
  - Attempts only increases.
  - Score and completed-at are set exactly once, at the transition into
    completed.
  - Derivation is evaluated fresh on every read; no background job mutates
    status speculatively.

SEE ALSO:
  - derive.go: The status rules
  - engine.go: Recorded transitions
*/
package exam

import (
	"time"

	"github.com/lumen/tuition-engine/ledger"
)

// =============================================================================
// DEFINITION - Published per course, immutable here
// =============================================================================

type ExamID string

type Definition struct {
	ID              ExamID
	CourseID        string
	ScheduledAt     time.Time // date-only comparisons apply
	DurationMinutes int
	PassPercentage  float64
	TotalScore      float64
	Mandatory       bool
}

// =============================================================================
// ATTEMPT - Per (user, exam), created lazily
// =============================================================================

// RecordedStatus is what is persisted on the attempt row. The value shown
// to users is DerivedStatus, computed from this plus the exam date and the
// current time.
type RecordedStatus string

const (
	RecordedNotStarted RecordedStatus = "not_started"
	RecordedInProgress RecordedStatus = "in_progress"
	RecordedCompleted  RecordedStatus = "completed"
	RecordedMissed     RecordedStatus = "missed"
)

type AttemptID string

type Attempt struct {
	ID          AttemptID
	UserID      ledger.UserID
	ExamID      ExamID
	Status      RecordedStatus
	Score       *float64 // set exactly once, at completion
	TotalScore  float64
	Attempts    int // only increases
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// =============================================================================
// DERIVED STATUS - The view clients render
// =============================================================================

type DerivedStatus string

const (
	StatusNotStarted     DerivedStatus = "not_started"
	StatusUpcoming       DerivedStatus = "upcoming"
	StatusInProgress     DerivedStatus = "in_progress"
	StatusCompleted      DerivedStatus = "completed"
	StatusAwaitingResult DerivedStatus = "awaiting_result"
	StatusMissed         DerivedStatus = "missed"
)

// View is the full derived answer for one (user, exam) pair.
type View struct {
	Status     DerivedStatus
	Score      *float64
	TotalScore *float64
	Percentage *float64
	Passed     *bool
}
