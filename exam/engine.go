/*
engine.go - Recorded exam transitions

PURPOSE:
  The Engine performs the only two writes allowed on attempts:

    StartParticipation  creates the attempt lazily, bumps the attempt
                        count, records in_progress and a first started-at
    Complete            transitions into completed, setting score and
                        completed-at exactly once

  Status reads go through Derive; nothing here mutates status based on the
  clock.

CONCURRENCY:
  Transitions use optimistic concurrency on the attempt count: a conflicting
  writer makes the store report ErrConcurrentModification and the Engine
  re-reads and retries once. Completion is final either way - a retry that
  finds the attempt completed fails with ErrAlreadyCompleted.
*/
package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lumen/tuition-engine/ledger"
)

// ErrAlreadyCompleted is returned for transitions on a completed attempt.
var ErrAlreadyCompleted = errors.New("exam attempt already completed")

// Engine derives exam views and performs recorded transitions.
type Engine struct {
	store Store

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, Now: time.Now}
}

// Status returns the derived view for a (user, exam) pair. No attempt row
// is required; absence derives like any other input.
func (e *Engine) Status(ctx context.Context, userID ledger.UserID, examID ExamID) (View, error) {
	def, err := e.store.GetDefinition(ctx, examID)
	if err != nil {
		return View{}, err
	}
	if def == nil {
		return View{}, fmt.Errorf("%w: exam %s", ledger.ErrNotFound, examID)
	}

	attempt, err := e.store.GetAttempt(ctx, userID, examID)
	if err != nil {
		return View{}, err
	}
	return Derive(*def, attempt, e.Now()), nil
}

// StartParticipation records that the user is taking the exam: attempt
// count +1, status in_progress, started-at set on first start only.
func (e *Engine) StartParticipation(ctx context.Context, userID ledger.UserID, examID ExamID) (Attempt, error) {
	def, err := e.store.GetDefinition(ctx, examID)
	if err != nil {
		return Attempt{}, err
	}
	if def == nil {
		return Attempt{}, fmt.Errorf("%w: exam %s", ledger.ErrNotFound, examID)
	}

	// One optimistic retry covers the insert/update races.
	for try := 0; ; try++ {
		attempt, err := e.store.GetAttempt(ctx, userID, examID)
		if err != nil {
			return Attempt{}, err
		}

		now := e.Now()
		if attempt == nil {
			a := Attempt{
				ID:         AttemptID(uuid.NewString()),
				UserID:     userID,
				ExamID:     examID,
				Status:     RecordedInProgress,
				TotalScore: def.TotalScore,
				Attempts:   1,
				StartedAt:  &now,
			}
			err = e.store.InsertAttempt(ctx, a)
			if err == nil {
				return a, nil
			}
		} else {
			if attempt.Status == RecordedCompleted {
				return Attempt{}, ErrAlreadyCompleted
			}
			expect := attempt.Attempts
			attempt.Attempts++
			attempt.Status = RecordedInProgress
			if attempt.StartedAt == nil {
				attempt.StartedAt = &now
			}
			err = e.store.UpdateAttempt(ctx, *attempt, expect)
			if err == nil {
				return *attempt, nil
			}
		}

		if !errors.Is(err, ledger.ErrConcurrentModification) || try > 0 {
			return Attempt{}, err
		}
	}
}

// Complete transitions the attempt into completed, recording the score and
// completion time exactly once.
func (e *Engine) Complete(ctx context.Context, userID ledger.UserID, examID ExamID, score float64) (Attempt, error) {
	if score < 0 {
		return Attempt{}, fmt.Errorf("%w: score %v", ledger.ErrInvalidAmount, score)
	}

	attempt, err := e.store.GetAttempt(ctx, userID, examID)
	if err != nil {
		return Attempt{}, err
	}
	if attempt == nil {
		return Attempt{}, fmt.Errorf("%w: no attempt for exam %s", ledger.ErrNotFound, examID)
	}
	if attempt.Status == RecordedCompleted {
		return Attempt{}, ErrAlreadyCompleted
	}

	now := e.Now()
	expect := attempt.Attempts
	attempt.Status = RecordedCompleted
	attempt.Score = &score
	attempt.CompletedAt = &now

	if err := e.store.UpdateAttempt(ctx, *attempt, expect); err != nil {
		if errors.Is(err, ledger.ErrConcurrentModification) {
			// Re-read: if a concurrent writer completed it, surface that.
			current, readErr := e.store.GetAttempt(ctx, userID, examID)
			if readErr == nil && current != nil && current.Status == RecordedCompleted {
				return Attempt{}, ErrAlreadyCompleted
			}
		}
		return Attempt{}, err
	}
	return *attempt, nil
}

// PublishDefinition stores a course exam definition.
func (e *Engine) PublishDefinition(ctx context.Context, def Definition) (Definition, error) {
	if def.ID == "" {
		def.ID = ExamID(uuid.NewString())
	}
	if def.TotalScore <= 0 {
		return Definition{}, fmt.Errorf("%w: total score %v", ledger.ErrInvalidAmount, def.TotalScore)
	}
	if err := e.store.InsertDefinition(ctx, def); err != nil {
		return Definition{}, err
	}
	return def, nil
}
