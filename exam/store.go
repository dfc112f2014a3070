package exam

import (
	"context"

	"github.com/lumen/tuition-engine/ledger"
)

// =============================================================================
// STORE - Attempt persistence with optimistic concurrency
// =============================================================================

// Store persists exam definitions and attempts.
//
// Attempt writes are optimistic: UpdateAttempt only applies when the row's
// attempt count still matches expectAttempts, otherwise it reports
// ErrConcurrentModification and the Engine re-reads and retries. Inserting
// a second attempt row for the same (user, exam) pair also reports
// ErrConcurrentModification (the pair is unique).
type Store interface {
	GetDefinition(ctx context.Context, id ExamID) (*Definition, error)
	InsertDefinition(ctx context.Context, def Definition) error

	// GetAttempt returns nil when the user has never touched the exam.
	GetAttempt(ctx context.Context, userID ledger.UserID, examID ExamID) (*Attempt, error)

	InsertAttempt(ctx context.Context, a Attempt) error
	UpdateAttempt(ctx context.Context, a Attempt, expectAttempts int) error
}
