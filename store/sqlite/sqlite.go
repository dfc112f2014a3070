/*
Package sqlite provides the durable store for the tuition engine.

PURPOSE:
  Implements every persistence interface (ledger.Store, billing.Store,
  billing.TxStore, exam.Store) over database/sql + SQLite. In production
  the same statements run against PostgreSQL with only dialect changes.

KEY TABLES:
  ledger_entries    Wallet fund movements; UNIQUE external reference is the
                    idempotency reservation
  enrollments       (user, course) enrollments with the cached payment
                    aggregate
  installments      Tuition schedule rows; paid transition is guarded
  exam_definitions  Published course exams
  exam_attempts     One row per (user, exam), UNIQUE pair, optimistic
                    attempt-count guard

INVARIANT ENFORCEMENT IN SCHEMA:
  - idx_entries_reference (partial UNIQUE): at most one entry per external
    reference, so concurrent verify-and-credit callers serialize on the
    insert and exactly one wins.
  - Guarded UPDATEs (WHERE status != 'paid', WHERE attempts = ?) turn
    lost races into typed errors instead of double writes.
  - Balance is a SUM over completed entries - there is no balance column
    to drift.

CONCURRENCY:
  WAL mode plus a store-level mutex around writes. SQLite is single-writer
  anyway; the mutex keeps WithTx units from interleaving inside this
  process, and the schema guards protect against other processes sharing
  the file.

SEE ALSO:
  - billing/store.go: The transactional contract WithTx satisfies
  - store/memory: In-memory implementation of the same interfaces
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
	"github.com/lumen/tuition-engine/exam"
	"github.com/lumen/tuition-engine/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a SQLite store. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and matches
	// SQLite's single-writer model.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Wallet ledger (append-only; status is the only mutable column)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		direction TEXT NOT NULL CHECK (direction IN ('credit', 'debit')),
		amount TEXT NOT NULL,
		reference TEXT,
		installment_id TEXT,
		status TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
		description TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: the idempotency reservation. One entry per external
	-- reference, ever; concurrent credits serialize on this index.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_reference
		ON ledger_entries(reference) WHERE reference IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_entries_user
		ON ledger_entries(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_user_status
		ON ledger_entries(user_id, status);

	-- Enrollments
	CREATE TABLE IF NOT EXISTS enrollments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		course_id TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		tuition_total TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		enrolled_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_enrollments_user
		ON enrollments(user_id);

	-- Installments (plan rows; pending -> paid only)
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		enrollment_id TEXT NOT NULL REFERENCES enrollments(id),
		amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'paid', 'overdue')),
		paid_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_installments_enrollment
		ON installments(enrollment_id, due_date);

	-- Exam definitions
	CREATE TABLE IF NOT EXISTS exam_definitions (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL,
		scheduled_at TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		pass_percentage REAL NOT NULL,
		total_score REAL NOT NULL,
		mandatory INTEGER NOT NULL DEFAULT 0
	);

	-- Exam attempts: one row per (user, exam)
	CREATE TABLE IF NOT EXISTS exam_attempts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		exam_id TEXT NOT NULL REFERENCES exam_definitions(id),
		status TEXT NOT NULL,
		score REAL,
		total_score REAL NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		started_at TEXT,
		completed_at TEXT,
		UNIQUE(user_id, exam_id)
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_user
		ON exam_attempts(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

func (s *Store) InsertEntry(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertEntry(ctx, s.db, e)
}

func insertEntry(ctx context.Context, db dbtx, e ledger.Entry) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, user_id, direction, amount, reference, installment_id, status, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.UserID,
		e.Direction,
		e.Amount.String(),
		nullString(e.Reference),
		nullString(string(e.InstallmentID)),
		e.Status,
		e.Description,
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (s *Store) EntryByReference(ctx context.Context, reference string) (*ledger.Entry, error) {
	return entryByReference(ctx, s.db, reference)
}

func entryByReference(ctx context.Context, db dbtx, reference string) (*ledger.Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, direction, amount, reference, installment_id, status, description, created_at, updated_at
		FROM ledger_entries WHERE reference = ?`, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) CompleteEntry(ctx context.Context, id ledger.EntryID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setEntryTerminal(ctx, s.db, id, ledger.EntryCompleted, &amount)
}

func (s *Store) FailEntry(ctx context.Context, id ledger.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setEntryTerminal(ctx, s.db, id, ledger.EntryFailed, nil)
}

// setEntryTerminal applies the only legal entry mutation. Guarded: the row
// must still be pending.
func setEntryTerminal(ctx context.Context, db dbtx, id ledger.EntryID, status ledger.EntryStatus, amount *decimal.Decimal) error {
	var (
		res sql.Result
		err error
	)
	now := time.Now().UTC().Format(time.RFC3339)
	if amount != nil {
		res, err = db.ExecContext(ctx, `
			UPDATE ledger_entries SET status = ?, amount = ?, updated_at = ?
			WHERE id = ? AND status = 'pending'`,
			status, amount.String(), now, id)
	} else {
		res, err = db.ExecContext(ctx, `
			UPDATE ledger_entries SET status = ?, updated_at = ?
			WHERE id = ? AND status = 'pending'`,
			status, now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update ledger entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var count int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM ledger_entries WHERE id = ?", id).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: ledger entry %s", ledger.ErrNotFound, id)
		}
		return ledger.ErrEntryTerminal
	}
	return nil
}

func (s *Store) Balance(ctx context.Context, userID ledger.UserID) (decimal.Decimal, error) {
	return balance(ctx, s.db, userID)
}

// balance is the derived wallet balance: completed credits minus completed
// debits. Decimal strings are summed in Go, not in SQL, to keep cent
// precision exact.
func balance(ctx context.Context, db dbtx, userID ledger.UserID) (decimal.Decimal, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT direction, amount FROM ledger_entries
		WHERE user_id = ? AND status = 'completed'`, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query balance: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var direction, amount string
		if err := rows.Scan(&direction, &amount); err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt amount %q in ledger: %w", amount, err)
		}
		if ledger.Direction(direction) == ledger.DirectionDebit {
			d = d.Neg()
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

func (s *Store) EntriesByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Entry, error) {
	return entriesByUser(ctx, s.db, userID)
}

func entriesByUser(ctx context.Context, db dbtx, userID ledger.UserID) ([]ledger.Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, direction, amount, reference, installment_id, status, description, created_at, updated_at
		FROM ledger_entries WHERE user_id = ?
		ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e                        ledger.Entry
		amount                   string
		reference, installmentID sql.NullString
		description              sql.NullString
		createdAt, updatedAt     string
	)
	err := rows.Scan(&e.ID, &e.UserID, &e.Direction, &amount, &reference,
		&installmentID, &e.Status, &description, &createdAt, &updatedAt)
	if err != nil {
		return e, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	e.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return e, fmt.Errorf("corrupt amount %q in ledger: %w", amount, err)
	}
	e.Reference = reference.String
	e.InstallmentID = ledger.InstallmentID(installmentID.String)
	e.Description = description.String
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return e, nil
}

// =============================================================================
// BILLING STORE (billing.Store interface)
// =============================================================================

func (s *Store) GetEnrollment(ctx context.Context, id ledger.EnrollmentID) (*billing.Enrollment, error) {
	return getEnrollment(ctx, s.db, id)
}

func getEnrollment(ctx context.Context, db dbtx, id ledger.EnrollmentID) (*billing.Enrollment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, course_id, status, payment_status, tuition_total, progress, enrolled_at, completed_at
		FROM enrollments WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollment: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		e           billing.Enrollment
		tuition     string
		enrolledAt  string
		completedAt sql.NullString
	)
	if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &e.Status, &e.PaymentStatus,
		&tuition, &e.Progress, &enrolledAt, &completedAt); err != nil {
		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}
	e.TuitionTotal, err = decimal.NewFromString(tuition)
	if err != nil {
		return nil, fmt.Errorf("corrupt tuition total %q: %w", tuition, err)
	}
	e.EnrolledAt, _ = time.Parse(time.RFC3339, enrolledAt)
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			e.CompletedAt = &t
		}
	}
	return &e, nil
}

func (s *Store) InsertEnrollment(ctx context.Context, e billing.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertEnrollment(ctx, s.db, e)
}

func insertEnrollment(ctx context.Context, db dbtx, e billing.Enrollment) error {
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO enrollments
		(id, user_id, course_id, status, payment_status, tuition_total, progress, enrolled_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.CourseID, e.Status, e.PaymentStatus,
		e.TuitionTotal.String(), e.Progress,
		e.EnrolledAt.UTC().Format(time.RFC3339), nullTime(e.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert enrollment: %w", err)
	}
	return nil
}

func (s *Store) SetEnrollmentPaymentStatus(ctx context.Context, id ledger.EnrollmentID, status billing.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setEnrollmentPaymentStatus(ctx, s.db, id, status)
}

func setEnrollmentPaymentStatus(ctx context.Context, db dbtx, id ledger.EnrollmentID, status billing.PaymentStatus) error {
	res, err := db.ExecContext(ctx,
		"UPDATE enrollments SET payment_status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: enrollment %s", ledger.ErrNotFound, id)
	}
	return nil
}

func (s *Store) InsertInstallments(ctx context.Context, installments []billing.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertInstallments(ctx, tx, installments); err != nil {
		return err
	}
	return tx.Commit()
}

func insertInstallments(ctx context.Context, db dbtx, installments []billing.Installment) error {
	for _, in := range installments {
		createdAt := in.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO installments (id, enrollment_id, amount, due_date, status, paid_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			in.ID, in.EnrollmentID, in.Amount.String(),
			in.DueDate.UTC().Format(time.RFC3339), in.Status,
			nullTime(in.PaidAt), createdAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert installment: %w", err)
		}
	}
	return nil
}

func (s *Store) InstallmentsByEnrollment(ctx context.Context, id ledger.EnrollmentID) ([]billing.Installment, error) {
	return installmentsByEnrollment(ctx, s.db, id)
}

func installmentsByEnrollment(ctx context.Context, db dbtx, id ledger.EnrollmentID) ([]billing.Installment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, enrollment_id, amount, due_date, status, paid_at, created_at
		FROM installments WHERE enrollment_id = ?
		ORDER BY due_date ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer rows.Close()

	var installments []billing.Installment
	for rows.Next() {
		in, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		installments = append(installments, in)
	}
	return installments, rows.Err()
}

func (s *Store) GetInstallment(ctx context.Context, id ledger.InstallmentID) (*billing.Installment, error) {
	return getInstallment(ctx, s.db, id)
}

func getInstallment(ctx context.Context, db dbtx, id ledger.InstallmentID) (*billing.Installment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, enrollment_id, amount, due_date, status, paid_at, created_at
		FROM installments WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query installment: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	in, err := scanInstallment(rows)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func scanInstallment(rows *sql.Rows) (billing.Installment, error) {
	var (
		in                 billing.Installment
		amount             string
		dueDate, createdAt string
		paidAt             sql.NullString
	)
	err := rows.Scan(&in.ID, &in.EnrollmentID, &amount, &dueDate, &in.Status, &paidAt, &createdAt)
	if err != nil {
		return in, fmt.Errorf("failed to scan installment: %w", err)
	}
	in.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return in, fmt.Errorf("corrupt installment amount %q: %w", amount, err)
	}
	in.DueDate, _ = time.Parse(time.RFC3339, dueDate)
	in.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if paidAt.Valid {
		if t, err := time.Parse(time.RFC3339, paidAt.String); err == nil {
			in.PaidAt = &t
		}
	}
	return in, nil
}

func (s *Store) MarkInstallmentPaid(ctx context.Context, id ledger.InstallmentID, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markInstallmentPaid(ctx, s.db, id, paidAt)
}

// markInstallmentPaid is the guarded transition: only a not-yet-paid row
// can move to paid, so concurrent payers race to exactly one success.
func markInstallmentPaid(ctx context.Context, db dbtx, id ledger.InstallmentID, paidAt time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE installments SET status = 'paid', paid_at = ?
		WHERE id = ? AND status != 'paid'`,
		paidAt.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to mark installment paid: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var count int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM installments WHERE id = ?", id).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: installment %s", ledger.ErrNotFound, id)
		}
		return billing.ErrAlreadyPaid
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (billing.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. All writes fn performs
// commit together or roll back together.
func (s *Store) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// txStore runs every operation on the open transaction, reads included, so
// the reconciler's check-then-act sequences see their own writes and are
// serialized against other writers.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) InsertEntry(ctx context.Context, e ledger.Entry) error {
	return insertEntry(ctx, ts.tx, e)
}

func (ts *txStore) EntryByReference(ctx context.Context, reference string) (*ledger.Entry, error) {
	return entryByReference(ctx, ts.tx, reference)
}

func (ts *txStore) CompleteEntry(ctx context.Context, id ledger.EntryID, amount decimal.Decimal) error {
	return setEntryTerminal(ctx, ts.tx, id, ledger.EntryCompleted, &amount)
}

func (ts *txStore) FailEntry(ctx context.Context, id ledger.EntryID) error {
	return setEntryTerminal(ctx, ts.tx, id, ledger.EntryFailed, nil)
}

func (ts *txStore) Balance(ctx context.Context, userID ledger.UserID) (decimal.Decimal, error) {
	return balance(ctx, ts.tx, userID)
}

func (ts *txStore) EntriesByUser(ctx context.Context, userID ledger.UserID) ([]ledger.Entry, error) {
	return entriesByUser(ctx, ts.tx, userID)
}

func (ts *txStore) GetEnrollment(ctx context.Context, id ledger.EnrollmentID) (*billing.Enrollment, error) {
	return getEnrollment(ctx, ts.tx, id)
}

func (ts *txStore) InsertEnrollment(ctx context.Context, e billing.Enrollment) error {
	return insertEnrollment(ctx, ts.tx, e)
}

func (ts *txStore) SetEnrollmentPaymentStatus(ctx context.Context, id ledger.EnrollmentID, status billing.PaymentStatus) error {
	return setEnrollmentPaymentStatus(ctx, ts.tx, id, status)
}

func (ts *txStore) InsertInstallments(ctx context.Context, installments []billing.Installment) error {
	return insertInstallments(ctx, ts.tx, installments)
}

func (ts *txStore) InstallmentsByEnrollment(ctx context.Context, id ledger.EnrollmentID) ([]billing.Installment, error) {
	return installmentsByEnrollment(ctx, ts.tx, id)
}

func (ts *txStore) GetInstallment(ctx context.Context, id ledger.InstallmentID) (*billing.Installment, error) {
	return getInstallment(ctx, ts.tx, id)
}

func (ts *txStore) MarkInstallmentPaid(ctx context.Context, id ledger.InstallmentID, paidAt time.Time) error {
	return markInstallmentPaid(ctx, ts.tx, id, paidAt)
}

// =============================================================================
// EXAM STORE (exam.Store interface)
// =============================================================================

func (s *Store) GetDefinition(ctx context.Context, id exam.ExamID) (*exam.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, scheduled_at, duration_minutes, pass_percentage, total_score, mandatory
		FROM exam_definitions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query exam: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		def         exam.Definition
		scheduledAt string
		mandatory   int
	)
	if err := rows.Scan(&def.ID, &def.CourseID, &scheduledAt, &def.DurationMinutes,
		&def.PassPercentage, &def.TotalScore, &mandatory); err != nil {
		return nil, fmt.Errorf("failed to scan exam: %w", err)
	}
	def.ScheduledAt, _ = time.Parse(time.RFC3339, scheduledAt)
	def.Mandatory = mandatory != 0
	return &def, nil
}

func (s *Store) InsertDefinition(ctx context.Context, def exam.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exam_definitions (id, course_id, scheduled_at, duration_minutes, pass_percentage, total_score, mandatory)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		def.ID, def.CourseID, def.ScheduledAt.UTC().Format(time.RFC3339),
		def.DurationMinutes, def.PassPercentage, def.TotalScore, boolInt(def.Mandatory))
	if err != nil {
		return fmt.Errorf("failed to insert exam: %w", err)
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, userID ledger.UserID, examID exam.ExamID) (*exam.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, exam_id, status, score, total_score, attempts, started_at, completed_at
		FROM exam_attempts WHERE user_id = ? AND exam_id = ?`, userID, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempt: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		a                      exam.Attempt
		score                  sql.NullFloat64
		startedAt, completedAt sql.NullString
	)
	if err := rows.Scan(&a.ID, &a.UserID, &a.ExamID, &a.Status, &score,
		&a.TotalScore, &a.Attempts, &startedAt, &completedAt); err != nil {
		return nil, fmt.Errorf("failed to scan attempt: %w", err)
	}
	if score.Valid {
		a.Score = &score.Float64
	}
	if startedAt.Valid {
		if t, err := time.Parse(time.RFC3339, startedAt.String); err == nil {
			a.StartedAt = &t
		}
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			a.CompletedAt = &t
		}
	}
	return &a, nil
}

func (s *Store) InsertAttempt(ctx context.Context, a exam.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exam_attempts (id, user_id, exam_id, status, score, total_score, attempts, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.ExamID, a.Status, nullFloat(a.Score),
		a.TotalScore, a.Attempts, nullTime(a.StartedAt), nullTime(a.CompletedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			// The (user, exam) row already exists: a concurrent starter won.
			return ledger.ErrConcurrentModification
		}
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// UpdateAttempt applies an optimistic write: the row must still carry
// expectAttempts attempts and must not be completed.
func (s *Store) UpdateAttempt(ctx context.Context, a exam.Attempt, expectAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE exam_attempts
		SET status = ?, score = ?, attempts = ?, started_at = ?, completed_at = ?
		WHERE user_id = ? AND exam_id = ? AND attempts = ? AND status != 'completed'`,
		a.Status, nullFloat(a.Score), a.Attempts,
		nullTime(a.StartedAt), nullTime(a.CompletedAt),
		a.UserID, a.ExamID, expectAttempts)
	if err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrConcurrentModification
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
