/*
Package memory provides an in-memory store for tests and local development.

PURPOSE:
  Implements the same interfaces as store/sqlite (ledger.Store,
  billing.Store, billing.TxStore, exam.Store) without a database. One
  mutex serializes everything; WithTx snapshots the maps and restores them
  when fn fails, giving the same all-or-nothing semantics the reconciler
  relies on.

  Unit tests for the reconciler run against this store; store/sqlite has
  its own tests proving the durable implementation honors the identical
  contract.
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
	"github.com/lumen/tuition-engine/exam"
	"github.com/lumen/tuition-engine/ledger"
)

type Store struct {
	mu sync.Mutex
	st state
}

type attemptKey struct {
	UserID ledger.UserID
	ExamID exam.ExamID
}

type state struct {
	entries      map[ledger.EntryID]ledger.Entry
	byReference  map[string]ledger.EntryID
	enrollments  map[ledger.EnrollmentID]billing.Enrollment
	installments map[ledger.InstallmentID]billing.Installment
	definitions  map[exam.ExamID]exam.Definition
	attempts     map[attemptKey]exam.Attempt
}

func New() *Store {
	return &Store{st: newState()}
}

func newState() state {
	return state{
		entries:      make(map[ledger.EntryID]ledger.Entry),
		byReference:  make(map[string]ledger.EntryID),
		enrollments:  make(map[ledger.EnrollmentID]billing.Enrollment),
		installments: make(map[ledger.InstallmentID]billing.Installment),
		definitions:  make(map[exam.ExamID]exam.Definition),
		attempts:     make(map[attemptKey]exam.Attempt),
	}
}

func (st state) clone() state {
	c := newState()
	for k, v := range st.entries {
		c.entries[k] = v
	}
	for k, v := range st.byReference {
		c.byReference[k] = v
	}
	for k, v := range st.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range st.installments {
		c.installments[k] = v
	}
	for k, v := range st.definitions {
		c.definitions[k] = v
	}
	for k, v := range st.attempts {
		c.attempts[k] = v
	}
	return c
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (s *Store) InsertEntry(_ context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.insertEntry(e)
}

func (st *state) insertEntry(e ledger.Entry) error {
	if e.Reference != "" {
		if _, exists := st.byReference[e.Reference]; exists {
			return ledger.ErrDuplicateReference
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	st.entries[e.ID] = e
	if e.Reference != "" {
		st.byReference[e.Reference] = e.ID
	}
	return nil
}

func (s *Store) EntryByReference(_ context.Context, reference string) (*ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.entryByReference(reference), nil
}

func (st *state) entryByReference(reference string) *ledger.Entry {
	id, ok := st.byReference[reference]
	if !ok {
		return nil
	}
	e := st.entries[id]
	return &e
}

func (s *Store) CompleteEntry(_ context.Context, id ledger.EntryID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.setEntryTerminal(id, ledger.EntryCompleted, &amount)
}

func (s *Store) FailEntry(_ context.Context, id ledger.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.setEntryTerminal(id, ledger.EntryFailed, nil)
}

func (st *state) setEntryTerminal(id ledger.EntryID, status ledger.EntryStatus, amount *decimal.Decimal) error {
	e, ok := st.entries[id]
	if !ok {
		return fmt.Errorf("%w: ledger entry %s", ledger.ErrNotFound, id)
	}
	if e.Terminal() {
		return ledger.ErrEntryTerminal
	}
	e.Status = status
	if amount != nil {
		e.Amount = *amount
	}
	e.UpdatedAt = time.Now().UTC()
	st.entries[id] = e
	return nil
}

func (s *Store) Balance(_ context.Context, userID ledger.UserID) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ledger.BalanceOf(s.st.userEntries(userID)), nil
}

func (s *Store) EntriesByUser(_ context.Context, userID ledger.UserID) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.userEntries(userID), nil
}

func (st *state) userEntries(userID ledger.UserID) []ledger.Entry {
	var entries []ledger.Entry
	for _, e := range st.entries {
		if e.UserID == userID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries
}

// =============================================================================
// BILLING STORE
// =============================================================================

func (s *Store) GetEnrollment(_ context.Context, id ledger.EnrollmentID) (*billing.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.st.enrollments[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (s *Store) InsertEnrollment(_ context.Context, e billing.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.enrollments[e.ID] = e
	return nil
}

func (s *Store) SetEnrollmentPaymentStatus(_ context.Context, id ledger.EnrollmentID, status billing.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.enrollments[id]
	if !ok {
		return fmt.Errorf("%w: enrollment %s", ledger.ErrNotFound, id)
	}
	e.PaymentStatus = status
	s.st.enrollments[id] = e
	return nil
}

func (s *Store) InsertInstallments(_ context.Context, installments []billing.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range installments {
		s.st.installments[in.ID] = in
	}
	return nil
}

func (s *Store) InstallmentsByEnrollment(_ context.Context, id ledger.EnrollmentID) ([]billing.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.installmentsByEnrollment(id), nil
}

func (st *state) installmentsByEnrollment(id ledger.EnrollmentID) []billing.Installment {
	var out []billing.Installment
	for _, in := range st.installments {
		if in.EnrollmentID == id {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out
}

func (s *Store) GetInstallment(_ context.Context, id ledger.InstallmentID) (*billing.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in, ok := s.st.installments[id]; ok {
		return &in, nil
	}
	return nil, nil
}

func (s *Store) MarkInstallmentPaid(_ context.Context, id ledger.InstallmentID, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.markInstallmentPaid(id, paidAt)
}

func (st *state) markInstallmentPaid(id ledger.InstallmentID, paidAt time.Time) error {
	in, ok := st.installments[id]
	if !ok {
		return fmt.Errorf("%w: installment %s", ledger.ErrNotFound, id)
	}
	if in.Status == billing.InstallmentPaid {
		return billing.ErrAlreadyPaid
	}
	in.Status = billing.InstallmentPaid
	in.PaidAt = &paidAt
	st.installments[id] = in
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx snapshots state, runs fn against the live maps, and restores the
// snapshot if fn fails. The mutex is held throughout, so units never
// interleave.
func (s *Store) WithTx(_ context.Context, fn func(billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&txView{st: &s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// txView exposes the locked state as a billing.Store. The parent's mutex is
// already held; methods here must not touch it.
type txView struct {
	st *state
}

func (v *txView) InsertEntry(_ context.Context, e ledger.Entry) error {
	return v.st.insertEntry(e)
}

func (v *txView) EntryByReference(_ context.Context, reference string) (*ledger.Entry, error) {
	return v.st.entryByReference(reference), nil
}

func (v *txView) CompleteEntry(_ context.Context, id ledger.EntryID, amount decimal.Decimal) error {
	return v.st.setEntryTerminal(id, ledger.EntryCompleted, &amount)
}

func (v *txView) FailEntry(_ context.Context, id ledger.EntryID) error {
	return v.st.setEntryTerminal(id, ledger.EntryFailed, nil)
}

func (v *txView) Balance(_ context.Context, userID ledger.UserID) (decimal.Decimal, error) {
	return ledger.BalanceOf(v.st.userEntries(userID)), nil
}

func (v *txView) EntriesByUser(_ context.Context, userID ledger.UserID) ([]ledger.Entry, error) {
	return v.st.userEntries(userID), nil
}

func (v *txView) GetEnrollment(_ context.Context, id ledger.EnrollmentID) (*billing.Enrollment, error) {
	if e, ok := v.st.enrollments[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (v *txView) InsertEnrollment(_ context.Context, e billing.Enrollment) error {
	v.st.enrollments[e.ID] = e
	return nil
}

func (v *txView) SetEnrollmentPaymentStatus(_ context.Context, id ledger.EnrollmentID, status billing.PaymentStatus) error {
	e, ok := v.st.enrollments[id]
	if !ok {
		return fmt.Errorf("%w: enrollment %s", ledger.ErrNotFound, id)
	}
	e.PaymentStatus = status
	v.st.enrollments[id] = e
	return nil
}

func (v *txView) InsertInstallments(_ context.Context, installments []billing.Installment) error {
	for _, in := range installments {
		v.st.installments[in.ID] = in
	}
	return nil
}

func (v *txView) InstallmentsByEnrollment(_ context.Context, id ledger.EnrollmentID) ([]billing.Installment, error) {
	return v.st.installmentsByEnrollment(id), nil
}

func (v *txView) GetInstallment(_ context.Context, id ledger.InstallmentID) (*billing.Installment, error) {
	if in, ok := v.st.installments[id]; ok {
		return &in, nil
	}
	return nil, nil
}

func (v *txView) MarkInstallmentPaid(_ context.Context, id ledger.InstallmentID, paidAt time.Time) error {
	return v.st.markInstallmentPaid(id, paidAt)
}

// =============================================================================
// EXAM STORE
// =============================================================================

func (s *Store) GetDefinition(_ context.Context, id exam.ExamID) (*exam.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.st.definitions[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (s *Store) InsertDefinition(_ context.Context, def exam.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.definitions[def.ID] = def
	return nil
}

func (s *Store) GetAttempt(_ context.Context, userID ledger.UserID, examID exam.ExamID) (*exam.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.st.attempts[attemptKey{userID, examID}]; ok {
		return &a, nil
	}
	return nil, nil
}

func (s *Store) InsertAttempt(_ context.Context, a exam.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := attemptKey{a.UserID, a.ExamID}
	if _, exists := s.st.attempts[k]; exists {
		return ledger.ErrConcurrentModification
	}
	s.st.attempts[k] = a
	return nil
}

func (s *Store) UpdateAttempt(_ context.Context, a exam.Attempt, expectAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := attemptKey{a.UserID, a.ExamID}
	current, ok := s.st.attempts[k]
	if !ok || current.Attempts != expectAttempts || current.Status == exam.RecordedCompleted {
		return ledger.ErrConcurrentModification
	}
	s.st.attempts[k] = a
	return nil
}
