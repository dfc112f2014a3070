/*
reconciler.go - The payment reconciliation orchestrator

PURPOSE:
  Every mutation of money state goes through here. The Reconciler owns two
  atomic paths:

    verify-and-credit: gateway callback -> verify with the gateway ->
      credit the wallet exactly once -> advance the linked installment ->
      recompute the enrollment aggregate. One transaction.

    pay-installment: debit the wallet -> mark the installment paid ->
      recompute the enrollment aggregate. One transaction.

  Plus the one-shot plan choice and the enrollment/top-up intake that feed
  those paths.

IDEMPOTENCY:
  A reference that is already completed short-circuits before touching the
  gateway and reports credited=false. Under concurrent callbacks the unique
  reference constraint (or the guarded pending->completed transition) lets
  exactly one caller through; the loser's transaction rolls back and it
  re-reads the winner's result. The wallet is credited at most once per
  reference, ever.

FAILURE ATOMICITY:
  Gateway verification happens before the transaction opens, so no lock is
  held while waiting on the network. Every error path out of WithTx leaves
  state byte-for-byte unchanged.

SEE ALSO:
  - store.go: The transactional store contract this relies on
  - status.go: The aggregate recomputed at the end of both paths
*/
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lumen/tuition-engine/gateway"
	"github.com/lumen/tuition-engine/ledger"
	"github.com/shopspring/decimal"
)

// ErrEmptyReference rejects verify calls without an external reference.
var ErrEmptyReference = errors.New("external reference must not be empty")

// CreditResult is the outcome of a verify-and-credit call.
type CreditResult struct {
	// Credited is true only for the single call that applied the credit.
	// Repeats and race losers get false with Reason "already_processed".
	Credited   bool
	Amount     decimal.Decimal
	NewBalance decimal.Decimal
	Reason     string // "credited", "already_processed", "pending"
}

// PaymentOutcome is the state after a successful installment payment.
type PaymentOutcome struct {
	PaymentStatus PaymentStatus
	PaidAmount    decimal.Decimal
	NewBalance    decimal.Decimal
}

// Reconciler orchestrates all money-state mutations.
type Reconciler struct {
	store    TxStore
	verifier gateway.Verifier

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewReconciler(store TxStore, verifier gateway.Verifier) *Reconciler {
	return &Reconciler{store: store, verifier: verifier, Now: time.Now}
}

// =============================================================================
// ENROLLMENT INTAKE
// =============================================================================

// CreateEnrollment registers a (user, course) enrollment with its tuition
// total. Billing starts once a plan is chosen.
func (r *Reconciler) CreateEnrollment(ctx context.Context, userID ledger.UserID, courseID string, tuition decimal.Decimal) (Enrollment, error) {
	if !tuition.IsPositive() {
		return Enrollment{}, fmt.Errorf("%w: tuition %s", ledger.ErrInvalidAmount, tuition)
	}

	e := Enrollment{
		ID:            ledger.EnrollmentID(uuid.NewString()),
		UserID:        userID,
		CourseID:      courseID,
		Status:        EnrollmentActive,
		PaymentStatus: PaymentNotStarted,
		TuitionTotal:  tuition,
		EnrolledAt:    r.Now(),
	}
	if err := r.store.InsertEnrollment(ctx, e); err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

// ChoosePlan builds and persists the installment plan for an enrollment.
// Callable exactly once; a second call fails with ErrPlanAlreadyChosen.
func (r *Reconciler) ChoosePlan(ctx context.Context, enrollmentID ledger.EnrollmentID, kind PlanKind) ([]Installment, error) {
	now := r.Now()

	var plan []Installment
	err := r.store.WithTx(ctx, func(s Store) error {
		enr, err := s.GetEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if enr == nil {
			return fmt.Errorf("%w: enrollment %s", ledger.ErrNotFound, enrollmentID)
		}

		existing, err := s.InstallmentsByEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrPlanAlreadyChosen
		}

		plan, err = BuildPlan(kind, enrollmentID, enr.TuitionTotal, now)
		if err != nil {
			return err
		}
		if err := s.InsertInstallments(ctx, plan); err != nil {
			return err
		}
		return s.SetEnrollmentPaymentStatus(ctx, enrollmentID, ComputePaymentStatus(plan, now))
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// =============================================================================
// GATEWAY CREDIT PATH
// =============================================================================

// InitiateTopUp records a pending credit entry for a gateway checkout about
// to happen. The returned entry's Reference is the order ID handed to the
// gateway; VerifyAndCredit later settles it. An optional installment link
// makes settlement advance that installment automatically.
func (r *Reconciler) InitiateTopUp(ctx context.Context, userID ledger.UserID, amount decimal.Decimal, installmentID ledger.InstallmentID) (ledger.Entry, error) {
	if !amount.IsPositive() {
		return ledger.Entry{}, fmt.Errorf("%w: top-up %s", ledger.ErrInvalidAmount, amount)
	}

	now := r.Now()
	e := ledger.Entry{
		ID:            ledger.EntryID(uuid.NewString()),
		UserID:        userID,
		Direction:     ledger.DirectionCredit,
		Amount:        amount,
		Reference:     "TOPUP-" + uuid.NewString(),
		InstallmentID: installmentID,
		Status:        ledger.EntryPending,
		Description:   "wallet top-up via gateway",
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if installmentID != "" {
		inst, err := r.store.GetInstallment(ctx, installmentID)
		if err != nil {
			return ledger.Entry{}, err
		}
		if inst == nil {
			return ledger.Entry{}, fmt.Errorf("%w: installment %s", ledger.ErrNotFound, installmentID)
		}
		if inst.Status == InstallmentPaid {
			return ledger.Entry{}, ErrAlreadyPaid
		}
		e.Description = "tuition installment via gateway"
	}

	if err := r.store.InsertEntry(ctx, e); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

// VerifyAndCredit applies an external payment to the wallet exactly once.
//
// Safe to call any number of times with the same reference: only the first
// settled verification credits; every other call observes the completed
// entry and returns Credited=false.
func (r *Reconciler) VerifyAndCredit(ctx context.Context, reference string, userID ledger.UserID) (CreditResult, error) {
	if reference == "" {
		return CreditResult{}, ErrEmptyReference
	}

	existing, err := r.store.EntryByReference(ctx, reference)
	if err != nil {
		return CreditResult{}, err
	}
	if existing != nil {
		if existing.UserID != userID {
			return CreditResult{}, fmt.Errorf("%w: reference %s for user %s", ledger.ErrNotFound, reference, userID)
		}
		switch existing.Status {
		case ledger.EntryCompleted:
			return r.alreadyProcessed(ctx, existing)
		case ledger.EntryFailed:
			return CreditResult{}, ErrGatewayRejected
		}
		// pending: fall through to verification
	}

	// Ask the gateway before opening the transaction: no lock is held while
	// waiting on the network.
	v, err := r.verifier.Verify(ctx, reference)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return CreditResult{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return CreditResult{}, err
	}

	switch v.Status {
	case gateway.StatusPending:
		return CreditResult{Reason: "pending"}, nil

	case gateway.StatusRejected, gateway.StatusExpired:
		if existing != nil {
			if err := r.store.FailEntry(ctx, existing.ID); err != nil && !errors.Is(err, ledger.ErrEntryTerminal) {
				return CreditResult{}, err
			}
		}
		return CreditResult{}, ErrGatewayRejected

	case gateway.StatusSettled:
		return r.applyCredit(ctx, reference, userID, existing, v)

	default:
		return CreditResult{}, fmt.Errorf("gateway returned unknown status %q", v.Status)
	}
}

// applyCredit commits the settled verification in one transaction.
func (r *Reconciler) applyCredit(ctx context.Context, reference string, userID ledger.UserID, existing *ledger.Entry, v gateway.Verification) (CreditResult, error) {
	now := r.Now()

	amount := v.Amount
	if amount.IsZero() && existing != nil {
		amount = existing.Amount
	}
	if !amount.IsPositive() {
		return CreditResult{}, fmt.Errorf("%w: gateway settled %s with amount %s", ledger.ErrInvalidAmount, reference, amount)
	}

	var result CreditResult
	err := r.store.WithTx(ctx, func(s Store) error {
		var installmentID ledger.InstallmentID

		if existing == nil {
			e := ledger.Entry{
				ID:          ledger.EntryID(uuid.NewString()),
				UserID:      userID,
				Direction:   ledger.DirectionCredit,
				Amount:      amount,
				Reference:   reference,
				Status:      ledger.EntryCompleted,
				Description: "gateway credit",
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.InsertEntry(ctx, e); err != nil {
				return err // ErrDuplicateReference: lost the race, handled below
			}
		} else {
			if err := s.CompleteEntry(ctx, existing.ID, amount); err != nil {
				return err // ErrEntryTerminal: lost the race, handled below
			}
			installmentID = existing.InstallmentID
		}

		if installmentID != "" {
			if err := r.advanceInstallment(ctx, s, installmentID, now); err != nil {
				return err
			}
		}

		balance, err := s.Balance(ctx, userID)
		if err != nil {
			return err
		}
		result = CreditResult{Credited: true, Amount: amount, NewBalance: balance, Reason: "credited"}
		return nil
	})

	if err != nil {
		// A concurrent caller applied the credit first; the transaction
		// rolled back. Observe the winner's entry for the idempotent answer.
		if errors.Is(err, ledger.ErrDuplicateReference) || errors.Is(err, ledger.ErrEntryTerminal) {
			entry, lookupErr := r.store.EntryByReference(ctx, reference)
			if lookupErr != nil {
				return CreditResult{}, lookupErr
			}
			if entry != nil && entry.Status == ledger.EntryCompleted {
				return r.alreadyProcessed(ctx, entry)
			}
			return CreditResult{}, ErrGatewayRejected
		}
		return CreditResult{}, err
	}
	return result, nil
}

// advanceInstallment marks a linked installment paid and recomputes the
// enrollment aggregate. A concurrently-paid installment is left alone.
func (r *Reconciler) advanceInstallment(ctx context.Context, s Store, id ledger.InstallmentID, now time.Time) error {
	inst, err := s.GetInstallment(ctx, id)
	if err != nil {
		return err
	}
	if inst == nil || inst.Status == InstallmentPaid {
		return nil
	}

	if err := s.MarkInstallmentPaid(ctx, id, now); err != nil {
		if errors.Is(err, ErrAlreadyPaid) {
			return nil
		}
		return err
	}

	installments, err := s.InstallmentsByEnrollment(ctx, inst.EnrollmentID)
	if err != nil {
		return err
	}
	return s.SetEnrollmentPaymentStatus(ctx, inst.EnrollmentID, ComputePaymentStatus(installments, now))
}

func (r *Reconciler) alreadyProcessed(ctx context.Context, entry *ledger.Entry) (CreditResult, error) {
	balance, err := r.store.Balance(ctx, entry.UserID)
	if err != nil {
		return CreditResult{}, err
	}
	return CreditResult{
		Credited:   false,
		Amount:     entry.Amount,
		NewBalance: balance,
		Reason:     "already_processed",
	}, nil
}

// =============================================================================
// WALLET DEBIT PATH
// =============================================================================

// PayInstallment debits the enrollment owner's wallet for one installment
// and recomputes the payment aggregate. Atomic: the debit entry, the
// installment transition, and the aggregate all commit together.
func (r *Reconciler) PayInstallment(ctx context.Context, enrollmentID ledger.EnrollmentID, installmentID ledger.InstallmentID) (PaymentOutcome, error) {
	now := r.Now()

	var out PaymentOutcome
	err := r.store.WithTx(ctx, func(s Store) error {
		enr, err := s.GetEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if enr == nil {
			return fmt.Errorf("%w: enrollment %s", ledger.ErrNotFound, enrollmentID)
		}

		inst, err := s.GetInstallment(ctx, installmentID)
		if err != nil {
			return err
		}
		if inst == nil || inst.EnrollmentID != enrollmentID {
			return fmt.Errorf("%w: installment %s", ledger.ErrNotFound, installmentID)
		}
		if inst.Status == InstallmentPaid {
			return ErrAlreadyPaid
		}

		balance, err := s.Balance(ctx, enr.UserID)
		if err != nil {
			return err
		}
		if balance.LessThan(inst.Amount) {
			return &ledger.InsufficientFundsError{
				UserID:    enr.UserID,
				Available: balance,
				Requested: inst.Amount,
			}
		}

		// Guarded transition: a concurrent payer that got here first makes
		// this return ErrAlreadyPaid and the whole unit rolls back.
		if err := s.MarkInstallmentPaid(ctx, installmentID, now); err != nil {
			return err
		}

		debit := ledger.Entry{
			ID:            ledger.EntryID(uuid.NewString()),
			UserID:        enr.UserID,
			Direction:     ledger.DirectionDebit,
			Amount:        inst.Amount,
			InstallmentID: installmentID,
			Status:        ledger.EntryCompleted,
			Description:   fmt.Sprintf("tuition installment for course %s", enr.CourseID),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.InsertEntry(ctx, debit); err != nil {
			return err
		}

		installments, err := s.InstallmentsByEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		status := ComputePaymentStatus(installments, now)
		if err := s.SetEnrollmentPaymentStatus(ctx, enrollmentID, status); err != nil {
			return err
		}

		out = PaymentOutcome{
			PaymentStatus: status,
			PaidAmount:    PaidTotal(installments).Paid,
			NewBalance:    balance.Sub(inst.Amount),
		}
		return nil
	})
	if err != nil {
		return PaymentOutcome{}, err
	}
	return out, nil
}

// =============================================================================
// READ SIDE
// =============================================================================

func (r *Reconciler) WalletBalance(ctx context.Context, userID ledger.UserID) (decimal.Decimal, error) {
	return r.store.Balance(ctx, userID)
}

func (r *Reconciler) WalletHistory(ctx context.Context, userID ledger.UserID) ([]ledger.Entry, error) {
	return r.store.EntriesByUser(ctx, userID)
}

// EnrollmentState returns an enrollment with its installments and the
// freshly derived payment status (the stored aggregate is the same value;
// deriving on read keeps the two honest).
func (r *Reconciler) EnrollmentState(ctx context.Context, id ledger.EnrollmentID) (*Enrollment, []Installment, error) {
	enr, err := r.store.GetEnrollment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if enr == nil {
		return nil, nil, fmt.Errorf("%w: enrollment %s", ledger.ErrNotFound, id)
	}
	installments, err := r.store.InstallmentsByEnrollment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	enr.PaymentStatus = ComputePaymentStatus(installments, r.Now())
	return enr, installments, nil
}
