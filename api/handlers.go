/*
handlers.go - HTTP API handlers for the reconciliation engine

PURPOSE:
  Exposes the payment reconciler and exam engine via REST. Handles HTTP
  request/response, JSON serialization, and error mapping; all invariants
  live in the domain packages.

ENDPOINTS:
  Payments:
    POST /api/payments/initiate   Open a pending gateway top-up
    POST /api/payments/verify     Verify a reference and credit the wallet

  Enrollments:
    POST /api/enrollments                              Create enrollment
    GET  /api/enrollments/{id}                         Enrollment + installments
    POST /api/enrollments/{id}/plan                    Choose payment plan
    GET  /api/enrollments/{id}/installments            List installments
    POST /api/enrollments/{id}/installments/{iid}/pay  Pay from wallet

  Wallet:
    GET /api/users/{userID}/wallet         Balance
    GET /api/users/{userID}/transactions   Ledger history

  Exams:
    POST /api/exams                                    Publish definition
    GET  /api/users/{uid}/exams/{eid}                  Derived status
    POST /api/users/{uid}/exams/{eid}/participation    Start attempt
    POST /api/users/{uid}/exams/{eid}/complete         Record completion

ERROR HANDLING:
  Domain sentinels map to stable HTTP statuses and machine kinds; see
  writeDomainError. Idempotent repeats (duplicate reference, already-paid
  installment) answer 200 with the current state rather than an error.
  Storage errors surface as a generic 500 without leaking internals.

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumen/tuition-engine/billing"
	"github.com/lumen/tuition-engine/exam"
	"github.com/lumen/tuition-engine/ledger"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Reconciler *billing.Reconciler
	Exams      *exam.Engine
}

func NewHandler(reconciler *billing.Reconciler, exams *exam.Engine) *Handler {
	return &Handler{Reconciler: reconciler, Exams: exams}
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// InitiateTopUp opens a pending gateway top-up and returns the reference
// to use as the gateway order ID.
func (h *Handler) InitiateTopUp(w http.ResponseWriter, r *http.Request) {
	var req InitiateTopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	amount, err := ledger.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}

	entry, err := h.Reconciler.InitiateTopUp(r.Context(),
		ledger.UserID(req.UserID), amount, ledger.InstallmentID(req.InstallmentID))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, TopUpDTO{
		Reference: entry.Reference,
		Amount:    entry.Amount.StringFixed(2),
		Status:    string(entry.Status),
	})
}

// VerifyPayment is the gateway callback target: verify the reference with
// the gateway and credit the wallet at most once.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req VerifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Reference == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "reference is required")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	result, err := h.Reconciler.VerifyAndCredit(r.Context(), req.Reference, ledger.UserID(req.UserID))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrGatewayUnavailable):
			gatewayFailures.WithLabelValues("unavailable").Inc()
		case errors.Is(err, billing.ErrGatewayRejected):
			gatewayFailures.WithLabelValues("rejected").Inc()
		}
		h.writeDomainError(w, err)
		return
	}

	if result.Credited {
		creditsApplied.Inc()
	} else if result.Reason == "already_processed" {
		duplicateReferences.Inc()
	}

	writeJSON(w, http.StatusOK, CreditDTO{
		Credited:   result.Credited,
		Amount:     result.Amount.StringFixed(2),
		NewBalance: result.NewBalance.StringFixed(2),
		Reason:     result.Reason,
	})
}

// =============================================================================
// ENROLLMENT HANDLERS
// =============================================================================

func (h *Handler) CreateEnrollment(w http.ResponseWriter, r *http.Request) {
	var req CreateEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.UserID == "" || req.CourseID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id and course_id are required")
		return
	}
	tuition, err := ledger.ParseMoney(req.TuitionTotal)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}

	enr, err := h.Reconciler.CreateEnrollment(r.Context(), ledger.UserID(req.UserID), req.CourseID, tuition)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, enrollmentDTO(enr))
}

func (h *Handler) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	id := ledger.EnrollmentID(chi.URLParam(r, "id"))

	enr, installments, err := h.Reconciler.EnrollmentState(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		EnrollmentDTO
		Installments []InstallmentDTO `json:"installments"`
	}{enrollmentDTO(*enr), installmentDTOs(installments)})
}

func (h *Handler) ChoosePlan(w http.ResponseWriter, r *http.Request) {
	id := ledger.EnrollmentID(chi.URLParam(r, "id"))

	var req ChoosePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	kind, ok := billing.ParsePlanKind(req.Plan)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "plan must be 'full' or 'split'")
		return
	}

	plan, err := h.Reconciler.ChoosePlan(r.Context(), id, kind)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, installmentDTOs(plan))
}

func (h *Handler) ListInstallments(w http.ResponseWriter, r *http.Request) {
	id := ledger.EnrollmentID(chi.URLParam(r, "id"))

	_, installments, err := h.Reconciler.EnrollmentState(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, installmentDTOs(installments))
}

// PayInstallment debits the enrollment owner's wallet for one installment.
// An already-paid installment answers 200 with the current state: repeats
// are idempotent, not errors.
func (h *Handler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	enrollmentID := ledger.EnrollmentID(chi.URLParam(r, "id"))
	installmentID := ledger.InstallmentID(chi.URLParam(r, "installmentID"))

	outcome, err := h.Reconciler.PayInstallment(r.Context(), enrollmentID, installmentID)
	if err != nil {
		if errors.Is(err, billing.ErrAlreadyPaid) {
			h.writeCurrentPaymentState(w, r, enrollmentID)
			return
		}
		h.writeDomainError(w, err)
		return
	}

	installmentsPaid.Inc()
	writeJSON(w, http.StatusOK, PaymentOutcomeDTO{
		PaymentStatus: string(outcome.PaymentStatus),
		PaidAmount:    outcome.PaidAmount.StringFixed(2),
		NewBalance:    outcome.NewBalance.StringFixed(2),
	})
}

func (h *Handler) writeCurrentPaymentState(w http.ResponseWriter, r *http.Request, id ledger.EnrollmentID) {
	enr, installments, err := h.Reconciler.EnrollmentState(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	balance, err := h.Reconciler.WalletBalance(r.Context(), enr.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentOutcomeDTO{
		PaymentStatus: string(enr.PaymentStatus),
		PaidAmount:    billing.PaidTotal(installments).Paid.StringFixed(2),
		NewBalance:    balance.StringFixed(2),
	})
}

// =============================================================================
// WALLET HANDLERS
// =============================================================================

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))

	balance, err := h.Reconciler.WalletBalance(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WalletDTO{
		UserID:  string(userID),
		Balance: balance.StringFixed(2),
	})
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))

	entries, err := h.Reconciler.WalletHistory(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = entryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EXAM HANDLERS
// =============================================================================

func (h *Handler) CreateExam(w http.ResponseWriter, r *http.Request) {
	var req CreateExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	scheduledAt, err := time.Parse("2006-01-02", req.ScheduledAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid scheduled_at format (use YYYY-MM-DD)")
		return
	}

	def, err := h.Exams.PublishDefinition(r.Context(), exam.Definition{
		CourseID:        req.CourseID,
		ScheduledAt:     scheduledAt,
		DurationMinutes: req.DurationMinutes,
		PassPercentage:  req.PassPercentage,
		TotalScore:      req.TotalScore,
		Mandatory:       req.Mandatory,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ExamDTO{
		ID:              string(def.ID),
		CourseID:        def.CourseID,
		ScheduledAt:     def.ScheduledAt.Format("2006-01-02"),
		DurationMinutes: def.DurationMinutes,
		PassPercentage:  def.PassPercentage,
		TotalScore:      def.TotalScore,
		Mandatory:       def.Mandatory,
	})
}

// GetExamStatus returns the derived lifecycle view. This is the only place
// clients get an exam status from; they never re-derive it.
func (h *Handler) GetExamStatus(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	examID := exam.ExamID(chi.URLParam(r, "examID"))

	view, err := h.Exams.Status(r.Context(), userID, examID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusDTO(view))
}

func (h *Handler) StartParticipation(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	examID := exam.ExamID(chi.URLParam(r, "examID"))

	attempt, err := h.Exams.StartParticipation(r.Context(), userID, examID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptDTO(attempt))
}

func (h *Handler) CompleteExam(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "userID"))
	examID := exam.ExamID(chi.URLParam(r, "examID"))

	var req CompleteExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	attempt, err := h.Exams.Complete(r.Context(), userID, examID, req.Score)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptDTO(attempt))
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeDomainError maps domain sentinels to stable HTTP statuses and
// machine kinds. Anything unrecognized is a generic internal error; the
// detail is logged, not leaked.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_funds", err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, billing.ErrEmptyReference):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, billing.ErrPlanAlreadyChosen):
		writeError(w, http.StatusConflict, "plan_already_chosen", err.Error())
	case errors.Is(err, billing.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, "already_paid", err.Error())
	case errors.Is(err, billing.ErrGatewayRejected):
		writeError(w, http.StatusUnprocessableEntity, "gateway_rejected", err.Error())
	case errors.Is(err, billing.ErrGatewayUnavailable):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "gateway_unavailable", err.Error())
	case errors.Is(err, exam.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, "already_completed", err.Error())
	case errors.Is(err, ledger.ErrDuplicateReference):
		writeError(w, http.StatusConflict, "duplicate_reference", err.Error())
	case errors.Is(err, ledger.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "conflict", "Concurrent update, retry the request")
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "Internal error")
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorDTO{Error: message, Kind: kind})
}
