/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes for the API, decoupled from the domain types. Amounts cross
  the wire as strings ("100.00") so clients never see float rounding.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Done in handlers via ledger.ParseMoney and the domain constructors; DTOs
  are pure data carriers.
*/
package api

import (
	"time"

	"github.com/lumen/tuition-engine/billing"
	"github.com/lumen/tuition-engine/exam"
	"github.com/lumen/tuition-engine/ledger"
)

// =============================================================================
// PAYMENTS
// =============================================================================

// VerifyPaymentRequest is the gateway callback: a reference to settle.
type VerifyPaymentRequest struct {
	Reference string `json:"reference"`
	UserID    string `json:"user_id"`
}

// CreditDTO reports the outcome of a verify-and-credit call.
type CreditDTO struct {
	Credited   bool   `json:"credited"`
	Amount     string `json:"amount"`
	NewBalance string `json:"new_balance"`
	Reason     string `json:"reason,omitempty"`
}

// InitiateTopUpRequest opens a pending gateway top-up.
type InitiateTopUpRequest struct {
	UserID        string `json:"user_id"`
	Amount        string `json:"amount"`
	InstallmentID string `json:"installment_id,omitempty"`
}

// TopUpDTO returns the reference to hand to the gateway checkout.
type TopUpDTO struct {
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
}

// =============================================================================
// ENROLLMENTS & INSTALLMENTS
// =============================================================================

type CreateEnrollmentRequest struct {
	UserID       string `json:"user_id"`
	CourseID     string `json:"course_id"`
	TuitionTotal string `json:"tuition_total"`
}

type EnrollmentDTO struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	CourseID      string `json:"course_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	TuitionTotal  string `json:"tuition_total"`
	Progress      int    `json:"progress"`
	EnrolledAt    string `json:"enrolled_at"`
}

type ChoosePlanRequest struct {
	Plan string `json:"plan"`
}

type InstallmentDTO struct {
	ID           string  `json:"id"`
	EnrollmentID string  `json:"enrollment_id"`
	Amount       string  `json:"amount"`
	DueDate      string  `json:"due_date"`
	Status       string  `json:"status"`
	PaidAt       *string `json:"paid_at,omitempty"`
}

// PaymentOutcomeDTO is returned after paying an installment.
type PaymentOutcomeDTO struct {
	PaymentStatus string `json:"payment_status"`
	PaidAmount    string `json:"paid_amount"`
	NewBalance    string `json:"new_balance"`
}

// =============================================================================
// WALLET
// =============================================================================

type WalletDTO struct {
	UserID  string `json:"user_id"`
	Balance string `json:"balance"`
}

type EntryDTO struct {
	ID          string `json:"id"`
	Direction   string `json:"direction"`
	Amount      string `json:"amount"`
	Reference   string `json:"reference,omitempty"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// =============================================================================
// EXAMS
// =============================================================================

type CreateExamRequest struct {
	CourseID        string  `json:"course_id"`
	ScheduledAt     string  `json:"scheduled_at"` // YYYY-MM-DD
	DurationMinutes int     `json:"duration_minutes"`
	PassPercentage  float64 `json:"pass_percentage"`
	TotalScore      float64 `json:"total_score"`
	Mandatory       bool    `json:"mandatory"`
}

type ExamDTO struct {
	ID              string  `json:"id"`
	CourseID        string  `json:"course_id"`
	ScheduledAt     string  `json:"scheduled_at"`
	DurationMinutes int     `json:"duration_minutes"`
	PassPercentage  float64 `json:"pass_percentage"`
	TotalScore      float64 `json:"total_score"`
	Mandatory       bool    `json:"mandatory"`
}

// ExamStatusDTO is the derived view. Score fields appear only once the
// attempt is completed and graded.
type ExamStatusDTO struct {
	Status     string   `json:"status"`
	Score      *float64 `json:"score,omitempty"`
	TotalScore *float64 `json:"total_score,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
	Passed     *bool    `json:"passed,omitempty"`
}

type CompleteExamRequest struct {
	Score float64 `json:"score"`
}

type AttemptDTO struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	ExamID      string   `json:"exam_id"`
	Status      string   `json:"status"`
	Score       *float64 `json:"score,omitempty"`
	TotalScore  float64  `json:"total_score"`
	Attempts    int      `json:"attempts"`
	StartedAt   *string  `json:"started_at,omitempty"`
	CompletedAt *string  `json:"completed_at,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorDTO carries a stable machine kind plus a human message.
type ErrorDTO struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func enrollmentDTO(e billing.Enrollment) EnrollmentDTO {
	return EnrollmentDTO{
		ID:            string(e.ID),
		UserID:        string(e.UserID),
		CourseID:      e.CourseID,
		Status:        string(e.Status),
		PaymentStatus: string(e.PaymentStatus),
		TuitionTotal:  e.TuitionTotal.StringFixed(2),
		Progress:      e.Progress,
		EnrolledAt:    e.EnrolledAt.Format(time.RFC3339),
	}
}

func installmentDTO(in billing.Installment) InstallmentDTO {
	dto := InstallmentDTO{
		ID:           string(in.ID),
		EnrollmentID: string(in.EnrollmentID),
		Amount:       in.Amount.StringFixed(2),
		DueDate:      in.DueDate.Format("2006-01-02"),
		Status:       string(in.Status),
	}
	if in.PaidAt != nil {
		s := in.PaidAt.Format(time.RFC3339)
		dto.PaidAt = &s
	}
	return dto
}

func installmentDTOs(installments []billing.Installment) []InstallmentDTO {
	dtos := make([]InstallmentDTO, len(installments))
	for i, in := range installments {
		dtos[i] = installmentDTO(in)
	}
	return dtos
}

func entryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:          string(e.ID),
		Direction:   string(e.Direction),
		Amount:      e.Amount.StringFixed(2),
		Reference:   e.Reference,
		Status:      string(e.Status),
		Description: e.Description,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

func statusDTO(v exam.View) ExamStatusDTO {
	return ExamStatusDTO{
		Status:     string(v.Status),
		Score:      v.Score,
		TotalScore: v.TotalScore,
		Percentage: v.Percentage,
		Passed:     v.Passed,
	}
}

func attemptDTO(a exam.Attempt) AttemptDTO {
	dto := AttemptDTO{
		ID:         string(a.ID),
		UserID:     string(a.UserID),
		ExamID:     string(a.ExamID),
		Status:     string(a.Status),
		Score:      a.Score,
		TotalScore: a.TotalScore,
		Attempts:   a.Attempts,
	}
	if a.StartedAt != nil {
		s := a.StartedAt.Format(time.RFC3339)
		dto.StartedAt = &s
	}
	if a.CompletedAt != nil {
		s := a.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}
