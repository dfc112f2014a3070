package billing

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadyPaid is returned when paying an installment that is already
	// paid. The API layer treats this as an idempotent success, not a fault.
	ErrAlreadyPaid = errors.New("installment already paid")

	// ErrPlanAlreadyChosen is returned on a second ChoosePlan call for the
	// same enrollment. Plans are chosen exactly once.
	ErrPlanAlreadyChosen = errors.New("payment plan already chosen")

	// ErrPlanInvariant is returned when built installments don't sum to the
	// tuition total. Nothing is persisted when this fires.
	ErrPlanInvariant = errors.New("installments do not sum to tuition total")

	// ErrGatewayRejected is returned when the gateway reports the payment as
	// denied, failed, or expired. Terminal: the reference will never credit.
	ErrGatewayRejected = errors.New("payment rejected by gateway")

	// ErrGatewayUnavailable is returned when the gateway cannot be reached
	// within the verification timeout. Retryable with the same reference.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)
