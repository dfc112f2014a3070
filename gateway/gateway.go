/*
Package gateway abstracts the third-party payment gateway.

PURPOSE:
  The engine never trusts a callback body: before crediting a wallet it
  asks the gateway for the authoritative state of the referenced
  transaction. Verifier is that one question; everything else about the
  gateway (hosted checkout, notification signatures) stays outside this
  service.

STATUS MODEL:
  The gateway's vocabulary (Midtrans: capture/settlement/deny/expire/...)
  is collapsed to four states the reconciler cares about:

    settled  - funds are final, credit the wallet
    pending  - not final yet, do nothing and let the caller retry
    rejected - terminal failure, mark the pending entry failed
    expired  - terminal, the payment window closed

SEE ALSO:
  - midtrans.go: Production adapter over the Midtrans Core API
  - memory.go: Programmable fake for tests and local dev
*/
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the collapsed verification outcome.
type Status string

const (
	StatusSettled  Status = "settled"
	StatusPending  Status = "pending"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Terminal reports whether the gateway will never change its answer.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusRejected || s == StatusExpired
}

// Verification is the authoritative gateway state for one reference.
type Verification struct {
	Reference string
	Status    Status
	Amount    decimal.Decimal
	PaidAt    *time.Time
}

// ErrUnavailable means the gateway could not be reached within the bounded
// verification timeout. Retryable: the reference stays unconsumed.
var ErrUnavailable = errors.New("gateway unreachable")

// Verifier asks the gateway for the authoritative transaction state.
type Verifier interface {
	// Verify must return within the context deadline. An unreachable
	// gateway surfaces ErrUnavailable, never a partial answer.
	Verify(ctx context.Context, reference string) (Verification, error)
}
