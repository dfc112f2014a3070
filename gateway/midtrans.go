/*
midtrans.go - Midtrans Core API adapter

PURPOSE:
  Implements Verifier against Midtrans' transaction status endpoint. The
  order ID used at checkout is the external reference; CheckTransaction
  returns its authoritative transaction_status + fraud_status pair, which
  is collapsed to the engine's four-state model.

STATUS MAPPING:
  capture + accept, settlement      -> settled
  capture + challenge, pending      -> pending
  deny, failure, capture + deny     -> rejected
  cancel                            -> rejected
  expire                            -> expired

TIMEOUT:
  The Midtrans SDK call doesn't take a context, so Verify runs it on a
  goroutine and abandons it when the context deadline fires. The engine
  never holds a database lock during verification, so an abandoned call
  costs only the goroutine.
*/
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/shopspring/decimal"
)

// Midtrans verifies references against the Midtrans Core API.
type Midtrans struct {
	client  coreapi.Client
	timeout time.Duration
}

// NewMidtrans builds a verifier. production selects the live environment;
// otherwise the sandbox is used.
func NewMidtrans(serverKey string, production bool, timeout time.Duration) *Midtrans {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}

	var client coreapi.Client
	client.New(serverKey, env)

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Midtrans{client: client, timeout: timeout}
}

type checkResult struct {
	resp *coreapi.TransactionStatusResponse
	err  *midtrans.Error
}

// Verify asks Midtrans for the authoritative state of a reference.
func (m *Midtrans) Verify(ctx context.Context, reference string) (Verification, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan checkResult, 1)
	go func() {
		resp, err := m.client.CheckTransaction(reference)
		done <- checkResult{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return Verification{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case res := <-done:
		if res.err != nil {
			// 404 means the gateway has never seen this reference: that's
			// an authoritative rejection, not an outage.
			if res.err.StatusCode == 404 {
				return Verification{Reference: reference, Status: StatusRejected}, nil
			}
			return Verification{}, fmt.Errorf("%w: %v", ErrUnavailable, res.err)
		}
		return mapResponse(reference, res.resp)
	}
}

func mapResponse(reference string, resp *coreapi.TransactionStatusResponse) (Verification, error) {
	v := Verification{
		Reference: reference,
		Status:    MapStatus(resp.TransactionStatus, resp.FraudStatus),
	}

	if resp.GrossAmount != "" {
		amount, err := decimal.NewFromString(resp.GrossAmount)
		if err != nil {
			return Verification{}, fmt.Errorf("gateway returned unparseable amount %q: %w", resp.GrossAmount, err)
		}
		v.Amount = amount
	}

	if resp.SettlementTime != "" {
		// Midtrans timestamps are local Jakarta time without an offset.
		if t, err := time.Parse("2006-01-02 15:04:05", resp.SettlementTime); err == nil {
			v.PaidAt = &t
		}
	}

	return v, nil
}

// MapStatus collapses a Midtrans transaction_status + fraud_status pair to
// the engine's status model.
func MapStatus(transactionStatus, fraudStatus string) Status {
	ts := strings.ToLower(transactionStatus)
	fraud := strings.ToLower(fraudStatus)

	switch ts {
	case "capture":
		switch fraud {
		case "accept", "":
			return StatusSettled
		case "challenge":
			return StatusPending
		default:
			return StatusRejected
		}
	case "settlement":
		return StatusSettled
	case "pending":
		return StatusPending
	case "deny", "cancel", "failure":
		return StatusRejected
	case "expire":
		return StatusExpired
	default:
		return StatusPending
	}
}
