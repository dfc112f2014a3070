package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// METRICS - Reconciliation counters exposed on /metrics
// =============================================================================

var creditsApplied = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tuition_credits_applied_total",
	Help: "Wallet credits applied from verified gateway payments.",
})

var duplicateReferences = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tuition_duplicate_references_total",
	Help: "Verify calls that observed an already-processed reference.",
})

var installmentsPaid = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tuition_installments_paid_total",
	Help: "Installments paid from wallet debits.",
})

var gatewayFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tuition_gateway_failures_total",
	Help: "Gateway verification failures by kind.",
}, []string{"kind"})
