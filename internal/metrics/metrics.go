package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faucet_claims_total",
			Help: "Claim attempts by outcome",
		},
		[]string{"outcome"}, // paid|input|ineligible|dependency|payment_unknown|internal
	)

	PayoutAmount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "faucet_payout_amount",
			Help:    "Paid amounts in minor units",
			Buckets: prometheus.ExponentialBuckets(1000, 4, 10),
		},
	)

	AuditGaps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "faucet_audit_gaps_total",
			Help: "Payments sent whose ledger write failed",
		},
	)

	ReconcileReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faucet_reconcile_reports_total",
			Help: "Reconcile events published by kind and result",
		},
		[]string{"kind", "result"},
	)

	ProjectedClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faucet_projected_claims_total",
			Help: "Claim events handled by the projector worker",
		},
		[]string{"result"}, // stored|skipped|failed
	)
)

var registerOnce sync.Once

// MustRegister registers the faucet collectors once per process.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			ClaimsTotal,
			PayoutAmount,
			AuditGaps,
			ReconcileReports,
			ProjectedClaims,
		)
	})
}
