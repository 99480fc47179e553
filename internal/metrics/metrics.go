// Package metrics holds the Prometheus collectors for disperse sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is passed to the components that record. A nil *Metrics records
// nothing.
type Metrics struct {
	// Input
	parseLinesTotal *prometheus.CounterVec
	batchSize       prometheus.Histogram

	// Wallet
	chainGuardTotal *prometheus.CounterVec
	walletCalls     *prometheus.CounterVec

	// Transactions
	txTotal           *prometheus.CounterVec
	txConfirmDuration *prometheus.HistogramVec
	allowanceChecks   *prometheus.CounterVec
}

// NewMetrics creates the collectors on registry, or on
// prometheus.DefaultRegisterer when registry is nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		parseLinesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "disperse",
				Name:      "parse_lines_total",
				Help:      "Recipient lines seen by the parser, by outcome",
			},
			[]string{"outcome"},
		),
		batchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "disperse",
				Name:      "batch_recipients",
				Help:      "Recipients per submitted batch",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		chainGuardTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "disperse",
				Name:      "chain_guard_total",
				Help:      "Network checks before a write, by outcome",
			},
			[]string{"outcome"},
		),
		walletCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "disperse",
				Name:      "wallet_requests_total",
				Help:      "Wallet requests by method and status",
			},
			[]string{"method", "status"},
		),
		txTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "disperse",
				Name:      "transactions_total",
				Help:      "Transactions by kind and terminal status",
			},
			[]string{"kind", "status"},
		),
		txConfirmDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "disperse",
				Name:      "transaction_confirm_seconds",
				Help:      "Time from submission to receipt",
				Buckets:   []float64{1, 3, 6, 12, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		allowanceChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "disperse",
				Name:      "allowance_checks_total",
				Help:      "Allowance reads by result",
			},
			[]string{"result"},
		),
	}
}

// RecordParse counts accepted and dropped lines of one parse.
func (m *Metrics) RecordParse(accepted, dropped int) {
	if m == nil {
		return
	}
	m.parseLinesTotal.WithLabelValues("accepted").Add(float64(accepted))
	m.parseLinesTotal.WithLabelValues("dropped").Add(float64(dropped))
}

func (m *Metrics) RecordBatch(recipients int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(recipients))
}

// RecordChainGuard outcome is one of "ok", "switched", "added", "mismatch".
func (m *Metrics) RecordChainGuard(outcome string) {
	if m == nil {
		return
	}
	m.chainGuardTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordWalletCall(method, status string) {
	if m == nil {
		return
	}
	m.walletCalls.WithLabelValues(method, status).Inc()
}

// RecordTx records a terminal transaction. seconds is ignored when the tx
// never reached a receipt.
func (m *Metrics) RecordTx(kind, status string, seconds float64) {
	if m == nil {
		return
	}
	m.txTotal.WithLabelValues(kind, status).Inc()
	if seconds > 0 {
		m.txConfirmDuration.WithLabelValues(kind).Observe(seconds)
	}
}

// RecordAllowanceCheck result is "sufficient", "insufficient" or "error".
func (m *Metrics) RecordAllowanceCheck(result string) {
	if m == nil {
		return
	}
	m.allowanceChecks.WithLabelValues(result).Inc()
}
