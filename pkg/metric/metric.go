// Package metric wires the counters, histograms, and gauges named in the
// external-interfaces contract onto a private prometheus.Registry, exposed
// by cmd/itnd's /metrics handler in promhttp text format.
package metric

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every exported series for the ITN process.
type Metrics struct {
	registry *prometheus.Registry

	InvoicesCreated       prometheus.Counter
	SettlementsCompleted  prometheus.Counter
	SettlementsFailed     prometheus.Counter
	InvariantChecks       *prometheus.CounterVec // invariant_id, check_type, result
	InvariantViolations   *prometheus.CounterVec // invariant_id, criticality
	Rollbacks             prometheus.Counter

	SettlementDuration prometheus.Histogram
	InvoiceAmount      prometheus.Histogram
	FraudScore         prometheus.Histogram
	RailLatency        *prometheus.HistogramVec // rail

	SystemHealthScore        prometheus.Gauge
	LedgerBalanceVariance    prometheus.Gauge
	CapitalCompetitionRate   prometheus.Gauge
	RailHealth               *prometheus.GaugeVec // rail_name
}

// New builds and registers every metric on a fresh private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.InvoicesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invoices_created_total",
		Help: "Total number of invoices created.",
	})
	m.SettlementsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlements_completed_total",
		Help: "Total number of settlements that completed successfully.",
	})
	m.SettlementsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlements_failed_total",
		Help: "Total number of settlements that failed and were rolled back.",
	})
	m.InvariantChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invariant_checks_total",
		Help: "Total number of invariant checks run.",
	}, []string{"invariant_id", "check_type", "result"})
	m.InvariantViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invariant_violations_total",
		Help: "Total number of invariant violations raised.",
	}, []string{"invariant_id", "criticality"})
	m.Rollbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollbacks_total",
		Help: "Total number of compensating rollbacks executed.",
	})

	m.SettlementDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_duration_seconds",
		Help:    "Wall-clock duration of a settlement, acceptance to completion.",
		Buckets: prometheus.DefBuckets,
	})
	m.InvoiceAmount = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "invoice_amount_dollars",
		Help:    "Distribution of created invoice amounts.",
		Buckets: prometheus.ExponentialBuckets(100, 4, 12),
	})
	m.FraudScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fraud_score",
		Help:    "Distribution of computed fraud scores.",
		Buckets: prometheus.LinearBuckets(0, 0.05, 21),
	})
	m.RailLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rail_latency_seconds",
		Help:    "Observed settlement-rail transfer latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"rail"})

	m.SystemHealthScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "system_health_score",
		Help: "Ratio of passed to total decision-ledger entries.",
	})
	m.LedgerBalanceVariance = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_balance_variance_dollars",
		Help: "Absolute difference between total credits and total debits.",
	})
	m.CapitalCompetitionRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "capital_competition_rate",
		Help: "Fraction of the most recent auctions (up to 10000, no time window) that closed with >= 3 active bids.",
	})
	m.RailHealth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rail_health",
		Help: "1 if the named settlement rail is UP, 0 otherwise.",
	}, []string{"rail_name"})

	reg.MustRegister(
		m.InvoicesCreated, m.SettlementsCompleted, m.SettlementsFailed,
		m.InvariantChecks, m.InvariantViolations, m.Rollbacks,
		m.SettlementDuration, m.InvoiceAmount, m.FraudScore, m.RailLatency,
		m.SystemHealthScore, m.LedgerBalanceVariance, m.CapitalCompetitionRate, m.RailHealth,
	)
	return m
}

// Gatherer exposes the private registry for the /metrics handler.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }
