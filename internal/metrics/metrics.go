// Package metrics registers the Prometheus instruments for the decision
// and audit pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quantfall/tradegate/internal/domain/gates"
)

// Registry holds all Prometheus metrics for tradegate.
type Registry struct {
	Decisions        *prometheus.CounterVec
	GateRejections   *prometheus.CounterVec
	DecisionDuration prometheus.Histogram
	ApprovedSize     prometheus.Gauge
	AuditDuration    prometheus.Histogram
	AuditFailures    prometheus.Counter
}

// NewRegistry creates and registers the metric set on the given
// registerer (pass prometheus.DefaultRegisterer in production).
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_decisions_total",
				Help: "Decisions evaluated, by symbol and outcome",
			},
			[]string{"symbol", "outcome"},
		),
		GateRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_gate_rejections_total",
				Help: "Gate rejections by gate and reason code",
			},
			[]string{"gate", "reason_code"},
		),
		DecisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradegate_decision_duration_seconds",
				Help:    "Wall time of one full gate evaluation",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),
		ApprovedSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradegate_last_approved_size_usd",
				Help: "Dollar size of the most recent approved decision",
			},
		),
		AuditDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradegate_audit_duration_seconds",
				Help:    "Wall time of one per-trade audit",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
		),
		AuditFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradegate_audit_failures_total",
				Help: "Trade audits skipped due to fetch or data errors",
			},
		),
	}

	reg.MustRegister(
		r.Decisions, r.GateRejections, r.DecisionDuration,
		r.ApprovedSize, r.AuditDuration, r.AuditFailures,
	)
	return r
}

// ObserveDecision records one validation result.
func (r *Registry) ObserveDecision(result gates.ValidationResult, seconds float64) {
	outcome := "rejected"
	if result.Approved {
		outcome = "approved"
		r.ApprovedSize.Set(result.Size)
	}
	r.Decisions.WithLabelValues(result.Symbol, outcome).Inc()
	r.DecisionDuration.Observe(seconds)

	if !result.Approved && len(result.Gates) > 0 {
		last := result.Gates[len(result.Gates)-1]
		r.GateRejections.WithLabelValues(string(last.Gate), string(last.ReasonCode)).Inc()
	}
}
