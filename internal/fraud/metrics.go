package fraud

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AttemptsTotal counts risk-assessed attempts by risk level and outcome.
	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudguard",
			Name:      "attempts_total",
			Help:      "Total fraud prevention checks by risk level and outcome.",
		},
		[]string{"risk_level", "outcome"},
	)

	// AttemptDuration observes engine operation latency by risk level.
	AttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudguard",
			Name:      "attempt_duration_seconds",
			Help:      "Fraud check duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"risk_level"},
	)

	// BlockedTotal counts blocked transactions by risk level.
	BlockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudguard",
			Name:      "blocked_transactions_total",
			Help:      "Total blocked transactions by risk level.",
		},
		[]string{"risk_level"},
	)
)

func init() {
	prometheus.MustRegister(
		AttemptsTotal,
		AttemptDuration,
		BlockedTotal,
	)
}

// PromTelemetry is the Prometheus-backed Telemetry sink used in production.
type PromTelemetry struct{}

// NewPromTelemetry creates a telemetry sink writing to the package metrics.
func NewPromTelemetry() *PromTelemetry {
	return &PromTelemetry{}
}

func (PromTelemetry) RecordAttempt(success bool, duration time.Duration, riskLevel string) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	AttemptsTotal.WithLabelValues(riskLevel, outcome).Inc()
	AttemptDuration.WithLabelValues(riskLevel).Observe(duration.Seconds())
}

func (PromTelemetry) RecordBlocked(riskLevel string) {
	BlockedTotal.WithLabelValues(riskLevel).Inc()
}
