package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initAuthMetrics() {
	r.AuthAttemptsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldgate_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	r.AuthFailuresTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldgate_auth_failures_total",
			Help: "Authentication failures by reason",
		},
		[]string{"reason"},
	)

	r.AuthLockoutsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "fieldgate_auth_lockouts_total",
			Help: "Total operator lockouts triggered",
		},
	)

	r.AuthLatencySeconds = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldgate_auth_latency_seconds",
			Help:    "End-to-end authentication latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
	)
}
