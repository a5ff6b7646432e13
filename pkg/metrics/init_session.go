package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSessionMetrics() {
	r.SessionsActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldgate_sessions_active",
			Help: "Number of live sessions",
		},
	)

	r.SessionsCreatedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "fieldgate_sessions_created_total",
			Help: "Total sessions created",
		},
	)

	r.SessionsDestroyedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldgate_sessions_destroyed_total",
			Help: "Total sessions destroyed, by reason",
		},
		[]string{"reason"},
	)

	r.SessionsSweptTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "fieldgate_sessions_swept_total",
			Help: "Total expired sessions reclaimed by the sweeper",
		},
	)
}
