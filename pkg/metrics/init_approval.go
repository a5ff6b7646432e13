package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initApprovalMetrics() {
	r.ApprovalsPending = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldgate_approvals_pending",
			Help: "Number of live approval requests",
		},
	)

	r.ApprovalsSubmittedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldgate_approvals_submitted_total",
			Help: "Total plans submitted for approval, by tier",
		},
		[]string{"tier"},
	)

	r.ApprovalsDecidedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldgate_approvals_decided_total",
			Help: "Total approval decisions, by decision and level",
		},
		[]string{"decision", "level"},
	)

	r.ApprovalsEscalatedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldgate_approvals_escalated_total",
			Help: "Total escalations, by tier",
		},
		[]string{"tier"},
	)

	r.ApprovalsExpiredTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "fieldgate_approvals_expired_total",
			Help: "Total approval chains expired unanswered at max level",
		},
	)

	r.ApprovalLatencySeconds = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldgate_approval_latency_seconds",
			Help:    "Time from submission to terminal decision in seconds",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"tier"},
	)
}
