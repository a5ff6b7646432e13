package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initAuditMetrics() {
	r.AuditRecordsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldgate_audit_records_total",
			Help: "Total audit records appended, by kind",
		},
		[]string{"kind"},
	)

	r.AuditAppendFailuresTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "fieldgate_audit_append_failures_total",
			Help: "Total failed audit appends",
		},
	)

	r.AuditSegmentRotations = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "fieldgate_audit_segment_rotations_total",
			Help: "Total audit log segment rotations",
		},
	)

	r.AuditChainLength = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldgate_audit_chain_length",
			Help: "Number of records in the current audit chain",
		},
	)
}
