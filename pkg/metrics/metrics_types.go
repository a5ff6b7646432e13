package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Auth Metrics
	AuthAttemptsTotal  *prometheus.CounterVec
	AuthFailuresTotal  *prometheus.CounterVec
	AuthLockoutsTotal  prometheus.Counter
	AuthLatencySeconds prometheus.Histogram

	// Session Metrics
	SessionsActive         prometheus.Gauge
	SessionsCreatedTotal   prometheus.Counter
	SessionsDestroyedTotal *prometheus.CounterVec
	SessionsSweptTotal     prometheus.Counter

	// Approval Metrics
	ApprovalsPending        prometheus.Gauge
	ApprovalsSubmittedTotal *prometheus.CounterVec
	ApprovalsDecidedTotal   *prometheus.CounterVec
	ApprovalsEscalatedTotal *prometheus.CounterVec
	ApprovalsExpiredTotal   prometheus.Counter
	ApprovalLatencySeconds  *prometheus.HistogramVec

	// Notification Metrics
	NotificationsSentTotal   *prometheus.CounterVec
	NotificationsFailedTotal *prometheus.CounterVec
	NotificationAttempts     *prometheus.HistogramVec

	// Audit Metrics
	AuditRecordsTotal        *prometheus.CounterVec
	AuditAppendFailuresTotal prometheus.Counter
	AuditSegmentRotations    prometheus.Counter
	AuditChainLength         prometheus.Gauge

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initHTTPMetrics()
	r.initAuthMetrics()
	r.initSessionMetrics()
	r.initApprovalMetrics()
	r.initNotifyMetrics()
	r.initAuditMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
