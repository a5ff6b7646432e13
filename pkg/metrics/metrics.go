package metrics

import (
	"runtime"
	"strconv"
	"time"
)

// Every recorder is a no-op on a nil *Registry so components can hold an
// optional registry and record unconditionally.

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordAuthAttempt records one authentication attempt. reason is empty on
// success.
func (r *Registry) RecordAuthAttempt(success bool, reason string, duration time.Duration) {
	if r == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	r.AuthAttemptsTotal.WithLabelValues(result).Inc()
	r.AuthLatencySeconds.Observe(duration.Seconds())
	if !success {
		r.AuthFailuresTotal.WithLabelValues(reason).Inc()
	}
}

// RecordLockout records a triggered operator lockout
func (r *Registry) RecordLockout() {
	if r == nil {
		return
	}
	r.AuthLockoutsTotal.Inc()
}

// RecordSessionCreated records a new session and updates the live gauge
func (r *Registry) RecordSessionCreated(active int) {
	if r == nil {
		return
	}
	r.SessionsCreatedTotal.Inc()
	r.SessionsActive.Set(float64(active))
}

// RecordSessionDestroyed records a session teardown by reason
func (r *Registry) RecordSessionDestroyed(reason string, active int) {
	if r == nil {
		return
	}
	r.SessionsDestroyedTotal.WithLabelValues(reason).Inc()
	r.SessionsActive.Set(float64(active))
}

// RecordSessionsSwept records sessions reclaimed by one sweeper pass
func (r *Registry) RecordSessionsSwept(count int) {
	if r == nil {
		return
	}
	r.SessionsSweptTotal.Add(float64(count))
}

// RecordApprovalSubmitted records a plan entering the approval pipeline
func (r *Registry) RecordApprovalSubmitted(tier string, pending int) {
	if r == nil {
		return
	}
	r.ApprovalsSubmittedTotal.WithLabelValues(tier).Inc()
	r.ApprovalsPending.Set(float64(pending))
}

// RecordApprovalDecision records a terminal decision and its latency
func (r *Registry) RecordApprovalDecision(decision string, level int, tier string, latency time.Duration, pending int) {
	if r == nil {
		return
	}
	r.ApprovalsDecidedTotal.WithLabelValues(decision, strconv.Itoa(level)).Inc()
	r.ApprovalLatencySeconds.WithLabelValues(tier).Observe(latency.Seconds())
	r.ApprovalsPending.Set(float64(pending))
}

// RecordApprovalEscalated records one escalation
func (r *Registry) RecordApprovalEscalated(tier string) {
	if r == nil {
		return
	}
	r.ApprovalsEscalatedTotal.WithLabelValues(tier).Inc()
}

// RecordApprovalExpired records a chain dying unanswered at max level
func (r *Registry) RecordApprovalExpired(pending int) {
	if r == nil {
		return
	}
	r.ApprovalsExpiredTotal.Inc()
	r.ApprovalsPending.Set(float64(pending))
}

// RecordNotification records a final delivery outcome for one channel
func (r *Registry) RecordNotification(channel string, attempts int, success bool) {
	if r == nil {
		return
	}
	if success {
		r.NotificationsSentTotal.WithLabelValues(channel).Inc()
	} else {
		r.NotificationsFailedTotal.WithLabelValues(channel).Inc()
	}
	r.NotificationAttempts.WithLabelValues(channel).Observe(float64(attempts))
}

// RecordAuditAppend records an audit append attempt
func (r *Registry) RecordAuditAppend(kind string, ok bool, chainLength uint64) {
	if r == nil {
		return
	}
	if ok {
		r.AuditRecordsTotal.WithLabelValues(kind).Inc()
		r.AuditChainLength.Set(float64(chainLength))
	} else {
		r.AuditAppendFailuresTotal.Inc()
	}
}

// RecordAuditRotation records a segment rotation
func (r *Registry) RecordAuditRotation() {
	if r == nil {
		return
	}
	r.AuditSegmentRotations.Inc()
}

// UpdateSystemMetrics refreshes runtime gauges. Called periodically by the
// server.
func (r *Registry) UpdateSystemMetrics(startTime time.Time) {
	if r == nil {
		return
	}
	r.UptimeSeconds.Set(time.Since(startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r.MemoryAllocBytes.Set(float64(m.Alloc))
}
