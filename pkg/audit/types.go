package audit

import (
	"time"
)

// Kind identifies the event a record captures
type Kind string

const (
	KindAuthAttempt         Kind = "auth_attempt"
	KindAuthFailure         Kind = "auth_failure"
	KindLockout             Kind = "lockout"
	KindSessionCreated      Kind = "session_created"
	KindSessionResumed      Kind = "session_resumed"
	KindSessionDestroyed    Kind = "session_destroyed"
	KindSessionExpired      Kind = "session_expired"
	KindEvidenceSubmitted   Kind = "evidence_submitted"
	KindAnalysisCompleted   Kind = "analysis_completed"
	KindAnalysisFailed      Kind = "analysis_failed"
	KindPlanGenerated       Kind = "plan_generated"
	KindPlanFailed          Kind = "plan_failed"
	KindExecutionCompleted  Kind = "execution_completed"
	KindApprovalRequested   Kind = "approval_requested"
	KindApprovalDecided     Kind = "approval_decided"
	KindApprovalEscalated   Kind = "approval_escalated"
	KindApprovalExpired     Kind = "approval_expired"
	KindDecisionTooLate     Kind = "decision_too_late"
	KindNotificationSent    Kind = "notification_sent"
	KindNotificationFailure Kind = "notification_failure"
	KindAdminAction         Kind = "admin_action"
)

// Severity levels for audit records
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Record is a single tamper-evident audit entry. Records are append-only:
// no update or delete API exists. Each record carries a hash of the previous
// record's content, forming a verifiable chain per log segment.
type Record struct {
	Sequence   uint64         `json:"sequence"`
	Timestamp  time.Time      `json:"timestamp"`
	Actor      string         `json:"actor"`
	Kind       Kind           `json:"kind"`
	Severity   Severity       `json:"severity"`
	SessionID  string         `json:"session_id,omitempty"`
	IncidentID string         `json:"incident_id,omitempty"`
	ApprovalID string         `json:"approval_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`

	PayloadHash string `json:"payload_hash,omitempty"`
	PrevHash    string `json:"prev_hash,omitempty"`
	RecordHash  string `json:"record_hash"`
}

// Filter selects records for reads and exports
type Filter struct {
	Actor      string
	Kind       Kind
	Severity   Severity
	SessionID  string
	IncidentID string
	ApprovalID string
	StartTime  *time.Time
	EndTime    *time.Time
}

func (f *Filter) matches(r *Record) bool {
	if f == nil {
		return true
	}
	if f.Actor != "" && r.Actor != f.Actor {
		return false
	}
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Severity != "" && r.Severity != f.Severity {
		return false
	}
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if f.IncidentID != "" && r.IncidentID != f.IncidentID {
		return false
	}
	if f.ApprovalID != "" && r.ApprovalID != f.ApprovalID {
		return false
	}
	if f.StartTime != nil && r.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && r.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

// Config holds settings for the persistent audit log
type Config struct {
	LogDir       string        // Directory for log segments ("" = memory only)
	RotationSize int64         // Rotate segment when it exceeds this size (bytes)
	RotationTime time.Duration // Rotate segment after this duration
}

// DefaultConfig returns production defaults
func DefaultConfig() *Config {
	return &Config{
		LogDir:       "./data/audit",
		RotationSize: 100 * 1024 * 1024, // 100MB
		RotationTime: 24 * time.Hour,
	}
}
