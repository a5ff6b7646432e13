package approval

import (
	"time"

	"github.com/dd0wney/fieldgate/pkg/diagnosis"
)

// RequestState is the lifecycle state of one ApprovalRequest
type RequestState string

const (
	StatePending   RequestState = "PENDING"
	StateApproved  RequestState = "APPROVED"
	StateRejected  RequestState = "REJECTED"
	StateEscalated RequestState = "ESCALATED"
	StateExpired   RequestState = "EXPIRED"
)

// Terminal reports whether the state admits no further transitions
func (s RequestState) Terminal() bool {
	switch s {
	case StateApproved, StateRejected, StateExpired:
		return true
	default:
		return false
	}
}

// Expiry reasons recorded on EXPIRED requests
const (
	ReasonMaxLevel          = "expired_at_max_level"
	ReasonSessionTerminated = "SessionTerminated"
)

// Request is one live approval question at one level. Escalation never
// mutates a resolved request: it marks the old one ESCALATED and creates a
// new request linked through PrevID, so the chain is the audit trail.
type Request struct {
	ID         string         `json:"id"`
	PlanID     string         `json:"plan_id"`
	SessionID  string         `json:"session_id"`
	IncidentID string         `json:"incident_id"`
	Tier       diagnosis.Tier `json:"tier"`
	Level      int            `json:"level"`
	Candidates []string       `json:"candidates"`

	State      RequestState `json:"state"`
	CreatedAt  time.Time    `json:"created_at"`
	Deadline   time.Time    `json:"deadline"`
	ResolvedAt time.Time    `json:"resolved_at,omitzero"`
	ResolverID string       `json:"resolver_id,omitempty"`
	Comment    string       `json:"comment,omitempty"`
	Reason     string       `json:"reason,omitempty"`

	// PrevID links to the request this one escalated from
	PrevID string `json:"prev_id,omitempty"`

	// Version increments on every transition. Timer callbacks carry the
	// version they were armed with, making a duplicate fire a no-op.
	Version uint64 `json:"version"`

	// AutoApproved marks LOW-tier requests resolved by certification
	AutoApproved bool `json:"auto_approved,omitempty"`
}

func (r *Request) clone() *Request {
	c := *r
	c.Candidates = append([]string(nil), r.Candidates...)
	return &c
}

// Config holds the approval policy: per-tier base deadlines, the level
// ladder, and the certification tag that permits LOW-tier auto-approval.
type Config struct {
	// Timeouts is the base deadline per tier; the deadline doubles at each
	// escalation level
	Timeouts map[diagnosis.Tier]time.Duration
	// MaxLevel is the highest approval level. An unanswered request at
	// MaxLevel expires rather than escalating.
	MaxLevel int
	// LevelRoles maps an approval level to the role whose holders are
	// candidate approvers
	LevelRoles map[int]string
	// AutoApproveCert is the certification tag that lets a LOW-tier plan
	// auto-approve. Empty disables auto-approval entirely.
	AutoApproveCert string
}

// DefaultConfig returns the standard three-level policy
func DefaultConfig() *Config {
	return &Config{
		Timeouts: map[diagnosis.Tier]time.Duration{
			diagnosis.TierLow:    5 * time.Minute,
			diagnosis.TierMedium: 15 * time.Minute,
			diagnosis.TierHigh:   30 * time.Minute,
		},
		MaxLevel: 3,
		LevelRoles: map[int]string{
			1: "supervisor",
			2: "manager",
			3: "director",
		},
		AutoApproveCert: "certified-low-risk",
	}
}

// timeoutFor returns the deadline duration for a tier at a level.
// The base timeout doubles with each escalation.
func (c *Config) timeoutFor(tier diagnosis.Tier, level int) time.Duration {
	base, ok := c.Timeouts[tier]
	if !ok {
		base = 30 * time.Minute
	}
	d := base
	for l := 1; l < level; l++ {
		d *= 2
	}
	return d
}
