package diagnosis

import (
	"time"
)

// Tier is a coarse classification of a proposed action's potential impact
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

// rank orders tiers for max comparison
func (t Tier) rank() int {
	switch t {
	case TierLow:
		return 1
	case TierMedium:
		return 2
	case TierHigh:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	return t.rank() > 0
}

// MaxTier returns the higher of two tiers
func MaxTier(a, b Tier) Tier {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Incident is one captured fault report. It references evidence by opaque
// blob id, never raw bytes, and becomes immutable once an AnalysisResult is
// attached.
type Incident struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	EvidenceRef   string    `json:"evidence_ref"`
	EquipmentHint string    `json:"equipment_hint,omitempty"`
	CreatedAt     time.Time `json:"created_at"`

	Analysis *AnalysisResult `json:"analysis,omitempty"`
	Plan     *SolutionPlan   `json:"plan,omitempty"`
}

// AnalysisResult is the external vision service's classification of the
// evidence. Produced exactly once per incident; immutable input to planning.
type AnalysisResult struct {
	IncidentID     string    `json:"incident_id"`
	Classification string    `json:"classification"`
	Confidence     float64   `json:"confidence"`
	Anomalies      []string  `json:"anomalies,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// PlannedAction is one step of a remediation plan with its declared tier
type PlannedAction struct {
	Description string `json:"description"`
	RiskTier    Tier   `json:"risk_tier"`
}

// SolutionPlan is the ranked remediation plan for an incident.
// Produced exactly once per incident.
type SolutionPlan struct {
	ID                string          `json:"id"`
	IncidentID        string          `json:"incident_id"`
	Actions           []PlannedAction `json:"actions"`
	EstimatedDuration time.Duration   `json:"estimated_duration"`
	RequiredTools     []string        `json:"required_tools,omitempty"`
}

// OverallTier is the maximum tier among the plan's actions
func (p *SolutionPlan) OverallTier() Tier {
	tier := TierLow
	for _, a := range p.Actions {
		tier = MaxTier(tier, a.RiskTier)
	}
	return tier
}
