package api

import (
	"time"

	"github.com/dd0wney/fieldgate/pkg/diagnosis"
)

// LoginRequest carries all three authentication factors
type LoginRequest struct {
	OperatorID string    `json:"operator_id"`
	Code       string    `json:"code"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ObservedAt time.Time `json:"observed_at"`
}

// LoginResponse returns the session and its bearer token
type LoginResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ZoneID    string    `json:"zone_id"`
}

// SessionResponse reports session status
type SessionResponse struct {
	SessionID  string    `json:"session_id"`
	OperatorID string    `json:"operator_id"`
	ZoneID     string    `json:"zone_id"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// TouchResponse reports the extended expiry
type TouchResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ResumeRequest re-attaches a client to an existing session
type ResumeRequest struct {
	Token string `json:"token"`
}

// SubmitEvidenceRequest opens an incident. Evidence arrives base64-encoded.
type SubmitEvidenceRequest struct {
	Evidence      []byte `json:"evidence"`
	EquipmentHint string `json:"equipment_hint,omitempty"`
}

// IncidentResponse reports incident progress
type IncidentResponse struct {
	Incident     *diagnosis.Incident `json:"incident"`
	SessionState string              `json:"session_state"`
}

// DecisionRequest resolves an approval request
type DecisionRequest struct {
	Approve bool   `json:"approve"`
	Comment string `json:"comment,omitempty"`
}

// ErrorResponse is the uniform error body
type ErrorResponse struct {
	Error string `json:"error"`
}
