package registry

import (
	"time"
)

// Operator roles. Roles double as approval authority: a supervisor resolves
// level-1 approvals, a manager level-2, a director level-3.
const (
	RoleOperator   = "operator"
	RoleSupervisor = "supervisor"
	RoleManager    = "manager"
	RoleDirector   = "director"
)

var validRoles = map[string]bool{
	RoleOperator:   true,
	RoleSupervisor: true,
	RoleManager:    true,
	RoleDirector:   true,
}

// ValidRole reports whether role is one of the known operator roles
func ValidRole(role string) bool {
	return validRoles[role]
}

// ContactChannel identifies a notification channel type for an operator
type ContactChannel string

const (
	ChannelEmail ContactChannel = "email"
	ChannelSMS   ContactChannel = "sms"
	ChannelChat  ContactChannel = "chat"
)

// Contact is a single delivery address for an operator
type Contact struct {
	Channel ContactChannel `json:"channel"`
	Address string         `json:"address"`
}

// Operator represents a provisioned field operator.
// The TOTP secret is an opaque handle: it is persisted in the registry file
// but must never appear in logs or audit payloads.
type Operator struct {
	ID             string    `json:"id"`
	DisplayName    string    `json:"display_name"`
	Role           string    `json:"role"`
	Certifications []string  `json:"certifications,omitempty"`
	TOTPSecret     string    `json:"totp_secret"`
	ZoneIDs        []string  `json:"zone_ids"`
	Contacts       []Contact `json:"contacts,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	DeactivatedAt  time.Time `json:"deactivated_at,omitzero"`
}

// HasCertification reports whether the operator holds the named certification tag
func (o *Operator) HasCertification(tag string) bool {
	for _, c := range o.Certifications {
		if c == tag {
			return true
		}
	}
	return false
}

// AuthorizedForZone reports whether the operator is assigned to the zone
func (o *Operator) AuthorizedForZone(zoneID string) bool {
	for _, z := range o.ZoneIDs {
		if z == zoneID {
			return true
		}
	}
	return false
}

// Zone represents a geofenced work area. Static reference data.
type Zone struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	CenterLat        float64  `json:"center_lat"`
	CenterLng        float64  `json:"center_lng"`
	RadiusMeters     float64  `json:"radius_meters"`
	OperatorIDs      []string `json:"operator_ids"`
	EmergencyContact string   `json:"emergency_contact,omitempty"`
}

// AuthorizesOperator reports whether the operator is in the zone's authorized set
func (z *Zone) AuthorizesOperator(operatorID string) bool {
	for _, id := range z.OperatorIDs {
		if id == operatorID {
			return true
		}
	}
	return false
}
