package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOperatorNotFound = errors.New("operator not found")
	ErrOperatorExists   = errors.New("operator already exists")
	ErrOperatorInactive = errors.New("operator is deactivated")
	ErrZoneNotFound     = errors.New("zone not found")
	ErrZoneExists       = errors.New("zone already exists")
	ErrInvalidName      = errors.New("display name must be 1-100 characters")
	ErrInvalidRole      = errors.New("invalid role")
	ErrEmptySecret      = errors.New("totp secret cannot be empty")
	ErrInvalidRadius    = errors.New("zone radius must be positive")
	ErrInvalidLatitude  = errors.New("latitude must be in [-90, 90]")
	ErrInvalidLongitude = errors.New("longitude must be in [-180, 180]")
)

const (
	MaxNameLength = 100
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Registry manages operator and zone reference data backed by JSON files.
// Administrative mutations write through to disk; sessions never see the
// mutable registry directly, only immutable snapshots taken at session start.
type Registry struct {
	operators map[string]*Operator // operatorID -> Operator
	zones     map[string]*Zone     // zoneID -> Zone
	dataDir   string
	mu        sync.RWMutex
}

// New creates an empty registry rooted at dataDir.
// Pass "" for an in-memory registry (tests).
func New(dataDir string) *Registry {
	return &Registry{
		operators: make(map[string]*Operator),
		zones:     make(map[string]*Zone),
		dataDir:   dataDir,
	}
}

// Load reads operators.json and zones.json from dataDir.
// Missing files are not an error: the registry starts empty.
func Load(dataDir string) (*Registry, error) {
	r := New(dataDir)

	if err := loadJSON(filepath.Join(dataDir, "operators.json"), &r.operators); err != nil {
		return nil, fmt.Errorf("failed to load operators: %w", err)
	}
	if err := loadJSON(filepath.Join(dataDir, "zones.json"), &r.zones); err != nil {
		return nil, fmt.Errorf("failed to load zones: %w", err)
	}

	return r, nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// CreateOperator provisions a new operator and persists the registry
func (r *Registry) CreateOperator(displayName, role, totpSecret string, zoneIDs []string) (*Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if displayName == "" || len(displayName) > MaxNameLength {
		return nil, ErrInvalidName
	}
	if !validRoles[role] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}
	if totpSecret == "" {
		return nil, ErrEmptySecret
	}
	for _, zid := range zoneIDs {
		if _, ok := r.zones[zid]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrZoneNotFound, zid)
		}
	}

	op := &Operator{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		Role:        role,
		TOTPSecret:  totpSecret,
		ZoneIDs:     zoneIDs,
		Active:      true,
		CreatedAt:   time.Now(),
	}
	r.operators[op.ID] = op

	// Register the operator with its zones so geofence checks agree with
	// the operator's own zone list.
	for _, zid := range zoneIDs {
		zone := r.zones[zid]
		if !zone.AuthorizesOperator(op.ID) {
			zone.OperatorIDs = append(zone.OperatorIDs, op.ID)
		}
	}

	if err := r.persistLocked(); err != nil {
		delete(r.operators, op.ID)
		return nil, err
	}
	return op, nil
}

// DeactivateOperator marks an operator inactive. Operators are never deleted:
// audit records must keep resolving their actor ids.
func (r *Registry) DeactivateOperator(operatorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.operators[operatorID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOperatorNotFound, operatorID)
	}
	if !op.Active {
		return fmt.Errorf("%w: %s", ErrOperatorInactive, operatorID)
	}
	op.Active = false
	op.DeactivatedAt = time.Now()

	return r.persistLocked()
}

// SetContacts replaces an operator's notification contacts
func (r *Registry) SetContacts(operatorID string, contacts []Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.operators[operatorID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOperatorNotFound, operatorID)
	}
	op.Contacts = contacts

	return r.persistLocked()
}

// AddCertification appends a certification tag to an operator
func (r *Registry) AddCertification(operatorID, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.operators[operatorID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOperatorNotFound, operatorID)
	}
	if !op.HasCertification(tag) {
		op.Certifications = append(op.Certifications, tag)
	}

	return r.persistLocked()
}

// CreateZone provisions a new geofenced zone and persists the registry
func (r *Registry) CreateZone(name string, lat, lng, radiusMeters float64, emergencyContact string) (*Zone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" || len(name) > MaxNameLength {
		return nil, ErrInvalidName
	}
	if lat < -90 || lat > 90 {
		return nil, ErrInvalidLatitude
	}
	if lng < -180 || lng > 180 {
		return nil, ErrInvalidLongitude
	}
	if radiusMeters <= 0 {
		return nil, ErrInvalidRadius
	}

	zone := &Zone{
		ID:               uuid.New().String(),
		Name:             name,
		CenterLat:        lat,
		CenterLng:        lng,
		RadiusMeters:     radiusMeters,
		EmergencyContact: emergencyContact,
	}
	r.zones[zone.ID] = zone

	if err := r.persistLocked(); err != nil {
		delete(r.zones, zone.ID)
		return nil, err
	}
	return zone, nil
}

// AssignOperatorToZone adds an operator to a zone's authorized set
func (r *Registry) AssignOperatorToZone(operatorID, zoneID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.operators[operatorID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOperatorNotFound, operatorID)
	}
	zone, ok := r.zones[zoneID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}

	if !zone.AuthorizesOperator(operatorID) {
		zone.OperatorIDs = append(zone.OperatorIDs, operatorID)
	}
	if !op.AuthorizedForZone(zoneID) {
		op.ZoneIDs = append(op.ZoneIDs, zoneID)
	}

	return r.persistLocked()
}

// GetOperator returns an operator by id
func (r *Registry) GetOperator(operatorID string) (*Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operators[operatorID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, operatorID)
	}
	return op, nil
}

// GetZone returns a zone by id
func (r *Registry) GetZone(zoneID string) (*Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zone, ok := r.zones[zoneID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}
	return zone, nil
}

// persistLocked writes the registry files. Caller must hold r.mu.
func (r *Registry) persistLocked() error {
	if r.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	if err := writeJSON(filepath.Join(r.dataDir, "operators.json"), r.operators); err != nil {
		return fmt.Errorf("failed to persist operators: %w", err)
	}
	if err := writeJSON(filepath.Join(r.dataDir, "zones.json"), r.zones); err != nil {
		return fmt.Errorf("failed to persist zones: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
