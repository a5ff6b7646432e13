package registry

import (
	"fmt"
	"time"
)

// Snapshot is an immutable view of the registry taken at a point in time.
// A session captures a snapshot at creation; administrative changes made
// afterwards are only visible to sessions created later.
type Snapshot struct {
	operators map[string]*Operator
	zones     map[string]*Zone
	takenAt   time.Time
}

// Snapshot returns an immutable copy of the current registry state
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &Snapshot{
		operators: make(map[string]*Operator, len(r.operators)),
		zones:     make(map[string]*Zone, len(r.zones)),
		takenAt:   time.Now(),
	}
	for id, op := range r.operators {
		snap.operators[id] = op.clone()
	}
	for id, zone := range r.zones {
		snap.zones[id] = zone.clone()
	}
	return snap
}

// TakenAt returns when the snapshot was captured
func (s *Snapshot) TakenAt() time.Time {
	return s.takenAt
}

// Operator looks up an operator in the snapshot
func (s *Snapshot) Operator(operatorID string) (*Operator, error) {
	op, ok := s.operators[operatorID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, operatorID)
	}
	return op, nil
}

// Zone looks up a zone in the snapshot
func (s *Snapshot) Zone(zoneID string) (*Zone, error) {
	zone, ok := s.zones[zoneID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}
	return zone, nil
}

// Zones returns all zones in the snapshot
func (s *Snapshot) Zones() []*Zone {
	zones := make([]*Zone, 0, len(s.zones))
	for _, z := range s.zones {
		zones = append(zones, z)
	}
	return zones
}

// Operators returns all operators in the snapshot
func (s *Snapshot) Operators() []*Operator {
	ops := make([]*Operator, 0, len(s.operators))
	for _, op := range s.operators {
		ops = append(ops, op)
	}
	return ops
}

// OperatorsByRole returns active operators holding the given role
func (s *Snapshot) OperatorsByRole(role string) []*Operator {
	var ops []*Operator
	for _, op := range s.operators {
		if op.Active && op.Role == role {
			ops = append(ops, op)
		}
	}
	return ops
}

func (o *Operator) clone() *Operator {
	c := *o
	c.Certifications = append([]string(nil), o.Certifications...)
	c.ZoneIDs = append([]string(nil), o.ZoneIDs...)
	c.Contacts = append([]Contact(nil), o.Contacts...)
	return &c
}

func (z *Zone) clone() *Zone {
	c := *z
	c.OperatorIDs = append([]string(nil), z.OperatorIDs...)
	return &c
}
