// Package geo implements the geofence check used by the authentication
// gateway. Validation is a pure function over claimed coordinates and the
// zone snapshot so it can be tested with fixed fixtures.
package geo

import (
	"errors"
	"math"
	"time"

	"github.com/dd0wney/fieldgate/pkg/registry"
)

var (
	ErrLocationOutOfBounds = errors.New("location outside all authorized zones")
	ErrLocationUnavailable = errors.New("location missing or stale")
)

const (
	// DefaultMaxLocationAge is how old a claimed location may be before it
	// is rejected as stale
	DefaultMaxLocationAge = 120 * time.Second

	earthRadiusMeters = 6371000.0
)

// Location is a claimed coordinate pair with its observation time.
// The core never trusts a location without the freshness check.
type Location struct {
	Lat        float64
	Lng        float64
	ObservedAt time.Time
}

// Match identifies the zone that admitted a location
type Match struct {
	ZoneID         string
	DistanceMeters float64
}

// Validator checks claimed locations against authorized zones
type Validator struct {
	maxAge time.Duration
}

// NewValidator creates a validator with the given max location age.
// Zero maxAge selects DefaultMaxLocationAge.
func NewValidator(maxAge time.Duration) *Validator {
	if maxAge <= 0 {
		maxAge = DefaultMaxLocationAge
	}
	return &Validator{maxAge: maxAge}
}

// Validate selects the nearest zone that both authorizes the operator and
// whose radius covers the claimed location. Ties on distance are broken by
// the smallest radius. Returns ErrLocationUnavailable for missing or stale
// coordinates and ErrLocationOutOfBounds when no zone admits the location.
func (v *Validator) Validate(operatorID string, loc Location, zones []*registry.Zone, now time.Time) (*Match, error) {
	if loc.ObservedAt.IsZero() {
		return nil, ErrLocationUnavailable
	}
	if now.Sub(loc.ObservedAt) > v.maxAge {
		return nil, ErrLocationUnavailable
	}
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
		return nil, ErrLocationUnavailable
	}

	var best *registry.Zone
	bestDistance := 0.0
	for _, zone := range zones {
		if !zone.AuthorizesOperator(operatorID) {
			continue
		}
		d := HaversineMeters(loc.Lat, loc.Lng, zone.CenterLat, zone.CenterLng)
		if d > zone.RadiusMeters {
			continue
		}
		if best == nil || d < bestDistance || (d == bestDistance && zone.RadiusMeters < best.RadiusMeters) {
			best = zone
			bestDistance = d
		}
	}

	if best == nil {
		return nil, ErrLocationOutOfBounds
	}
	return &Match{ZoneID: best.ID, DistanceMeters: bestDistance}, nil
}

// HaversineMeters returns the great-circle distance between two coordinates
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
