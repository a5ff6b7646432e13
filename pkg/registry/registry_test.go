package registry

import (
	"errors"
	"strings"
	"testing"
)

func TestCreateOperatorValidation(t *testing.T) {
	r := New("")
	zone, err := r.CreateZone("Site", 39.7392, -104.9903, 100, "")
	if err != nil {
		t.Fatalf("CreateZone: %v", err)
	}

	tests := []struct {
		name        string
		displayName string
		role        string
		secret      string
		zoneIDs     []string
		wantErr     error
	}{
		{"valid", "Op One", RoleOperator, "SECRET", []string{zone.ID}, nil},
		{"empty name", "", RoleOperator, "SECRET", nil, ErrInvalidName},
		{"name too long", strings.Repeat("x", 101), RoleOperator, "SECRET", nil, ErrInvalidName},
		{"bad role", "Op", "janitor", "SECRET", nil, ErrInvalidRole},
		{"empty secret", "Op", RoleOperator, "", nil, ErrEmptySecret},
		{"unknown zone", "Op", RoleOperator, "SECRET", []string{"nope"}, ErrZoneNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.CreateOperator(tc.displayName, tc.role, tc.secret, tc.zoneIDs)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestCreateOperatorRegistersWithZones(t *testing.T) {
	r := New("")
	zone, err := r.CreateZone("Site", 39.7392, -104.9903, 100, "")
	if err != nil {
		t.Fatalf("CreateZone: %v", err)
	}

	op, err := r.CreateOperator("Op", RoleOperator, "SECRET", []string{zone.ID})
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}

	z, err := r.GetZone(zone.ID)
	if err != nil {
		t.Fatalf("GetZone: %v", err)
	}
	if !z.AuthorizesOperator(op.ID) {
		t.Error("zone must list the operator it was created with")
	}
}

func TestDeactivateKeepsOperator(t *testing.T) {
	r := New("")
	op, err := r.CreateOperator("Op", RoleOperator, "SECRET", nil)
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}

	if err := r.DeactivateOperator(op.ID); err != nil {
		t.Fatalf("DeactivateOperator: %v", err)
	}

	// operators are never deleted: audit actor ids must keep resolving
	got, err := r.GetOperator(op.ID)
	if err != nil {
		t.Fatalf("GetOperator after deactivation: %v", err)
	}
	if got.Active {
		t.Error("deactivated operator must not be active")
	}
	if got.DeactivatedAt.IsZero() {
		t.Error("deactivation time must be recorded")
	}

	if err := r.DeactivateOperator(op.ID); !errors.Is(err, ErrOperatorInactive) {
		t.Errorf("second deactivation: expected ErrOperatorInactive, got %v", err)
	}
}

func TestCreateZoneValidation(t *testing.T) {
	r := New("")

	tests := []struct {
		name    string
		lat     float64
		lng     float64
		radius  float64
		wantErr error
	}{
		{"valid", 39.7, -104.9, 100, nil},
		{"bad latitude", 91, 0, 100, ErrInvalidLatitude},
		{"bad longitude", 0, 181, 100, ErrInvalidLongitude},
		{"zero radius", 0, 0, 0, ErrInvalidRadius},
		{"negative radius", 0, 0, -5, ErrInvalidRadius},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.CreateZone("Zone", tc.lat, tc.lng, tc.radius, "")
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestAssignOperatorToZone(t *testing.T) {
	r := New("")
	op, err := r.CreateOperator("Op", RoleOperator, "SECRET", nil)
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	zone, err := r.CreateZone("Site", 39.7, -104.9, 100, "")
	if err != nil {
		t.Fatalf("CreateZone: %v", err)
	}

	if err := r.AssignOperatorToZone(op.ID, zone.ID); err != nil {
		t.Fatalf("AssignOperatorToZone: %v", err)
	}

	got, _ := r.GetOperator(op.ID)
	if !got.AuthorizedForZone(zone.ID) {
		t.Error("operator must list the assigned zone")
	}
	z, _ := r.GetZone(zone.ID)
	if !z.AuthorizesOperator(op.ID) {
		t.Error("zone must list the assigned operator")
	}

	if err := r.AssignOperatorToZone("nope", zone.ID); !errors.Is(err, ErrOperatorNotFound) {
		t.Errorf("expected ErrOperatorNotFound, got %v", err)
	}
	if err := r.AssignOperatorToZone(op.ID, "nope"); !errors.Is(err, ErrZoneNotFound) {
		t.Errorf("expected ErrZoneNotFound, got %v", err)
	}
}

func TestCertifications(t *testing.T) {
	r := New("")
	op, err := r.CreateOperator("Op", RoleOperator, "SECRET", nil)
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}

	if err := r.AddCertification(op.ID, "certified-low-risk"); err != nil {
		t.Fatalf("AddCertification: %v", err)
	}
	// duplicate adds are idempotent
	if err := r.AddCertification(op.ID, "certified-low-risk"); err != nil {
		t.Fatalf("duplicate AddCertification: %v", err)
	}

	got, _ := r.GetOperator(op.ID)
	if !got.HasCertification("certified-low-risk") {
		t.Error("certification must be recorded")
	}
	if len(got.Certifications) != 1 {
		t.Errorf("certifications %v, want exactly one", got.Certifications)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	r := New(dir)
	zone, err := r.CreateZone("Site", 39.7392, -104.9903, 100, "oncall@example.com")
	if err != nil {
		t.Fatalf("CreateZone: %v", err)
	}
	op, err := r.CreateOperator("Op", RoleSupervisor, "SECRET", []string{zone.ID})
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	gotOp, err := loaded.GetOperator(op.ID)
	if err != nil {
		t.Fatalf("GetOperator after load: %v", err)
	}
	if gotOp.DisplayName != "Op" || gotOp.Role != RoleSupervisor || gotOp.TOTPSecret != "SECRET" {
		t.Errorf("operator did not round-trip: %+v", gotOp)
	}
	gotZone, err := loaded.GetZone(zone.ID)
	if err != nil {
		t.Fatalf("GetZone after load: %v", err)
	}
	if gotZone.EmergencyContact != "oncall@example.com" || gotZone.RadiusMeters != 100 {
		t.Errorf("zone did not round-trip: %+v", gotZone)
	}
}

func TestLoadMissingDirStartsEmpty(t *testing.T) {
	r, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load of empty dir: %v", err)
	}
	if len(r.Snapshot().Operators()) != 0 {
		t.Error("expected empty registry")
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	r := New("")
	zone, err := r.CreateZone("Site", 39.7, -104.9, 100, "")
	if err != nil {
		t.Fatalf("CreateZone: %v", err)
	}
	op, err := r.CreateOperator("Op", RoleOperator, "SECRET", []string{zone.ID})
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}

	snap := r.Snapshot()

	// mutations after the snapshot do not bleed in
	if err := r.DeactivateOperator(op.ID); err != nil {
		t.Fatalf("DeactivateOperator: %v", err)
	}
	snapOp, err := snap.Operator(op.ID)
	if err != nil {
		t.Fatalf("snapshot Operator: %v", err)
	}
	if !snapOp.Active {
		t.Error("snapshot must keep the pre-deactivation view")
	}

	// mutating a snapshot copy does not reach the registry
	snapOp.DisplayName = "changed"
	live, _ := r.GetOperator(op.ID)
	if live.DisplayName != "Op" {
		t.Error("snapshot mutation must not reach the registry")
	}
}

func TestSnapshotOperatorsByRole(t *testing.T) {
	r := New("")
	if _, err := r.CreateOperator("Op", RoleOperator, "SECRET", nil); err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	sup, err := r.CreateOperator("Sup", RoleSupervisor, "SECRET", nil)
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	inactive, err := r.CreateOperator("Gone", RoleSupervisor, "SECRET", nil)
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	if err := r.DeactivateOperator(inactive.ID); err != nil {
		t.Fatalf("DeactivateOperator: %v", err)
	}

	supervisors := r.Snapshot().OperatorsByRole(RoleSupervisor)
	if len(supervisors) != 1 || supervisors[0].ID != sup.ID {
		t.Errorf("supervisors %v, want only the active one", supervisors)
	}
}
