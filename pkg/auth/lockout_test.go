package auth

import (
	"testing"
	"time"
)

func TestLockoutAfterMaxFailures(t *testing.T) {
	tracker := NewLockoutTracker(3, 15*time.Minute, 15*time.Minute)
	now := time.Now()

	for i := 0; i < 2; i++ {
		if tracker.RecordFailure("op-1", now) {
			t.Fatalf("failure %d should not trigger lockout", i+1)
		}
	}
	if tracker.IsLocked("op-1", now) {
		t.Fatal("operator should not be locked after 2 failures")
	}

	if !tracker.RecordFailure("op-1", now) {
		t.Fatal("third failure should trigger lockout")
	}
	if !tracker.IsLocked("op-1", now) {
		t.Fatal("operator should be locked after 3 failures")
	}

	until := tracker.LockedUntil("op-1", now)
	if !until.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("expected lockout until now+15m, got %v", until)
	}
}

func TestLockoutExpiresAfterCooldown(t *testing.T) {
	tracker := NewLockoutTracker(3, 15*time.Minute, 15*time.Minute)
	now := time.Now()

	for i := 0; i < 3; i++ {
		tracker.RecordFailure("op-1", now)
	}
	if !tracker.IsLocked("op-1", now) {
		t.Fatal("expected lockout")
	}

	later := now.Add(15*time.Minute + time.Second)
	if tracker.IsLocked("op-1", later) {
		t.Fatal("lockout should have expired after cooldown")
	}
}

func TestFailuresOutsideWindowResetCount(t *testing.T) {
	tracker := NewLockoutTracker(3, 15*time.Minute, 15*time.Minute)
	now := time.Now()

	tracker.RecordFailure("op-1", now)
	tracker.RecordFailure("op-1", now.Add(time.Minute))

	// third failure lands outside the window: the counter restarts
	late := now.Add(20 * time.Minute)
	if tracker.RecordFailure("op-1", late) {
		t.Fatal("failure outside the window must not count toward the old streak")
	}
	if got := tracker.Failures("op-1"); got != 1 {
		t.Errorf("expected failure count 1 after window reset, got %d", got)
	}
}

func TestSuccessResetsFailures(t *testing.T) {
	tracker := NewLockoutTracker(3, 15*time.Minute, 15*time.Minute)
	now := time.Now()

	tracker.RecordFailure("op-1", now)
	tracker.RecordFailure("op-1", now)
	tracker.RecordSuccess("op-1", now)

	if got := tracker.Failures("op-1"); got != 0 {
		t.Errorf("expected 0 failures after success, got %d", got)
	}

	// the streak starts over
	if tracker.RecordFailure("op-1", now) {
		t.Fatal("first failure of a new streak must not lock")
	}
}

func TestSuccessDuringCooldownDoesNotUnlock(t *testing.T) {
	tracker := NewLockoutTracker(3, 15*time.Minute, 15*time.Minute)
	now := time.Now()

	for i := 0; i < 3; i++ {
		tracker.RecordFailure("op-1", now)
	}

	// a valid code presented mid-cooldown must not clear the lockout
	tracker.RecordSuccess("op-1", now.Add(time.Minute))
	if !tracker.IsLocked("op-1", now.Add(time.Minute)) {
		t.Fatal("success during cooldown must not clear the lockout")
	}
}

func TestRelockAfterCooldownWithinWindow(t *testing.T) {
	// cooldown shorter than the failure window: a fresh burst of failures
	// after the first lockout lapses must lock the operator again
	tracker := NewLockoutTracker(3, 30*time.Minute, 5*time.Minute)
	now := time.Now()

	for i := 0; i < 3; i++ {
		tracker.RecordFailure("op-1", now)
	}
	if !tracker.IsLocked("op-1", now) {
		t.Fatal("expected initial lockout")
	}

	after := now.Add(5*time.Minute + time.Second)
	if tracker.IsLocked("op-1", after) {
		t.Fatal("cooldown should have lapsed")
	}

	locked := false
	for i := 0; i < 3; i++ {
		locked = tracker.RecordFailure("op-1", after)
	}
	if !locked {
		t.Fatal("three failures after a lapsed lockout must trigger a new lockout")
	}
	if !tracker.IsLocked("op-1", after) {
		t.Fatal("operator must be locked again")
	}
	if until := tracker.LockedUntil("op-1", after); !until.Equal(after.Add(5 * time.Minute)) {
		t.Errorf("expected lockout until after+5m, got %v", until)
	}
}

func TestLockoutIsolatedPerOperator(t *testing.T) {
	tracker := NewLockoutTracker(3, 15*time.Minute, 15*time.Minute)
	now := time.Now()

	for i := 0; i < 3; i++ {
		tracker.RecordFailure("op-1", now)
	}
	if tracker.IsLocked("op-2", now) {
		t.Fatal("lockout must be scoped to the failing operator")
	}
}
