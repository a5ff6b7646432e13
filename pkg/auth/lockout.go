package auth

import (
	"sync"
	"time"
)

const (
	// DefaultMaxFailures is the consecutive-failure count that triggers lockout
	DefaultMaxFailures = 3
	// DefaultFailureWindow bounds how far apart consecutive failures may be
	// and still count together
	DefaultFailureWindow = 15 * time.Minute
	// DefaultCooldown is how long a lockout lasts
	DefaultCooldown = 15 * time.Minute
)

type attemptRecord struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

// LockoutTracker counts consecutive authentication failures per operator and
// enforces a cooldown after too many inside the window. It is the only
// cross-attempt mutable state besides the used-code cache; all checks are
// atomic under one mutex so concurrent attempts cannot bypass a lockout.
type LockoutTracker struct {
	mu          sync.Mutex
	attempts    map[string]*attemptRecord
	maxFailures int
	window      time.Duration
	cooldown    time.Duration
}

// NewLockoutTracker creates a tracker. Non-positive arguments select the
// defaults.
func NewLockoutTracker(maxFailures int, window, cooldown time.Duration) *LockoutTracker {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if window <= 0 {
		window = DefaultFailureWindow
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &LockoutTracker{
		attempts:    make(map[string]*attemptRecord),
		maxFailures: maxFailures,
		window:      window,
		cooldown:    cooldown,
	}
}

// IsLocked reports whether the operator is currently locked out
func (t *LockoutTracker) IsLocked(operatorID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.attempts[operatorID]
	if !ok {
		return false
	}
	return now.Before(rec.lockedUntil)
}

// LockedUntil returns the cooldown expiry for a locked operator, or the zero
// time if not locked.
func (t *LockoutTracker) LockedUntil(operatorID string, now time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.attempts[operatorID]
	if !ok || !now.Before(rec.lockedUntil) {
		return time.Time{}
	}
	return rec.lockedUntil
}

// RecordFailure counts a failed attempt. Returns true if this failure
// triggered a lockout.
func (t *LockoutTracker) RecordFailure(operatorID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A lapsed lockout starts a fresh record: failures after the cooldown
	// count from zero and can trigger a new lockout.
	rec, ok := t.attempts[operatorID]
	stale := !ok ||
		now.Sub(rec.windowStart) > t.window ||
		(!rec.lockedUntil.IsZero() && !now.Before(rec.lockedUntil))
	if stale {
		rec = &attemptRecord{windowStart: now}
		t.attempts[operatorID] = rec
	}

	rec.failures++
	if rec.failures >= t.maxFailures && rec.lockedUntil.IsZero() {
		rec.lockedUntil = now.Add(t.cooldown)
		return true
	}
	return false
}

// RecordSuccess resets the failure counter. A success during an active
// cooldown does not clear the lockout.
func (t *LockoutTracker) RecordSuccess(operatorID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.attempts[operatorID]
	if !ok {
		return
	}
	if now.Before(rec.lockedUntil) {
		return
	}
	delete(t.attempts, operatorID)
}

// Failures returns the current consecutive-failure count for an operator
func (t *LockoutTracker) Failures(operatorID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.attempts[operatorID]
	if !ok {
		return 0
	}
	return rec.failures
}
