package auth

import (
	"sync"
	"time"
)

// Denylist is the session-id revocation list. Tokens are stateless, so
// destroying a session adds its id here; entries expire once the longest
// possible token for that session has itself expired.
type Denylist struct {
	mu      sync.RWMutex
	entries map[string]time.Time // sessionID -> expiry of the denial entry
}

// NewDenylist creates an empty denylist
func NewDenylist() *Denylist {
	return &Denylist{entries: make(map[string]time.Time)}
}

// Revoke adds a session id. keepUntil should be at or after the expiry of
// any token issued for the session.
func (d *Denylist) Revoke(sessionID string, keepUntil time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[sessionID] = keepUntil
}

// Contains reports whether the session id is revoked
func (d *Denylist) Contains(sessionID string) bool {
	d.mu.RLock()
	until, ok := d.entries[sessionID]
	d.mu.RUnlock()

	if !ok {
		return false
	}
	if time.Now().After(until) {
		// Entry outlived every token it could block.
		d.mu.Lock()
		delete(d.entries, sessionID)
		d.mu.Unlock()
		return false
	}
	return true
}

// Prune drops expired entries. Called by the session sweeper.
func (d *Denylist) Prune(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	pruned := 0
	for id, until := range d.entries {
		if now.After(until) {
			delete(d.entries, id)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of active entries
func (d *Denylist) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
