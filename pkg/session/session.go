package session

import (
	"context"
	"sync"
	"time"

	"github.com/dd0wney/fieldgate/pkg/geo"
	"github.com/dd0wney/fieldgate/pkg/registry"
)

// State is the lifecycle state of a session
type State string

const (
	// StateActive is an authenticated session with no incident in flight
	StateActive State = "ACTIVE"
	// StateAnalyzing means evidence has been submitted and the external
	// analysis is running
	StateAnalyzing State = "ANALYZING"
	// StateAwaitingApproval means a solution plan is pending sign-off
	StateAwaitingApproval State = "AWAITING_APPROVAL"
	// StateExecuting means an approved plan is being carried out.
	// A session can only enter this state with an APPROVED request.
	StateExecuting State = "EXECUTING"
	// StateTerminated is terminal
	StateTerminated State = "TERMINATED"
)

// Session is one authenticated operator's working context. All mutation goes
// through methods holding the session's own mutex: Touch and Destroy on the
// same session are linearizable, sessions never contend with each other.
type Session struct {
	ID         string
	OperatorID string
	ZoneID     string

	mu        sync.Mutex
	state     State
	createdAt time.Time
	expiresAt time.Time
	ceiling   time.Time // hard expiry ceiling, Touch never extends past it
	transport bool
	location  geo.Location
	snapshot  *registry.Snapshot

	ctx    context.Context
	cancel context.CancelFunc

	// onDestroy hooks run outside the session lock, in registration order
	onDestroy []func(reason string)
}

// Snapshot returns the registry snapshot pinned at session creation
func (s *Session) Snapshot() *registry.Snapshot {
	return s.snapshot
}

// Context is cancelled when the session is destroyed. Workflow workers and
// in-flight external calls hang off it.
func (s *Session) Context() context.Context {
	return s.ctx
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExpiresAt returns the current expiry deadline
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// CreatedAt returns the session creation time
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Location returns the last validated operator location
func (s *Session) Location() geo.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

// TransportTrusted reports whether the session arrived over an approved tunnel
func (s *Session) TransportTrusted() bool {
	return s.transport
}

// SetState transitions the session's lifecycle state. Transitions into
// EXECUTING are validated by the workflow, which requires an approved plan.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return
	}
	s.state = state
}

// OnDestroy registers a hook invoked when the session is destroyed.
// The approval engine registers timer cancellation here.
func (s *Session) OnDestroy(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDestroy = append(s.onDestroy, fn)
}

// expired reports whether the session has passed its deadline.
// Caller must hold s.mu.
func (s *Session) expiredLocked(now time.Time) bool {
	return now.After(s.expiresAt)
}
