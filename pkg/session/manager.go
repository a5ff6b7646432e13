// Package session owns session lifecycle: creation after a passed auth gate,
// expiry, resumption, touch, and destruction. Expiry is enforced by a sweep
// that runs independently of request traffic, so idle sessions terminate
// even with no further calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/fieldgate/pkg/audit"
	"github.com/dd0wney/fieldgate/pkg/auth"
	"github.com/dd0wney/fieldgate/pkg/logging"
	"github.com/dd0wney/fieldgate/pkg/metrics"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session expired")
	ErrSessionTerminated = errors.New("session terminated")
	ErrAuditUnavailable  = errors.New("audit log unavailable, refusing new sessions")
)

const (
	// DefaultTTL is the sliding session lifetime
	DefaultTTL = 8 * time.Hour
	// DefaultCeiling caps the total lifetime regardless of Touch calls
	DefaultCeiling = 24 * time.Hour
	// DefaultSweepInterval is how often the sweeper evaluates expiry
	DefaultSweepInterval = 30 * time.Second
)

// Config holds session manager settings
type Config struct {
	TTL           time.Duration
	Ceiling       time.Duration
	SweepInterval time.Duration
}

// Manager owns all active sessions
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	tokens   *auth.TokenManager
	denylist *auth.Denylist
	auditLog *audit.Log
	metrics  *metrics.Registry
	logger   logging.Logger

	ttl           time.Duration
	ceiling       time.Duration
	sweepInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a session manager. Zero config values select defaults.
func NewManager(cfg Config, tokens *auth.TokenManager, denylist *auth.Denylist, auditLog *audit.Log, logger logging.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Manager{
		sessions:      make(map[string]*Session),
		tokens:        tokens,
		denylist:      denylist,
		auditLog:      auditLog,
		logger:        logger.With(logging.Component("session-manager")),
		ttl:           cfg.TTL,
		ceiling:       cfg.Ceiling,
		sweepInterval: cfg.SweepInterval,
		stopCh:        make(chan struct{}),
	}
}

// SetMetrics attaches a metrics registry. nil leaves metrics off.
func (m *Manager) SetMetrics(reg *metrics.Registry) {
	m.metrics = reg
}

// Start launches the expiry sweeper
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.sweeper()
}

// Stop halts the sweeper and destroys all sessions
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Destroy(id, "shutdown")
	}
}

// Create builds a session from a passed authentication gate and issues its
// signed token. Fails closed if the audit log cannot record the creation.
func (m *Manager) Create(proof *auth.Proof) (*Session, string, error) {
	now := time.Now()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ID:         uuid.New().String(),
		OperatorID: proof.OperatorID,
		ZoneID:     proof.ZoneID,
		state:      StateActive,
		createdAt:  now,
		expiresAt:  now.Add(m.ttl),
		ceiling:    now.Add(m.ceiling),
		transport:  proof.Transport,
		location:   proof.Location,
		snapshot:   proof.Snapshot,
		ctx:        ctx,
		cancel:     cancel,
	}

	token, _, err := m.tokens.IssueToken(s.ID, s.OperatorID, proof.Operator.Role, s.ZoneID)
	if err != nil {
		cancel()
		return nil, "", fmt.Errorf("failed to issue session token: %w", err)
	}

	// The audit append gates creation: a workflow that cannot be audited
	// must not start.
	if _, err := m.auditLog.Append(&audit.Record{
		Actor:     s.OperatorID,
		Kind:      audit.KindSessionCreated,
		SessionID: s.ID,
		Payload: map[string]any{
			"zone_id":    s.ZoneID,
			"expires_at": s.expiresAt.Format(time.RFC3339),
		},
	}); err != nil {
		cancel()
		return nil, "", fmt.Errorf("%w: %v", ErrAuditUnavailable, err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	active := len(m.sessions)
	m.mu.Unlock()

	m.metrics.RecordSessionCreated(active)
	m.logger.Info("session created",
		logging.SessionID(s.ID),
		logging.OperatorID(s.OperatorID),
		logging.ZoneID(s.ZoneID))

	return s, token, nil
}

// Get returns an active session by id
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// Resume validates a token and returns the live session it names. Expired or
// destroyed sessions yield ErrSessionExpired.
func (m *Manager) Resume(ctx context.Context, sessionID, token string) (*Session, error) {
	claims, err := m.tokens.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims.SessionID != sessionID {
		return nil, auth.ErrInvalidClaims
	}

	s, err := m.Get(sessionID)
	if err != nil {
		return nil, ErrSessionExpired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated || s.expiredLocked(time.Now()) {
		return nil, ErrSessionExpired
	}

	if _, err := m.auditLog.Append(&audit.Record{
		Actor:     s.OperatorID,
		Kind:      audit.KindSessionResumed,
		SessionID: s.ID,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuditUnavailable, err)
	}
	return s, nil
}

// Touch extends the session's expiry by the TTL, capped at the hard ceiling
func (m *Manager) Touch(sessionID string) (time.Time, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.state == StateTerminated {
		return time.Time{}, ErrSessionTerminated
	}
	if s.expiredLocked(now) {
		return time.Time{}, ErrSessionExpired
	}

	next := now.Add(m.ttl)
	if next.After(s.ceiling) {
		next = s.ceiling
	}
	s.expiresAt = next
	return next, nil
}

// Destroy terminates a session: cancels its context, runs destroy hooks
// (approval timer cancellation), revokes its token, and audits the teardown.
func (m *Manager) Destroy(sessionID, reason string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	active := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	m.metrics.RecordSessionDestroyed(reason, active)

	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return nil
	}
	s.state = StateTerminated
	hooks := s.onDestroy
	s.onDestroy = nil
	ceiling := s.ceiling
	s.mu.Unlock()

	// Cancel in-flight analysis or plan calls first, then let hooks expire
	// any pending approval request.
	s.cancel()
	for _, hook := range hooks {
		hook(reason)
	}

	if m.denylist != nil {
		m.denylist.Revoke(s.ID, ceiling)
	}

	kind := audit.KindSessionDestroyed
	if reason == "expired" {
		kind = audit.KindSessionExpired
	}
	if _, err := m.auditLog.Append(&audit.Record{
		Actor:     s.OperatorID,
		Kind:      kind,
		SessionID: s.ID,
		Payload:   map[string]any{"reason": reason},
	}); err != nil {
		m.logger.Error("failed to audit session teardown",
			logging.SessionID(s.ID), logging.Error(err))
	}

	m.logger.Info("session destroyed",
		logging.SessionID(s.ID),
		logging.Reason(reason))
	return nil
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// sweeper terminates expired sessions independently of request traffic
func (m *Manager) sweeper() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	m.mu.RLock()
	var expired []string
	for id, s := range m.sessions {
		s.mu.Lock()
		if s.expiredLocked(now) {
			expired = append(expired, id)
		}
		s.mu.Unlock()
	}
	m.mu.RUnlock()

	swept := 0
	for _, id := range expired {
		if err := m.Destroy(id, "expired"); err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				m.logger.Error("sweep failed to destroy session",
					logging.SessionID(id), logging.Error(err))
			}
			continue
		}
		swept++
	}
	if swept > 0 {
		m.metrics.RecordSessionsSwept(swept)
	}

	if m.denylist != nil {
		m.denylist.Prune(now)
	}
}
