// Package approval implements the tiered approval state machine. A plan is
// classified into a risk tier, assigned to candidate approvers, and escalated
// level by level on deadline until it is approved, rejected, or expires at
// the maximum level. No decision, escalation, or expiry goes unaudited.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/fieldgate/pkg/audit"
	"github.com/dd0wney/fieldgate/pkg/diagnosis"
	"github.com/dd0wney/fieldgate/pkg/logging"
	"github.com/dd0wney/fieldgate/pkg/metrics"
	"github.com/dd0wney/fieldgate/pkg/registry"
)

var (
	ErrRequestNotFound = errors.New("approval request not found")
	ErrDecisionTooLate = errors.New("decision arrived after the request was resolved")
	ErrNotCandidate    = errors.New("resolver is not a candidate approver for this request")
	ErrPlanAlreadyLive = errors.New("plan already has a live approval request")
	ErrInvalidTier     = errors.New("plan contains an unknown risk tier")
	ErrUnknownLevel    = errors.New("no approver role configured for level")
)

// Outcome is the terminal result of an approval chain, delivered to the
// waiting session worker.
type Outcome struct {
	Request  *Request
	Approved bool
}

// Notifier receives approval lifecycle notifications. Implemented by the
// notification dispatcher; nil disables notifications without affecting the
// state machine.
type Notifier interface {
	NotifyApproval(req *Request, approvers []*registry.Operator, escalated bool)
	NotifyOutcome(req *Request, approved bool)
	NotifyCriticalExpiry(req *Request, emergencyContact string)
}

// Engine runs the approval state machine
type Engine struct {
	mu       sync.Mutex
	requests map[string]*Request           // requestID -> request
	live     map[string]string             // planID -> live (non-terminal) requestID
	timers   map[string]*time.Timer        // requestID -> deadline timer
	watchers map[string]chan *Outcome      // planID -> terminal outcome
	snaps    map[string]*registry.Snapshot // planID -> snapshot pinned at submit
	bySess   map[string][]string           // sessionID -> planIDs

	cfg      *Config
	auditLog *audit.Log
	notifier Notifier
	metrics  *metrics.Registry
	logger   logging.Logger
}

// NewEngine creates an approval engine. notifier may be nil.
func NewEngine(cfg *Config, auditLog *audit.Log, notifier Notifier, logger logging.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{
		requests: make(map[string]*Request),
		live:     make(map[string]string),
		timers:   make(map[string]*time.Timer),
		watchers: make(map[string]chan *Outcome),
		snaps:    make(map[string]*registry.Snapshot),
		bySess:   make(map[string][]string),
		cfg:      cfg,
		auditLog: auditLog,
		notifier: notifier,
		logger:   logger.With(logging.Component("approval-engine")),
	}
}

// SetMetrics attaches a metrics registry. nil leaves metrics off.
func (e *Engine) SetMetrics(m *metrics.Registry) {
	e.metrics = m
}

// Submit classifies a plan and opens its approval chain at level 1.
// LOW-tier plans auto-approve when the submitting operator holds the
// configured certification; MEDIUM and HIGH never auto-approve.
func (e *Engine) Submit(sessionID string, operator *registry.Operator, snap *registry.Snapshot, plan *diagnosis.SolutionPlan) (*Request, error) {
	tier := plan.OverallTier()
	if !tier.Valid() {
		return nil, ErrInvalidTier
	}
	for _, a := range plan.Actions {
		if !a.RiskTier.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTier, a.RiskTier)
		}
	}

	e.mu.Lock()
	if _, exists := e.live[plan.ID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPlanAlreadyLive, plan.ID)
	}
	e.snaps[plan.ID] = snap
	e.bySess[sessionID] = append(e.bySess[sessionID], plan.ID)
	e.mu.Unlock()

	e.auditTransition(sessionID, plan.IncidentID, "", audit.KindApprovalRequested, audit.SeverityInfo, map[string]any{
		"plan_id": plan.ID,
		"tier":    string(tier),
		"state":   "RISK_CLASSIFIED",
	})

	// Auto-approval path: resolved immediately, no timer, still audited.
	if tier == diagnosis.TierLow && e.cfg.AutoApproveCert != "" && operator.HasCertification(e.cfg.AutoApproveCert) {
		req := e.newRequest(sessionID, plan.IncidentID, plan.ID, tier, 1, "")
		req.State = StateApproved
		req.ResolvedAt = time.Now()
		req.ResolverID = operator.ID
		req.AutoApproved = true
		req.Version++

		e.mu.Lock()
		e.requests[req.ID] = req
		delete(e.snaps, plan.ID)
		watcher := e.watcherLocked(plan.ID)
		e.mu.Unlock()

		e.auditTransition(sessionID, plan.IncidentID, req.ID, audit.KindApprovalDecided, audit.SeverityInfo, map[string]any{
			"plan_id":       plan.ID,
			"decision":      "approved",
			"auto_approved": true,
		})
		e.metrics.RecordApprovalSubmitted(string(tier), e.PendingCount())
		e.metrics.RecordApprovalDecision("approved", 1, string(tier), 0, e.PendingCount())
		watcher <- &Outcome{Request: req.clone(), Approved: true}
		return req.clone(), nil
	}

	req, err := e.openLevel(sessionID, plan.IncidentID, plan.ID, tier, 1, "")
	if err != nil {
		return nil, err
	}
	e.metrics.RecordApprovalSubmitted(string(tier), e.PendingCount())
	e.notifyApprovers(req, false)
	return req.clone(), nil
}

// Decide resolves a pending request. A decision arriving after the deadline
// has already escalated or expired the request is rejected as stale and
// audited, and does not roll the escalation back.
func (e *Engine) Decide(requestID, resolverID, comment string, approve bool) (*Request, error) {
	e.mu.Lock()
	req, ok := e.requests[requestID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}

	if req.State != StatePending {
		state := req.State
		e.mu.Unlock()
		e.auditTransition(req.SessionID, req.IncidentID, req.ID, audit.KindDecisionTooLate, audit.SeverityWarning, map[string]any{
			"plan_id":       req.PlanID,
			"resolver_id":   resolverID,
			"request_state": string(state),
		})
		return nil, fmt.Errorf("%w: request is %s", ErrDecisionTooLate, state)
	}

	if !isCandidate(req, resolverID) {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotCandidate, resolverID)
	}

	if approve {
		req.State = StateApproved
	} else {
		req.State = StateRejected
	}
	req.ResolvedAt = time.Now()
	req.ResolverID = resolverID
	req.Comment = comment
	req.Version++

	e.stopTimerLocked(req.ID)
	delete(e.live, req.PlanID)
	delete(e.snaps, req.PlanID)
	watcher := e.watcherLocked(req.PlanID)
	result := req.clone()
	e.mu.Unlock()

	decision := "rejected"
	if approve {
		decision = "approved"
	}
	e.auditTransition(req.SessionID, req.IncidentID, req.ID, audit.KindApprovalDecided, audit.SeverityInfo, map[string]any{
		"plan_id":     result.PlanID,
		"decision":    decision,
		"resolver_id": resolverID,
		"level":       result.Level,
	})
	e.logger.Info("approval decided",
		logging.ApprovalID(result.ID),
		logging.String("decision", decision),
		logging.ApprovalLevel(result.Level))
	e.metrics.RecordApprovalDecision(decision, result.Level, string(result.Tier),
		result.ResolvedAt.Sub(result.CreatedAt), e.PendingCount())

	if e.notifier != nil {
		e.notifier.NotifyOutcome(result, approve)
	}
	watcher <- &Outcome{Request: result, Approved: approve}
	return result, nil
}

// WaitOutcome blocks until the plan's approval chain reaches a terminal
// state or ctx is cancelled. The session worker parks here; it is woken by
// a decision event or the deadline timer, whichever comes first.
func (e *Engine) WaitOutcome(ctx context.Context, planID string) (*Outcome, error) {
	e.mu.Lock()
	watcher := e.watcherLocked(planID)
	e.mu.Unlock()

	select {
	case out := <-watcher:
		// An outcome is delivered exactly once; drop the channel with it.
		e.mu.Lock()
		delete(e.watchers, planID)
		e.mu.Unlock()
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns a request by id
func (e *Engine) Get(requestID string) (*Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, ok := e.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	return req.clone(), nil
}

// Live returns the live (non-terminal) request for a plan, if any
func (e *Engine) Live(planID string) (*Request, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, ok := e.live[planID]
	if !ok {
		return nil, false
	}
	return e.requests[id].clone(), true
}

// Chain returns every request for a plan, oldest first
func (e *Engine) Chain(planID string) []*Request {
	e.mu.Lock()
	defer e.mu.Unlock()

	var chain []*Request
	for _, req := range e.requests {
		if req.PlanID == planID {
			chain = append(chain, req.clone())
		}
	}
	sortByCreation(chain)
	return chain
}

// CancelForSession expires every in-flight request belonging to a destroyed
// session and cancels its timers. Registered as a session destroy hook.
func (e *Engine) CancelForSession(sessionID, detail string) {
	e.mu.Lock()
	var cancelled []*Request
	for _, planID := range e.bySess[sessionID] {
		// Nobody will wait on these plans again; reap the watcher and
		// snapshot even for chains that already resolved.
		delete(e.watchers, planID)
		delete(e.snaps, planID)
		id, ok := e.live[planID]
		if !ok {
			continue
		}
		req := e.requests[id]
		req.State = StateExpired
		req.Reason = ReasonSessionTerminated
		req.ResolvedAt = time.Now()
		req.Version++
		e.stopTimerLocked(id)
		delete(e.live, planID)
		cancelled = append(cancelled, req.clone())
	}
	delete(e.bySess, sessionID)
	e.mu.Unlock()

	for _, req := range cancelled {
		e.auditTransition(req.SessionID, req.IncidentID, req.ID, audit.KindApprovalExpired, audit.SeverityWarning, map[string]any{
			"plan_id": req.PlanID,
			"reason":  ReasonSessionTerminated,
			"detail":  detail,
			"level":   req.Level,
		})
	}
}

// PendingCount returns the number of live approval requests
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// openLevel creates a pending request at the given level and arms its
// deadline timer.
func (e *Engine) openLevel(sessionID, incidentID, planID string, tier diagnosis.Tier, level int, prevID string) (*Request, error) {
	role, ok := e.cfg.LevelRoles[level]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, level)
	}

	req := e.newRequest(sessionID, incidentID, planID, tier, level, prevID)

	e.mu.Lock()
	if snap := e.snaps[planID]; snap != nil {
		for _, op := range snap.OperatorsByRole(role) {
			req.Candidates = append(req.Candidates, op.ID)
		}
	}
	e.requests[req.ID] = req
	e.live[planID] = req.ID

	version := req.Version
	e.timers[req.ID] = time.AfterFunc(time.Until(req.Deadline), func() {
		e.escalate(req.ID, version)
	})
	e.mu.Unlock()

	e.auditTransition(sessionID, incidentID, req.ID, audit.KindApprovalRequested, audit.SeverityInfo, map[string]any{
		"plan_id":  planID,
		"tier":     string(tier),
		"level":    level,
		"deadline": req.Deadline.Format(time.RFC3339),
		"prev_id":  prevID,
	})
	e.logger.Info("approval pending",
		logging.ApprovalID(req.ID),
		logging.RiskTier(string(tier)),
		logging.ApprovalLevel(level))

	return req, nil
}

// escalate fires on deadline. It is idempotent under timer retry: the
// version check makes a duplicate or stale fire a no-op. Exactly one
// escalation transition occurs per deadline.
func (e *Engine) escalate(requestID string, version uint64) {
	e.mu.Lock()
	req, ok := e.requests[requestID]
	if !ok || req.State != StatePending || req.Version != version {
		e.mu.Unlock()
		return
	}

	// A chain that has run out of configured approver roles expires exactly
	// like one at the maximum level; escalating into a level nobody can
	// approve would strand the plan without a terminal outcome.
	_, nextRoleConfigured := e.cfg.LevelRoles[req.Level+1]
	if req.Level >= e.cfg.MaxLevel || !nextRoleConfigured {
		req.State = StateExpired
		req.Reason = ReasonMaxLevel
		req.ResolvedAt = time.Now()
		req.Version++
		e.stopTimerLocked(req.ID)
		delete(e.live, req.PlanID)
		snap := e.snaps[req.PlanID]
		delete(e.snaps, req.PlanID)
		watcher := e.watcherLocked(req.PlanID)
		result := req.clone()
		e.mu.Unlock()

		e.auditTransition(result.SessionID, result.IncidentID, result.ID, audit.KindApprovalExpired, audit.SeverityCritical, map[string]any{
			"plan_id": result.PlanID,
			"reason":  ReasonMaxLevel,
			"level":   result.Level,
		})
		e.logger.Error("approval expired at max level",
			logging.ApprovalID(result.ID),
			logging.ApprovalLevel(result.Level))
		e.metrics.RecordApprovalExpired(e.PendingCount())

		if e.notifier != nil {
			e.notifier.NotifyCriticalExpiry(result, emergencyContactFor(snap, result))
		}
		watcher <- &Outcome{Request: result, Approved: false}
		return
	}

	req.State = StateEscalated
	req.ResolvedAt = time.Now()
	req.Version++
	e.stopTimerLocked(req.ID)
	delete(e.live, req.PlanID)
	prev := req.clone()
	e.mu.Unlock()

	e.auditTransition(prev.SessionID, prev.IncidentID, prev.ID, audit.KindApprovalEscalated, audit.SeverityWarning, map[string]any{
		"plan_id":    prev.PlanID,
		"from_level": prev.Level,
		"to_level":   prev.Level + 1,
	})
	e.logger.Warn("approval escalated",
		logging.ApprovalID(prev.ID),
		logging.ApprovalLevel(prev.Level+1))
	e.metrics.RecordApprovalEscalated(string(prev.Tier))

	next, err := e.openLevel(prev.SessionID, prev.IncidentID, prev.PlanID, prev.Tier, prev.Level+1, prev.ID)
	if err != nil {
		e.logger.Error("failed to open escalated request", logging.Error(err))
		return
	}
	e.notifyApprovers(next, true)
}

func (e *Engine) notifyApprovers(req *Request, escalated bool) {
	if e.notifier == nil {
		return
	}

	e.mu.Lock()
	snap := e.snaps[req.PlanID]
	candidates := append([]string(nil), req.Candidates...)
	reqCopy := req.clone()
	e.mu.Unlock()

	var approvers []*registry.Operator
	if snap != nil {
		for _, id := range candidates {
			if op, err := snap.Operator(id); err == nil {
				approvers = append(approvers, op)
			}
		}
	}
	e.notifier.NotifyApproval(reqCopy, approvers, escalated)
}

func (e *Engine) newRequest(sessionID, incidentID, planID string, tier diagnosis.Tier, level int, prevID string) *Request {
	now := time.Now()
	return &Request{
		ID:         uuid.New().String(),
		PlanID:     planID,
		SessionID:  sessionID,
		IncidentID: incidentID,
		Tier:       tier,
		Level:      level,
		State:      StatePending,
		CreatedAt:  now,
		Deadline:   now.Add(e.cfg.timeoutFor(tier, level)),
		PrevID:     prevID,
		Version:    1,
	}
}

func (e *Engine) stopTimerLocked(requestID string) {
	if t, ok := e.timers[requestID]; ok {
		t.Stop()
		delete(e.timers, requestID)
	}
}

// watcherLocked returns the plan's outcome channel, creating it on first
// use. Buffered so a terminal transition never blocks on an absent waiter.
func (e *Engine) watcherLocked(planID string) chan *Outcome {
	ch, ok := e.watchers[planID]
	if !ok {
		ch = make(chan *Outcome, 1)
		e.watchers[planID] = ch
	}
	return ch
}

func (e *Engine) auditTransition(sessionID, incidentID, approvalID string, kind audit.Kind, severity audit.Severity, payload map[string]any) {
	if e.auditLog == nil {
		return
	}
	if _, err := e.auditLog.Append(&audit.Record{
		Actor:      "approval-engine",
		Kind:       kind,
		Severity:   severity,
		SessionID:  sessionID,
		IncidentID: incidentID,
		ApprovalID: approvalID,
		Payload:    payload,
	}); err != nil {
		e.logger.Error("failed to audit approval transition",
			logging.ApprovalID(approvalID), logging.Error(err))
	}
}

// isCandidate reports whether resolverID may decide req. A request with an
// empty candidate set accepts no decision at all; it resolves only through
// escalation or expiry.
func isCandidate(req *Request, resolverID string) bool {
	for _, id := range req.Candidates {
		if id == resolverID {
			return true
		}
	}
	return false
}

func emergencyContactFor(snap *registry.Snapshot, req *Request) string {
	if snap == nil {
		return ""
	}
	// Best effort: the zone's emergency contact travels with the critical
	// alert when the snapshot can resolve it.
	for _, zone := range snap.Zones() {
		if zone.EmergencyContact != "" {
			return zone.EmergencyContact
		}
	}
	return ""
}

func sortByCreation(chain []*Request) {
	for i := 1; i < len(chain); i++ {
		for j := i; j > 0 && chain[j].CreatedAt.Before(chain[j-1].CreatedAt); j-- {
			chain[j], chain[j-1] = chain[j-1], chain[j]
		}
	}
}
