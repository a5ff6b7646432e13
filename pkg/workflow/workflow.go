// Package workflow orchestrates the diagnostic pipeline for a session:
// evidence intake, external analysis, plan generation, approval, and the
// resulting session state transitions. A session runs one incident at a
// time; the approval wait happens on a per-incident worker goroutine that
// dies with the session.
package workflow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/fieldgate/pkg/approval"
	"github.com/dd0wney/fieldgate/pkg/audit"
	"github.com/dd0wney/fieldgate/pkg/diagnosis"
	"github.com/dd0wney/fieldgate/pkg/evidence"
	"github.com/dd0wney/fieldgate/pkg/logging"
	"github.com/dd0wney/fieldgate/pkg/session"
)

var (
	ErrSessionNotActive    = errors.New("session is not in a state that accepts evidence")
	ErrSessionNotExecuting = errors.New("session has no executing plan")
	ErrIncidentNotFound    = errors.New("incident not found")
)

// Orchestrator drives incidents through the pipeline
type Orchestrator struct {
	mu        sync.Mutex
	incidents map[string]*diagnosis.Incident
	bySession map[string]string // sessionID -> live incidentID

	store    *evidence.Store
	analysis diagnosis.AnalysisClient
	plans    diagnosis.PlanClient
	engine   *approval.Engine
	auditLog *audit.Log
	logger   logging.Logger
}

// NewOrchestrator wires the pipeline together
func NewOrchestrator(store *evidence.Store, analysis diagnosis.AnalysisClient, plans diagnosis.PlanClient, engine *approval.Engine, auditLog *audit.Log, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Orchestrator{
		incidents: make(map[string]*diagnosis.Incident),
		bySession: make(map[string]string),
		store:     store,
		analysis:  analysis,
		plans:     plans,
		engine:    engine,
		auditLog:  auditLog,
		logger:    logger.With(logging.Component("workflow")),
	}
}

// Bind hooks a freshly created session into the workflow: destroying the
// session cancels its in-flight approvals. Call once per session.
func (o *Orchestrator) Bind(sess *session.Session) {
	sess.OnDestroy(func(reason string) {
		o.engine.CancelForSession(sess.ID, reason)
		o.mu.Lock()
		if id, ok := o.bySession[sess.ID]; ok {
			delete(o.incidents, id)
		}
		delete(o.bySession, sess.ID)
		o.mu.Unlock()
	})
}

// SubmitEvidence runs the pipeline for one incident: store the evidence,
// analyze it, generate a plan, and submit the plan for approval. It returns
// once the approval chain is open; the outcome is awaited on a worker
// goroutine. Any stage failure returns the session to ACTIVE.
func (o *Orchestrator) SubmitEvidence(sess *session.Session, data []byte, equipmentHint string) (*diagnosis.Incident, error) {
	if state := sess.State(); state != session.StateActive {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotActive, state)
	}

	ref, err := o.store.Put(data)
	if err != nil {
		return nil, fmt.Errorf("failed to store evidence: %w", err)
	}

	incident := &diagnosis.Incident{
		ID:            uuid.New().String(),
		SessionID:     sess.ID,
		EvidenceRef:   ref,
		EquipmentHint: equipmentHint,
		CreatedAt:     time.Now(),
	}

	o.mu.Lock()
	o.incidents[incident.ID] = incident
	o.bySession[sess.ID] = incident.ID
	o.mu.Unlock()

	sess.SetState(session.StateAnalyzing)
	o.append(sess.ID, incident.ID, "", audit.KindEvidenceSubmitted, audit.SeverityInfo, map[string]any{
		"evidence_ref":   ref,
		"equipment_hint": equipmentHint,
		"size_bytes":     len(data),
	})

	result, err := o.analysis.Analyze(sess.Context(), incident.ID, ref)
	if err != nil {
		sess.SetState(session.StateActive)
		o.dropIncident(sess.ID, incident.ID)
		o.append(sess.ID, incident.ID, "", audit.KindAnalysisFailed, audit.SeverityWarning, map[string]any{
			"error": err.Error(),
		})
		o.logger.Warn("analysis failed",
			logging.IncidentID(incident.ID), logging.Error(err))
		return incident, err
	}
	incident.Analysis = result
	o.append(sess.ID, incident.ID, "", audit.KindAnalysisCompleted, audit.SeverityInfo, map[string]any{
		"classification": result.Classification,
		"confidence":     result.Confidence,
		"anomalies":      len(result.Anomalies),
	})

	plan, err := o.plans.GeneratePlan(sess.Context(), result)
	if err != nil {
		sess.SetState(session.StateActive)
		o.dropIncident(sess.ID, incident.ID)
		o.append(sess.ID, incident.ID, "", audit.KindPlanFailed, audit.SeverityWarning, map[string]any{
			"error": err.Error(),
		})
		return incident, err
	}
	plan.IncidentID = incident.ID
	incident.Plan = plan
	o.append(sess.ID, incident.ID, "", audit.KindPlanGenerated, audit.SeverityInfo, map[string]any{
		"plan_id": plan.ID,
		"actions": len(plan.Actions),
		"tier":    string(plan.OverallTier()),
	})

	operator, err := sess.Snapshot().Operator(sess.OperatorID)
	if err != nil {
		sess.SetState(session.StateActive)
		o.dropIncident(sess.ID, incident.ID)
		return incident, err
	}

	req, err := o.engine.Submit(sess.ID, operator, sess.Snapshot(), plan)
	if err != nil {
		sess.SetState(session.StateActive)
		o.dropIncident(sess.ID, incident.ID)
		return incident, err
	}
	sess.SetState(session.StateAwaitingApproval)

	go o.awaitOutcome(sess, incident, plan, req)
	return incident, nil
}

// awaitOutcome parks until the approval chain resolves, then moves the
// session. A session destroyed mid-wait cancels the context; the engine's
// session hook has already expired the chain, so the completion is simply
// discarded.
func (o *Orchestrator) awaitOutcome(sess *session.Session, incident *diagnosis.Incident, plan *diagnosis.SolutionPlan, req *approval.Request) {
	out, err := o.engine.WaitOutcome(sess.Context(), plan.ID)
	if err != nil {
		o.logger.Debug("approval wait abandoned",
			logging.SessionID(sess.ID), logging.IncidentID(incident.ID), logging.Error(err))
		return
	}
	if sess.State() == session.StateTerminated {
		return
	}

	// The EXECUTING transition requires an APPROVED terminal state.
	// Rejection and expiry both return the session to ACTIVE.
	if out.Approved && out.Request.State == approval.StateApproved {
		sess.SetState(session.StateExecuting)
		o.logger.Info("plan approved, session executing",
			logging.SessionID(sess.ID),
			logging.IncidentID(incident.ID),
			logging.ApprovalID(out.Request.ID))
		return
	}

	sess.SetState(session.StateActive)
	o.dropIncident(sess.ID, incident.ID)
	o.logger.Info("plan not approved, session returned to active",
		logging.SessionID(sess.ID),
		logging.IncidentID(incident.ID),
		logging.Reason(out.Request.Reason))
}

// CompleteExecution marks an executing plan finished and returns the
// session to ACTIVE, ready for the next incident.
func (o *Orchestrator) CompleteExecution(sess *session.Session) error {
	if state := sess.State(); state != session.StateExecuting {
		return fmt.Errorf("%w: %s", ErrSessionNotExecuting, state)
	}

	o.mu.Lock()
	incidentID := o.bySession[sess.ID]
	delete(o.incidents, incidentID)
	delete(o.bySession, sess.ID)
	o.mu.Unlock()

	sess.SetState(session.StateActive)
	o.append(sess.ID, incidentID, "", audit.KindExecutionCompleted, audit.SeverityInfo, nil)
	return nil
}

// Incident returns an incident by id
func (o *Orchestrator) Incident(incidentID string) (*diagnosis.Incident, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	incident, ok := o.incidents[incidentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIncidentNotFound, incidentID)
	}
	return incident, nil
}

// LiveIncident returns the session's in-flight incident, if any
func (o *Orchestrator) LiveIncident(sessionID string) (*diagnosis.Incident, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id, ok := o.bySession[sessionID]
	if !ok {
		return nil, false
	}
	return o.incidents[id], true
}

// dropIncident reaps a finished incident from the in-memory maps. The audit
// log keeps the durable history.
func (o *Orchestrator) dropIncident(sessionID, incidentID string) {
	o.mu.Lock()
	delete(o.incidents, incidentID)
	if o.bySession[sessionID] == incidentID {
		delete(o.bySession, sessionID)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) append(sessionID, incidentID, approvalID string, kind audit.Kind, severity audit.Severity, payload map[string]any) {
	if o.auditLog == nil {
		return
	}
	if _, err := o.auditLog.Append(&audit.Record{
		Actor:      "workflow",
		Kind:       kind,
		Severity:   severity,
		SessionID:  sessionID,
		IncidentID: incidentID,
		ApprovalID: approvalID,
		Payload:    payload,
	}); err != nil {
		o.logger.Error("failed to audit workflow event",
			logging.IncidentID(incidentID), logging.Error(err))
	}
}
