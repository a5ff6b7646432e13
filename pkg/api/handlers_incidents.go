package api

import (
	"errors"
	"net/http"

	"github.com/dd0wney/fieldgate/pkg/diagnosis"
	"github.com/dd0wney/fieldgate/pkg/workflow"
)

// handleSubmitEvidence opens an incident on the caller's session and runs
// the analysis pipeline. A pipeline failure is reported with the incident
// so the operator can retry with better evidence.
func (s *Server) handleSubmitEvidence(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r)

	var req SubmitEvidenceRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.Evidence) == 0 {
		s.respondError(w, http.StatusBadRequest, "evidence is required")
		return
	}

	sess, err := s.sessions.Get(claims.SessionID)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "session no longer exists")
		return
	}

	incident, err := s.orchestrator.SubmitEvidence(sess, req.Evidence, req.EquipmentHint)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrSessionNotActive):
			s.respondError(w, http.StatusConflict, "session has an incident in flight")
		case errors.Is(err, diagnosis.ErrLowConfidence):
			s.respondJSON(w, http.StatusUnprocessableEntity, IncidentResponse{
				Incident:     incident,
				SessionState: string(sess.State()),
			})
		case errors.Is(err, diagnosis.ErrAnalysisTimeout), errors.Is(err, diagnosis.ErrPlanTimeout):
			s.respondError(w, http.StatusGatewayTimeout, "diagnostic backend timed out")
		default:
			s.respondError(w, http.StatusBadGateway, s.sanitizeError(err, "diagnosis"))
		}
		return
	}

	s.respondJSON(w, http.StatusAccepted, IncidentResponse{
		Incident:     incident,
		SessionState: string(sess.State()),
	})
}

// handleGetIncident reports incident progress
func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r)

	incident, err := s.orchestrator.Incident(r.PathValue("id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "incident not found")
		return
	}
	if incident.SessionID != claims.SessionID {
		s.respondError(w, http.StatusForbidden, "incident does not belong to caller")
		return
	}

	sess, err := s.sessions.Get(claims.SessionID)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "session no longer exists")
		return
	}

	s.respondJSON(w, http.StatusOK, IncidentResponse{
		Incident:     incident,
		SessionState: string(sess.State()),
	})
}

// handleCompleteExecution marks the approved plan finished
func (s *Server) handleCompleteExecution(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r)

	sess, err := s.sessions.Get(claims.SessionID)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "session no longer exists")
		return
	}

	if err := s.orchestrator.CompleteExecution(sess); err != nil {
		s.respondError(w, http.StatusConflict, "no executing plan on this session")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
