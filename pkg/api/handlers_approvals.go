package api

import (
	"errors"
	"net/http"

	"github.com/dd0wney/fieldgate/pkg/approval"
)

// handleGetApproval returns one approval request
func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	req, err := s.engine.Get(r.PathValue("id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "approval request not found")
		return
	}
	s.respondJSON(w, http.StatusOK, req)
}

// handleDecide resolves a pending approval request. The resolver is the
// authenticated operator; late decisions are refused and audited, not
// applied.
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r)

	var req DecisionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	resolved, err := s.engine.Decide(r.PathValue("id"), claims.OperatorID, req.Comment, req.Approve)
	if err != nil {
		switch {
		case errors.Is(err, approval.ErrRequestNotFound):
			s.respondError(w, http.StatusNotFound, "approval request not found")
		case errors.Is(err, approval.ErrDecisionTooLate):
			s.respondError(w, http.StatusConflict, "request already resolved or escalated")
		case errors.Is(err, approval.ErrNotCandidate):
			s.respondError(w, http.StatusForbidden, "caller is not a candidate approver")
		default:
			s.respondError(w, http.StatusInternalServerError, s.sanitizeError(err, "decision"))
		}
		return
	}

	s.respondJSON(w, http.StatusOK, resolved)
}

// handleGetChain returns the full escalation chain for a plan
func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	chain := s.engine.Chain(r.PathValue("id"))
	if len(chain) == 0 {
		s.respondError(w, http.StatusNotFound, "no approval chain for plan")
		return
	}
	s.respondJSON(w, http.StatusOK, chain)
}
