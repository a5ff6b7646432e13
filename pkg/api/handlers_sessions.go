package api

import (
	"errors"
	"net/http"

	"github.com/dd0wney/fieldgate/pkg/session"
)

// handleGetSession reports session status. Callers can only see their own
// session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r)
	sessionID := r.PathValue("id")
	if sessionID != claims.SessionID {
		s.respondError(w, http.StatusForbidden, "session does not belong to caller")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}

	s.respondJSON(w, http.StatusOK, SessionResponse{
		SessionID:  sess.ID,
		OperatorID: sess.OperatorID,
		ZoneID:     sess.ZoneID,
		State:      string(sess.State()),
		CreatedAt:  sess.CreatedAt(),
		ExpiresAt:  sess.ExpiresAt(),
	})
}

// handleTouchSession extends the session deadline, capped at its ceiling
func (s *Server) handleTouchSession(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r)
	sessionID := r.PathValue("id")
	if sessionID != claims.SessionID {
		s.respondError(w, http.StatusForbidden, "session does not belong to caller")
		return
	}

	expiresAt, err := s.sessions.Touch(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionExpired) {
			s.respondError(w, http.StatusGone, "session expired")
			return
		}
		s.respondError(w, http.StatusInternalServerError, s.sanitizeError(err, "session touch"))
		return
	}

	s.respondJSON(w, http.StatusOK, TouchResponse{SessionID: sessionID, ExpiresAt: expiresAt})
}

// handleResumeSession re-attaches a client that still holds a valid token.
// Unlike other session endpoints it authenticates from the body, so a
// client that lost its connection state can recover with the token alone.
func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	sess, err := s.sessions.Resume(r.Context(), r.PathValue("id"), req.Token)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "session resume rejected")
		return
	}

	s.respondJSON(w, http.StatusOK, SessionResponse{
		SessionID:  sess.ID,
		OperatorID: sess.OperatorID,
		ZoneID:     sess.ZoneID,
		State:      string(sess.State()),
		CreatedAt:  sess.CreatedAt(),
		ExpiresAt:  sess.ExpiresAt(),
	})
}
