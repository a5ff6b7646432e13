package api

import (
	"errors"
	"net/http"

	"github.com/dd0wney/fieldgate/pkg/auth"
	"github.com/dd0wney/fieldgate/pkg/geo"
	"github.com/dd0wney/fieldgate/pkg/logging"
	"github.com/dd0wney/fieldgate/pkg/session"
)

// handleLogin runs the three-factor gate and opens a session. All failures
// return the same 401 body: the caller learns nothing about which factor
// failed.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	proof, err := s.gateway.Authenticate(r.Context(), &auth.Request{
		OperatorID: req.OperatorID,
		Code:       req.Code,
		Location: geo.Location{
			Lat:        req.Latitude,
			Lng:        req.Longitude,
			ObservedAt: req.ObservedAt,
		},
		TransportTrusted: s.transportTrusted(r),
	})
	if err != nil {
		if errors.Is(err, auth.ErrLockedOut) {
			s.respondError(w, http.StatusTooManyRequests, "account temporarily locked")
			return
		}
		s.logger.Warn("login rejected", logging.OperatorID(req.OperatorID), logging.Error(err))
		s.respondError(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	sess, token, err := s.sessions.Create(proof)
	if err != nil {
		if errors.Is(err, session.ErrAuditUnavailable) {
			s.respondError(w, http.StatusServiceUnavailable, "service cannot record audit events")
			return
		}
		s.respondError(w, http.StatusInternalServerError, s.sanitizeError(err, "session creation"))
		return
	}
	s.orchestrator.Bind(sess)

	s.respondJSON(w, http.StatusOK, LoginResponse{
		SessionID: sess.ID,
		Token:     token,
		ExpiresAt: sess.ExpiresAt(),
		ZoneID:    sess.ZoneID,
	})
}

// handleLogout destroys the caller's session
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := s.sessions.Destroy(claims.SessionID, "logout"); err != nil {
		s.respondError(w, http.StatusInternalServerError, s.sanitizeError(err, "logout"))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
