package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dd0wney/fieldgate/pkg/auth"
	"github.com/dd0wney/fieldgate/pkg/logging"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// claimsFrom returns the authenticated claims stored by requireSession
func claimsFrom(r *http.Request) (*auth.Claims, bool) {
	claims, ok := r.Context().Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

// requireSession validates the bearer token and attaches its claims.
// Revoked and expired tokens are rejected before any handler runs.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			s.respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.tokens.ValidateToken(r.Context(), authHeader[len("Bearer "):])
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if _, err := s.sessions.Get(claims.SessionID); err != nil {
			s.respondError(w, http.StatusUnauthorized, "session no longer exists")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// requireAdmin validates the X-API-Key header against the admin key store
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			s.respondError(w, http.StatusUnauthorized, "missing X-API-Key header")
			return
		}

		key, err := s.adminKeys.ValidateKey(apiKey)
		if err != nil {
			s.logger.Warn("admin key rejected", logging.Error(err))
			s.respondError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		s.logger.Debug("admin request", logging.String("key_id", key.ID), logging.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	}
}

// transportTrusted reports whether the request arrived over the approved
// tunnel. The tunnel terminator sets the header; direct exposure of this
// server without it requires require_trusted_transport: false.
func (s *Server) transportTrusted(r *http.Request) bool {
	if !s.cfg.Auth.RequireTrustedTransport {
		return true
	}
	return r.Header.Get("X-Tunnel-Verified") == "1"
}

// metricsMiddleware tracks HTTP request metrics
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		s.metrics.HTTPRequestsInFlight.Inc()
		defer s.metrics.HTTPRequestsInFlight.Dec()

		wrapper := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(wrapper.statusCode), time.Since(start))
	})
}

// loggingMiddleware logs each request at debug level
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		s.logger.Debug("request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", wrapper.statusCode),
			logging.Latency(time.Since(start)))
	})
}

// statusResponseWriter captures the response status code
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// updateMetricsPeriodically refreshes gauges every 10 seconds
func (s *Server) updateMetricsPeriodically() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metrics.UpdateSystemMetrics(s.startTime)
		s.metrics.SessionsActive.Set(float64(s.sessions.Count()))
		s.metrics.ApprovalsPending.Set(float64(s.engine.PendingCount()))
	}
}
