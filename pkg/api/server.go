// Package api exposes the HTTP surface: authentication, session lifecycle,
// evidence intake, approval decisions, audit export, health, and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/fieldgate/pkg/approval"
	"github.com/dd0wney/fieldgate/pkg/audit"
	"github.com/dd0wney/fieldgate/pkg/auth"
	"github.com/dd0wney/fieldgate/pkg/config"
	"github.com/dd0wney/fieldgate/pkg/health"
	"github.com/dd0wney/fieldgate/pkg/logging"
	"github.com/dd0wney/fieldgate/pkg/metrics"
	"github.com/dd0wney/fieldgate/pkg/registry"
	"github.com/dd0wney/fieldgate/pkg/session"
	"github.com/dd0wney/fieldgate/pkg/workflow"
)

// Server is the HTTP API server
type Server struct {
	cfg          *config.Config
	reg          *registry.Registry
	adminKeys    *registry.AdminKeyStore
	gateway      *auth.Gateway
	tokens       *auth.TokenManager
	sessions     *session.Manager
	engine       *approval.Engine
	orchestrator *workflow.Orchestrator
	auditLog     *audit.Log
	checker      *health.Checker
	metrics      *metrics.Registry
	logger       logging.Logger

	httpServer *http.Server
	startTime  time.Time
}

// Deps carries the wired subsystems into the server
type Deps struct {
	Config       *config.Config
	Registry     *registry.Registry
	AdminKeys    *registry.AdminKeyStore
	Gateway      *auth.Gateway
	Tokens       *auth.TokenManager
	Sessions     *session.Manager
	Engine       *approval.Engine
	Orchestrator *workflow.Orchestrator
	AuditLog     *audit.Log
	Checker      *health.Checker
	Metrics      *metrics.Registry
	Logger       logging.Logger
}

// NewServer creates the API server
func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Server{
		cfg:          d.Config,
		reg:          d.Registry,
		adminKeys:    d.AdminKeys,
		gateway:      d.Gateway,
		tokens:       d.Tokens,
		sessions:     d.Sessions,
		engine:       d.Engine,
		orchestrator: d.Orchestrator,
		auditLog:     d.AuditLog,
		checker:      d.Checker,
		metrics:      d.Metrics,
		logger:       logger.With(logging.Component("api")),
		startTime:    time.Now(),
	}
}

// Handler builds the full route table with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Authentication
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/logout", s.requireSession(s.handleLogout))

	// Sessions
	mux.HandleFunc("GET /sessions/{id}", s.requireSession(s.handleGetSession))
	mux.HandleFunc("POST /sessions/{id}/touch", s.requireSession(s.handleTouchSession))
	mux.HandleFunc("POST /sessions/{id}/resume", s.handleResumeSession)

	// Diagnostic workflow
	mux.HandleFunc("POST /incidents", s.requireSession(s.handleSubmitEvidence))
	mux.HandleFunc("GET /incidents/{id}", s.requireSession(s.handleGetIncident))
	mux.HandleFunc("POST /incidents/{id}/complete", s.requireSession(s.handleCompleteExecution))

	// Approvals
	mux.HandleFunc("GET /approvals/{id}", s.requireSession(s.handleGetApproval))
	mux.HandleFunc("POST /approvals/{id}/decision", s.requireSession(s.handleDecide))
	mux.HandleFunc("GET /plans/{id}/approvals", s.requireSession(s.handleGetChain))

	// Audit (admin key required)
	mux.HandleFunc("GET /audit/export", s.requireAdmin(s.handleAuditExport))
	mux.HandleFunc("GET /audit/verify", s.requireAdmin(s.handleAuditVerify))

	// Probes
	mux.HandleFunc("GET /health", s.checker.HTTPHandler())
	mux.HandleFunc("GET /health/ready", s.checker.ReadinessHandler())
	mux.HandleFunc("GET /health/live", s.checker.LivenessHandler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(
		s.metrics.GetPrometheusRegistry(),
		promhttp.HandlerOpts{},
	))

	return s.metricsMiddleware(s.loggingMiddleware(mux))
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout.Std(),
		WriteTimeout: s.cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  60 * time.Second,
	}

	go s.updateMetricsPeriodically()

	s.logger.Info("api server starting", logging.String("addr", s.cfg.Server.ListenAddr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
