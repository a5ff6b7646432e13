package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dd0wney/fieldgate/pkg/api"
	"github.com/dd0wney/fieldgate/pkg/approval"
	"github.com/dd0wney/fieldgate/pkg/audit"
	"github.com/dd0wney/fieldgate/pkg/auth"
	"github.com/dd0wney/fieldgate/pkg/config"
	"github.com/dd0wney/fieldgate/pkg/diagnosis"
	"github.com/dd0wney/fieldgate/pkg/evidence"
	"github.com/dd0wney/fieldgate/pkg/geo"
	"github.com/dd0wney/fieldgate/pkg/health"
	"github.com/dd0wney/fieldgate/pkg/logging"
	"github.com/dd0wney/fieldgate/pkg/metrics"
	"github.com/dd0wney/fieldgate/pkg/notify"
	"github.com/dd0wney/fieldgate/pkg/registry"
	"github.com/dd0wney/fieldgate/pkg/session"
	"github.com/dd0wney/fieldgate/pkg/totp"
	"github.com/dd0wney/fieldgate/pkg/workflow"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.Logging.Level))
	logging.SetDefaultLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", logging.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	// Audit log first: everything else fails closed without it.
	auditLog, err := audit.New(&audit.Config{
		LogDir:       cfg.Audit.LogDir,
		RotationSize: cfg.Audit.RotationSize,
		RotationTime: cfg.Audit.RotationTime.Std(),
	})
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer auditLog.Close()

	if cfg.Audit.ArchiveBucket != "" {
		archiver, err := audit.NewArchiver(context.Background(), &audit.ArchiveConfig{
			Bucket:    cfg.Audit.ArchiveBucket,
			Prefix:    cfg.Audit.ArchivePrefix,
			Region:    cfg.Audit.ArchiveRegion,
			Endpoint:  cfg.Audit.ArchiveEndpoint,
			AccessKey: cfg.Audit.ArchiveAccessKey,
			SecretKey: cfg.Audit.ArchiveSecretKey,
			Timeout:   cfg.Audit.ArchiveTimeout.Std(),
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create audit archiver: %w", err)
		}
		if archiver != nil {
			auditLog.SetRotationHook(archiver.ArchiveSegment)
		}
	}

	reg, err := registry.Load(cfg.Registry.DataDir)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	adminKeys, err := registry.NewAdminKeyStore(cfg.Registry.DataDir)
	if err != nil {
		return fmt.Errorf("failed to load admin keys: %w", err)
	}

	store, err := evidence.NewStore(cfg.Evidence.Dir, cfg.Evidence.MaxBlobSize)
	if err != nil {
		return fmt.Errorf("failed to open evidence store: %w", err)
	}

	// Notification channels
	var channels []notify.Channel
	if cfg.Notify.SMTPAddr != "" {
		host, portStr, err := net.SplitHostPort(cfg.Notify.SMTPAddr)
		if err != nil {
			return fmt.Errorf("invalid smtp_addr: %w", err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid smtp_addr port: %w", err)
		}
		var smtpAuth smtp.Auth
		channels = append(channels, notify.NewEmailChannel(host, port, cfg.Notify.SMTPFrom, smtpAuth))
	}
	if cfg.Notify.SMSGateway != "" {
		channels = append(channels, notify.NewSMSChannel(cfg.Notify.SMSGateway, cfg.Notify.SMSAPIKey))
	}
	if cfg.Notify.ChatWebhook != "" {
		channels = append(channels, notify.NewChatChannel(cfg.Notify.ChatWebhook))
	}
	dispatcher := notify.NewDispatcher(channels, cfg.Notify.MaxAttempts, cfg.Notify.BaseDelay.Std(), auditLog, logger)

	mreg := metrics.DefaultRegistry()
	auditLog.SetMetrics(mreg)
	dispatcher.SetMetrics(mreg)

	// Authentication gate
	codes := totp.NewValidator(totp.DefaultStep, int(cfg.Auth.TOTPSkew))
	fence := geo.NewValidator(cfg.Auth.LocationMaxAge.Std())
	lockouts := auth.NewLockoutTracker(cfg.Auth.MaxFailures, cfg.Auth.FailureWindow.Std(), cfg.Auth.LockoutCooldown.Std())
	gateway := auth.NewGateway(reg, codes, fence, lockouts, auditLog, dispatcher, logger)
	gateway.SetMetrics(mreg)

	denylist := auth.NewDenylist()
	tokens, err := auth.NewTokenManager(cfg.Auth.TokenSecret, cfg.Session.TTL.Std(), denylist)
	if err != nil {
		return fmt.Errorf("failed to create token manager: %w", err)
	}

	sessions := session.NewManager(session.Config{
		TTL:           cfg.Session.TTL.Std(),
		Ceiling:       cfg.Session.Ceiling.Std(),
		SweepInterval: cfg.Session.SweepInterval.Std(),
	}, tokens, denylist, auditLog, logger)
	sessions.SetMetrics(mreg)
	sessions.Start()
	defer sessions.Stop()

	// Approval engine
	engine := approval.NewEngine(&approval.Config{
		Timeouts: map[diagnosis.Tier]time.Duration{
			diagnosis.TierLow:    cfg.Approval.TimeoutLow.Std(),
			diagnosis.TierMedium: cfg.Approval.TimeoutMedium.Std(),
			diagnosis.TierHigh:   cfg.Approval.TimeoutHigh.Std(),
		},
		MaxLevel:        cfg.Approval.MaxLevel,
		LevelRoles:      approval.DefaultConfig().LevelRoles,
		AutoApproveCert: cfg.Approval.AutoApproveCert,
	}, auditLog, dispatcher, logger)
	engine.SetMetrics(mreg)

	// Diagnostic pipeline
	analysis := diagnosis.NewHTTPAnalysisClient(cfg.Diagnosis.AnalysisURL, cfg.Diagnosis.CallTimeout.Std(), cfg.Diagnosis.MinConfidence)
	plans := diagnosis.NewHTTPPlanClient(cfg.Diagnosis.PlanURL, cfg.Diagnosis.CallTimeout.Std())
	orchestrator := workflow.NewOrchestrator(store, analysis, plans, engine, auditLog, logger)

	// Health probes. Audit gating is a readiness concern: a service that
	// cannot audit must not take new sessions.
	checker := health.NewChecker()
	checker.RegisterReadiness("audit_log", health.AuditLogCheck(func() error {
		_, err := auditLog.Append(&audit.Record{
			Actor:    "health",
			Kind:     audit.KindAdminAction,
			Severity: audit.SeverityInfo,
			Payload:  map[string]any{"probe": true},
		})
		return err
	}))
	checker.Register("registry", health.RegistryCheck(func() (int, int) {
		snap := reg.Snapshot()
		return len(snap.Operators()), len(snap.Zones())
	}))
	checker.Register("evidence_store", health.EvidenceDirCheck(cfg.Evidence.Dir))
	checker.Register("workload", health.SessionLoadCheck(func() (int, int) {
		return sessions.Count(), engine.PendingCount()
	}))
	checker.Register("memory", health.MemoryCheck())

	server := api.NewServer(api.Deps{
		Config:       cfg,
		Registry:     reg,
		AdminKeys:    adminKeys,
		Gateway:      gateway,
		Tokens:       tokens,
		Sessions:     sessions,
		Engine:       engine,
		Orchestrator: orchestrator,
		AuditLog:     auditLog,
		Checker:      checker,
		Metrics:      mreg,
		Logger:       logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", logging.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	dispatcher.Wait()
	return nil
}
