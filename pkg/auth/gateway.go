// Package auth implements the session authentication gate: TOTP second
// factor, geofence check, transport trust, lockout, and signed session
// tokens with denylist revocation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/fieldgate/pkg/audit"
	"github.com/dd0wney/fieldgate/pkg/geo"
	"github.com/dd0wney/fieldgate/pkg/logging"
	"github.com/dd0wney/fieldgate/pkg/metrics"
	"github.com/dd0wney/fieldgate/pkg/registry"
	"github.com/dd0wney/fieldgate/pkg/totp"
)

var (
	ErrUntrustedTransport = errors.New("connection not on an approved tunnel")
	ErrLockedOut          = errors.New("operator locked out")
)

// AttemptState tracks an authentication attempt through the gate
type AttemptState string

const (
	StateUnauthenticated AttemptState = "UNAUTHENTICATED"
	StateLocationPending AttemptState = "LOCATION_PENDING"
	StateAuthenticated   AttemptState = "AUTHENTICATED"
)

// Request carries everything one authentication attempt presents
type Request struct {
	OperatorID       string
	Code             string
	Location         geo.Location
	TransportTrusted bool
}

// Proof is the evidence of a passed authentication gate. The session manager
// consumes it to create a session; the embedded snapshot pins the reference
// data the session will use for its whole lifetime.
type Proof struct {
	OperatorID     string
	Operator       *registry.Operator
	ZoneID         string
	DistanceMeters float64
	Location       geo.Location
	Transport      bool
	VerifiedAt     time.Time
	Snapshot       *registry.Snapshot
}

// LockoutNotifier receives high-priority lockout alerts. Delivery is best
// effort and never blocks the gate.
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, operator *registry.Operator, lockedUntil time.Time)
}

// Gateway combines the TOTP validator, the geofence validator, and the
// transport-trust check into a single pass/fail decision.
type Gateway struct {
	reg      *registry.Registry
	codes    *totp.Validator
	fence    *geo.Validator
	lockouts *LockoutTracker
	auditLog *audit.Log
	notifier LockoutNotifier
	metrics  *metrics.Registry
	logger   logging.Logger
}

// NewGateway wires the authentication gate. notifier may be nil.
func NewGateway(reg *registry.Registry, codes *totp.Validator, fence *geo.Validator, lockouts *LockoutTracker, auditLog *audit.Log, notifier LockoutNotifier, logger logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Gateway{
		reg:      reg,
		codes:    codes,
		fence:    fence,
		lockouts: lockouts,
		auditLog: auditLog,
		notifier: notifier,
		logger:   logger.With(logging.Component("auth-gateway")),
	}
}

// SetMetrics attaches a metrics registry. nil leaves metrics off.
func (g *Gateway) SetMetrics(m *metrics.Registry) {
	g.metrics = m
}

// Authenticate runs the full gate. Every failure returns the attempt to
// UNAUTHENTICATED, counts toward lockout, and is audited before the error is
// surfaced. Success yields a Proof carrying an immutable registry snapshot.
func (g *Gateway) Authenticate(ctx context.Context, req *Request) (*Proof, error) {
	now := time.Now()
	state := StateUnauthenticated

	// Snapshot first: the attempt and any session it creates see one
	// consistent view of operators and zones.
	snap := g.reg.Snapshot()

	if g.lockouts.IsLocked(req.OperatorID, now) {
		until := g.lockouts.LockedUntil(req.OperatorID, now)
		g.auditFailure(req.OperatorID, state, "locked_out", audit.SeverityWarning)
		g.metrics.RecordAuthAttempt(false, "locked_out", time.Since(now))
		return nil, fmt.Errorf("%w until %s", ErrLockedOut, until.Format(time.RFC3339))
	}

	operator, err := snap.Operator(req.OperatorID)
	if err != nil || !operator.Active {
		if err == nil {
			err = registry.ErrOperatorInactive
		}
		g.recordFailure(ctx, req.OperatorID, nil, state, "unknown_operator", now)
		return nil, err
	}

	if err := g.codes.Validate(operator.ID, operator.TOTPSecret, req.Code, now); err != nil {
		g.recordFailure(ctx, operator.ID, operator, state, "invalid_code", now)
		return nil, err
	}
	state = StateLocationPending

	match, err := g.fence.Validate(operator.ID, req.Location, snap.Zones(), now)
	if err != nil {
		reason := "location_out_of_bounds"
		if errors.Is(err, geo.ErrLocationUnavailable) {
			reason = "location_unavailable"
		}
		g.recordFailure(ctx, operator.ID, operator, state, reason, now)
		return nil, err
	}

	if !req.TransportTrusted {
		g.recordFailure(ctx, operator.ID, operator, state, "untrusted_transport", now)
		return nil, ErrUntrustedTransport
	}
	state = StateAuthenticated

	g.lockouts.RecordSuccess(operator.ID, now)

	if _, err := g.auditLog.Append(&audit.Record{
		Actor: operator.ID,
		Kind:  audit.KindAuthAttempt,
		Payload: map[string]any{
			"state":           string(state),
			"zone_id":         match.ZoneID,
			"distance_meters": match.DistanceMeters,
		},
	}); err != nil {
		// Fail closed: an attempt that cannot be audited does not pass.
		return nil, fmt.Errorf("audit unavailable: %w", err)
	}

	g.metrics.RecordAuthAttempt(true, "", time.Since(now))
	g.logger.Info("operator authenticated",
		logging.OperatorID(operator.ID),
		logging.ZoneID(match.ZoneID),
		logging.Float64("distance_meters", match.DistanceMeters))

	return &Proof{
		OperatorID:     operator.ID,
		Operator:       operator,
		ZoneID:         match.ZoneID,
		DistanceMeters: match.DistanceMeters,
		Location:       req.Location,
		Transport:      true,
		VerifiedAt:     now,
		Snapshot:       snap,
	}, nil
}

// recordFailure audits a failed step, counts it toward lockout, and emits
// the lockout alert when this failure crossed the threshold.
func (g *Gateway) recordFailure(ctx context.Context, operatorID string, operator *registry.Operator, state AttemptState, reason string, now time.Time) {
	g.auditFailure(operatorID, state, reason, audit.SeverityWarning)
	g.metrics.RecordAuthAttempt(false, reason, time.Since(now))

	locked := g.lockouts.RecordFailure(operatorID, now)
	if !locked {
		return
	}

	g.metrics.RecordLockout()
	until := g.lockouts.LockedUntil(operatorID, now)
	g.auditFailure(operatorID, state, "lockout_triggered", audit.SeverityCritical)
	g.logger.Warn("operator locked out",
		logging.OperatorID(operatorID),
		logging.String("locked_until", until.Format(time.RFC3339)))

	if g.notifier != nil && operator != nil {
		g.notifier.NotifyLockout(ctx, operator, until)
	}
}

func (g *Gateway) auditFailure(operatorID string, state AttemptState, reason string, severity audit.Severity) {
	kind := audit.KindAuthFailure
	if reason == "lockout_triggered" {
		kind = audit.KindLockout
	}
	if _, err := g.auditLog.Append(&audit.Record{
		Actor:    operatorID,
		Kind:     kind,
		Severity: severity,
		Payload:  map[string]any{"reason": reason, "state": string(state)},
	}); err != nil {
		g.logger.Error("failed to audit auth failure",
			logging.OperatorID(operatorID),
			logging.Reason(reason),
			logging.Error(err))
	}
}
