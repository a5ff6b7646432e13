// Package notify implements asynchronous, retrying fan-out of approval
// requests, decisions, and alerts to email, SMS, and chat channels.
// Delivery is best effort: it never blocks or fails a state transition.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dd0wney/fieldgate/pkg/audit"
	"github.com/dd0wney/fieldgate/pkg/logging"
	"github.com/dd0wney/fieldgate/pkg/metrics"
	"github.com/dd0wney/fieldgate/pkg/registry"
)

var (
	ErrUnknownChannel = errors.New("unknown notification channel")
)

const (
	// DefaultMaxAttempts per channel before recording a delivery failure
	DefaultMaxAttempts = 3
	// DefaultBaseDelay seeds the exponential backoff between attempts
	DefaultBaseDelay = 2 * time.Second
)

// Event is one notification to deliver
type Event struct {
	Kind       string
	Subject    string
	Body       string
	Recipients []string
	SessionID  string
	IncidentID string
	ApprovalID string
	Critical   bool
}

// Channel delivers events over one concrete transport
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event *Event) error
}

// Outcome reports the final delivery result for one channel
type Outcome struct {
	Channel  string
	Attempts int
	Err      error
}

// Dispatcher fans events out to channels, each retried independently with
// exponential backoff. A chat failure never delays SMS.
type Dispatcher struct {
	channels    map[string]Channel
	maxAttempts int
	baseDelay   time.Duration
	auditLog    *audit.Log
	metrics     *metrics.Registry
	logger      logging.Logger
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Non-positive retry settings select
// defaults.
func NewDispatcher(channels []Channel, maxAttempts int, baseDelay time.Duration, auditLog *audit.Log, logger logging.Logger) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}

	return &Dispatcher{
		channels:    byName,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		auditLog:    auditLog,
		logger:      logger.With(logging.Component("notify-dispatcher")),
	}
}

// SetMetrics attaches a metrics registry. nil leaves metrics off.
func (d *Dispatcher) SetMetrics(m *metrics.Registry) {
	d.metrics = m
}

// Send dispatches the event to the named channels and returns immediately.
// Each channel runs its own retry loop; outcomes are audited, not returned.
func (d *Dispatcher) Send(ctx context.Context, event *Event, channelNames []string) {
	for _, name := range channelNames {
		ch, ok := d.channels[name]
		if !ok {
			d.logger.Warn("skipping unknown channel", logging.Channel(name))
			continue
		}
		d.wg.Add(1)
		go d.deliverWithRetry(ctx, ch, event)
	}
}

// SendSync dispatches and waits for per-channel outcomes. Used by tests and
// the admin CLI.
func (d *Dispatcher) SendSync(ctx context.Context, event *Event, channelNames []string) []Outcome {
	outcomes := make([]Outcome, 0, len(channelNames))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range channelNames {
		ch, ok := d.channels[name]
		if !ok {
			outcomes = append(outcomes, Outcome{Channel: name, Err: ErrUnknownChannel})
			continue
		}
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			out := d.attempt(ctx, ch, event)
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return outcomes
}

// NotifyLockout implements the auth gateway's lockout alert. High priority:
// goes to every channel the operator has a contact for, plus chat.
func (d *Dispatcher) NotifyLockout(ctx context.Context, operator *registry.Operator, lockedUntil time.Time) {
	event := &Event{
		Kind:     "operator_lockout",
		Subject:  "Operator locked out",
		Body:     "Operator " + operator.DisplayName + " locked out until " + lockedUntil.Format(time.RFC3339),
		Critical: true,
	}
	names := make([]string, 0, len(operator.Contacts))
	for _, c := range operator.Contacts {
		event.Recipients = append(event.Recipients, c.Address)
		names = append(names, string(c.Channel))
	}
	if len(names) == 0 {
		names = d.allChannelNames()
	}
	d.Send(ctx, event, names)
}

// Wait blocks until all in-flight deliveries finish. Used at shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) allChannelNames() []string {
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	return names
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, ch Channel, event *Event) {
	defer d.wg.Done()
	d.attempt(ctx, ch, event)
}

// attempt runs the per-channel retry loop and audits the final outcome
func (d *Dispatcher) attempt(ctx context.Context, ch Channel, event *Event) Outcome {
	out := Outcome{Channel: ch.Name()}

	delay := d.baseDelay
	for out.Attempts = 1; out.Attempts <= d.maxAttempts; out.Attempts++ {
		out.Err = ch.Deliver(ctx, event)
		if out.Err == nil {
			break
		}
		if out.Attempts == d.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			out.Err = ctx.Err()
			d.recordOutcome(event, out)
			return out
		case <-time.After(delay):
		}
		delay *= 2
	}

	d.recordOutcome(event, out)
	return out
}

func (d *Dispatcher) recordOutcome(event *Event, out Outcome) {
	d.metrics.RecordNotification(out.Channel, out.Attempts, out.Err == nil)
	if out.Err == nil {
		d.logger.Debug("notification delivered",
			logging.Channel(out.Channel),
			logging.String("kind", event.Kind),
			logging.Attempt(out.Attempts))
		d.append(event, audit.KindNotificationSent, audit.SeverityInfo, out)
		return
	}

	d.logger.Warn("notification delivery failed",
		logging.Channel(out.Channel),
		logging.String("kind", event.Kind),
		logging.Attempt(out.Attempts),
		logging.Error(out.Err))
	d.append(event, audit.KindNotificationFailure, audit.SeverityWarning, out)
}

func (d *Dispatcher) append(event *Event, kind audit.Kind, severity audit.Severity, out Outcome) {
	if d.auditLog == nil {
		return
	}
	payload := map[string]any{
		"channel":  out.Channel,
		"kind":     event.Kind,
		"attempts": out.Attempts,
	}
	if out.Err != nil {
		payload["error"] = out.Err.Error()
	}
	if _, err := d.auditLog.Append(&audit.Record{
		Actor:      "notify",
		Kind:       kind,
		Severity:   severity,
		SessionID:  event.SessionID,
		IncidentID: event.IncidentID,
		ApprovalID: event.ApprovalID,
		Payload:    payload,
	}); err != nil {
		d.logger.Error("failed to audit notification outcome", logging.Error(err))
	}
}
