package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/dd0wney/fieldgate/pkg/approval"
	"github.com/dd0wney/fieldgate/pkg/audit"
	"github.com/dd0wney/fieldgate/pkg/diagnosis"
	"github.com/dd0wney/fieldgate/pkg/metrics"
	"github.com/dd0wney/fieldgate/pkg/registry"
)

// fakeChannel fails the first failCount deliveries, then succeeds
type fakeChannel struct {
	name      string
	failCount int

	mu        sync.Mutex
	delivered []*Event
	attempts  int
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Deliver(_ context.Context, event *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.attempts <= c.failCount {
		return errors.New("transient delivery failure")
	}
	c.delivered = append(c.delivered, event)
	return nil
}

func (c *fakeChannel) deliveredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.delivered)
}

func newTestDispatcher(t *testing.T, channels ...Channel) (*Dispatcher, *audit.Log) {
	t.Helper()
	auditLog, err := audit.New(&audit.Config{})
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}
	t.Cleanup(func() { auditLog.Close() })
	// millisecond backoff keeps retry tests fast
	return NewDispatcher(channels, 3, time.Millisecond, auditLog, nil), auditLog
}

func TestSendSyncDelivers(t *testing.T) {
	email := &fakeChannel{name: "email"}
	d, auditLog := newTestDispatcher(t, email)

	outcomes := d.SendSync(context.Background(), &Event{Kind: "test", Subject: "s"}, []string{"email"})
	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[0].Attempts != 1 {
		t.Errorf("unexpected outcome: %+v", outcomes[0])
	}
	if email.deliveredCount() != 1 {
		t.Errorf("delivered %d events, want 1", email.deliveredCount())
	}

	records := auditLog.Query(&audit.Filter{Kind: audit.KindNotificationSent})
	if len(records) != 1 {
		t.Errorf("expected 1 notification_sent record, got %d", len(records))
	}
}

func TestSendSyncRetriesUntilSuccess(t *testing.T) {
	flaky := &fakeChannel{name: "sms", failCount: 2}
	d, _ := newTestDispatcher(t, flaky)

	outcomes := d.SendSync(context.Background(), &Event{Kind: "test"}, []string{"sms"})
	if outcomes[0].Err != nil {
		t.Fatalf("expected eventual success, got %v", outcomes[0].Err)
	}
	if outcomes[0].Attempts != 3 {
		t.Errorf("attempts %d, want 3", outcomes[0].Attempts)
	}
}

func TestSendSyncExhaustsRetries(t *testing.T) {
	dead := &fakeChannel{name: "chat", failCount: 100}
	d, auditLog := newTestDispatcher(t, dead)

	outcomes := d.SendSync(context.Background(), &Event{Kind: "test"}, []string{"chat"})
	if outcomes[0].Err == nil {
		t.Fatal("expected delivery failure after exhausting retries")
	}
	if outcomes[0].Attempts != 3 {
		t.Errorf("attempts %d, want 3", outcomes[0].Attempts)
	}

	records := auditLog.Query(&audit.Filter{Kind: audit.KindNotificationFailure})
	if len(records) != 1 {
		t.Fatalf("expected 1 notification_failure record, got %d", len(records))
	}
	if records[0].Severity != audit.SeverityWarning {
		t.Errorf("failure severity %s, want warning", records[0].Severity)
	}
}

func TestDispatcherRecordsDeliveryMetrics(t *testing.T) {
	email := &fakeChannel{name: "email"}
	dead := &fakeChannel{name: "chat", failCount: 100}
	d, _ := newTestDispatcher(t, email, dead)
	m := metrics.NewRegistry()
	d.SetMetrics(m)

	d.SendSync(context.Background(), &Event{Kind: "test"}, []string{"email", "chat"})

	counter := func(name, channel string) float64 {
		t.Helper()
		vec := m.NotificationsSentTotal
		if name == "failed" {
			vec = m.NotificationsFailedTotal
		}
		var out dto.Metric
		if err := vec.WithLabelValues(channel).Write(&out); err != nil {
			t.Fatalf("write metric: %v", err)
		}
		return out.GetCounter().GetValue()
	}
	if got := counter("sent", "email"); got != 1 {
		t.Errorf("email sent %v, want 1", got)
	}
	if got := counter("failed", "chat"); got != 1 {
		t.Errorf("chat failed %v, want 1", got)
	}
	if got := counter("sent", "chat"); got != 0 {
		t.Errorf("chat sent %v, want 0", got)
	}
}

func TestChannelsRetryIndependently(t *testing.T) {
	dead := &fakeChannel{name: "chat", failCount: 100}
	email := &fakeChannel{name: "email"}
	d, _ := newTestDispatcher(t, dead, email)

	outcomes := d.SendSync(context.Background(), &Event{Kind: "test"}, []string{"chat", "email"})

	byChannel := make(map[string]Outcome, len(outcomes))
	for _, out := range outcomes {
		byChannel[out.Channel] = out
	}
	if byChannel["email"].Err != nil {
		t.Errorf("chat failure must not affect email: %v", byChannel["email"].Err)
	}
	if byChannel["chat"].Err == nil {
		t.Error("expected chat to fail")
	}
}

func TestSendSyncUnknownChannel(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeChannel{name: "email"})

	outcomes := d.SendSync(context.Background(), &Event{Kind: "test"}, []string{"pager"})
	if len(outcomes) != 1 || !errors.Is(outcomes[0].Err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel outcome, got %+v", outcomes)
	}
}

func TestSendAsyncCompletesOnWait(t *testing.T) {
	email := &fakeChannel{name: "email"}
	d, _ := newTestDispatcher(t, email)

	d.Send(context.Background(), &Event{Kind: "test"}, []string{"email"})
	d.Wait()

	if email.deliveredCount() != 1 {
		t.Errorf("delivered %d events after Wait, want 1", email.deliveredCount())
	}
}

func TestNotifyApprovalFansOutToContacts(t *testing.T) {
	email := &fakeChannel{name: "email"}
	sms := &fakeChannel{name: "sms"}
	d, _ := newTestDispatcher(t, email, sms)

	approvers := []*registry.Operator{
		{
			ID:          "sup-1",
			DisplayName: "Supervisor",
			Contacts:    []registry.Contact{{Channel: registry.ChannelEmail, Address: "sup@example.com"}},
		},
	}
	req := &approval.Request{
		ID:       "req-1",
		PlanID:   "plan-1",
		Tier:     diagnosis.TierMedium,
		Level:    1,
		Deadline: time.Now().Add(15 * time.Minute),
	}

	d.NotifyApproval(req, approvers, false)
	d.Wait()

	if email.deliveredCount() != 1 {
		t.Fatalf("email delivered %d, want 1", email.deliveredCount())
	}
	if sms.deliveredCount() != 0 {
		t.Errorf("sms delivered %d, want 0 (approver has no sms contact)", sms.deliveredCount())
	}

	event := email.delivered[0]
	if event.Kind != "approval_requested" {
		t.Errorf("event kind %s, want approval_requested", event.Kind)
	}
	if len(event.Recipients) != 1 || event.Recipients[0] != "sup@example.com" {
		t.Errorf("recipients %v, want [sup@example.com]", event.Recipients)
	}
}

func TestNotifyApprovalBroadcastsWithoutContacts(t *testing.T) {
	email := &fakeChannel{name: "email"}
	chat := &fakeChannel{name: "chat"}
	d, _ := newTestDispatcher(t, email, chat)

	req := &approval.Request{ID: "req-1", PlanID: "plan-1", Tier: diagnosis.TierHigh, Level: 2}
	d.NotifyApproval(req, []*registry.Operator{{ID: "sup-1"}}, true)
	d.Wait()

	if email.deliveredCount() != 1 || chat.deliveredCount() != 1 {
		t.Errorf("broadcast reached email=%d chat=%d, want both 1", email.deliveredCount(), chat.deliveredCount())
	}
	if kind := email.delivered[0].Kind; kind != "approval_escalated" {
		t.Errorf("event kind %s, want approval_escalated", kind)
	}
}

func TestNotifyCriticalExpiry(t *testing.T) {
	chat := &fakeChannel{name: "chat"}
	d, _ := newTestDispatcher(t, chat)

	req := &approval.Request{ID: "req-1", PlanID: "plan-1", Tier: diagnosis.TierHigh, Level: 3}
	d.NotifyCriticalExpiry(req, "oncall@example.com")
	d.Wait()

	if chat.deliveredCount() != 1 {
		t.Fatalf("chat delivered %d, want 1", chat.deliveredCount())
	}
	event := chat.delivered[0]
	if !event.Critical {
		t.Error("max-level expiry event must be critical")
	}
	if len(event.Recipients) != 1 || event.Recipients[0] != "oncall@example.com" {
		t.Errorf("recipients %v, want the emergency contact", event.Recipients)
	}
}

func TestNotifyLockout(t *testing.T) {
	sms := &fakeChannel{name: "sms"}
	d, _ := newTestDispatcher(t, sms)

	op := &registry.Operator{
		ID:          "op-1",
		DisplayName: "Field Op",
		Contacts:    []registry.Contact{{Channel: registry.ChannelSMS, Address: "+15550100"}},
	}
	d.NotifyLockout(context.Background(), op, time.Now().Add(15*time.Minute))
	d.Wait()

	if sms.deliveredCount() != 1 {
		t.Fatalf("sms delivered %d, want 1", sms.deliveredCount())
	}
	if kind := sms.delivered[0].Kind; kind != "operator_lockout" {
		t.Errorf("event kind %s, want operator_lockout", kind)
	}
}
