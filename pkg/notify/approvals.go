package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/fieldgate/pkg/approval"
	"github.com/dd0wney/fieldgate/pkg/registry"
)

// NotifyApproval alerts the candidate approvers for a pending request.
// Escalated requests carry the previous level in the body so an approver
// sees why the request landed on them.
func (d *Dispatcher) NotifyApproval(req *approval.Request, approvers []*registry.Operator, escalated bool) {
	kind := "approval_requested"
	subject := fmt.Sprintf("Approval needed: plan %s (%s)", req.PlanID, req.Tier)
	if escalated {
		kind = "approval_escalated"
		subject = fmt.Sprintf("ESCALATED to level %d: plan %s (%s)", req.Level, req.PlanID, req.Tier)
	}

	event := &Event{
		Kind:       kind,
		Subject:    subject,
		Body:       fmt.Sprintf("Plan %s awaits a level %d decision by %s.", req.PlanID, req.Level, req.Deadline.Format(time.RFC3339)),
		SessionID:  req.SessionID,
		IncidentID: req.IncidentID,
		ApprovalID: req.ID,
		Critical:   escalated,
	}

	names := d.contactFanout(event, approvers)
	d.Send(context.Background(), event, names)
}

// NotifyOutcome announces a terminal decision on the chat channel
func (d *Dispatcher) NotifyOutcome(req *approval.Request, approved bool) {
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	event := &Event{
		Kind:       "approval_decided",
		Subject:    fmt.Sprintf("Plan %s %s", req.PlanID, decision),
		Body:       fmt.Sprintf("Plan %s was %s at level %d by %s.", req.PlanID, decision, req.Level, req.ResolverID),
		SessionID:  req.SessionID,
		IncidentID: req.IncidentID,
		ApprovalID: req.ID,
	}
	d.Send(context.Background(), event, []string{string(registry.ChannelChat)})
}

// NotifyCriticalExpiry fires when a request dies unanswered at the maximum
// level. Goes to every channel; the zone's emergency contact is included
// when known.
func (d *Dispatcher) NotifyCriticalExpiry(req *approval.Request, emergencyContact string) {
	event := &Event{
		Kind:       "approval_expired",
		Subject:    fmt.Sprintf("UNANSWERED at max level: plan %s (%s)", req.PlanID, req.Tier),
		Body:       fmt.Sprintf("Plan %s expired at level %d with no decision. Manual intervention required.", req.PlanID, req.Level),
		SessionID:  req.SessionID,
		IncidentID: req.IncidentID,
		ApprovalID: req.ID,
		Critical:   true,
	}
	if emergencyContact != "" {
		event.Recipients = append(event.Recipients, emergencyContact)
	}
	d.Send(context.Background(), event, d.allChannelNames())
}

// contactFanout fills event recipients from the operators' contacts and
// returns the channel names to use. Operators without contacts fall back
// to a broadcast on every channel.
func (d *Dispatcher) contactFanout(event *Event, operators []*registry.Operator) []string {
	seen := make(map[string]bool)
	var names []string
	for _, op := range operators {
		for _, c := range op.Contacts {
			event.Recipients = append(event.Recipients, c.Address)
			if !seen[string(c.Channel)] {
				seen[string(c.Channel)] = true
				names = append(names, string(c.Channel))
			}
		}
	}
	if len(names) == 0 {
		names = d.allChannelNames()
	}
	return names
}
