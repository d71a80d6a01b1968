package filter

import (
	"context"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// bogusRule compares one notice against the rest of its batch.
type bogusRule struct {
	name  string
	bogus func(ev *enrollment.Event, batch []*enrollment.Event) bool
}

var bogusRules = []bogusRule{
	{name: "bogus_plan_year", bogus: bogusPlanYear},
	{name: "bogus_term", bogus: bogusTerm},
	{name: "bogus_renewal_term", bogus: bogusRenewalTerm},
}

// DropBogus removes self-contradictory notices. Each notice is judged
// against the full input batch; dropped notices are acknowledged as dropped.
func (p *Pipeline) DropBogus(ctx context.Context, events []*enrollment.Event) ([]*enrollment.Event, error) {
	kept := make([]*enrollment.Event, 0, len(events))
	for _, ev := range events {
		reason := ""
		for _, r := range bogusRules {
			if r.bogus(ev, events) {
				reason = r.name
				break
			}
		}
		if reason == "" {
			kept = append(kept, ev)
			continue
		}
		if err := p.acknowledge(ctx, ev, enrollment.DispositionDropped, reason); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

// bogusPlanYear: coverage starts outside the plan year the notice claims.
func bogusPlanYear(ev *enrollment.Event, _ []*enrollment.Event) bool {
	return ev.ActiveYear != ev.SubscriberStart.Year()
}

// bogusTerm: a termination with nothing to terminate, neither a persisted
// policy nor a starter for the same enrollment in the batch.
func bogusTerm(ev *enrollment.Event, batch []*enrollment.Event) bool {
	if !ev.IsTermination || ev.ExistingPolicy() != nil {
		return false
	}
	for _, other := range batch {
		if other != ev && !other.IsTermination && other.HbxEnrollmentID == ev.HbxEnrollmentID {
			return false
		}
	}
	return true
}

// bogusRenewalTerm: a year-end termination sent after the same carrier's
// renewal for the following year was already submitted. The renewal
// supersedes it.
func bogusRenewalTerm(ev *enrollment.Event, batch []*enrollment.Event) bool {
	if !ev.IsTermination || ev.IsCancel || ev.SubscriberEnd == nil || !enrollment.IsYearEnd(*ev.SubscriberEnd) {
		return false
	}
	for _, r := range batch {
		if r.IsTermination || r.SubscriberID != ev.SubscriberID || r.CarrierID != ev.CarrierID {
			continue
		}
		if enrollment.SameDay(r.SubscriberStart, enrollment.NextDay(*ev.SubscriberEnd)) && r.SubmittedAt.Before(ev.SubmittedAt) {
			return true
		}
	}
	return false
}
