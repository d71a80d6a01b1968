package engine

import (
	"context"
	"fmt"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// hydrate attaches lineage to every notice. Subscriber history is looked up
// once per subscriber per batch.
func (e *Engine) hydrate(ctx context.Context, events []*enrollment.Event) ([]*enrollment.Event, error) {
	history := make(map[string][]*enrollment.Policy)
	out := make([]*enrollment.Event, 0, len(events))
	for _, ev := range events {
		var lin enrollment.Lineage

		pol, ok, err := e.deps.Policies.FindPolicy(ctx, ev.PolicyRef())
		if err != nil {
			return nil, fmt.Errorf("find policy %s: %w", ev.PolicyRef(), err)
		}
		if ok {
			lin.Policy = pol
		}

		if ev.PlanID != "" {
			plan, ok, err := e.deps.Policies.FindPlan(ctx, ev.PlanID)
			if err != nil {
				return nil, fmt.Errorf("find plan %s: %w", ev.PlanID, err)
			}
			if ok {
				lin.Plan = plan
			}
		}

		h, seen := history[ev.SubscriberID]
		if !seen {
			h, err = e.deps.Policies.PoliciesForSubscriber(ctx, ev.SubscriberID)
			if err != nil {
				return nil, fmt.Errorf("subscriber history %s: %w", ev.SubscriberID, err)
			}
			history[ev.SubscriberID] = h
		}
		lin.History = h
		lin.Carrier = e.carrier(ev.CarrierID)

		out = append(out, ev.WithLineage(lin))
	}
	return out, nil
}

func (e *Engine) carrier(id string) enrollment.Carrier {
	if e.deps.Carriers != nil {
		if c, ok := e.deps.Carriers.Carrier(id); ok {
			return c
		}
	}
	return enrollment.DefaultCarrier(id)
}
