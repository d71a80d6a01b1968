// Package filter drops stale, duplicate, and malformed notices before the
// batch is ordered and classified.
//
// Stages run in a fixed order. Every dropped notice is acknowledged upstream
// with a disposition explaining why; a drop is never an error.
package filter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// stage is one drop rule of the pipeline.
type stage struct {
	name        string
	disposition enrollment.Disposition
	drop        func(ctx context.Context, ev *enrollment.Event) (bool, error)
}

// Pipeline is the ordered chain of drop rules plus deduplication.
type Pipeline struct {
	ack    enrollment.Acknowledger
	stages []stage
}

// New creates a pipeline. markers backs the AlreadyProcessed stage; ack
// receives a disposition for every dropped notice and may be nil.
func New(markers enrollment.Markers, ack enrollment.Acknowledger) *Pipeline {
	p := &Pipeline{ack: ack}
	p.stages = []stage{
		{
			name:        "already_processed",
			disposition: enrollment.DispositionAlreadyProcessed,
			drop: func(ctx context.Context, ev *enrollment.Event) (bool, error) {
				return markers.Seen(ctx, ev.HbxEnrollmentID, ev.ContentHash())
			},
		},
		{
			name:        "termination_already_processed_by_carrier",
			disposition: enrollment.DispositionAlreadyProcessed,
			drop:        pure(terminatedByCarrier),
		},
		{
			name:        "termination_without_end",
			disposition: enrollment.DispositionDropped,
			drop:        pure(terminationWithoutEnd),
		},
		{
			name:        "already_processed_termination",
			disposition: enrollment.DispositionAlreadyProcessed,
			drop:        pure(alreadyProcessedTermination),
		},
	}
	return p
}

func pure(fn func(*enrollment.Event) bool) func(context.Context, *enrollment.Event) (bool, error) {
	return func(_ context.Context, ev *enrollment.Event) (bool, error) {
		return fn(ev), nil
	}
}

// Filter runs every drop stage, then deduplication, and returns the
// survivors in input order.
func (p *Pipeline) Filter(ctx context.Context, events []*enrollment.Event) ([]*enrollment.Event, error) {
	survivors := events
	for _, st := range p.stages {
		kept := make([]*enrollment.Event, 0, len(survivors))
		for _, ev := range survivors {
			drop, err := st.drop(ctx, ev)
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", st.name, err)
			}
			if !drop {
				kept = append(kept, ev)
				continue
			}
			if err := p.acknowledge(ctx, ev, st.disposition, st.name); err != nil {
				return nil, err
			}
		}
		survivors = kept
	}

	groups, err := p.Deduplicate(ctx, survivors)
	if err != nil {
		return nil, err
	}
	out := make([]*enrollment.Event, 0, len(groups))
	for _, g := range groups {
		out = append(out, g...)
	}
	return out, nil
}

// Deduplicate buckets events by content hash in order of first appearance.
// The first event of each bucket survives; the rest are acknowledged as
// duplicates. One group is returned per bucket.
func (p *Pipeline) Deduplicate(ctx context.Context, events []*enrollment.Event) ([][]*enrollment.Event, error) {
	index := make(map[string]int, len(events))
	var groups [][]*enrollment.Event
	for _, ev := range events {
		h := ev.ContentHash()
		if i, ok := index[h]; ok {
			if err := p.acknowledge(ctx, ev, enrollment.DispositionDuplicate,
				"duplicate of "+groups[i][0].HbxEnrollmentID); err != nil {
				return nil, err
			}
			continue
		}
		index[h] = len(groups)
		groups = append(groups, []*enrollment.Event{ev})
	}
	return groups, nil
}

func (p *Pipeline) acknowledge(ctx context.Context, ev *enrollment.Event, d enrollment.Disposition, reason string) error {
	slog.Debug("notice dropped",
		"hbx_enrollment_id", ev.HbxEnrollmentID,
		"disposition", string(d),
		"reason", reason,
	)
	if p.ack == nil {
		return nil
	}
	if err := p.ack.Acknowledge(ctx, ev, d, reason); err != nil {
		return fmt.Errorf("acknowledge %s: %w", ev.HbxEnrollmentID, err)
	}
	return nil
}

// terminatedByCarrier: the carrier already terminated the target policy for
// non-payment, so there is nothing for the exchange to apply.
func terminatedByCarrier(ev *enrollment.Event) bool {
	pol := ev.ExistingPolicy()
	return ev.IsTermination && pol != nil && pol.IsTerminated() && pol.TermForNonPayment
}

func terminationWithoutEnd(ev *enrollment.Event) bool {
	return ev.IsTermination && ev.SubscriberEnd == nil
}

func alreadyProcessedTermination(ev *enrollment.Event) bool {
	pol := ev.ExistingPolicy()
	if !ev.IsTermination || pol == nil || !pol.IsTerminated() {
		return false
	}
	return !IsReterminationWithEarlierDate(ev, pol)
}

// IsReterminationWithEarlierDate reports whether ev moves the end of an
// already terminated policy to an earlier date.
func IsReterminationWithEarlierDate(ev *enrollment.Event, pol *enrollment.Policy) bool {
	if ev.SubscriberEnd == nil || pol.End == nil || pol.IsCanceled() {
		return false
	}
	return ev.SubscriberEnd.Before(*pol.End)
}
