// Package causal orders one correlated batch of notices.
//
// Every pair of notices is compared with a fixed precedence cascade to
// decide whether one must be applied before the other. The resulting graph
// is linearised with Kahn's algorithm, always releasing the ready notice
// that appeared first in the input, so ties keep their arrival order.
//
// The cascade is expected to produce a DAG. A cycle means the data or the
// rules are inconsistent and is reported as a CycleError; it is never
// resolved silently.
package causal

import (
	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// Graph is the precedence graph over one batch. Nodes are input indices.
type Graph struct {
	events []*enrollment.Event
	succ   [][]int
}

// Build compares every pair of events and records the edges.
func Build(events []*enrollment.Event) *Graph {
	g := &Graph{
		events: events,
		succ:   make([][]int, len(events)),
	}
	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			switch Precedes(events[i], events[j]) {
			case -1:
				g.succ[i] = append(g.succ[i], j)
			case 1:
				g.succ[j] = append(g.succ[j], i)
			}
		}
	}
	return g
}

// Edges returns every edge as (from, to) input indices.
func (g *Graph) Edges() [][2]int {
	var out [][2]int
	for from, tos := range g.succ {
		for _, to := range tos {
			out = append(out, [2]int{from, to})
		}
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.events) }

// Order returns the canonical linear order.
func (g *Graph) Order() ([]*enrollment.Event, error) {
	n := len(g.events)
	indeg := make([]int, n)
	for _, tos := range g.succ {
		for _, to := range tos {
			indeg[to]++
		}
	}
	done := make([]bool, n)
	out := make([]*enrollment.Event, 0, n)
	for len(out) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && indeg[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, g.cycleError()
		}
		done[next] = true
		out = append(out, g.events[next])
		for _, to := range g.succ[next] {
			indeg[to]--
		}
	}
	return out, nil
}

// Order builds the graph for events and linearises it.
func Order(events []*enrollment.Event) ([]*enrollment.Event, error) {
	return Build(events).Order()
}

// Precedes applies the ordering cascade to a pair. It returns -1 when a
// must come first, 1 when b must come first, and 0 when order is immaterial.
func Precedes(a, b *enrollment.Event) int {
	// Same enrollment: terminations before anything else, nothing more.
	if a.HbxEnrollmentID == b.HbxEnrollmentID {
		switch {
		case a.IsTermination && !b.IsTermination:
			return -1
		case b.IsTermination && !a.IsTermination:
			return 1
		}
		return 0
	}

	if a.ActiveYear != b.ActiveYear {
		if a.ActiveYear < b.ActiveYear {
			return -1
		}
		return 1
	}

	if termBeforeRenewal(a, b) {
		return -1
	}
	if termBeforeRenewal(b, a) {
		return 1
	}

	if c := a.SubscriberStart.Compare(b.SubscriberStart); c != 0 {
		return c
	}

	switch {
	case a.SubscriberEnd == nil && b.SubscriberEnd == nil:
		return 0
	case a.SubscriberEnd == nil:
		return 1
	case b.SubscriberEnd == nil:
		return -1
	}
	return a.SubscriberEnd.Compare(*b.SubscriberEnd)
}

// termBeforeRenewal: t ends the day before r starts and was submitted no
// later than r. When t starts before it ends the start comparison already
// puts t first, so the rule only decides for a retro termination whose end
// precedes its own start. There submission order picks the winner: a
// termination sent after the renewal falls through to the start comparison.
func termBeforeRenewal(t, r *enrollment.Event) bool {
	if !t.IsTermination || r.IsTermination || t.SubscriberEnd == nil {
		return false
	}
	return enrollment.SameDay(r.SubscriberStart, enrollment.NextDay(*t.SubscriberEnd)) &&
		!t.SubmittedAt.After(r.SubmittedAt)
}
