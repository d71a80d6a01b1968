package action

import (
	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// wholeBatch holds compound multi-year actions matched against an entire
// batch before it is ordered. It is deliberately small.
var wholeBatch = []*Descriptor{
	{
		Kind:      KindPriorYearPurchaseRenewalCancel,
		Name:      KindPriorYearPurchaseRenewalCancel.String(),
		URI:       enrollment.URIInitial,
		Arities:   two,
		qualifies: func(c enrollment.Chunk) bool {
			_, _, ok := priorYearPurchaseRoles(c)
			return ok
		},
		persist:   persistPriorYearPurchaseRenewalCancel,
		documents: docsPriorYearPurchaseRenewalCancel,
	},
}

// MatchBatch tests the whole batch, in arrival order, against the
// whole-batch catalog.
func MatchBatch(events []*enrollment.Event) (*Descriptor, enrollment.Chunk, bool) {
	c := enrollment.Chunk(events)
	for _, d := range wholeBatch {
		if d.Qualifies(c) {
			return d, c, true
		}
	}
	return nil, nil, false
}

// priorYearPurchaseRoles matches a purchase of last year's coverage sent
// together with the cancel of this year's January renewal.
func priorYearPurchaseRoles(c enrollment.Chunk) (cancel, purchase *enrollment.Event, ok bool) {
	t, p, ok := pair(c)
	if !ok || !t.IsCancel || t.ExistingPolicy() == nil {
		return nil, nil, false
	}
	if t.SubscriberID != p.SubscriberID || p.ActiveYear != t.ActiveYear-1 {
		return nil, nil, false
	}
	if !enrollment.IsYearStart(t.SubscriberStart) {
		return nil, nil, false
	}
	return t, p, true
}
