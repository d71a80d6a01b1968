package action

import (
	"slices"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// MemberDiff returns the member ids present only in next (added) and only in
// prev (dropped), both sorted.
func MemberDiff(prev, next []string) (added, dropped []string) {
	for _, id := range next {
		if !slices.Contains(prev, id) {
			added = append(added, id)
		}
	}
	for _, id := range prev {
		if !slices.Contains(next, id) {
			dropped = append(dropped, id)
		}
	}
	slices.Sort(added)
	slices.Sort(dropped)
	return added, dropped
}

// Continuation reports whether a picks up the day after t ends.
func Continuation(t, a *enrollment.Event) bool {
	return !t.IsCancel && t.SubscriberEnd != nil &&
		enrollment.SameDay(a.SubscriberStart, enrollment.NextDay(*t.SubscriberEnd))
}

// CancelReplace reports whether a replaces the canceled t from the same
// start date.
func CancelReplace(t, a *enrollment.Event) bool {
	return t.IsCancel && enrollment.SameDay(a.SubscriberStart, t.SubscriberStart)
}

// Linked reports whether a replaces t without a coverage gap.
func Linked(t, a *enrollment.Event) bool {
	return Continuation(t, a) || CancelReplace(t, a)
}

// SameMarket reports whether both notices are in the same market: both
// individual, or both employer-sponsored by the same employer.
func SameMarket(a, b *enrollment.Event) bool {
	return a.IsShop == b.IsShop && a.EmployerID == b.EmployerID
}

// RatingChanged reports whether rating area or any member's tobacco use
// differs between t and a.
func RatingChanged(t, a *enrollment.Event) bool {
	if t.RatingArea != a.RatingArea {
		return true
	}
	prev := t.TobaccoUsageByMember()
	for id, v := range a.TobaccoUsageByMember() {
		if old, ok := prev[id]; ok && old != v {
			return true
		}
	}
	return false
}

// PriorCoverage returns the subscriber's prior-year policy that a renews:
// a starts January 1 and the policy covers the whole of the previous year's
// end in the same market. A same-carrier policy is preferred.
func PriorCoverage(a *enrollment.Event) *enrollment.Policy {
	if !enrollment.IsYearStart(a.SubscriberStart) {
		return nil
	}
	var other *enrollment.Policy
	for _, p := range a.History() {
		if p.Year != a.ActiveYear-1 || p.IsCanceled() || !p.RunsThroughYearEnd() {
			continue
		}
		if p.IsShop != a.IsShop || p.EmployerID != a.EmployerID {
			continue
		}
		if p.CarrierID == a.CarrierID {
			return p
		}
		if other == nil {
			other = p
		}
	}
	return other
}

// ReinstatementCandidate returns the terminated policy a would resume: same
// plan and year, ended the day before a starts.
func ReinstatementCandidate(a *enrollment.Event) *enrollment.Policy {
	for _, p := range a.History() {
		if p.Status != enrollment.StatusTerminated || p.End == nil {
			continue
		}
		if p.Year == a.ActiveYear && p.PlanID == a.PlanID &&
			enrollment.SameDay(*p.End, enrollment.PrevDay(a.SubscriberStart)) {
			return p
		}
	}
	return nil
}

// ContinuesPlan reports whether r carries p forward into the next year:
// r's plan is p's renewal plan, or the same carrier when the renewal plan
// is unknown.
func ContinuesPlan(p, r *enrollment.Event) bool {
	if plan := p.ExistingPlan(); plan != nil && plan.RenewalPlanID != "" {
		return r.PlanID == plan.RenewalPlanID
	}
	return r.CarrierID == p.CarrierID
}

// NotificationExempt reports whether a termination can skip the
// policy-updated notification: the non-payment flag is unchanged and the
// policy ends on December 31.
func NotificationExempt(t *enrollment.Event, pol *enrollment.Policy) bool {
	if t.TermForNonPayment != pol.TermForNonPayment {
		return false
	}
	return t.SubscriberEnd != nil && enrollment.IsYearEnd(*t.SubscriberEnd)
}

// pair splits a two-notice chunk into its termination and starter.
func pair(c enrollment.Chunk) (t, a *enrollment.Event, ok bool) {
	if len(c) != 2 {
		return nil, nil, false
	}
	switch {
	case c[0].IsTermination && !c[1].IsTermination:
		return c[0], c[1], true
	case c[1].IsTermination && !c[0].IsTermination:
		return c[1], c[0], true
	}
	return nil, nil, false
}
