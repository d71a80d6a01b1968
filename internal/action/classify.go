package action

import (
	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// Each catalog entry has its own predicate below, written from what the
// action means rather than from what the entries around it exclude. Shapes
// that satisfy more than one predicate are settled by table order: an entry
// only spells out an exclusion when the competing entry comes after it.

func loneTermination(c enrollment.Chunk) (*enrollment.Event, bool) {
	if len(c) != 1 || !c[0].IsTermination {
		return nil, false
	}
	return c[0], true
}

func loneStarter(c enrollment.Chunk) (*enrollment.Event, bool) {
	if len(c) != 1 || c[0].IsTermination {
		return nil, false
	}
	return c[0], true
}

// replacement splits a pair in which a new enrollment for the same
// subscriber takes over from t without a gap.
func replacement(c enrollment.Chunk) (t, a *enrollment.Event, ok bool) {
	t, a, ok = pair(c)
	if !ok || t.HbxEnrollmentID == a.HbxEnrollmentID || t.SubscriberID != a.SubscriberID || !Linked(t, a) {
		return nil, nil, false
	}
	return t, a, true
}

// sameCoverage splits a same-year replacement that stays in the market and
// keeps the cobra flag. Carrier is left to the table: CarrierSwitch sits
// ahead of every entry built on this.
func sameCoverage(c enrollment.Chunk) (t, a *enrollment.Event, ok bool) {
	t, a, ok = replacement(c)
	if !ok || t.ActiveYear != a.ActiveYear || !SameMarket(t, a) || t.IsCobra != a.IsCobra {
		return nil, nil, false
	}
	return t, a, true
}

func onlyAdded(t, a *enrollment.Event) bool {
	added, dropped := MemberDiff(t.AllMemberIDs(), a.AllMemberIDs())
	return len(added) > 0 && len(dropped) == 0
}

func onlyDropped(t, a *enrollment.Event) bool {
	added, dropped := MemberDiff(t.AllMemberIDs(), a.AllMemberIDs())
	return len(dropped) > 0 && len(added) == 0
}

func sameMembers(t, a *enrollment.Event) bool {
	added, dropped := MemberDiff(t.AllMemberIDs(), a.AllMemberIDs())
	return len(added) == 0 && len(dropped) == 0
}

func qualifiesTermination(c enrollment.Chunk) bool {
	t, ok := loneTermination(c)
	return ok && t.Carrier().Reinstates
}

func qualifiesCarrierSpecificTermination(c enrollment.Chunk) bool {
	t, ok := loneTermination(c)
	return ok && !t.Carrier().Reinstates
}

func qualifiesCarrierSwitch(c enrollment.Chunk) bool {
	t, a, ok := replacement(c)
	return ok && t.ActiveYear == a.ActiveYear && t.CarrierID != a.CarrierID
}

// qualifiesCarrierSwitchRenewal accepts a January start renewing prior-year
// coverage held at another carrier, alone or with the year-end termination
// of that coverage.
func qualifiesCarrierSwitchRenewal(c enrollment.Chunk) bool {
	if a, ok := loneStarter(c); ok {
		prior := PriorCoverage(a)
		return prior != nil && prior.CarrierID != a.CarrierID
	}
	t, a, ok := replacement(c)
	return ok && Continuation(t, a) && enrollment.IsYearEnd(*t.SubscriberEnd) &&
		a.ActiveYear == t.ActiveYear+1 && t.CarrierID != a.CarrierID
}

func qualifiesCobraReinstate(c enrollment.Chunk) bool {
	a, ok := loneStarter(c)
	return ok && a.IsCobra && ReinstatementCandidate(a) != nil
}

func qualifiesCobraSwitchover(c enrollment.Chunk) bool {
	t, a, ok := replacement(c)
	return ok && t.ActiveYear == a.ActiveYear && SameMarket(t, a) && !t.IsCobra && a.IsCobra
}

func qualifiesDependentAdd(c enrollment.Chunk) bool {
	t, a, ok := sameCoverage(c)
	return ok && Continuation(t, a) && t.PlanID == a.PlanID && onlyAdded(t, a)
}

func qualifiesDependentDrop(c enrollment.Chunk) bool {
	t, a, ok := sameCoverage(c)
	return ok && Continuation(t, a) && t.PlanID == a.PlanID && onlyDropped(t, a)
}

// qualifiesInitialEnrollment accepts a lone starter that neither reinstates
// at a carrier that allows it nor renews same-carrier coverage with added
// members. Those entries come later in the table.
func qualifiesInitialEnrollment(c enrollment.Chunk) bool {
	a, ok := loneStarter(c)
	if !ok {
		return false
	}
	if ReinstatementCandidate(a) != nil && a.Carrier().Reinstates {
		return false
	}
	return !renewsWithAddedMembers(a)
}

func qualifiesMarketChange(c enrollment.Chunk) bool {
	t, a, ok := replacement(c)
	return ok && t.ActiveYear == a.ActiveYear && !SameMarket(t, a)
}

func qualifiesNewPolicyReinstate(c enrollment.Chunk) bool {
	a, ok := loneStarter(c)
	return ok && a.Carrier().Reinstates && ReinstatementCandidate(a) != nil
}

func qualifiesPlanChangeDependentAdd(c enrollment.Chunk) bool {
	t, a, ok := sameCoverage(c)
	return ok && t.PlanID != a.PlanID && onlyAdded(t, a)
}

func qualifiesPlanChangeDependentDrop(c enrollment.Chunk) bool {
	t, a, ok := sameCoverage(c)
	return ok && t.PlanID != a.PlanID && onlyDropped(t, a)
}

// qualifiesPlanChangeSameCarrier accepts any same-carrier plan change except
// the plain cancel-and-replace, which SimpleProductChange takes further down.
func qualifiesPlanChangeSameCarrier(c enrollment.Chunk) bool {
	t, a, ok := sameCoverage(c)
	if !ok || t.CarrierID != a.CarrierID || t.PlanID == a.PlanID {
		return false
	}
	return !(CancelReplace(t, a) && sameMembers(t, a))
}

func qualifiesRenewalDependentAdd(c enrollment.Chunk) bool {
	a, ok := loneStarter(c)
	return ok && renewsWithAddedMembers(a)
}

func renewsWithAddedMembers(a *enrollment.Event) bool {
	prior := PriorCoverage(a)
	if prior == nil || prior.CarrierID != a.CarrierID {
		return false
	}
	added, _ := MemberDiff(prior.MemberIDs(), a.AllMemberIDs())
	return len(added) > 0
}

func qualifiesRetroAddAndTerm(c enrollment.Chunk) bool {
	t, a, ok := pair(c)
	return ok && t.HbxEnrollmentID == a.HbxEnrollmentID
}

// qualifiesRetroAssistanceChange leaves rating changes to
// TobaccoOrRatingAreaChange, which comes later.
func qualifiesRetroAssistanceChange(c enrollment.Chunk) bool {
	t, a, ok := sameCoverage(c)
	return ok && t.PlanID == a.PlanID && sameMembers(t, a) &&
		t.AppliedAPTC != a.AppliedAPTC && !RatingChanged(t, a)
}

func qualifiesRetroContinuityAndTerm(c enrollment.Chunk) bool {
	return QualifiesAsTriple(c)
}

func qualifiesRetroDependentAddToActive(c enrollment.Chunk) bool {
	t, a, ok := sameCoverage(c)
	return ok && CancelReplace(t, a) && t.PlanID == a.PlanID && onlyAdded(t, a)
}

func qualifiesRetroDependentDropToActive(c enrollment.Chunk) bool {
	t, a, ok := sameCoverage(c)
	return ok && CancelReplace(t, a) && t.PlanID == a.PlanID && onlyDropped(t, a)
}

func qualifiesSimpleProductChange(c enrollment.Chunk) bool {
	t, a, ok := sameCoverage(c)
	return ok && CancelReplace(t, a) && t.CarrierID == a.CarrierID &&
		t.PlanID != a.PlanID && sameMembers(t, a)
}

func qualifiesTobaccoOrRatingAreaChange(c enrollment.Chunk) bool {
	t, a, ok := sameCoverage(c)
	return ok && t.PlanID == a.PlanID && sameMembers(t, a) && RatingChanged(t, a)
}

func qualifiesConcurrentCancelAndTerm(c enrollment.Chunk) bool {
	_, _, ok := concurrentTerms(c)
	return ok
}

// concurrentTerms splits a chunk of a term and the cancel of the policy that
// would have followed it.
func concurrentTerms(c enrollment.Chunk) (term, cancel *enrollment.Event, ok bool) {
	if len(c) != 2 || !c[0].IsTermination || !c[1].IsTermination {
		return nil, nil, false
	}
	term, cancel = c[0], c[1]
	if term.IsCancel {
		term, cancel = cancel, term
	}
	if term.IsCancel || !cancel.IsCancel || term.SubscriberEnd == nil {
		return nil, nil, false
	}
	if term.SubscriberID != cancel.SubscriberID ||
		!enrollment.SameDay(cancel.SubscriberStart, enrollment.NextDay(*term.SubscriberEnd)) {
		return nil, nil, false
	}
	return term, cancel, true
}

// continuityRoles finds the prior-year starter p, the current-year
// termination t, and the January renewal r in any order.
func continuityRoles(c enrollment.Chunk) (t, p, r *enrollment.Event, ok bool) {
	if len(c) != 3 {
		return nil, nil, nil, false
	}
	terms, starters := c.Terms(), c.NonTerms()
	if len(terms) != 1 || len(starters) != 2 {
		return nil, nil, nil, false
	}
	t = terms[0]
	for _, ev := range starters {
		switch ev.ActiveYear {
		case t.ActiveYear - 1:
			p = ev
		case t.ActiveYear:
			r = ev
		}
	}
	if p == nil || r == nil {
		return nil, nil, nil, false
	}
	if t.SubscriberID != p.SubscriberID || t.SubscriberID != r.SubscriberID {
		return nil, nil, nil, false
	}
	if t.HbxEnrollmentID == p.HbxEnrollmentID || t.HbxEnrollmentID == r.HbxEnrollmentID {
		return nil, nil, nil, false
	}
	if !enrollment.IsYearStart(r.SubscriberStart) || !ContinuesPlan(p, r) {
		return nil, nil, nil, false
	}
	if p.SubscriberEnd != nil && !enrollment.SameDay(enrollment.NextDay(*p.SubscriberEnd), r.SubscriberStart) {
		return nil, nil, nil, false
	}
	return t, p, r, true
}

// QualifiesAsTriple reports whether a three-notice window is a single
// transaction.
func QualifiesAsTriple(c enrollment.Chunk) bool {
	_, _, _, ok := continuityRoles(c)
	return ok
}

// IsAdjacentTo reports whether b can share a two-notice chunk with a that
// precedes it: a termination followed by its replacement, or a termination
// followed by the cancel of the coverage that would have continued it.
func IsAdjacentTo(a, b *enrollment.Event) bool {
	if a.SubscriberID != b.SubscriberID || !a.IsTermination {
		return false
	}
	if !b.IsTermination {
		return a.HbxEnrollmentID == b.HbxEnrollmentID || Linked(a, b)
	}
	return !a.IsCancel && b.IsCancel && a.SubscriberEnd != nil &&
		enrollment.SameDay(b.SubscriberStart, enrollment.NextDay(*a.SubscriberEnd))
}
