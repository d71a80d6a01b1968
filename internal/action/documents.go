package action

import (
	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

func (r *Resolved) doc(uri string, ev *enrollment.Event) enrollment.Document {
	return enrollment.NewDocument(uri, ev, r.policyID(ev))
}

func (r *Resolved) added() []string {
	added, _ := MemberDiff(r.Termination.AllMemberIDs(), r.Action.AllMemberIDs())
	return added
}

func (r *Resolved) dropped() []string {
	_, dropped := MemberDiff(r.Termination.AllMemberIDs(), r.Action.AllMemberIDs())
	return dropped
}

func docsTermination(r *Resolved) []enrollment.Document {
	return []enrollment.Document{r.doc(enrollment.URITerminateEnrollment, r.Termination)}
}

func docsTermAndInitial(r *Resolved) []enrollment.Document {
	return []enrollment.Document{
		r.doc(enrollment.URITerminateEnrollment, r.Termination),
		r.doc(enrollment.URIInitial, r.Action),
	}
}

func docsCarrierSwitchRenewal(r *Resolved) []enrollment.Document {
	if r.Termination != nil {
		return docsTermAndInitial(r)
	}
	return []enrollment.Document{r.doc(enrollment.URIInitial, r.Action)}
}

func docsReinstate(r *Resolved) []enrollment.Document {
	return []enrollment.Document{r.doc(enrollment.URIReinstateEnrollment, r.Action)}
}

func docsInitialOnly(r *Resolved) []enrollment.Document {
	return []enrollment.Document{r.doc(enrollment.URIInitial, r.Action)}
}

func docsMemberAdd(r *Resolved) []enrollment.Document {
	return []enrollment.Document{
		r.doc(enrollment.URIChangeMemberAdd, r.Action).WithAffected(r.added()),
	}
}

func docsMemberDrop(r *Resolved) []enrollment.Document {
	return []enrollment.Document{
		r.doc(enrollment.URIChangeMemberTerminate, r.Termination).WithAffected(r.dropped()),
	}
}

func docsPlanChangeMemberAdd(r *Resolved) []enrollment.Document {
	return []enrollment.Document{r.doc(enrollment.URIChangeProductMemberAdd, r.Action)}
}

func docsPlanChangeMemberDrop(r *Resolved) []enrollment.Document {
	return []enrollment.Document{
		r.doc(enrollment.URIChangeMemberTerminate, r.Termination).WithAffected(r.dropped()),
		r.doc(enrollment.URIChangeProduct, r.Action),
	}
}

func docsProductChange(r *Resolved) []enrollment.Document {
	return []enrollment.Document{r.doc(enrollment.URIChangeProduct, r.Action)}
}

func docsRetroAddAndTerm(r *Resolved) []enrollment.Document {
	return []enrollment.Document{
		r.doc(enrollment.URIInitial, r.Action),
		r.doc(enrollment.URITerminateEnrollment, r.Termination),
	}
}

func docsAssistance(r *Resolved) []enrollment.Document {
	return []enrollment.Document{r.doc(enrollment.URIChangeFinancialAssistance, r.Action)}
}

func docsConcurrentCancelAndTerm(r *Resolved) []enrollment.Document {
	return []enrollment.Document{
		r.doc(enrollment.URITerminateEnrollment, r.Termination),
		r.doc(enrollment.URITerminateEnrollment, r.AdditionalAction),
	}
}

// docsInitial publishes an auto-renewal when same-carrier coverage from the
// previous year carries into this one.
func docsInitial(r *Resolved) []enrollment.Document {
	uri := enrollment.URIInitial
	if prior := PriorCoverage(r.Action); prior != nil && prior.CarrierID == r.Action.CarrierID {
		uri = enrollment.URIAutoRenew
	}
	return []enrollment.Document{r.doc(uri, r.Action)}
}

func docsRenewalMemberAdd(r *Resolved) []enrollment.Document {
	a := r.Action
	var added []string
	if prior := PriorCoverage(a); prior != nil {
		added, _ = MemberDiff(prior.MemberIDs(), a.AllMemberIDs())
	}
	return []enrollment.Document{r.doc(enrollment.URIActiveRenewMemberAdd, a).WithAffected(added)}
}

func docsRetroContinuity(r *Resolved) []enrollment.Document {
	return []enrollment.Document{
		r.doc(enrollment.URITerminateEnrollment, r.Termination),
		r.doc(enrollment.URIInitial, r.Action),
		r.doc(enrollment.URIAutoRenew, r.AdditionalAction),
	}
}

func docsPriorYearPurchaseRenewalCancel(r *Resolved) []enrollment.Document {
	return []enrollment.Document{
		r.doc(enrollment.URIInitial, r.Action),
		r.doc(enrollment.URITerminateEnrollment, r.Termination),
	}
}
