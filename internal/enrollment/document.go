package enrollment

import (
	"slices"
	"time"

	"github.com/ideacrew/gluedb-sub000/internal/ir"
)

// Outbound action URIs. These are a wire contract and must not change.
const (
	URIInitial                   = "#initial"
	URITerminateEnrollment       = "#terminate_enrollment"
	URIChangeMemberAdd           = "#change_member_add"
	URIChangeMemberTerminate     = "#change_member_terminate"
	URIChangeProduct             = "#change_product"
	URIChangeProductMemberAdd    = "#change_product_member_add"
	URIChangeFinancialAssistance = "#change_financial_assistance"
	URIAutoRenew                 = "#auto_renew"
	URIActiveRenewMemberAdd      = "#active_renew_member_add"
	URIReinstateEnrollment       = "#reinstate_enrollment"
)

// Document is one outbound confirmation.
type Document struct {
	Action          string
	HbxEnrollmentID string
	PolicyID        string
	EmployerID      string
	CarrierID       string
	SubscriberID    string
	MemberStarts    map[string]time.Time
	MemberEnds      map[string]time.Time
	// AffectedMembers limits the confirmation to a subset of members.
	// Empty means every member.
	AffectedMembers []string
}

// NewDocument builds a confirmation for ev, taking member dates from the
// notice.
func NewDocument(action string, ev *Event, policyID string) Document {
	d := Document{
		Action:          action,
		HbxEnrollmentID: ev.HbxEnrollmentID,
		PolicyID:        policyID,
		EmployerID:      ev.EmployerID,
		CarrierID:       ev.CarrierID,
		SubscriberID:    ev.SubscriberID,
		MemberStarts:    make(map[string]time.Time, len(ev.Members)),
		MemberEnds:      make(map[string]time.Time),
	}
	for _, m := range ev.Members {
		d.MemberStarts[m.ID] = m.Start
		switch {
		case m.End != nil:
			d.MemberEnds[m.ID] = *m.End
		case ev.SubscriberEnd != nil:
			d.MemberEnds[m.ID] = *ev.SubscriberEnd
		}
	}
	return d
}

// WithAffected returns a copy limited to ids.
func (d Document) WithAffected(ids []string) Document {
	d.AffectedMembers = slices.Clone(ids)
	slices.Sort(d.AffectedMembers)
	return d
}

// Value converts the document to its canonical form.
func (d Document) Value() ir.Object {
	starts := make(ir.Object, len(d.MemberStarts))
	for id, t := range d.MemberStarts {
		starts[id] = ir.String(FormatDate(t))
	}
	ends := make(ir.Object, len(d.MemberEnds))
	for id, t := range d.MemberEnds {
		ends[id] = ir.String(FormatDate(t))
	}
	obj := ir.Object{
		"action":            ir.String(d.Action),
		"hbx_enrollment_id": ir.String(d.HbxEnrollmentID),
		"policy_id":         ir.String(d.PolicyID),
		"carrier_id":        ir.String(d.CarrierID),
		"subscriber_id":     ir.String(d.SubscriberID),
		"member_starts":     starts,
		"member_ends":       ends,
	}
	if d.EmployerID != "" {
		obj["employer_id"] = ir.String(d.EmployerID)
	}
	if len(d.AffectedMembers) > 0 {
		obj["affected_members"] = ir.Strings(d.AffectedMembers)
	}
	return obj
}

// Render returns the canonical JSON encoding.
func (d Document) Render() ([]byte, error) {
	return ir.MarshalCanonical(d.Value())
}

// Hash identifies the rendered document.
func (d Document) Hash() (string, error) {
	return ir.ContentHash(ir.DomainDocument, d.Value())
}

// Marker is the durable idempotency record written for each notice bound to
// a persisted action.
type Marker struct {
	HbxEnrollmentID string
	ActionURI       string
	ContentHash     string
}

// MarkerFor builds the marker for ev under actionURI.
func MarkerFor(ev *Event, actionURI string) Marker {
	return Marker{
		HbxEnrollmentID: ev.HbxEnrollmentID,
		ActionURI:       actionURI,
		ContentHash:     ev.ContentHash(),
	}
}
