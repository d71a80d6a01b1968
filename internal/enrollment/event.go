package enrollment

import (
	"slices"
	"time"

	"github.com/ideacrew/gluedb-sub000/internal/ir"
)

// Member is one person named by a notice.
type Member struct {
	ID         string
	Subscriber bool
	Start      time.Time
	End        *time.Time
	Tobacco    string
}

// Lineage is the persisted context resolved for a notice before
// classification.
type Lineage struct {
	// Policy is the existing policy the notice refers to, if any.
	Policy *Policy
	// Plan is the plan named by the notice, if known.
	Plan *Plan
	// History holds every policy of the subscriber, in store order.
	History []*Policy
	// Carrier is the profile of the notice's carrier.
	Carrier Carrier
}

// Event is one inbound enrollment notice after parsing.
type Event struct {
	HbxEnrollmentID   string
	EventGroupID      string
	ActiveYear        int
	IsTermination     bool
	IsCancel          bool
	IsCobra           bool
	IsShop            bool
	TermForNonPayment bool
	SubscriberStart   time.Time
	SubscriberEnd     *time.Time
	SubmittedAt       time.Time
	SubscriberID      string
	Members           []Member
	PlanID            string
	CarrierID         string
	RatingArea        string
	AppliedAPTC       int64
	EmployerID        string
	ExistingPolicyRef string

	lineage Lineage
}

// WithLineage returns a copy of the event carrying lin.
func (e *Event) WithLineage(lin Lineage) *Event {
	c := *e
	c.lineage = lin
	return &c
}

// PolicyRef is the lookup handle for the existing policy.
func (e *Event) PolicyRef() string {
	if e.ExistingPolicyRef != "" {
		return e.ExistingPolicyRef
	}
	return e.HbxEnrollmentID
}

// ExistingPolicy returns the hydrated policy, or nil.
func (e *Event) ExistingPolicy() *Policy { return e.lineage.Policy }

// ExistingPlan returns the hydrated plan, or nil.
func (e *Event) ExistingPlan() *Plan { return e.lineage.Plan }

// History returns the subscriber's policies.
func (e *Event) History() []*Policy { return e.lineage.History }

// Carrier returns the carrier profile, falling back to the default profile.
func (e *Event) Carrier() Carrier {
	if e.lineage.Carrier.ID == "" {
		return DefaultCarrier(e.CarrierID)
	}
	return e.lineage.Carrier
}

// AllMemberIDs returns the sorted member ids.
func (e *Event) AllMemberIDs() []string {
	ids := make([]string, 0, len(e.Members))
	for _, m := range e.Members {
		ids = append(ids, m.ID)
	}
	slices.Sort(ids)
	return ids
}

// TobaccoUsageByMember maps member id to tobacco indicator.
func (e *Event) TobaccoUsageByMember() map[string]string {
	out := make(map[string]string, len(e.Members))
	for _, m := range e.Members {
		out[m.ID] = m.Tobacco
	}
	return out
}

// Ends reports whether the notice carries a concrete end date.
func (e *Event) Ends() bool {
	return e.SubscriberEnd != nil
}

// ContentHash identifies the notice by content. Submission time and the
// correlation id are excluded so a resubmitted notice hashes the same.
func (e *Event) ContentHash() string {
	return ir.MustContentHash(ir.DomainNotice, e.contentValue())
}

func (e *Event) contentValue() ir.Object {
	members := make(ir.List, 0, len(e.Members))
	for _, m := range e.Members {
		mo := ir.Object{
			"id":         ir.String(m.ID),
			"subscriber": ir.Bool(m.Subscriber),
			"start":      ir.String(FormatDate(m.Start)),
			"tobacco":    ir.String(m.Tobacco),
		}
		if m.End != nil {
			mo["end"] = ir.String(FormatDate(*m.End))
		}
		members = append(members, mo)
	}
	obj := ir.Object{
		"hbx_enrollment_id":    ir.String(e.HbxEnrollmentID),
		"active_year":          ir.Int(e.ActiveYear),
		"termination":          ir.Bool(e.IsTermination),
		"cancel":               ir.Bool(e.IsCancel),
		"cobra":                ir.Bool(e.IsCobra),
		"shop":                 ir.Bool(e.IsShop),
		"term_for_non_payment": ir.Bool(e.TermForNonPayment),
		"subscriber_start":     ir.String(FormatDate(e.SubscriberStart)),
		"subscriber_id":        ir.String(e.SubscriberID),
		"members":              members,
		"plan_id":              ir.String(e.PlanID),
		"carrier_id":           ir.String(e.CarrierID),
		"rating_area":          ir.String(e.RatingArea),
		"applied_aptc":         ir.Int(e.AppliedAPTC),
		"employer_id":          ir.String(e.EmployerID),
	}
	if e.SubscriberEnd != nil {
		obj["subscriber_end"] = ir.String(FormatDate(*e.SubscriberEnd))
	}
	return obj
}
