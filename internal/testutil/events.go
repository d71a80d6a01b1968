package testutil

import (
	"time"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// D parses a coverage date and panics on malformed input.
func D(s string) time.Time {
	t, err := enrollment.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// DP is D returning a pointer, for optional end dates.
func DP(s string) *time.Time {
	return enrollment.Ptr(D(s))
}

// EventBuilder builds notices with sensible defaults: plan year 2024
// starting January 1, subscriber sub-1 alone, plan plan-a at carrier-a.
type EventBuilder struct {
	ev        enrollment.Event
	lineage   enrollment.Lineage
	hydrate   bool
	yearFixed bool
}

// Event starts a builder for a notice with the given hbx enrollment id.
func Event(hbx string) *EventBuilder {
	start := D("2024-01-01")
	return &EventBuilder{ev: enrollment.Event{
		HbxEnrollmentID: hbx,
		ActiveYear:      2024,
		SubscriberStart: start,
		SubmittedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SubscriberID:    "sub-1",
		Members:         []enrollment.Member{{ID: "sub-1", Subscriber: true}},
		PlanID:          "plan-a",
		CarrierID:       "carrier-a",
		RatingArea:      "R-1",
	}}
}

// Start sets the subscriber start. The plan year follows the start unless
// Year was called.
func (b *EventBuilder) Start(s string) *EventBuilder {
	b.ev.SubscriberStart = D(s)
	if !b.yearFixed {
		b.ev.ActiveYear = b.ev.SubscriberStart.Year()
	}
	return b
}

// Year forces the plan year.
func (b *EventBuilder) Year(y int) *EventBuilder {
	b.ev.ActiveYear = y
	b.yearFixed = true
	return b
}

// End sets the subscriber end.
func (b *EventBuilder) End(s string) *EventBuilder {
	b.ev.SubscriberEnd = DP(s)
	return b
}

// Term marks the notice as a termination ending on end.
func (b *EventBuilder) Term(end string) *EventBuilder {
	b.ev.IsTermination = true
	b.ev.SubscriberEnd = DP(end)
	return b
}

// TermNoEnd marks the notice as a termination without an end date.
func (b *EventBuilder) TermNoEnd() *EventBuilder {
	b.ev.IsTermination = true
	b.ev.SubscriberEnd = nil
	return b
}

// Cancel marks the notice as a cancel effective on its start date.
func (b *EventBuilder) Cancel() *EventBuilder {
	b.ev.IsTermination = true
	b.ev.IsCancel = true
	b.ev.SubscriberEnd = enrollment.Ptr(b.ev.SubscriberStart)
	return b
}

// NonPayment sets the term-for-non-payment flag.
func (b *EventBuilder) NonPayment() *EventBuilder {
	b.ev.TermForNonPayment = true
	return b
}

// Cobra marks the notice as cobra coverage.
func (b *EventBuilder) Cobra() *EventBuilder {
	b.ev.IsCobra = true
	return b
}

// Shop marks the notice as employer-sponsored under employer.
func (b *EventBuilder) Shop(employer string) *EventBuilder {
	b.ev.IsShop = true
	b.ev.EmployerID = employer
	return b
}

// Subscriber sets the subscriber id and resets members to the subscriber.
func (b *EventBuilder) Subscriber(id string) *EventBuilder {
	b.ev.SubscriberID = id
	b.ev.Members = []enrollment.Member{{ID: id, Subscriber: true}}
	return b
}

// Members sets the covered members. The subscriber is always included.
func (b *EventBuilder) Members(ids ...string) *EventBuilder {
	b.ev.Members = []enrollment.Member{{ID: b.ev.SubscriberID, Subscriber: true}}
	for _, id := range ids {
		if id != b.ev.SubscriberID {
			b.ev.Members = append(b.ev.Members, enrollment.Member{ID: id})
		}
	}
	return b
}

// Tobacco sets the tobacco indicator for member.
func (b *EventBuilder) Tobacco(member, v string) *EventBuilder {
	for i := range b.ev.Members {
		if b.ev.Members[i].ID == member {
			b.ev.Members[i].Tobacco = v
		}
	}
	return b
}

// Plan sets the plan id.
func (b *EventBuilder) Plan(id string) *EventBuilder {
	b.ev.PlanID = id
	return b
}

// Carrier sets the carrier id.
func (b *EventBuilder) Carrier(id string) *EventBuilder {
	b.ev.CarrierID = id
	return b
}

// Rating sets the rating area.
func (b *EventBuilder) Rating(area string) *EventBuilder {
	b.ev.RatingArea = area
	return b
}

// APTC sets the applied premium tax credit in cents.
func (b *EventBuilder) APTC(cents int64) *EventBuilder {
	b.ev.AppliedAPTC = cents
	return b
}

// Submitted sets the submission time (RFC 3339).
func (b *EventBuilder) Submitted(s string) *EventBuilder {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	b.ev.SubmittedAt = t
	return b
}

// Ref sets the existing policy lookup handle.
func (b *EventBuilder) Ref(id string) *EventBuilder {
	b.ev.ExistingPolicyRef = id
	return b
}

// Existing attaches an existing policy.
func (b *EventBuilder) Existing(p *enrollment.Policy) *EventBuilder {
	b.lineage.Policy = p
	b.hydrate = true
	return b
}

// WithPlan attaches the resolved plan.
func (b *EventBuilder) WithPlan(p *enrollment.Plan) *EventBuilder {
	b.lineage.Plan = p
	b.hydrate = true
	return b
}

// History attaches the subscriber's policy history.
func (b *EventBuilder) History(ps ...*enrollment.Policy) *EventBuilder {
	b.lineage.History = ps
	b.hydrate = true
	return b
}

// CarrierProfile attaches a carrier profile.
func (b *EventBuilder) CarrierProfile(c enrollment.Carrier) *EventBuilder {
	b.lineage.Carrier = c
	b.hydrate = true
	return b
}

// Build returns the notice. Members without dates take the subscriber's.
func (b *EventBuilder) Build() *enrollment.Event {
	ev := b.ev
	ev.Members = make([]enrollment.Member, len(b.ev.Members))
	for i, m := range b.ev.Members {
		if m.Start.IsZero() {
			m.Start = ev.SubscriberStart
		}
		ev.Members[i] = m
	}
	if b.hydrate {
		return ev.WithLineage(b.lineage)
	}
	return &ev
}

// PolicyFrom builds the persisted policy a starter notice would create.
func PolicyFrom(ev *enrollment.Event) *enrollment.Policy {
	p := &enrollment.Policy{
		ID:           ev.HbxEnrollmentID,
		SubscriberID: ev.SubscriberID,
		PlanID:       ev.PlanID,
		CarrierID:    ev.CarrierID,
		Year:         ev.ActiveYear,
		IsShop:       ev.IsShop,
		IsCobra:      ev.IsCobra,
		EmployerID:   ev.EmployerID,
		Status:       enrollment.StatusActive,
		Start:        ev.SubscriberStart,
		RatingArea:   ev.RatingArea,
		AppliedAPTC:  ev.AppliedAPTC,
	}
	if ev.SubscriberEnd != nil {
		p.End = enrollment.Ptr(*ev.SubscriberEnd)
	}
	for _, m := range ev.Members {
		p.Members = append(p.Members, enrollment.PolicyMember{
			ID: m.ID, Subscriber: m.Subscriber, Start: m.Start, Tobacco: m.Tobacco,
		})
	}
	return p
}
