package enrollment

import (
	"slices"
	"time"
)

// PolicyStatus is the lifecycle state of a persisted policy.
type PolicyStatus string

const (
	StatusActive     PolicyStatus = "active"
	StatusTerminated PolicyStatus = "terminated"
	StatusCanceled   PolicyStatus = "canceled"
)

// PolicyMember is one covered person on a policy.
type PolicyMember struct {
	ID         string
	Subscriber bool
	Start      time.Time
	End        *time.Time
	Tobacco    string
}

// Policy is the persisted coverage record a notice may refer to.
// ID is the hbx enrollment id of the notice that created it.
type Policy struct {
	ID                string
	SubscriberID      string
	PlanID            string
	CarrierID         string
	Year              int
	IsShop            bool
	IsCobra           bool
	EmployerID        string
	Status            PolicyStatus
	Start             time.Time
	End               *time.Time
	TermForNonPayment bool
	RatingArea        string
	AppliedAPTC       int64
	Members           []PolicyMember
}

// IsCanceled reports whether the policy was canceled (never in force).
func (p *Policy) IsCanceled() bool {
	return p.Status == StatusCanceled
}

// IsTerminated reports whether the policy was terminated or canceled.
func (p *Policy) IsTerminated() bool {
	return p.Status == StatusTerminated || p.Status == StatusCanceled
}

// OpenEnded reports whether the policy has no end date.
func (p *Policy) OpenEnded() bool {
	return p.End == nil
}

// RunsThroughYearEnd reports whether coverage is open-ended or ends December 31.
func (p *Policy) RunsThroughYearEnd() bool {
	return p.End == nil || IsYearEnd(*p.End)
}

// MemberIDs returns the sorted member ids on the policy.
func (p *Policy) MemberIDs() []string {
	ids := make([]string, 0, len(p.Members))
	for _, m := range p.Members {
		ids = append(ids, m.ID)
	}
	slices.Sort(ids)
	return ids
}

// Clone returns a deep copy.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	c := *p
	if p.End != nil {
		c.End = Ptr(*p.End)
	}
	c.Members = make([]PolicyMember, len(p.Members))
	for i, m := range p.Members {
		c.Members[i] = m
		if m.End != nil {
			c.Members[i].End = Ptr(*m.End)
		}
	}
	return &c
}

// Plan is a product offering for one plan year.
type Plan struct {
	ID            string
	CarrierID     string
	Year          int
	RenewalPlanID string
}

// Carrier is the per-carrier behaviour profile.
type Carrier struct {
	ID                    string
	Name                  string
	Reinstates            bool
	CascadeCancelRenewals bool
}

// DefaultCarrier is the profile used for carriers with no configuration:
// reinstatement allowed, no cascade cancellation.
func DefaultCarrier(id string) Carrier {
	return Carrier{ID: id, Name: id, Reinstates: true}
}
