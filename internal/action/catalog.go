// Package action classifies chunks into business actions and applies them.
//
// The catalog is an ordered table of descriptors. Each descriptor pairs a
// pure qualifying predicate with the persist and publish behaviour of one
// action; the first descriptor whose predicate accepts a chunk wins. Table
// order is configuration and must not be rearranged casually.
//
// A matched chunk is bound into a Resolved action, which runs a two-phase
// protocol: Persist mutates through the Policies collaborator exactly once
// (guarded by idempotency markers), and Publish sends confirmations only
// after a successful Persist.
package action

import (
	"context"
	"slices"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// Descriptor is one catalog entry.
type Descriptor struct {
	Kind Kind
	Name string
	// URI is the action identity used in idempotency markers.
	URI string
	// Arities lists the chunk sizes the descriptor can accept.
	Arities []int

	qualifies func(enrollment.Chunk) bool
	persist   func(context.Context, *Resolved) error
	documents func(*Resolved) []enrollment.Document
}

// Qualifies reports whether the descriptor accepts c.
func (d *Descriptor) Qualifies(c enrollment.Chunk) bool {
	return d.qualifies(c)
}

// Bind assigns chunk notices to roles.
func (d *Descriptor) Bind(c enrollment.Chunk, deps Deps) *Resolved {
	r := &Resolved{Descriptor: d, Chunk: c, deps: deps}
	switch len(c) {
	case 1:
		if c[0].IsTermination {
			r.Termination = c[0]
		} else {
			r.Action = c[0]
		}
	case 2:
		if t, a, ok := pair(c); ok {
			r.Termination, r.Action = t, a
		} else if term, cancel, ok := concurrentTerms(c); ok {
			r.Termination, r.AdditionalAction = term, cancel
		}
	case 3:
		if t, p, renewal, ok := continuityRoles(c); ok {
			r.Termination, r.Action, r.AdditionalAction = t, p, renewal
		}
	}
	return r
}

func entry(k Kind, uri string, arities []int, qualifies func(enrollment.Chunk) bool, persist func(context.Context, *Resolved) error, docs func(*Resolved) []enrollment.Document) *Descriptor {
	return &Descriptor{
		Kind:      k,
		Name:      k.String(),
		URI:       uri,
		Arities:   arities,
		qualifies: qualifies,
		persist:   persist,
		documents: docs,
	}
}

var (
	one  = []int{1}
	two  = []int{2}
	both = []int{1, 2}
)

// catalog is the ordered descriptor table.
var catalog = []*Descriptor{
	entry(KindTermination, enrollment.URITerminateEnrollment, one, qualifiesTermination, persistTermination, docsTermination),
	entry(KindCarrierSpecificTermination, enrollment.URITerminateEnrollment, one, qualifiesCarrierSpecificTermination, persistCarrierTermination, docsTermination),
	entry(KindCarrierSwitch, enrollment.URIInitial, two, qualifiesCarrierSwitch, persistReplace, docsTermAndInitial),
	entry(KindCarrierSwitchRenewal, enrollment.URIInitial, both, qualifiesCarrierSwitchRenewal, persistCarrierSwitchRenewal, docsCarrierSwitchRenewal),
	entry(KindCobraReinstate, enrollment.URIReinstateEnrollment, one, qualifiesCobraReinstate, persistReinstate, docsReinstate),
	entry(KindCobraSwitchover, enrollment.URIInitial, two, qualifiesCobraSwitchover, persistCobraSwitchover, docsInitialOnly),
	entry(KindDependentAdd, enrollment.URIChangeMemberAdd, two, qualifiesDependentAdd, persistMemberAdd, docsMemberAdd),
	entry(KindDependentDrop, enrollment.URIChangeMemberTerminate, two, qualifiesDependentDrop, persistMemberDrop, docsMemberDrop),
	entry(KindInitialEnrollment, enrollment.URIInitial, one, qualifiesInitialEnrollment, persistInitial, docsInitial),
	entry(KindMarketChange, enrollment.URIInitial, two, qualifiesMarketChange, persistReplace, docsTermAndInitial),
	entry(KindNewPolicyReinstate, enrollment.URIReinstateEnrollment, one, qualifiesNewPolicyReinstate, persistReinstate, docsReinstate),
	entry(KindPlanChangeDependentAdd, enrollment.URIChangeProductMemberAdd, two, qualifiesPlanChangeDependentAdd, persistReplace, docsPlanChangeMemberAdd),
	entry(KindPlanChangeDependentDrop, enrollment.URIChangeProduct, two, qualifiesPlanChangeDependentDrop, persistReplace, docsPlanChangeMemberDrop),
	entry(KindPlanChangeSameCarrier, enrollment.URIChangeProduct, two, qualifiesPlanChangeSameCarrier, persistReplace, docsProductChange),
	entry(KindRenewalDependentAdd, enrollment.URIActiveRenewMemberAdd, one, qualifiesRenewalDependentAdd, persistInitial, docsRenewalMemberAdd),
	entry(KindRetroAddAndTerm, enrollment.URIInitial, two, qualifiesRetroAddAndTerm, persistRetroAddAndTerm, docsRetroAddAndTerm),
	entry(KindRetroAssistanceChange, enrollment.URIChangeFinancialAssistance, two, qualifiesRetroAssistanceChange, persistAssistanceChange, docsAssistance),
	entry(KindRetroContinuityAndTerm, enrollment.URITerminateEnrollment, []int{3}, qualifiesRetroContinuityAndTerm, persistRetroContinuity, docsRetroContinuity),
	entry(KindRetroDependentAddToActive, enrollment.URIChangeMemberAdd, two, qualifiesRetroDependentAddToActive, persistMemberAdd, docsMemberAdd),
	entry(KindRetroDependentDropToActive, enrollment.URIChangeMemberTerminate, two, qualifiesRetroDependentDropToActive, persistMemberDrop, docsMemberDrop),
	entry(KindSimpleProductChange, enrollment.URIChangeProduct, two, qualifiesSimpleProductChange, persistReplace, docsProductChange),
	entry(KindTobaccoOrRatingAreaChange, enrollment.URIChangeProduct, two, qualifiesTobaccoOrRatingAreaChange, persistRatingChange, docsProductChange),
	entry(KindConcurrentCancelAndTerm, enrollment.URITerminateEnrollment, two, qualifiesConcurrentCancelAndTerm, persistConcurrentCancelAndTerm, docsConcurrentCancelAndTerm),
}

// Catalog returns the descriptor table in precedence order.
func Catalog() []*Descriptor {
	return slices.Clone(catalog)
}

// Classify returns the first descriptor accepting c, or nil.
func Classify(c enrollment.Chunk) *Descriptor {
	return classifyIn(catalog, c)
}

func classifyIn(table []*Descriptor, c enrollment.Chunk) *Descriptor {
	for _, d := range table {
		if d.Qualifies(c) {
			return d
		}
	}
	return nil
}

// Qualifying returns every descriptor accepting c, in table order.
func Qualifying(c enrollment.Chunk) []*Descriptor {
	var out []*Descriptor
	for _, d := range catalog {
		if d.Qualifies(c) {
			out = append(out, d)
		}
	}
	return out
}

// Resolve classifies c and binds it.
func Resolve(c enrollment.Chunk, deps Deps) (*Resolved, bool) {
	d := Classify(c)
	if d == nil {
		return nil, false
	}
	return d.Bind(c, deps), true
}

// Lookup returns the descriptor with the given name.
func Lookup(name string) (*Descriptor, bool) {
	for _, d := range catalog {
		if d.Name == name {
			return d, true
		}
	}
	for _, d := range wholeBatch {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}
