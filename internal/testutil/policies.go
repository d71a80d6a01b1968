package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// MemoryPolicies is an in-memory persistence collaborator. Every mutating
// call is appended to Calls as "Method arg ...", whether or not it applied.
type MemoryPolicies struct {
	mu       sync.Mutex
	policies map[string]*enrollment.Policy
	aliases  map[string]string
	plans    map[string]*enrollment.Plan
	members  map[string]bool
	Calls    []string
	// Errs injects an error for a method name.
	Errs map[string]error
	// Refuse makes a method name return false without applying.
	Refuse map[string]bool
}

// NewMemoryPolicies creates an empty store.
func NewMemoryPolicies() *MemoryPolicies {
	return &MemoryPolicies{
		policies: make(map[string]*enrollment.Policy),
		aliases:  make(map[string]string),
		plans:    make(map[string]*enrollment.Plan),
		members:  make(map[string]bool),
		Errs:     make(map[string]error),
		Refuse:   make(map[string]bool),
	}
}

// PutPolicy seeds a policy and its members.
func (s *MemoryPolicies) PutPolicy(p *enrollment.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p.Clone()
	for _, m := range p.Members {
		s.members[m.ID] = true
	}
}

// PutPlan seeds a plan.
func (s *MemoryPolicies) PutPlan(p *enrollment.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.plans[p.ID] = &c
}

// Policy returns the stored policy, following aliases.
func (s *MemoryPolicies) Policy(id string) *enrollment.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(id).Clone()
}

// MutationCalls returns a copy of Calls.
func (s *MemoryPolicies) MutationCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.Calls)
}

func (s *MemoryPolicies) lookup(id string) *enrollment.Policy {
	if target, ok := s.aliases[id]; ok {
		id = target
	}
	return s.policies[id]
}

// begin records the call and reports an injected outcome, if any.
func (s *MemoryPolicies) begin(method string, args ...string) (handled bool, err error) {
	s.Calls = append(s.Calls, strings.TrimSpace(method+" "+strings.Join(args, " ")))
	if err := s.Errs[method]; err != nil {
		return true, err
	}
	return s.Refuse[method], nil
}

func (s *MemoryPolicies) FindPolicy(_ context.Context, hbx string) (*enrollment.Policy, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Errs["FindPolicy"]; err != nil {
		return nil, false, err
	}
	p := s.lookup(hbx)
	return p.Clone(), p != nil, nil
}

func (s *MemoryPolicies) FindPlan(_ context.Context, id string) (*enrollment.Plan, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Errs["FindPlan"]; err != nil {
		return nil, false, err
	}
	p, ok := s.plans[id]
	if !ok {
		return nil, false, nil
	}
	c := *p
	return &c, true, nil
}

func (s *MemoryPolicies) PoliciesForSubscriber(_ context.Context, subscriberID string) ([]*enrollment.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Errs["PoliciesForSubscriber"]; err != nil {
		return nil, err
	}
	out := []*enrollment.Policy{}
	for _, p := range s.policies {
		if p.SubscriberID == subscriberID {
			out = append(out, p.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *enrollment.Policy) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryPolicies) TerminateAsOf(_ context.Context, p *enrollment.Policy, end time.Time, nonPayment bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handled, err := s.begin("TerminateAsOf", p.ID, enrollment.FormatDate(end)); handled || err != nil {
		return false, err
	}
	cur := s.lookup(p.ID)
	if cur == nil || cur.IsCanceled() || end.Before(cur.Start) {
		return false, nil
	}
	if cur.End != nil && cur.IsTerminated() && !end.Before(*cur.End) && cur.TermForNonPayment == nonPayment {
		return false, nil
	}
	cur.End = enrollment.Ptr(end)
	cur.Status = enrollment.StatusTerminated
	cur.TermForNonPayment = nonPayment
	for i := range cur.Members {
		if cur.Members[i].End == nil || cur.Members[i].End.After(end) {
			cur.Members[i].End = enrollment.Ptr(end)
		}
	}
	return true, nil
}

func (s *MemoryPolicies) CancelViaExchange(_ context.Context, p *enrollment.Policy) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handled, err := s.begin("CancelViaExchange", p.ID); handled || err != nil {
		return false, err
	}
	cur := s.lookup(p.ID)
	if cur == nil || cur.IsCanceled() {
		return false, nil
	}
	cur.Status = enrollment.StatusCanceled
	cur.End = enrollment.Ptr(cur.Start)
	for i := range cur.Members {
		cur.Members[i].End = enrollment.Ptr(cur.Members[i].Start)
	}
	return true, nil
}

func (s *MemoryPolicies) Reload(_ context.Context, p *enrollment.Policy) (*enrollment.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.lookup(p.ID)
	if cur == nil {
		return nil, fmt.Errorf("policy %s not found", p.ID)
	}
	return cur.Clone(), nil
}

func (s *MemoryPolicies) CreateMember(_ context.Context, m enrollment.Member) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handled, err := s.begin("CreateMember", m.ID); handled || err != nil {
		return false, err
	}
	if s.members[m.ID] {
		return false, nil
	}
	s.members[m.ID] = true
	return true, nil
}

func (s *MemoryPolicies) CreatePolicy(_ context.Context, cv *enrollment.Event, plan *enrollment.Plan, isCobra bool, _ enrollment.CreateOptions) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handled, err := s.begin("CreatePolicy", cv.HbxEnrollmentID); handled || err != nil {
		return false, err
	}
	if s.lookup(cv.HbxEnrollmentID) != nil {
		return false, nil
	}
	p := PolicyFrom(cv)
	p.IsCobra = isCobra
	if plan != nil && plan.CarrierID != "" {
		p.CarrierID = plan.CarrierID
	}
	s.policies[p.ID] = p
	return true, nil
}

func (s *MemoryPolicies) AddMembersToPolicy(_ context.Context, p *enrollment.Policy, cv *enrollment.Event, added []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handled, err := s.begin("AddMembersToPolicy", p.ID, strings.Join(added, ",")); handled || err != nil {
		return false, err
	}
	cur := s.lookup(p.ID)
	if cur == nil {
		return false, nil
	}
	present := make(map[string]bool, len(cur.Members))
	for _, m := range cur.Members {
		present[m.ID] = true
	}
	applied := false
	for _, m := range cv.Members {
		if slices.Contains(added, m.ID) && !present[m.ID] {
			cur.Members = append(cur.Members, enrollment.PolicyMember{ID: m.ID, Start: m.Start, End: m.End, Tobacco: m.Tobacco})
			applied = true
		}
	}
	if applied {
		s.aliases[cv.HbxEnrollmentID] = cur.ID
	}
	return applied, nil
}

func (s *MemoryPolicies) DropMembersFromPolicy(_ context.Context, p *enrollment.Policy, cv *enrollment.Event, dropped []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handled, err := s.begin("DropMembersFromPolicy", p.ID, strings.Join(dropped, ",")); handled || err != nil {
		return false, err
	}
	cur := s.lookup(p.ID)
	if cur == nil {
		return false, nil
	}
	end := enrollment.PrevDay(cv.SubscriberStart)
	applied := false
	for i := range cur.Members {
		m := &cur.Members[i]
		if slices.Contains(dropped, m.ID) && (m.End == nil || m.End.After(end)) {
			m.End = enrollment.Ptr(end)
			applied = true
		}
	}
	if applied {
		s.aliases[cv.HbxEnrollmentID] = cur.ID
	}
	return applied, nil
}

func (s *MemoryPolicies) SwitchPolicyOnCobra(_ context.Context, cv *enrollment.Event, existing *enrollment.Policy) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handled, err := s.begin("SwitchPolicyOnCobra", cv.HbxEnrollmentID, existing.ID); handled || err != nil {
		return false, err
	}
	cur := s.lookup(existing.ID)
	if cur == nil || cur.IsCobra {
		return false, nil
	}
	cur.IsCobra = true
	cur.Status = enrollment.StatusActive
	cur.End = nil
	s.aliases[cv.HbxEnrollmentID] = cur.ID
	return true, nil
}

func (s *MemoryPolicies) ReinstatePolicy(_ context.Context, cv *enrollment.Event, existing *enrollment.Policy) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handled, err := s.begin("ReinstatePolicy", cv.HbxEnrollmentID, existing.ID); handled || err != nil {
		return false, err
	}
	cur := s.lookup(existing.ID)
	if cur == nil || cur.Status != enrollment.StatusTerminated {
		return false, nil
	}
	cur.Status = enrollment.StatusActive
	cur.TermForNonPayment = false
	cur.IsCobra = cv.IsCobra
	cur.End = nil
	if cv.SubscriberEnd != nil {
		cur.End = enrollment.Ptr(*cv.SubscriberEnd)
	}
	for i := range cur.Members {
		cur.Members[i].End = nil
	}
	s.aliases[cv.HbxEnrollmentID] = cur.ID
	return true, nil
}

func (s *MemoryPolicies) ChangeAssistance(_ context.Context, p *enrollment.Policy, cv *enrollment.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handled, err := s.begin("ChangeAssistance", p.ID, fmt.Sprint(cv.AppliedAPTC)); handled || err != nil {
		return false, err
	}
	cur := s.lookup(p.ID)
	if cur == nil || cur.AppliedAPTC == cv.AppliedAPTC {
		return false, nil
	}
	cur.AppliedAPTC = cv.AppliedAPTC
	s.aliases[cv.HbxEnrollmentID] = cur.ID
	return true, nil
}

func (s *MemoryPolicies) ApplyRatingChange(_ context.Context, p *enrollment.Policy, cv *enrollment.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handled, err := s.begin("ApplyRatingChange", p.ID); handled || err != nil {
		return false, err
	}
	cur := s.lookup(p.ID)
	if cur == nil {
		return false, nil
	}
	changed := cur.RatingArea != cv.RatingArea
	cur.RatingArea = cv.RatingArea
	tobacco := cv.TobaccoUsageByMember()
	for i := range cur.Members {
		if v, ok := tobacco[cur.Members[i].ID]; ok && v != cur.Members[i].Tobacco {
			cur.Members[i].Tobacco = v
			changed = true
		}
	}
	if changed {
		s.aliases[cv.HbxEnrollmentID] = cur.ID
	}
	return changed, nil
}

func (s *MemoryPolicies) CancelDependentRenewals(_ context.Context, terminated *enrollment.Policy) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handled, err := s.begin("CancelDependentRenewals", terminated.ID); handled || err != nil {
		return nil, err
	}
	var ids []string
	for _, p := range s.policies {
		if p.ID == terminated.ID || p.SubscriberID != terminated.SubscriberID || p.CarrierID != terminated.CarrierID {
			continue
		}
		if p.Year != terminated.Year+1 || !enrollment.IsYearStart(p.Start) || p.IsCanceled() {
			continue
		}
		p.Status = enrollment.StatusCanceled
		p.End = enrollment.Ptr(p.Start)
		ids = append(ids, p.ID)
	}
	slices.Sort(ids)
	return ids, nil
}
