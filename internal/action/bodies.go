package action

import (
	"context"
	"fmt"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// target reloads the existing policy a notice refers to.
func (r *Resolved) target(ctx context.Context, ev *enrollment.Event) (*enrollment.Policy, error) {
	pol := ev.ExistingPolicy()
	if pol == nil {
		return nil, r.precondition("no policy for %s", ev.HbxEnrollmentID)
	}
	return r.reload(ctx, ev, pol)
}

func (r *Resolved) reload(ctx context.Context, ev *enrollment.Event, pol *enrollment.Policy) (*enrollment.Policy, error) {
	cur, err := r.deps.Policies.Reload(ctx, pol)
	if err != nil {
		return nil, fmt.Errorf("%s: reload policy %s: %w", r.Descriptor.Name, pol.ID, err)
	}
	r.setPolicyID(ev, cur.ID)
	return cur, nil
}

// end cancels or terminates pol as t requests and queues it for the cascade
// hook.
func (r *Resolved) end(ctx context.Context, t *enrollment.Event, pol *enrollment.Policy) error {
	if t.IsCancel {
		ok, err := r.deps.Policies.CancelViaExchange(ctx, pol)
		if err := r.step("cancel "+pol.ID, ok, err); err != nil {
			return err
		}
	} else {
		ok, err := r.deps.Policies.TerminateAsOf(ctx, pol, *t.SubscriberEnd, t.TermForNonPayment)
		if err := r.step("terminate "+pol.ID, ok, err); err != nil {
			return err
		}
	}
	r.terminated = append(r.terminated, pol)
	return nil
}

// createMembers records every member of ev. A member that already existed
// is not a mutation; a newly created one is.
func (r *Resolved) createMembers(ctx context.Context, ev *enrollment.Event) error {
	for _, m := range ev.Members {
		created, err := r.deps.Policies.CreateMember(ctx, m)
		if err != nil {
			if r.mutated {
				return &PartialPersistError{Action: r.Descriptor.Name, Step: "create member " + m.ID, Err: err}
			}
			return fmt.Errorf("%s: create member %s: %w", r.Descriptor.Name, m.ID, err)
		}
		if created {
			r.mutated = true
		}
	}
	return nil
}

// create records the members of ev and the policy it starts.
func (r *Resolved) create(ctx context.Context, ev *enrollment.Event, predecessor *enrollment.Policy) error {
	if err := r.createMembers(ctx, ev); err != nil {
		return err
	}
	ok, err := r.deps.Policies.CreatePolicy(ctx, ev, ev.ExistingPlan(), ev.IsCobra,
		enrollment.CreateOptions{Predecessor: predecessor})
	if err := r.step("create policy "+ev.HbxEnrollmentID, ok, err); err != nil {
		return err
	}
	r.setPolicyID(ev, ev.HbxEnrollmentID)
	return nil
}

func (r *Resolved) notify(ctx context.Context, policyID string) error {
	if r.deps.Notifier == nil {
		return nil
	}
	if err := r.deps.Notifier.PolicyUpdated(ctx, policyID); err != nil {
		return &PartialPersistError{Action: r.Descriptor.Name, Step: "notify " + policyID, Err: err}
	}
	return nil
}

func persistTermination(ctx context.Context, r *Resolved) error {
	t := r.Termination
	pol, err := r.target(ctx, t)
	if err != nil {
		return err
	}
	if err := r.end(ctx, t, pol); err != nil {
		return err
	}
	if NotificationExempt(t, pol) {
		return nil
	}
	return r.notify(ctx, pol.ID)
}

// persistCarrierTermination never extends coverage: the carrier cannot
// reinstate, so a later end date is refused.
func persistCarrierTermination(ctx context.Context, r *Resolved) error {
	t := r.Termination
	pol, err := r.target(ctx, t)
	if err != nil {
		return err
	}
	if pol.End != nil && t.SubscriberEnd.After(*pol.End) {
		return r.precondition("termination on %s would extend coverage ending %s",
			enrollment.FormatDate(*t.SubscriberEnd), enrollment.FormatDate(*pol.End))
	}
	if err := r.end(ctx, t, pol); err != nil {
		return err
	}
	return r.notify(ctx, pol.ID)
}

// persistReplace creates the replacement policy, then ends the old one.
func persistReplace(ctx context.Context, r *Resolved) error {
	old, err := r.target(ctx, r.Termination)
	if err != nil {
		return err
	}
	if old.IsCanceled() {
		return r.precondition("policy %s already canceled", old.ID)
	}
	if err := r.create(ctx, r.Action, old); err != nil {
		return err
	}
	return r.end(ctx, r.Termination, old)
}

func persistCarrierSwitchRenewal(ctx context.Context, r *Resolved) error {
	if r.Termination != nil {
		return persistReplace(ctx, r)
	}
	a := r.Action
	prior := PriorCoverage(a)
	if prior == nil {
		return r.precondition("no prior-year coverage for %s", a.SubscriberID)
	}
	prior, err := r.reload(ctx, a, prior)
	if err != nil {
		return err
	}
	if err := r.create(ctx, a, prior); err != nil {
		return err
	}
	if prior.End == nil {
		ok, err := r.deps.Policies.TerminateAsOf(ctx, prior, enrollment.YearEnd(prior.Year), false)
		if err := r.step("terminate "+prior.ID, ok, err); err != nil {
			return err
		}
	}
	r.terminated = append(r.terminated, prior)
	return nil
}

func persistReinstate(ctx context.Context, r *Resolved) error {
	a := r.Action
	cand := ReinstatementCandidate(a)
	if cand == nil {
		return r.precondition("no terminated policy to reinstate for %s", a.HbxEnrollmentID)
	}
	cand, err := r.reload(ctx, a, cand)
	if err != nil {
		return err
	}
	ok, err := r.deps.Policies.ReinstatePolicy(ctx, a, cand)
	return r.step("reinstate "+cand.ID, ok, err)
}

func persistCobraSwitchover(ctx context.Context, r *Resolved) error {
	old, err := r.target(ctx, r.Termination)
	if err != nil {
		return err
	}
	ok, err := r.deps.Policies.SwitchPolicyOnCobra(ctx, r.Action, old)
	if err := r.step("switch to cobra "+old.ID, ok, err); err != nil {
		return err
	}
	r.setPolicyID(r.Action, old.ID)
	return nil
}

func persistMemberAdd(ctx context.Context, r *Resolved) error {
	pol, err := r.target(ctx, r.Termination)
	if err != nil {
		return err
	}
	added, _ := MemberDiff(r.Termination.AllMemberIDs(), r.Action.AllMemberIDs())
	if err := r.createMembers(ctx, r.Action); err != nil {
		return err
	}
	ok, err := r.deps.Policies.AddMembersToPolicy(ctx, pol, r.Action, added)
	if err := r.step("add members to "+pol.ID, ok, err); err != nil {
		return err
	}
	r.setPolicyID(r.Action, pol.ID)
	return nil
}

func persistMemberDrop(ctx context.Context, r *Resolved) error {
	pol, err := r.target(ctx, r.Termination)
	if err != nil {
		return err
	}
	_, dropped := MemberDiff(r.Termination.AllMemberIDs(), r.Action.AllMemberIDs())
	ok, err := r.deps.Policies.DropMembersFromPolicy(ctx, pol, r.Action, dropped)
	if err := r.step("drop members from "+pol.ID, ok, err); err != nil {
		return err
	}
	r.setPolicyID(r.Action, pol.ID)
	return nil
}

// persistRetroAddAndTerm starts and ends the same enrollment in one go.
func persistRetroAddAndTerm(ctx context.Context, r *Resolved) error {
	a, t := r.Action, r.Termination
	if a.ExistingPolicy() != nil {
		return r.precondition("policy %s already exists", a.HbxEnrollmentID)
	}
	if err := r.create(ctx, a, nil); err != nil {
		return err
	}
	created, found, err := r.deps.Policies.FindPolicy(ctx, a.HbxEnrollmentID)
	if err != nil || !found {
		if err == nil {
			err = fmt.Errorf("policy %s not found after create", a.HbxEnrollmentID)
		}
		return &PartialPersistError{Action: r.Descriptor.Name, Step: "find created policy", Err: err}
	}
	r.setPolicyID(t, created.ID)
	return r.end(ctx, t, created)
}

func persistAssistanceChange(ctx context.Context, r *Resolved) error {
	pol, err := r.target(ctx, r.Termination)
	if err != nil {
		return err
	}
	ok, err := r.deps.Policies.ChangeAssistance(ctx, pol, r.Action)
	if err := r.step("change assistance on "+pol.ID, ok, err); err != nil {
		return err
	}
	r.setPolicyID(r.Action, pol.ID)
	return nil
}

func persistRatingChange(ctx context.Context, r *Resolved) error {
	pol, err := r.target(ctx, r.Termination)
	if err != nil {
		return err
	}
	ok, err := r.deps.Policies.ApplyRatingChange(ctx, pol, r.Action)
	if err := r.step("apply rating change on "+pol.ID, ok, err); err != nil {
		return err
	}
	r.setPolicyID(r.Action, pol.ID)
	return nil
}

func persistConcurrentCancelAndTerm(ctx context.Context, r *Resolved) error {
	term, cancel := r.Termination, r.AdditionalAction
	p1, err := r.target(ctx, term)
	if err != nil {
		return err
	}
	p2, err := r.target(ctx, cancel)
	if err != nil {
		return err
	}
	if err := r.end(ctx, term, p1); err != nil {
		return err
	}
	return r.end(ctx, cancel, p2)
}

func persistInitial(ctx context.Context, r *Resolved) error {
	a := r.Action
	if a.ExistingPolicy() != nil {
		return r.precondition("policy %s already exists", a.HbxEnrollmentID)
	}
	return r.create(ctx, a, nil)
}

// persistRetroContinuity records last year's purchase and its renewal, then
// ends the current-year policy they supersede.
func persistRetroContinuity(ctx context.Context, r *Resolved) error {
	t, p, renewal := r.Termination, r.Action, r.AdditionalAction
	cur, err := r.target(ctx, t)
	if err != nil {
		return err
	}
	if p.ExistingPolicy() != nil || renewal.ExistingPolicy() != nil {
		return r.precondition("prior-year or renewal policy already exists")
	}
	if err := r.create(ctx, p, nil); err != nil {
		return err
	}
	if err := r.create(ctx, renewal, nil); err != nil {
		return err
	}
	return r.end(ctx, t, cur)
}

func persistPriorYearPurchaseRenewalCancel(ctx context.Context, r *Resolved) error {
	c, p := r.Termination, r.Action
	renewal, err := r.target(ctx, c)
	if err != nil {
		return err
	}
	if p.ExistingPolicy() != nil {
		return r.precondition("policy %s already exists", p.HbxEnrollmentID)
	}
	if err := r.create(ctx, p, nil); err != nil {
		return err
	}
	return r.end(ctx, c, renewal)
}
