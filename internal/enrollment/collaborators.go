package enrollment

import (
	"context"
	"time"
)

// CreateOptions tunes CreatePolicy.
type CreateOptions struct {
	// Predecessor is the policy the new one replaces, if any.
	Predecessor *Policy
}

// Policies is the persistence collaborator. Boolean results report whether
// the operation was applied; false with a nil error is a refusal (stale or
// conflicting state), not a failure.
type Policies interface {
	FindPolicy(ctx context.Context, hbxEnrollmentID string) (*Policy, bool, error)
	FindPlan(ctx context.Context, planID string) (*Plan, bool, error)
	PoliciesForSubscriber(ctx context.Context, subscriberID string) ([]*Policy, error)
	TerminateAsOf(ctx context.Context, p *Policy, end time.Time, nonPayment bool) (bool, error)
	CancelViaExchange(ctx context.Context, p *Policy) (bool, error)
	Reload(ctx context.Context, p *Policy) (*Policy, error)
	// CreateMember records a person; false means the member already existed.
	CreateMember(ctx context.Context, m Member) (bool, error)
	CreatePolicy(ctx context.Context, cv *Event, plan *Plan, isCobra bool, opts CreateOptions) (bool, error)
	AddMembersToPolicy(ctx context.Context, p *Policy, cv *Event, added []string) (bool, error)
	DropMembersFromPolicy(ctx context.Context, p *Policy, cv *Event, dropped []string) (bool, error)
	SwitchPolicyOnCobra(ctx context.Context, cv *Event, existing *Policy) (bool, error)
	ReinstatePolicy(ctx context.Context, cv *Event, existing *Policy) (bool, error)
	ChangeAssistance(ctx context.Context, p *Policy, cv *Event) (bool, error)
	ApplyRatingChange(ctx context.Context, p *Policy, cv *Event) (bool, error)
	// CancelDependentRenewals cancels next-year renewals of terminated and
	// returns the canceled policy ids.
	CancelDependentRenewals(ctx context.Context, terminated *Policy) ([]string, error)
}

// Markers is the idempotency store.
type Markers interface {
	// Exists reports whether exactly this marker was written.
	Exists(ctx context.Context, m Marker) (bool, error)
	// Seen reports whether any action already consumed a notice with this
	// content under hbxEnrollmentID.
	Seen(ctx context.Context, hbxEnrollmentID, contentHash string) (bool, error)
	// Mark writes m and reports whether it was newly inserted.
	Mark(ctx context.Context, m Marker) (bool, error)
}

// Publisher sends confirmations to the carrier and exchange.
type Publisher interface {
	PublishConfirmation(ctx context.Context, doc Document, hbxEnrollmentID, employerID string) (bool, []error)
}

// Notifier signals downstream consumers that a policy changed.
type Notifier interface {
	PolicyUpdated(ctx context.Context, policyID string) error
}

// Disposition is the upstream acknowledgment outcome for a notice.
type Disposition string

const (
	DispositionProcessed        Disposition = "processed"
	DispositionAlreadyProcessed Disposition = "already_processed"
	DispositionDuplicate        Disposition = "duplicate"
	DispositionDropped          Disposition = "dropped"
	DispositionSkipped          Disposition = "skipped"
)

// Acknowledger reports per-notice outcomes upstream.
type Acknowledger interface {
	Acknowledge(ctx context.Context, ev *Event, d Disposition, reason string) error
}

// Carriers resolves carrier profiles.
type Carriers interface {
	Carrier(id string) (Carrier, bool)
}

// CarrierTable is a static Carriers implementation.
type CarrierTable map[string]Carrier

// Carrier implements Carriers.
func (t CarrierTable) Carrier(id string) (Carrier, bool) {
	c, ok := t[id]
	return c, ok
}
