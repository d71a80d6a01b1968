package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// State is the lifecycle of a resolved action.
type State int

const (
	StatePending State = iota
	StatePersisted
	StatePublished
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StatePersisted:
		return "persisted"
	case StatePublished:
		return "published"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

// Deps are the collaborators an action mutates and publishes through.
type Deps struct {
	Policies  enrollment.Policies
	Markers   enrollment.Markers
	Publisher enrollment.Publisher
	// Notifier may be nil.
	Notifier enrollment.Notifier
	// Carriers may be nil; unknown carriers use the default profile.
	Carriers enrollment.Carriers
}

// Resolved binds a matched chunk to its roles and runs the two-phase
// persist/publish protocol. It lives for one chunk's processing.
type Resolved struct {
	Descriptor       *Descriptor
	Chunk            enrollment.Chunk
	Termination      *enrollment.Event
	Action           *enrollment.Event
	AdditionalAction *enrollment.Event

	deps       Deps
	state      State
	mutated    bool
	terminated []*enrollment.Policy
	policyIDs  map[string]string
	canceled   []string
}

// State returns the current lifecycle state.
func (r *Resolved) State() State { return r.state }

// CascadeCanceled returns the renewal policy ids canceled by the cascade
// hook during Persist.
func (r *Resolved) CascadeCanceled() []string { return r.canceled }

// Primary is the notice whose marker guards the action.
func (r *Resolved) Primary() *enrollment.Event {
	switch {
	case r.Termination != nil:
		return r.Termination
	case r.Action != nil:
		return r.Action
	}
	return r.AdditionalAction
}

// Persist applies the action's mutations exactly once. It returns false
// with a nil error when the action was already applied or its preconditions
// do not hold; in both cases nothing was mutated.
func (r *Resolved) Persist(ctx context.Context) (bool, error) {
	if r.state != StatePending {
		return false, nil
	}
	name := r.Descriptor.Name
	primary := r.Primary()

	done, err := r.deps.Markers.Exists(ctx, enrollment.MarkerFor(primary, r.Descriptor.URI))
	if err != nil {
		return false, fmt.Errorf("%s: check marker: %w", name, err)
	}
	if done {
		slog.Info("action already applied",
			"action", name,
			"hbx_enrollment_id", primary.HbxEnrollmentID,
		)
		r.state = StateRejected
		return false, nil
	}

	if err := r.Descriptor.persist(ctx, r); err != nil {
		var pe *PreconditionError
		if errors.As(err, &pe) {
			slog.Info("action rejected",
				"action", name,
				"hbx_enrollment_id", primary.HbxEnrollmentID,
				"reason", pe.Reason,
			)
			r.state = StateRejected
			return false, nil
		}
		return false, err
	}

	if err := r.cascade(ctx); err != nil {
		return false, err
	}

	for _, ev := range r.Chunk {
		if _, err := r.deps.Markers.Mark(ctx, enrollment.MarkerFor(ev, r.Descriptor.URI)); err != nil {
			return false, &PartialPersistError{Action: name, Step: "mark", Err: err}
		}
	}

	r.state = StatePersisted
	slog.Info("action persisted",
		"action", name,
		"hbx_enrollment_id", primary.HbxEnrollmentID,
		"notices", len(r.Chunk),
	)
	return true, nil
}

// cascade cancels next-year renewals of every policy the action ended when
// that policy's carrier requires it.
func (r *Resolved) cascade(ctx context.Context) error {
	for _, pol := range r.terminated {
		if !r.carrier(pol.CarrierID).CascadeCancelRenewals {
			continue
		}
		ids, err := r.deps.Policies.CancelDependentRenewals(ctx, pol)
		if err != nil {
			return &PartialPersistError{Action: r.Descriptor.Name, Step: "cascade cancel", Err: err}
		}
		if len(ids) > 0 {
			slog.Info("cascade canceled renewals",
				"policy_id", pol.ID,
				"carrier_id", pol.CarrierID,
				"canceled", ids,
			)
		}
		r.canceled = append(r.canceled, ids...)
	}
	return nil
}

func (r *Resolved) carrier(id string) enrollment.Carrier {
	if r.deps.Carriers != nil {
		if c, ok := r.deps.Carriers.Carrier(id); ok {
			return c
		}
	}
	for _, ev := range r.Chunk {
		if ev.CarrierID == id {
			return ev.Carrier()
		}
	}
	return enrollment.DefaultCarrier(id)
}

// Publish sends the action's confirmations. It only runs after a successful
// Persist. A failed send leaves the action Persisted so publishing alone can
// be retried.
func (r *Resolved) Publish(ctx context.Context) (bool, []error) {
	if r.state != StatePersisted {
		return false, []error{ErrNotPersisted}
	}
	var errs []error
	for _, doc := range r.Documents() {
		ok, perrs := r.deps.Publisher.PublishConfirmation(ctx, doc, doc.HbxEnrollmentID, doc.EmployerID)
		if !ok {
			if len(perrs) == 0 {
				perrs = []error{fmt.Errorf("publish %s for %s failed", doc.Action, doc.HbxEnrollmentID)}
			}
			slog.Error("publish failed",
				"action", r.Descriptor.Name,
				"document", doc.Action,
				"hbx_enrollment_id", doc.HbxEnrollmentID,
				"error", errors.Join(perrs...),
			)
			errs = append(errs, perrs...)
		}
	}
	if len(errs) > 0 {
		return false, errs
	}
	r.state = StatePublished
	return true, nil
}

// Documents renders the confirmations the action publishes.
func (r *Resolved) Documents() []enrollment.Document {
	return r.Descriptor.documents(r)
}

// step records the outcome of one mutating collaborator call. A refusal
// before anything was mutated is a precondition failure; any failure after
// a mutation is a partial persist.
func (r *Resolved) step(what string, ok bool, err error) error {
	if err != nil {
		if r.mutated {
			return &PartialPersistError{Action: r.Descriptor.Name, Step: what, Err: err}
		}
		return fmt.Errorf("%s: %s: %w", r.Descriptor.Name, what, err)
	}
	if !ok {
		if r.mutated {
			return &PartialPersistError{Action: r.Descriptor.Name, Step: what, Err: ErrRefused}
		}
		return r.precondition("%s refused", what)
	}
	r.mutated = true
	return nil
}

func (r *Resolved) precondition(format string, args ...any) error {
	return &PreconditionError{Action: r.Descriptor.Name, Reason: fmt.Sprintf(format, args...)}
}

// setPolicyID records the policy a notice's confirmation refers to.
func (r *Resolved) setPolicyID(ev *enrollment.Event, id string) {
	if r.policyIDs == nil {
		r.policyIDs = make(map[string]string)
	}
	r.policyIDs[ev.HbxEnrollmentID] = id
}

// policyID returns the policy a notice's confirmation refers to: the one
// recorded during Persist, else the hydrated policy, else the policy the
// notice itself created.
func (r *Resolved) policyID(ev *enrollment.Event) string {
	if id, ok := r.policyIDs[ev.HbxEnrollmentID]; ok {
		return id
	}
	if p := ev.ExistingPolicy(); p != nil {
		return p.ID
	}
	return ev.HbxEnrollmentID
}
