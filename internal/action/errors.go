package action

import (
	"errors"
	"fmt"
)

// ErrNotPersisted is returned by Publish when Persist has not succeeded.
var ErrNotPersisted = errors.New("action not persisted")

// ErrRefused marks a collaborator that declined a mutation.
var ErrRefused = errors.New("collaborator refused mutation")

// PreconditionError reports that an action cannot be applied and nothing
// was mutated. Persist converts it to (false, nil).
type PreconditionError struct {
	Action string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition failed: %s", e.Action, e.Reason)
}

// PartialPersistError reports a failure after at least one mutation was
// applied. The marker is not written, so redelivery retries the action.
type PartialPersistError struct {
	Action string
	Step   string
	Err    error
}

func (e *PartialPersistError) Error() string {
	return fmt.Sprintf("%s: partial persist at %s: %v", e.Action, e.Step, e.Err)
}

func (e *PartialPersistError) Unwrap() error { return e.Err }

// IsPartialPersist reports whether err is a PartialPersistError.
func IsPartialPersist(err error) bool {
	var pe *PartialPersistError
	return errors.As(err, &pe)
}
