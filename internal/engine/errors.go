package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ideacrew/gluedb-sub000/internal/action"
	"github.com/ideacrew/gluedb-sub000/internal/causal"
)

// RuntimeError stops processing of one batch.
//
// Runtime errors include:
//   - Cycle detection: the precedence cascade produced a cycle
//   - Collaborator failure: a lookup or mutation returned an error before
//     anything was changed
//   - Partial persist: a collaborator failed after a mutation was applied
//   - Invalid batch: the batch cannot be processed at all
//
// The inbound message should be redelivered for every code except
// INVALID_BATCH and CYCLE_DETECTED. Both fail the same way on every
// delivery; a cycle's notices are acknowledged as dropped and journaled
// instead.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// BatchID identifies the affected batch.
	BatchID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	ErrCodeCycleDetected       RuntimeErrorCode = "CYCLE_DETECTED"
	ErrCodeCollaboratorFailure RuntimeErrorCode = "COLLABORATOR_FAILURE"
	ErrCodePartialPersist      RuntimeErrorCode = "PARTIAL_PERSIST"
	ErrCodeInvalidBatch        RuntimeErrorCode = "INVALID_BATCH"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.BatchID != "" {
		msg += fmt.Sprintf(" (batch=%s)", e.BatchID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuntimeError) Unwrap() error { return e.Err }

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsCycleError reports whether err is a cycle detection error.
func IsCycleError(err error) bool { return hasCode(err, ErrCodeCycleDetected) }

// IsCollaboratorError reports whether err is a collaborator failure.
func IsCollaboratorError(err error) bool { return hasCode(err, ErrCodeCollaboratorFailure) }

// IsPartialPersist reports whether err is a partial persist.
func IsPartialPersist(err error) bool { return hasCode(err, ErrCodePartialPersist) }

// IsInvalidBatch reports whether err rejects the batch itself.
func IsInvalidBatch(err error) bool { return hasCode(err, ErrCodeInvalidBatch) }

// Retryable reports whether redelivering the batch may succeed.
func Retryable(err error) bool {
	return err != nil && !IsInvalidBatch(err) && !IsCycleError(err)
}

// NewCycleError creates a RuntimeError for a precedence cycle.
func NewCycleError(batchID string, ce *causal.CycleError) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCycleDetected,
		Message: "causal ordering produced a cycle",
		BatchID: batchID,
		Details: map[string]string{"path": strings.Join(ce.Path, ",")},
		Err:     ce,
	}
}

// NewCollaboratorError wraps a collaborator failure at stage.
func NewCollaboratorError(batchID, stage string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCollaboratorFailure,
		Message: stage + " failed",
		BatchID: batchID,
		Details: map[string]string{"stage": stage},
		Err:     err,
	}
}

// NewPartialPersistError wraps a failure after mutation.
func NewPartialPersistError(batchID string, pe *action.PartialPersistError) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodePartialPersist,
		Message: "action partially persisted",
		BatchID: batchID,
		Details: map[string]string{"action": pe.Action, "step": pe.Step},
		Err:     pe,
	}
}

// NewInvalidBatchError rejects a batch.
func NewInvalidBatchError(batchID, reason string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidBatch,
		Message: reason,
		BatchID: batchID,
	}
}
