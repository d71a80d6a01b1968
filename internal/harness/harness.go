package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/ideacrew/gluedb-sub000/internal/action"
	"github.com/ideacrew/gluedb-sub000/internal/engine"
	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
	"github.com/ideacrew/gluedb-sub000/internal/store"
)

// maxDocuments bounds how many outbox rows a scenario snapshot reads.
const maxDocuments = 10000

// Harness is the scenario execution engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. The
// store serves as every collaborator: policies, markers, outbox,
// dispositions and the action log.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load setup plans and policies
// 3. Process each step's batch and check its expectations
// 4. Evaluate assertions and collect the rendered outbox
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	carriers := make(enrollment.CarrierTable, len(scenario.Carriers))
	for id, c := range scenario.Carriers {
		carriers[id] = c.Carrier(id)
	}
	deps := action.Deps{
		Policies:  st,
		Markers:   st,
		Publisher: st,
		Carriers:  carriers,
	}

	h := &Harness{
		store:  st,
		engine: engine.New(deps, engine.WithAcknowledger(st), engine.WithJournal(st)),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx := context.Background()
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	pending, err := st.PendingConfirmations(ctx, maxDocuments)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	for _, c := range pending {
		result.Documents = append(result.Documents, c.Document)
	}
	return result, nil
}

// executeSetup loads the persisted starting state.
func (h *Harness) executeSetup(ctx context.Context, setup Setup) error {
	for i, p := range setup.Plans {
		if err := h.store.PutPlan(ctx, p.Plan()); err != nil {
			return fmt.Errorf("plan %d: %w", i, err)
		}
	}
	for i, f := range setup.Policies {
		p, err := f.Policy()
		if err != nil {
			return fmt.Errorf("policy %d: %w", i, err)
		}
		if err := h.store.PutPolicy(ctx, p); err != nil {
			return fmt.Errorf("policy %d: %w", i, err)
		}
	}
	h.logger.Info("setup loaded", "plans", len(setup.Plans), "policies", len(setup.Policies))
	return nil
}

// executeSteps processes every step's batch in order. A batch error is an
// expectation failure, not a harness failure, unless the batch itself
// cannot be decoded.
func (h *Harness) executeSteps(ctx context.Context, scenario *Scenario, result *Result) error {
	for i, step := range scenario.Steps {
		batch, err := step.Batch.Batch()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if batch.ID == "" {
			batch.ID = fmt.Sprintf("%s-%d", scenario.Name, i+1)
		}

		rep, err := h.engine.Process(ctx, batch)
		if rep != nil {
			for _, c := range rep.Chunks {
				result.Trace = append(result.Trace, TraceEvent{
					BatchID:          rep.BatchID,
					Seq:              c.Seq,
					Action:           c.Action,
					HbxEnrollmentIDs: c.HbxEnrollmentIDs,
					Outcome:          string(c.Outcome),
					Documents:        c.Documents,
					Canceled:         c.Canceled,
				})
			}
		}

		for _, msg := range checkStep(i, step.Expect, rep, err) {
			result.AddError(msg)
		}

		h.logger.Info("step completed",
			"step", i,
			"batch_id", batch.ID,
			"error", err,
		)
	}
	return nil
}

// checkStep compares a batch report against the step's expectations.
func checkStep(index int, expect *StepExpect, rep *engine.Report, err error) []string {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("steps[%d]: ", index)+fmt.Sprintf(format, args...))
	}

	wantCode := ""
	if expect != nil {
		wantCode = expect.Error
	}
	gotCode := ""
	if err != nil {
		var re *engine.RuntimeError
		if errors.As(err, &re) {
			gotCode = string(re.Code)
		} else {
			gotCode = err.Error()
		}
	}
	if gotCode != wantCode {
		if wantCode == "" {
			fail("unexpected error: %v", err)
		} else {
			fail("expected error %s, got %q", wantCode, gotCode)
		}
		return errs
	}
	if expect == nil || rep == nil {
		return errs
	}

	if expect.Dropped != nil && *expect.Dropped != rep.Dropped {
		fail("expected %d dropped, got %d", *expect.Dropped, rep.Dropped)
	}
	if expect.WholeBatch != "" && expect.WholeBatch != rep.WholeBatch {
		fail("expected whole batch %s, got %q", expect.WholeBatch, rep.WholeBatch)
	}
	if expect.Order != nil && !slices.Equal(expect.Order, rep.Order) {
		fail("expected order %v, got %v", expect.Order, rep.Order)
	}
	if expect.Actions != nil && !slices.Equal(expect.Actions, rep.Actions()) {
		fail("expected actions %v, got %v", expect.Actions, rep.Actions())
	}
	if expect.Outcomes != nil {
		got := make([]string, len(rep.Chunks))
		for i, c := range rep.Chunks {
			got[i] = string(c.Outcome)
		}
		if !slices.Equal(expect.Outcomes, got) {
			fail("expected outcomes %v, got %v", expect.Outcomes, got)
		}
	}
	return errs
}
