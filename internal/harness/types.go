package harness

// TraceEvent is one executed chunk as recorded by the engine.
type TraceEvent struct {
	BatchID          string   `json:"batch_id"`
	Seq              int64    `json:"seq"`
	Action           string   `json:"action,omitempty"`
	HbxEnrollmentIDs []string `json:"hbx_enrollment_ids"`
	Outcome          string   `json:"outcome"`
	Documents        []string `json:"documents,omitempty"`
	Canceled         []string `json:"canceled_renewals,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every executed chunk, across all steps, in order.
	Trace []TraceEvent `json:"trace"`

	// Documents holds the rendered confirmations left in the outbox, in
	// enqueue order.
	Documents [][]byte `json:"-"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Actions returns the action of every matched chunk in trace order.
func (r *Result) Actions() []string {
	var out []string
	for _, ev := range r.Trace {
		if ev.Action != "" {
			out = append(out, ev.Action)
		}
	}
	return out
}
