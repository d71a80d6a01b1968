package engine

import (
	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// Outcome is what happened to one chunk.
type Outcome string

const (
	OutcomePublished  Outcome = "published"
	OutcomePersisted  Outcome = "persisted"
	OutcomeRejected   Outcome = "rejected"
	OutcomeUnmatched  Outcome = "unmatched"
	OutcomeFailed     Outcome = "failed"
	OutcomeClassified Outcome = "classified"
)

// ChunkResult describes one chunk of a processed batch.
type ChunkResult struct {
	Seq              int64    `json:"seq,omitempty"`
	HbxEnrollmentIDs []string `json:"hbx_enrollment_ids"`
	Action           string   `json:"action,omitempty"`
	Outcome          Outcome  `json:"outcome"`
	// Documents lists the action URIs of the rendered confirmations.
	Documents []string `json:"documents,omitempty"`
	// Canceled lists renewal policies canceled by the cascade hook.
	Canceled []string `json:"canceled_renewals,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Report summarises one batch.
type Report struct {
	BatchID  string `json:"batch_id"`
	Received int    `json:"received"`
	// Dropped counts notices removed by filtering, deduplication and the
	// bogus-notice checks.
	Dropped int `json:"dropped"`
	// WholeBatch names the compound action that claimed the whole batch.
	WholeBatch string `json:"whole_batch,omitempty"`
	// Order is the canonical order of the surviving notices.
	Order  []string      `json:"order,omitempty"`
	Chunks []ChunkResult `json:"chunks"`
}

// Count returns how many chunks ended with o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, c := range r.Chunks {
		if c.Outcome == o {
			n++
		}
	}
	return n
}

// Actions returns the matched action names in chunk order, with unmatched
// chunks omitted.
func (r *Report) Actions() []string {
	var out []string
	for _, c := range r.Chunks {
		if c.Action != "" {
			out = append(out, c.Action)
		}
	}
	return out
}

func hbxIDs[S ~[]*enrollment.Event](events S) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.HbxEnrollmentID
	}
	return out
}
