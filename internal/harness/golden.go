package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/ideacrew/gluedb-sub000/internal/ir"
)

// Snapshot renders a result as JSON lines: one canonical object per
// executed chunk, then every rendered confirmation in outbox order.
func Snapshot(result *Result) ([]byte, error) {
	var buf bytes.Buffer
	for _, event := range result.Trace {
		line, err := ir.MarshalCanonical(event.canonicalMap())
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	for _, doc := range result.Documents {
		buf.Write(doc)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// canonicalMap converts a TraceEvent for canonical JSON serialization.
func (e TraceEvent) canonicalMap() map[string]any {
	m := map[string]any{
		"batch_id":           e.BatchID,
		"seq":                e.Seq,
		"hbx_enrollment_ids": e.HbxEnrollmentIDs,
		"outcome":            e.Outcome,
	}
	if e.Action != "" {
		m["action"] = e.Action
	}
	if len(e.Documents) > 0 {
		m["documents"] = e.Documents
	}
	if len(e.Canceled) > 0 {
		m["canceled_renewals"] = e.Canceled
	}
	return m
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
