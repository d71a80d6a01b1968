package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/ideacrew/gluedb-sub000/internal/harness"
	"github.com/ideacrew/gluedb-sub000/internal/store"
)

const initialBatchYAML = `id: b-1
events:
  - hbx_enrollment_id: "1001"
    active_year: 2024
    subscriber_start: "2024-01-01"
    submitted_at: "2024-01-02T09:30:00Z"
    subscriber_id: sub-1
    members:
      - { id: sub-1, subscriber: true }
    plan_id: plan-a
    carrier_id: carrier-a
`

const initialBatchJSON = `{
  "id": "b-json",
  "events": [{
    "hbx_enrollment_id": "2002",
    "active_year": 2024,
    "subscriber_start": "2024-01-01",
    "submitted_at": "2024-01-02T09:30:00Z",
    "subscriber_id": "sub-2",
    "members": [{"id": "sub-2", "subscriber": true}],
    "plan_id": "plan-a",
    "carrier_id": "carrier-a"
  }]
}`

const cycleBatchYAML = `id: cycle-1
events:
  - hbx_enrollment_id: "1"
    active_year: 2024
    termination: true
    subscriber_start: "2024-03-01"
    subscriber_end: "2024-03-31"
    submitted_at: "2024-01-01T00:00:00Z"
    subscriber_id: sub-1
    members: [{ id: sub-1, subscriber: true }]
    plan_id: plan-a
    carrier_id: carrier-a
  - hbx_enrollment_id: "1"
    active_year: 2024
    subscriber_start: "2024-01-01"
    submitted_at: "2024-01-01T00:00:00Z"
    subscriber_id: sub-1
    members: [{ id: sub-1, subscriber: true }]
    plan_id: plan-a
    carrier_id: carrier-a
  - hbx_enrollment_id: "2"
    active_year: 2024
    subscriber_start: "2024-02-01"
    submitted_at: "2024-01-01T00:00:00Z"
    subscriber_id: sub-1
    members: [{ id: sub-1, subscriber: true }]
    plan_id: plan-a
    carrier_id: carrier-a
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// seededDB creates a database holding plan-a and returns its path.
func seededDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "enroll.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	plan := harness.PlanFixture{ID: "plan-a", CarrierID: "carrier-a", Year: 2024}.Plan()
	require.NoError(t, st.PutPlan(context.Background(), plan))
	require.NoError(t, st.Close())
	return path
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
