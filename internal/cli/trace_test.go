package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// resolvedDB returns a database in which batch b-1 created policy 1001.
func resolvedDB(t *testing.T) string {
	t.Helper()
	db := seededDB(t)
	batch := writeFile(t, t.TempDir(), "batch.yaml", initialBatchYAML)
	_, err := execute(NewResolveCommand(&RootOptions{Format: "text"}), "--db", db, batch)
	require.NoError(t, err)
	return db
}

func TestTraceListsBatches(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		out, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", seededDB(t))
		require.NoError(t, err)
		assert.Contains(t, out, "No batches recorded.")
	})

	t.Run("after resolve", func(t *testing.T) {
		out, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", resolvedDB(t))
		require.NoError(t, err)
		assert.Equal(t, "b-1\n", out)
	})
}

func TestTraceBatchText(t *testing.T) {
	db := resolvedDB(t)

	out, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", db, "--batch", "b-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Trace for Batch: b-1")
	assert.Contains(t, out, "  [1] InitialEnrollment [1001] published\n")
	assert.Contains(t, out, "Total Entries: 1")

	out, err = execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", db, "--batch", "b-1", "--action", "Termination")
	require.NoError(t, err)
	assert.Contains(t, out, "(no entries)")
	assert.Contains(t, out, "Total Entries: 0")
}

func TestTraceBatchJSON(t *testing.T) {
	out, err := execute(NewTraceCommand(&RootOptions{Format: "json"}), "--db", resolvedDB(t), "--batch", "b-1")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   BatchTrace `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "b-1", resp.Data.BatchID)
	require.Len(t, resp.Data.Entries, 1)
	assert.Equal(t, int64(1), resp.Data.Entries[0].Seq)
	assert.Equal(t, "InitialEnrollment", resp.Data.Entries[0].Action)
	assert.Equal(t, []string{"1001"}, resp.Data.Entries[0].HbxEnrollmentIDs)
	assert.Equal(t, map[string]int{"published": 1}, resp.Data.Stats.Outcomes)
}

func TestTraceEnrollmentJSON(t *testing.T) {
	out, err := execute(NewTraceCommand(&RootOptions{Format: "json"}), "--db", resolvedDB(t), "--hbx", "1001")
	require.NoError(t, err)

	var resp struct {
		Data EnrollmentTrace `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "1001", resp.Data.HbxEnrollmentID)

	require.Len(t, resp.Data.Dispositions, 1)
	assert.Equal(t, string(enrollment.DispositionProcessed), resp.Data.Dispositions[0].Disposition)
	assert.Equal(t, "InitialEnrollment", resp.Data.Dispositions[0].Reason)

	assert.NotEmpty(t, resp.Data.Markers)

	require.Len(t, resp.Data.Confirmations, 1)
	assert.Equal(t, enrollment.URIInitial, resp.Data.Confirmations[0].ActionURI)
	assert.Zero(t, resp.Data.Confirmations[0].RetryCount)
}

func TestTraceEnrollmentTextUnknown(t *testing.T) {
	out, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", resolvedDB(t), "--hbx", "404")
	require.NoError(t, err)
	assert.Contains(t, out, "Trace for Enrollment: 404")
	assert.Contains(t, out, "=== Dispositions ===\n  (none)")
	assert.Contains(t, out, "=== Confirmations ===\n  (none)")
}

func TestTraceBatchAndHbxExclusive(t *testing.T) {
	_, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--batch", "b-1", "--hbx", "1001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestTruncateHash(t *testing.T) {
	assert.Equal(t, "abc", truncateHash("abc"))
	assert.Equal(t, "01234567...89abcdef", truncateHash("0123456789abcdef0123456789abcdef"))
}
