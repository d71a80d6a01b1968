package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// createTestStore opens a file-backed store under t.TempDir and closes it
// when the test ends.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "enroll.db"))
	require.NoError(t, err, "open store")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// recordActions appends one published entry per seq to a batch's log.
func recordActions(t *testing.T, s *Store, batchID string, seqs ...int64) {
	t.Helper()
	for _, seq := range seqs {
		require.NoError(t, s.RecordAction(context.Background(), ActionRecord{
			BatchID:          batchID,
			Seq:              seq,
			Action:           "Termination",
			HbxEnrollmentIDs: []string{batchID},
			Outcome:          "published",
		}))
	}
}
