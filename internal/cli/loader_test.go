package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		b, err := LoadBatch(writeFile(t, dir, "batch.yaml", initialBatchYAML))
		require.NoError(t, err)
		assert.Equal(t, "b-1", b.ID)
		require.Len(t, b.Events, 1)
		assert.Equal(t, "1001", b.Events[0].HbxEnrollmentID)
	})

	t.Run("yml extension", func(t *testing.T) {
		b, err := LoadBatch(writeFile(t, dir, "batch.YML", initialBatchYAML))
		require.NoError(t, err)
		assert.Equal(t, "b-1", b.ID)
	})

	t.Run("json", func(t *testing.T) {
		b, err := LoadBatch(writeFile(t, dir, "batch.json", initialBatchJSON))
		require.NoError(t, err)
		assert.Equal(t, "b-json", b.ID)
		require.Len(t, b.Events, 1)
		assert.Equal(t, "sub-2", b.Events[0].SubscriberID)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := LoadBatch(writeFile(t, dir, "batch.txt", initialBatchYAML))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported batch file extension ".txt"`)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadBatch(filepath.Join(dir, "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read batch")
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := LoadBatch(writeFile(t, dir, "bad.json", `{"id":"x","notices":[]}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode batch json")
	})
}
