package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideacrew/gluedb-sub000/internal/engine"
)

func sampleReport() *engine.Report {
	return &engine.Report{
		BatchID:  "b-1",
		Received: 3,
		Dropped:  1,
		Order:    []string{"1", "2"},
		Chunks: []engine.ChunkResult{
			{
				Seq:              1,
				HbxEnrollmentIDs: []string{"1", "2"},
				Action:           "CarrierSwitch",
				Outcome:          engine.OutcomePublished,
				Documents:        []string{"#terminate_enrollment", "#initial"},
				Canceled:         []string{"R"},
			},
			{
				Seq:              2,
				HbxEnrollmentIDs: []string{"9"},
				Outcome:          engine.OutcomeUnmatched,
			},
		},
	}
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeBatchInput, "batch has no events", []string{"events"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeBatchInput, resp.Error.Code)
	assert.Equal(t, "batch has no events", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error(ErrCodeConfig, "config invalid", "engine.workers"))
			assert.Contains(t, buf.String(), "Error [E102]: config invalid")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details: engine.workers")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("Loaded %d notice(s)", 3)
	assert.Empty(t, out.String())
	assert.Equal(t, "Loaded 3 notice(s)\n", errOut.String())

	formatter.Verbose = false
	formatter.VerboseLog("dropped")
	assert.Equal(t, "Loaded 3 notice(s)\n", errOut.String())
}

func TestOutputFormatter_ReportText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Report(sampleReport(), nil))
	out := buf.String()

	assert.Contains(t, out, "Batch: b-1\n")
	assert.Contains(t, out, "Received: 3  Dropped: 1\n")
	assert.Contains(t, out, "Order: 1, 2\n")
	assert.Contains(t, out, "  [1] CarrierSwitch [1 2] published\n")
	assert.Contains(t, out, "       documents: #terminate_enrollment, #initial\n")
	assert.Contains(t, out, "       canceled renewals: R\n")
	assert.Contains(t, out, "  [2] (unmatched) [9] unmatched\n")
	assert.Contains(t, out, "published: 1")
	assert.Contains(t, out, "unmatched: 1")
	assert.NotContains(t, out, "Error [")
}

func TestOutputFormatter_ReportWithRuntimeError(t *testing.T) {
	runErr := engine.NewInvalidBatchError("b-1", "batch has no events")

	t.Run("text without report", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, formatter.Report(nil, runErr))
		assert.NotContains(t, buf.String(), "Batch:")
		assert.Contains(t, buf.String(), "Error [INVALID_BATCH]")
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, formatter.Report(sampleReport(), runErr))

		var resp struct {
			Status string        `json:"status"`
			Data   engine.Report `json:"data"`
			Error  *CLIError     `json:"error"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, "b-1", resp.Data.BatchID)
		require.Len(t, resp.Data.Chunks, 2)
		assert.Equal(t, []string{"R"}, resp.Data.Chunks[0].Canceled)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "INVALID_BATCH", resp.Error.Code)
	})
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeGeneric, errorCode(assert.AnError))
	assert.Equal(t, "INVALID_BATCH", errorCode(engine.NewInvalidBatchError("b", "empty")))
}
