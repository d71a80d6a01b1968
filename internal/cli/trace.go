package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ideacrew/gluedb-sub000/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database        string
	BatchID         string
	HbxEnrollmentID string
	Action          string // optional - filter to specific action
}

// TraceEntry is one chunk outcome in a batch's action log.
type TraceEntry struct {
	Seq              int64    `json:"seq"`
	Action           string   `json:"action,omitempty"`
	HbxEnrollmentIDs []string `json:"hbx_enrollment_ids"`
	Outcome          string   `json:"outcome"`
	Detail           string   `json:"detail,omitempty"`
}

// BatchTrace is the action log of one batch.
type BatchTrace struct {
	BatchID string       `json:"batch_id"`
	Entries []TraceEntry `json:"entries"`
	Stats   TraceStats   `json:"stats"`
}

// TraceStats counts entries per outcome.
type TraceStats struct {
	Total    int            `json:"total"`
	Outcomes map[string]int `json:"outcomes"`
}

// EnrollmentTrace is everything recorded for one hbx enrollment id.
type EnrollmentTrace struct {
	HbxEnrollmentID string              `json:"hbx_enrollment_id"`
	Dispositions    []TraceDisposition  `json:"dispositions"`
	Markers         []TraceMarker       `json:"markers"`
	Confirmations   []TraceConfirmation `json:"confirmations"`
}

type TraceDisposition struct {
	ContentHash string `json:"content_hash"`
	Disposition string `json:"disposition"`
	Reason      string `json:"reason,omitempty"`
}

type TraceMarker struct {
	ActionURI   string `json:"action_uri"`
	ContentHash string `json:"content_hash"`
}

type TraceConfirmation struct {
	Seq        int64  `json:"seq"`
	ActionURI  string `json:"action_uri"`
	EmployerID string `json:"employer_id,omitempty"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show what happened to a batch or an enrollment",
		Long: `Query the action log and notice history.

With --batch, prints every chunk the batch produced: the action that ran,
the notices it consumed and the outcome. With --hbx, prints the notice
dispositions, idempotency markers and queued confirmations of one
enrollment. Without either flag, lists the batches in the action log.

Examples:
  enrollsync trace
  enrollsync trace --batch 0192f4c1-7a3e-7c1b-9d2e-4f5a6b7c8d9e
  enrollsync trace --batch nightly-42 --action Termination
  enrollsync trace --hbx 1001 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.BatchID, "batch", "", "batch id to trace")
	cmd.Flags().StringVar(&opts.HbxEnrollmentID, "hbx", "", "hbx enrollment id to trace")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter the batch trace to one action")
	cmd.MarkFlagsMutuallyExclusive("batch", "hbx")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd.Context())

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	switch {
	case opts.BatchID != "":
		result, err := traceBatch(ctx, st, opts.BatchID, opts.Action)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read action log", err)
		}
		if opts.Format == "json" {
			return writeJSON(cmd.OutOrStdout(), result)
		}
		outputBatchTraceText(cmd.OutOrStdout(), result)
		return nil

	case opts.HbxEnrollmentID != "":
		markers, client, err := openMarkers(ctx, cfg, st)
		if err != nil {
			return err
		}
		if client != nil {
			defer client.Close()
		}
		result, err := traceEnrollment(ctx, st, markers, opts.HbxEnrollmentID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read enrollment history", err)
		}
		if opts.Format == "json" {
			return writeJSON(cmd.OutOrStdout(), result)
		}
		outputEnrollmentTraceText(cmd.OutOrStdout(), result)
		return nil

	default:
		batches, err := st.ListBatches(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list batches", err)
		}
		if opts.Format == "json" {
			return writeJSON(cmd.OutOrStdout(), map[string]any{"batches": batches})
		}
		w := cmd.OutOrStdout()
		if len(batches) == 0 {
			fmt.Fprintln(w, "No batches recorded.")
			return nil
		}
		for _, id := range batches {
			fmt.Fprintln(w, id)
		}
		return nil
	}
}

// traceBatch reads the action log of a batch. A non-empty action keeps
// only the entries of that action.
func traceBatch(ctx context.Context, st *store.Store, batchID, action string) (BatchTrace, error) {
	records, err := st.ReadActionLog(ctx, batchID)
	if err != nil {
		return BatchTrace{}, err
	}

	result := BatchTrace{
		BatchID: batchID,
		Entries: []TraceEntry{},
		Stats:   TraceStats{Outcomes: map[string]int{}},
	}
	for _, rec := range records {
		if action != "" && rec.Action != action {
			continue
		}
		result.Entries = append(result.Entries, TraceEntry{
			Seq:              rec.Seq,
			Action:           rec.Action,
			HbxEnrollmentIDs: rec.HbxEnrollmentIDs,
			Outcome:          rec.Outcome,
			Detail:           rec.Detail,
		})
		result.Stats.Outcomes[rec.Outcome]++
	}
	result.Stats.Total = len(result.Entries)
	slog.Debug("read action log", "batch_id", batchID, "entries", result.Stats.Total)
	return result, nil
}

func traceEnrollment(ctx context.Context, st *store.Store, markers markerStore, hbx string) (EnrollmentTrace, error) {
	result := EnrollmentTrace{
		HbxEnrollmentID: hbx,
		Dispositions:    []TraceDisposition{},
		Markers:         []TraceMarker{},
		Confirmations:   []TraceConfirmation{},
	}

	dispositions, err := st.ReadDispositions(ctx, hbx)
	if err != nil {
		return result, err
	}
	for _, d := range dispositions {
		result.Dispositions = append(result.Dispositions, TraceDisposition{
			ContentHash: d.ContentHash,
			Disposition: string(d.Disposition),
			Reason:      d.Reason,
		})
	}

	ms, err := markers.ReadMarkers(ctx, hbx)
	if err != nil {
		return result, err
	}
	for _, m := range ms {
		result.Markers = append(result.Markers, TraceMarker{ActionURI: m.ActionURI, ContentHash: m.ContentHash})
	}

	confirmations, err := st.ReadConfirmations(ctx, hbx)
	if err != nil {
		return result, err
	}
	for _, c := range confirmations {
		result.Confirmations = append(result.Confirmations, TraceConfirmation{
			Seq:        c.Seq,
			ActionURI:  c.ActionURI,
			EmployerID: c.EmployerID,
			RetryCount: c.RetryCount,
			LastError:  c.LastError,
		})
	}
	return result, nil
}

func writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: data})
}

func outputBatchTraceText(w io.Writer, result BatchTrace) {
	fmt.Fprintf(w, "Trace for Batch: %s\n", result.BatchID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Action Log ===")
	if len(result.Entries) == 0 {
		fmt.Fprintln(w, "  (no entries)")
	}
	for _, e := range result.Entries {
		action := e.Action
		if action == "" {
			action = "(unmatched)"
		}
		fmt.Fprintf(w, "  [%d] %s %v %s\n", e.Seq, action, e.HbxEnrollmentIDs, e.Outcome)
		if e.Detail != "" {
			fmt.Fprintf(w, "       %s\n", e.Detail)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Entries: %d\n", result.Stats.Total)
	for _, o := range []string{"published", "persisted", "rejected", "unmatched", "failed"} {
		if n := result.Stats.Outcomes[o]; n > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", o+":", n)
		}
	}
}

func outputEnrollmentTraceText(w io.Writer, result EnrollmentTrace) {
	fmt.Fprintf(w, "Trace for Enrollment: %s\n", result.HbxEnrollmentID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Dispositions ===")
	if len(result.Dispositions) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, d := range result.Dispositions {
		fmt.Fprintf(w, "  %s %s", truncateHash(d.ContentHash), d.Disposition)
		if d.Reason != "" {
			fmt.Fprintf(w, " (%s)", d.Reason)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Markers ===")
	if len(result.Markers) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, m := range result.Markers {
		fmt.Fprintf(w, "  %s %s\n", m.ActionURI, truncateHash(m.ContentHash))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Confirmations ===")
	if len(result.Confirmations) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, c := range result.Confirmations {
		fmt.Fprintf(w, "  [%d] %s", c.Seq, c.ActionURI)
		if c.RetryCount > 0 {
			fmt.Fprintf(w, " retries=%d", c.RetryCount)
		}
		if c.LastError != "" {
			fmt.Fprintf(w, " last_error=%q", c.LastError)
		}
		fmt.Fprintln(w)
	}
}

// truncateHash shortens a content hash for display.
func truncateHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:8] + "..." + h[len(h)-8:]
}
