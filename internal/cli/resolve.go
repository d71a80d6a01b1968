package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ideacrew/gluedb-sub000/internal/engine"
	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// BatchOptions holds flags shared by resolve and classify.
type BatchOptions struct {
	*RootOptions
	Database string
	// BatchIDs overrides the generator for batches without an id (for testing).
	BatchIDs engine.BatchIDGenerator
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <batch-file>",
		Short: "Process a batch of notices against the database",
		Long: `Process one batch of enrollment notices.

The batch is filtered, ordered, partitioned and classified. Every matched
action is persisted to the SQLite database and its confirmations are queued
in the outbox for the relay started by 'serve'.

Exit codes:
  0 - Batch processed
  1 - Batch failed (cycle, collaborator failure, partial persist)
  2 - Command error (unreadable batch, database not found, etc.)

Examples:
  enrollsync resolve ./batch.yaml
  enrollsync resolve --db /tmp/enroll.db ./batch.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args[0], cmd, false)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

// runBatch loads a batch and processes it. With dryRun the engine stops
// after classification and nothing is written.
func runBatch(opts *BatchOptions, path string, cmd *cobra.Command, dryRun bool) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	batch, err := LoadBatch(path)
	if err != nil {
		_ = formatter.Error(ErrCodeBatchInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load batch", err)
	}
	formatter.VerboseLog("Loaded %d notice(s) from %s", len(batch.Events), path)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	st, err := openStore(cfg, opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := commandContext(cmd.Context())
	markers, client, err := openMarkers(ctx, cfg, st)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	if client != nil {
		defer client.Close()
	}

	var engineOpts []engine.Option
	if opts.BatchIDs != nil {
		engineOpts = append(engineOpts, engine.WithBatchIDs(opts.BatchIDs))
	}
	eng, err := newEngine(ctx, cfg, st, markers, engineOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}

	process := eng.Process
	if dryRun {
		process = eng.Classify
	}
	rep, runErr := processBatch(ctx, process, batch)

	if err := formatter.Report(rep, runErr); err != nil {
		return err
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "batch processing failed", runErr)
	}
	return nil
}

func processBatch(ctx context.Context, process func(context.Context, *enrollment.Batch) (*engine.Report, error), b *enrollment.Batch) (*engine.Report, error) {
	rep, err := process(ctx, b)
	if rep != nil {
		slog.Debug("batch finished",
			"batch_id", rep.BatchID,
			"received", rep.Received,
			"dropped", rep.Dropped,
			"chunks", len(rep.Chunks))
	}
	return rep, err
}
