package cli

import (
	"github.com/spf13/cobra"
)

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "classify <batch-file>",
		Short: "Show which actions a batch would run, without side effects",
		Long: `Classify a batch without executing it.

Runs filtering, causal ordering, partitioning and catalog matching against
the current database state. No policy is changed, no marker is written and
no confirmation is queued; every matched chunk reports outcome "classified".

Examples:
  enrollsync classify ./batch.yaml
  enrollsync classify --db ./enroll.db ./batch.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args[0], cmd, true)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}
