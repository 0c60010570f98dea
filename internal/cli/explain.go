package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ExplainResult is the JSON form of a plan.
type ExplainResult struct {
	Strategy string   `json:"strategy"`
	Lines    []string `json:"lines"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show the execution plan of a query without running it",
		Long: `Show how a predicate is classified, rewritten and dispatched
against the configured store, without touching any data.

  entq explain --schema orders.cue --where 'e.status == "open" && e.note != ""'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd.Context(), opts, cmd)
		},
	}

	addQueryFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Select, "select", "", "projection (CEL)")
	cmd.Flags().BoolVar(&opts.AllowEmptyProjection, "allow-empty-projection", false, "accept projections that touch no field")
	cmd.Flags().IntVar(&opts.Take, "take", 0, "stop after N results (0 = all)")

	return cmd
}

func runExplain(ctx context.Context, opts *QueryOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	sess, err := openSession(ctx, opts.Config, opts.StoreOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	b, err := opts.builder(sess, true)
	if err != nil {
		return formatter.fail(ExitFailure, "invalid query", err)
	}
	q, err := b.Build()
	if err != nil {
		return formatter.fail(ExitFailure, "invalid query", err)
	}

	explain := q.Explain()
	if opts.Format == "json" {
		return formatter.Success(ExplainResult{
			Strategy: q.Plan().Strategy.String(),
			Lines:    strings.Split(strings.TrimSuffix(explain, "\n"), "\n"),
		})
	}
	fmt.Fprint(cmd.OutOrStdout(), explain)
	return nil
}
