package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	QueryOptions
	Transaction bool
}

// DeleteResult reports a batch delete.
type DeleteResult struct {
	Deleted     int    `json:"deleted"`
	Strategy    string `json:"strategy"`
	Transaction bool   `json:"transaction"`
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{QueryOptions: QueryOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every entity matching a predicate",
		Long: `Delete every entity matching a predicate.

Matching keys are collected first, then deleted. Deletes are ETag
conditional: an entity changed since it matched is reported as a
conflict. With --transaction all deletes are submitted as one atomic
batch: either every match is deleted or none is.

  entq delete --schema orders.cue --where 'e.status == "closed"'
  entq delete --query closedOrders --transaction`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), opts, cmd)
		},
	}

	addQueryFlags(cmd, &opts.QueryOptions)
	cmd.Flags().BoolVar(&opts.Transaction, "transaction", false, "delete all matches in one atomic batch")

	return cmd
}

func runDelete(ctx context.Context, opts *DeleteOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	sess, err := openSession(ctx, opts.Config, opts.StoreOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	b, err := opts.builder(sess, false)
	if err != nil {
		return formatter.fail(ExitFailure, "invalid query", err)
	}

	result := DeleteResult{Transaction: opts.Transaction}
	if plan, err := b.Plan(); err == nil {
		result.Strategy = plan.Strategy.String()
	}

	var n int
	if opts.Transaction {
		n, err = b.BatchDeleteTransaction(ctx)
	} else {
		n, err = b.BatchDelete(ctx)
	}
	if err != nil {
		return formatter.fail(ExitFailure, "delete failed", err)
	}

	result.Deleted = n
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entit(ies)\n", n)
	formatter.VerboseLog("strategy: %s", result.Strategy)
	return nil
}
