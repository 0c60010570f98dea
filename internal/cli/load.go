package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// LoadResult reports a load.
type LoadResult struct {
	Entity string `json:"entity"`
	Stored int    `json:"stored"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{}

	cmd := &cobra.Command{
		Use:   "load <entities.yaml>",
		Short: "Store entities from a YAML file",
		Long: `Store the entities of a YAML file in the configured store,
replacing entities with the same key.

  entities:
    - key: open/o1
      fields: {status: open, total: 120, created: 2024-03-01T10:00:00Z}

The memory backend lives only as long as the command; use the sqlite
or minio backend to keep what was loaded.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema file (default schema.file)")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "entity name (default schema.entity)")

	return cmd
}

func runLoad(ctx context.Context, root *RootOptions, so *StoreOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(root, cmd)

	sess, err := openSession(ctx, root.Config, *so)
	if err != nil {
		return err
	}
	defer sess.Close()

	n, err := sess.seed(ctx, path)
	if err != nil {
		return formatter.fail(ExitCommandError, "failed to load entities", err)
	}

	if root.Format == "json" {
		return formatter.Success(LoadResult{Entity: sess.schema.Name, Stored: n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored %d %s entit(ies)\n", n, sess.schema.Name)
	return nil
}
