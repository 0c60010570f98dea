package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entq/internal/celexpr"
	"github.com/roach88/entq/internal/dispatch"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/query"
	"github.com/roach88/entq/internal/queryir"
)

// QueryOptions holds flags for the query, explain and delete commands.
type QueryOptions struct {
	*RootOptions
	StoreOptions

	Query                string // named query from the schema file
	Where                string
	Select               string
	AllowEmptyProjection bool
	Take                 int
	Strategy             string
}

// ResultRow is one query result in JSON output.
type ResultRow struct {
	Key    string         `json:"key"`
	ETag   string         `json:"etag"`
	Values []any          `json:"values,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a predicate query",
		Long: `Run a predicate query against the configured store.

Predicates and projections are CEL expressions over one entity
parameter, written bare or in lambda form:

  entq query --schema orders.cue --where 'e.status == "open" && e.total > 100'
  entq query --where 'o => o.created >= timestamp("2024-01-01T00:00:00Z")' --select '[o.total]'
  entq query --query openOrders --take 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), opts, cmd)
		},
	}

	addQueryFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Select, "select", "", "projection (CEL); a list selects several values")
	cmd.Flags().BoolVar(&opts.AllowEmptyProjection, "allow-empty-projection", false, "accept projections that touch no field")
	cmd.Flags().IntVar(&opts.Take, "take", 0, "stop after N results (0 = all)")

	return cmd
}

// addQueryFlags registers the flags shared by query, explain and delete.
func addQueryFlags(cmd *cobra.Command, opts *QueryOptions) {
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema file (default schema.file)")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "entity name (default schema.entity)")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "YAML file of entities to store first")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "named query declared in the schema file")
	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "predicate (CEL)")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "force an execution strategy")
}

func runQuery(ctx context.Context, opts *QueryOptions, cmd *cobra.Command) error {
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
	formatter.VerboseLog("strategy: %s", q.Plan().Strategy)

	rows := []ResultRow{}
	for r, err := range q.Results(ctx) {
		if err != nil {
			return formatter.fail(ExitFailure, "query failed", err)
		}
		rows = append(rows, resultRow(r))
	}

	if opts.Format == "json" {
		return formatter.Success(rows)
	}
	w := cmd.OutOrStdout()
	for _, row := range rows {
		fmt.Fprintln(w, textRow(row))
	}
	formatter.VerboseLog("%d result(s)", len(rows))
	return nil
}

// builder assembles a query builder from the flags, falling back to the
// named query for anything the flags leave unset. Delete commands pass
// withSelect false: projections and take do not apply to them.
func (o *QueryOptions) builder(sess *session, withSelect bool) (*query.Builder, error) {
	var (
		pred       *queryir.Predicate
		proj       *queryir.Projection
		take       = o.Take
		strategy   = o.Strategy
		allowEmpty = o.AllowEmptyProjection
	)
	if o.Query != "" {
		spec, ok := sess.defs.Queries[o.Query]
		if !ok {
			return nil, fmt.Errorf("query %q is not declared in the schema file", o.Query)
		}
		if spec.Entity != sess.schema.Name {
			return nil, fmt.Errorf("query %q targets entity %s, not %s", o.Query, spec.Entity, sess.schema.Name)
		}
		pred, proj = spec.Where, spec.Select
		allowEmpty = allowEmpty || spec.AllowEmptyProjection
		if take == 0 {
			take = spec.Take
		}
		if strategy == "" {
			strategy = spec.Strategy
		}
	}

	var err error
	if o.Where != "" {
		if pred, err = celexpr.ParsePredicate(o.Where); err != nil {
			return nil, err
		}
	}
	if o.Select != "" {
		if proj, err = celexpr.ParseProjection(o.Select); err != nil {
			return nil, err
		}
	}

	var bopts []query.Option
	if strategy != "" {
		s, err := dispatch.ParseStrategy(strategy)
		if err != nil {
			return nil, err
		}
		bopts = append(bopts, query.WithStrategy(s))
	}
	b := query.NewBuilder(sess.store, sess.schema, bopts...)

	if pred != nil {
		if err := b.Where(pred); err != nil {
			return nil, err
		}
	}
	if !withSelect {
		return b, nil
	}
	if proj != nil {
		var sopts []query.SelectOption
		if allowEmpty {
			sopts = append(sopts, query.AllowEmptyProjection())
		}
		if err := b.Select(proj, sopts...); err != nil {
			return nil, err
		}
	}
	if take != 0 {
		if err := b.Take(take); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func resultRow(r query.Result) ResultRow {
	row := ResultRow{Key: r.Locator.String(), ETag: r.ETag}
	if r.Values != nil {
		row.Values = make([]any, len(r.Values))
		for i, v := range r.Values {
			row.Values[i] = ir.ToNative(v)
		}
	} else if r.Entity != nil {
		row.Fields = ir.ToNative(r.Entity.Fields).(map[string]any)
	}
	return row
}

// textRow renders a row as the key followed by its values, or by the
// entity body in canonical JSON.
func textRow(row ResultRow) string {
	var parts []string
	parts = append(parts, row.Key)
	switch {
	case row.Values != nil:
		for _, v := range row.Values {
			parts = append(parts, renderNative(v))
		}
	case row.Fields != nil:
		parts = append(parts, renderNative(row.Fields))
	}
	return strings.Join(parts, "\t")
}

func renderNative(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
