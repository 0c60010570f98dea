package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/entq/internal/celexpr"
	"github.com/roach88/entq/internal/compiler"
	"github.com/roach88/entq/internal/dispatch"
	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/query"
	"github.com/roach88/entq/internal/queryerr"
	"github.com/roach88/entq/internal/queryir"
	"github.com/roach88/entq/internal/store/memstore"
	"github.com/roach88/entq/internal/testutil"
)

// Harness runs one scenario mode against a fresh in-memory store.
type Harness struct {
	schema  *entity.Schema
	queries map[string]*compiler.QuerySpec
	store   *testutil.Instrumented
	ids     *testutil.SequentialIDGenerator
	mode    string
}

// Run executes a scenario in each of its modes and returns the result.
//
// Each mode runs in a fresh in-memory store seeded from the setup section.
// Batch IDs come from a sequential generator so runs are reproducible.
//
// Execution flow:
// 1. Load the CUE schema (and named queries)
// 2. Per mode: seed a fresh store, execute the flow, record the remaining keys
// 3. Evaluate the assertions against the trace
func Run(scenario *Scenario) (*Result, error) {
	defs, err := compiler.LoadFile(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	schema, err := defs.Schema(scenario.Entity)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()
	for _, mode := range scenario.modes() {
		ms, err := memstore.New(schema, memstore.WithTagIndexing(mode == ModeTags))
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		h := &Harness{
			schema:  schema,
			queries: defs.Queries,
			store:   testutil.Instrument(ms),
			ids:     testutil.NewSequentialIDGenerator(scenario.Name),
			mode:    mode,
		}

		if err := h.executeSetup(ctx, scenario.Setup); err != nil {
			return nil, fmt.Errorf("failed to execute setup: %w", err)
		}
		if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
			return nil, fmt.Errorf("failed to execute flow: %w", err)
		}

		remaining, err := h.keys(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list remaining entities: %w", err)
		}
		result.Remaining[mode] = remaining
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	slog.Debug("scenario finished", "scenario", scenario.Name, "pass", result.Pass)
	return result, nil
}

// executeSetup stores the seeded entities.
func (h *Harness) executeSetup(ctx context.Context, setup []EntitySeed) error {
	entities, err := BuildEntities(h.schema, setup)
	if err != nil {
		return err
	}
	for _, e := range entities {
		if err := h.store.Put(ctx, e); err != nil {
			return fmt.Errorf("put %s: %w", e.Locator, err)
		}
	}
	return nil
}

// executeFlow runs every step and checks its expect clause.
//
// Query errors are outcomes, recorded in the trace and compared against
// expect.error; only malformed steps abort the run.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		resolved, err := h.resolve(step)
		if err != nil {
			return fmt.Errorf("flow[%d] %s: %w", i, step.Name, err)
		}

		h.store.Reset()
		event := h.executeStep(ctx, resolved)
		counts := h.store.Counts()
		event.Pulled, event.Downloads = counts.Pulled, counts.Downloads
		result.AddTrace(event)

		if step.Expect != nil {
			for _, msg := range checkExpect(event, step.Expect) {
				result.AddError(fmt.Sprintf("%s/%s: %s", h.mode, step.Name, msg))
			}
		}
	}
	return nil
}

// resolvedStep is a flow step with its CEL sources parsed.
type resolvedStep struct {
	FlowStep
	pred     *queryir.Predicate
	proj     *queryir.Projection
	strategy *dispatch.Strategy
}

// resolve merges the named query into the step and parses its sources.
func (h *Harness) resolve(step FlowStep) (*resolvedStep, error) {
	r := &resolvedStep{FlowStep: step}
	if step.Query != "" {
		spec, ok := h.queries[step.Query]
		if !ok {
			return nil, fmt.Errorf("query %q is not declared", step.Query)
		}
		if r.Where == "" {
			r.pred = spec.Where
		}
		if r.Select == "" && step.Delete == "" {
			r.proj = spec.Select
			r.AllowEmptyProjection = r.AllowEmptyProjection || spec.AllowEmptyProjection
		}
		if r.Take == 0 {
			r.Take = spec.Take
		}
		if r.Strategy == "" {
			r.Strategy = spec.Strategy
		}
	}

	var err error
	if r.Where != "" {
		if r.pred, err = celexpr.ParsePredicate(r.Where); err != nil {
			return nil, err
		}
	}
	if r.Select != "" {
		if r.proj, err = celexpr.ParseProjection(r.Select); err != nil {
			return nil, err
		}
	}
	if r.Strategy != "" {
		s, err := dispatch.ParseStrategy(r.Strategy)
		if err != nil {
			return nil, err
		}
		r.strategy = &s
	}
	return r, nil
}

// executeStep runs one resolved step and records its outcome.
func (h *Harness) executeStep(ctx context.Context, step *resolvedStep) TraceEvent {
	event := TraceEvent{Mode: h.mode, Step: step.Name, Keys: []string{}}

	opts := []query.Option{query.WithIDGenerator(h.ids)}
	if step.strategy != nil {
		opts = append(opts, query.WithStrategy(*step.strategy))
	}
	b := query.NewBuilder(h.store, h.schema, opts...)

	fail := func(err error) TraceEvent {
		event.Error = errorCode(err)
		return event
	}
	if step.pred != nil {
		if err := b.Where(step.pred); err != nil {
			return fail(err)
		}
	}
	if step.proj != nil {
		var selOpts []query.SelectOption
		if step.AllowEmptyProjection {
			selOpts = append(selOpts, query.AllowEmptyProjection())
		}
		if err := b.Select(step.proj, selOpts...); err != nil {
			return fail(err)
		}
	}
	if step.Take > 0 {
		if err := b.Take(step.Take); err != nil {
			return fail(err)
		}
	}

	if step.Delete != "" {
		return h.executeDelete(ctx, b, step, event)
	}

	q, err := b.Build()
	if err != nil {
		return fail(err)
	}
	event.Strategy = q.Plan().Strategy.String()
	event.Explain = explainLines(q.Explain())

	for r, err := range q.Results(ctx) {
		if err != nil {
			return fail(err)
		}
		event.Keys = append(event.Keys, r.Locator.String())
		if r.Values != nil {
			row := make([]any, len(r.Values))
			for i, v := range r.Values {
				row[i] = ir.ToNative(v)
			}
			event.Values = append(event.Values, row)
		}
	}
	return event
}

// executeDelete records the delete's plan, then runs it.
func (h *Harness) executeDelete(ctx context.Context, b *query.Builder, step *resolvedStep, event TraceEvent) TraceEvent {
	if plan, err := b.Plan(); err == nil {
		event.Strategy = plan.Strategy.String()
		event.Explain = explainLines(plan.Explain())
	}

	var (
		n   int
		err error
	)
	if step.Delete == DeleteTransaction {
		n, err = b.BatchDeleteTransaction(ctx)
	} else {
		n, err = b.BatchDelete(ctx)
	}
	event.Deleted = n
	if err != nil {
		event.Error = errorCode(err)
	}
	return event
}

// keys lists every stored key.
func (h *Harness) keys(ctx context.Context) ([]string, error) {
	keys := []string{}
	for c, err := range h.store.ListAll(ctx) {
		if err != nil {
			return nil, err
		}
		keys = append(keys, c.Locator.String())
	}
	slices.Sort(keys)
	return keys, nil
}

// checkExpect compares an event against the step's expect clause.
func checkExpect(event TraceEvent, expect *ExpectClause) []string {
	var errs []string

	wantErr := expect.Error
	if expect.ErrorMode != "" && expect.ErrorMode != event.Mode {
		wantErr = ""
	}
	if event.Error != wantErr {
		errs = append(errs, fmt.Sprintf("expected error %q, got %q", wantErr, event.Error))
		return errs
	}
	if event.Error != "" {
		return errs
	}

	if want, ok := expect.Strategy[event.Mode]; ok && want != event.Strategy {
		errs = append(errs, fmt.Sprintf("expected strategy %s, got %s", want, event.Strategy))
	}
	if expect.Keys != nil && !sameSet(expect.Keys, event.Keys) {
		errs = append(errs, fmt.Sprintf("expected keys %v, got %v", sorted(expect.Keys), sorted(event.Keys)))
	}
	if expect.Count != nil && *expect.Count != len(event.Keys) {
		errs = append(errs, fmt.Sprintf("expected %d results, got %d", *expect.Count, len(event.Keys)))
	}
	if expect.Deleted != nil && *expect.Deleted != event.Deleted {
		errs = append(errs, fmt.Sprintf("expected %d deleted, got %d", *expect.Deleted, event.Deleted))
	}
	for key, want := range expect.Values {
		errs = append(errs, checkValues(event, key, want)...)
	}
	return errs
}

// checkValues compares the projected values of one result key.
func checkValues(event TraceEvent, key string, want []any) []string {
	idx := slices.Index(event.Keys, key)
	if idx < 0 || idx >= len(event.Values) {
		return []string{fmt.Sprintf("no projected values for %s", key)}
	}
	got := event.Values[idx]
	if len(got) != len(want) {
		return []string{fmt.Sprintf("%s: expected %d values, got %d", key, len(want), len(got))}
	}
	var errs []string
	for i := range want {
		w, err := ir.FromNative(want[i])
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s[%d]: %v", key, i, err))
			continue
		}
		g, err := ir.FromNative(got[i])
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s[%d]: %v", key, i, err))
			continue
		}
		if !valuesMatch(w, g) {
			errs = append(errs, fmt.Sprintf("%s[%d]: expected %v, got %v", key, i, want[i], got[i]))
		}
	}
	return errs
}

// valuesMatch compares IR values; time values are reported as strings, so
// a string may match a time written in any RFC 3339 form.
func valuesMatch(want, got ir.IRValue) bool {
	if ir.Equal(want, got) {
		return true
	}
	ws, wok := want.(ir.IRString)
	gs, gok := got.(ir.IRString)
	if !wok || !gok {
		return false
	}
	wt, err1 := ir.ParseIRTime(string(ws))
	gt, err2 := ir.ParseIRTime(string(gs))
	return err1 == nil && err2 == nil && ir.Equal(wt, gt)
}

// errorCode renders err as its taxonomy code, or its message for errors
// outside the taxonomy.
func errorCode(err error) string {
	var qerr *queryerr.Error
	if errors.As(err, &qerr) {
		return string(qerr.Code)
	}
	return err.Error()
}

func explainLines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func sorted(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return out
}

func sameSet(a, b []string) bool {
	return slices.Equal(sorted(a), sorted(b))
}
