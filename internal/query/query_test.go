package query

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entq/internal/dispatch"
	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/metrics"
	"github.com/roach88/entq/internal/queryerr"
	"github.com/roach88/entq/internal/queryir"
	"github.com/roach88/entq/internal/store"
	"github.com/roach88/entq/internal/store/sqlitestore"
	"github.com/roach88/entq/internal/testutil"
)

var (
	F   = queryir.F
	Str = queryir.Str
	Int = queryir.Int
)

func docStore(t *testing.T, n int, tags bool) (*testutil.Instrumented, *entity.Schema) {
	t.Helper()
	schema := testutil.DocSchema(t)
	inner := testutil.NewMemStore(t, schema, tags)
	testutil.Seed(t, inner, testutil.Docs(t, schema, n)...)
	return testutil.Instrument(inner), schema
}

func collect(t *testing.T, q *Query) []Result {
	t.Helper()
	var out []Result
	for r, err := range q.Results(context.Background()) {
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func resultNames(rs []Result) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Locator.Name)
	}
	sort.Strings(out)
	return out
}

func run(t *testing.T, s store.Store, schema *entity.Schema, preds ...*queryir.Predicate) []string {
	t.Helper()
	b := NewBuilder(s, schema)
	for _, p := range preds {
		require.NoError(t, b.Where(p))
	}
	q, err := b.Build()
	require.NoError(t, err)
	return resultNames(collect(t, q))
}

func TestWhere_ComposesAsConjunction(t *testing.T) {
	pairs := []struct {
		a, b *queryir.Predicate
	}{
		{
			queryir.Where(queryir.Eq(F("tag"), Str("a"))),
			queryir.Where(queryir.Gt(F("size"), Int(30))),
		},
		{
			queryir.Where(queryir.Gt(F("id"), Int(2))),
			&queryir.Predicate{Param: "x", Body: queryir.Lt(queryir.Field{Param: "x", Name: "size"}, Int(70))},
		},
		{
			queryir.Where(queryir.OrOf(queryir.Eq(F("tag"), Str("b")), queryir.Eq(F("id"), Int(1)))),
			&queryir.Predicate{Param: "d", Body: queryir.CallOf(queryir.MethodEndsWith, queryir.Field{Param: "d", Name: "title"}, Str("4"))},
		},
	}

	for _, tags := range []bool{true, false} {
		s, schema := docStore(t, 8, tags)
		for _, p := range pairs {
			combined := queryir.Where(queryir.AndOf(p.a.Body, queryir.Rebind(p.b.Body, p.b.Param, queryir.DefaultParam)))
			assert.Equal(t, run(t, s, schema, combined), run(t, s, schema, p.a, p.b),
				"%s then %s", p.a, p.b)
		}
	}
}

func TestWhere_RebindsToFirstParameter(t *testing.T) {
	s, schema := docStore(t, 2, true)
	b := NewBuilder(s, schema)
	require.NoError(t, b.Where(queryir.Where(queryir.Eq(F("tag"), Str("a")))))
	require.NoError(t, b.Where(&queryir.Predicate{Param: "x", Body: queryir.Gt(queryir.Field{Param: "x", Name: "id"}, Int(0))}))

	assert.Equal(t, `e => e.tag == "a" && e.id > 0`, b.Predicate().String())
}

func TestWhere_Rejections(t *testing.T) {
	s, schema := docStore(t, 1, true)
	b := NewBuilder(s, schema)

	err := b.Where(nil)
	assert.True(t, queryerr.IsInvalidArgument(err))

	err = b.Where(queryir.Where(queryir.Compare{Op: "~", Left: F("tag"), Right: Str("a")}))
	assert.True(t, queryerr.IsUnsupportedExpression(err), "invalid predicates fail at Where, not at enumeration")
	assert.Nil(t, b.Predicate())

	err = b.Where(queryir.Where(queryir.Eq(queryir.TagRef{Tag: "tag"}, Str("a"))))
	assert.True(t, queryerr.IsUnsupportedExpression(err))

	err = b.Where(queryir.Where(queryir.Eq(queryir.Field{Param: queryir.PlaceholderParam, Name: "title"}, Str("title-1"))))
	assert.True(t, queryerr.IsUnsupportedExpression(err))

	err = b.Where(&queryir.Predicate{
		Param: queryir.PlaceholderParam,
		Body:  queryir.Eq(queryir.Field{Param: queryir.PlaceholderParam, Name: "title"}, Str("title-1")),
	})
	assert.True(t, queryerr.IsUnsupportedExpression(err))
	assert.Nil(t, b.Predicate())
}

func TestSelect(t *testing.T) {
	s, schema := docStore(t, 3, true)
	b := NewBuilder(s, schema)
	require.NoError(t, b.Where(queryir.Where(queryir.Eq(F("tag"), Str("a")))))
	require.NoError(t, b.Select(&queryir.Projection{Param: "e", Exprs: []queryir.Expr{
		F("title"),
		queryir.CallOf(queryir.MethodUpper, F("tag")),
	}}))
	q, err := b.Build()
	require.NoError(t, err)

	rs := collect(t, q)
	require.Len(t, rs, 2)
	byName := map[string][]ir.IRValue{}
	for _, r := range rs {
		byName[r.Locator.Name] = r.Values
	}
	assert.Equal(t, []ir.IRValue{ir.IRString("title-1"), ir.IRString("A")}, byName["doc-01"])
	assert.Equal(t, []ir.IRValue{ir.IRString("title-3"), ir.IRString("A")}, byName["doc-03"])
}

func TestSelect_Rejections(t *testing.T) {
	s, schema := docStore(t, 1, true)
	proj := &queryir.Projection{Param: "e", Exprs: []queryir.Expr{F("title")}}
	whole := &queryir.Projection{Param: "e", Exprs: []queryir.Expr{queryir.Param{Name: "e"}}}

	t.Run("twice", func(t *testing.T) {
		b := NewBuilder(s, schema)
		require.NoError(t, b.Select(proj))
		err := b.Select(proj)
		assert.Equal(t, queryerr.CodeMultipleTransformations, queryerr.CodeOf(err))
	})

	t.Run("no fields", func(t *testing.T) {
		b := NewBuilder(s, schema)
		err := b.Select(whole)
		assert.Equal(t, queryerr.CodeUnsupportedProjection, queryerr.CodeOf(err))
	})

	t.Run("no fields allowed", func(t *testing.T) {
		b := NewBuilder(s, schema)
		require.NoError(t, b.Select(whole, AllowEmptyProjection()))
		q, err := b.Build()
		require.NoError(t, err)

		rs := collect(t, q)
		require.Len(t, rs, 1)
		obj, ok := rs[0].Values[0].(ir.IRObject)
		require.True(t, ok)
		assert.Equal(t, ir.IRString("doc-01"), obj[entity.KeyName])
		assert.Equal(t, ir.IRInt(1), obj["id"])
	})
}

func TestTake(t *testing.T) {
	preds := []*queryir.Predicate{
		nil,
		queryir.Where(queryir.Eq(F("tag"), Str("a"))),
		queryir.Where(queryir.Gt(F("id"), Int(4))),
	}
	for _, pred := range preds {
		for _, n := range []int{1, 2, 3, 100} {
			s, schema := docStore(t, 10, true)
			b := NewBuilder(s, schema)
			if pred != nil {
				require.NoError(t, b.Where(pred))
			}
			require.NoError(t, b.Take(n))
			q, err := b.Build()
			require.NoError(t, err)

			all := run(t, testutil.Instrument(s.Store), schema, nonNil(pred)...)
			rs := collect(t, q)
			assert.Len(t, rs, min(n, len(all)), "%s take %d", pred, n)

			if n < len(all) && q.Plan().Strategy != dispatch.FullScanCompiled {
				assert.Equal(t, n, s.Counts().Pulled, "%s: no candidate is pulled past the bound", pred)
			}
		}
	}
}

func nonNil(pred *queryir.Predicate) []*queryir.Predicate {
	if pred == nil {
		return nil
	}
	return []*queryir.Predicate{pred}
}

func TestTake_StopsScanAtBound(t *testing.T) {
	s, schema := docStore(t, 10, true)
	b := NewBuilder(s, schema)
	require.NoError(t, b.Where(queryir.Where(queryir.Gt(F("id"), Int(4)))))
	require.NoError(t, b.Take(2))
	q, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, dispatch.FullScanCompiled, q.Plan().Strategy)

	assert.Equal(t, []string{"doc-05", "doc-06"}, resultNames(collect(t, q)))
	assert.Equal(t, 6, s.Counts().Pulled, "doc-07 and later are never listed")
}

func TestTake_Invalid(t *testing.T) {
	s, schema := docStore(t, 1, true)
	b := NewBuilder(s, schema)
	for _, n := range []int{0, -1} {
		assert.True(t, queryerr.IsInvalidArgument(b.Take(n)))
	}
}

func TestBuild_FreezesBuilder(t *testing.T) {
	s, schema := docStore(t, 1, true)
	b := NewBuilder(s, schema)
	_, err := b.Build()
	require.NoError(t, err)

	frozen := func(err error) {
		t.Helper()
		assert.Equal(t, queryerr.CodeBuilderFrozen, queryerr.CodeOf(err))
	}
	frozen(b.Where(queryir.Where(queryir.Eq(F("tag"), Str("a")))))
	frozen(b.Select(&queryir.Projection{Param: "e", Exprs: []queryir.Expr{F("title")}}))
	frozen(b.Take(1))
	_, err = b.Build()
	frozen(err)
	_, err = b.BatchDelete(context.Background())
	frozen(err)
}

func TestBuild_ConfigMisuse(t *testing.T) {
	s, schema := docStore(t, 1, false)
	b := NewBuilder(s, schema, WithStrategy(dispatch.TagQuery))
	require.NoError(t, b.Where(queryir.Where(queryir.Eq(F("tag"), Str("a")))))

	_, err := b.Build()
	assert.True(t, queryerr.IsConfigMisuse(err))

	// A failed Build leaves the builder usable.
	require.NoError(t, b.Take(1))
}

func TestBuilder_PlanDoesNotFreeze(t *testing.T) {
	s, schema := docStore(t, 1, true)
	b := NewBuilder(s, schema)
	require.NoError(t, b.Where(queryir.Where(queryir.Eq(F("tag"), Str("a")))))

	plan, err := b.Plan()
	require.NoError(t, err)
	assert.Equal(t, dispatch.TagQuery, plan.Strategy)

	require.NoError(t, b.Take(1))
	q, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, dispatch.TagQuery, q.Plan().Strategy)
}

func TestResults_SingleUse(t *testing.T) {
	s, schema := docStore(t, 2, true)
	q, err := NewBuilder(s, schema).Build()
	require.NoError(t, err)

	assert.Len(t, collect(t, q), 2)

	var errs []error
	for _, err := range q.Results(context.Background()) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.Equal(t, queryerr.CodeAlreadyConsumed, queryerr.CodeOf(errs[0]))
}

func TestResults_Cancellation(t *testing.T) {
	s, schema := docStore(t, 6, true)
	q, err := NewBuilder(s, schema).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []Result
	var lastErr error
	for r, err := range q.Results(ctx) {
		if err != nil {
			lastErr = err
			break
		}
		got = append(got, r)
		if len(got) == 2 {
			cancel()
		}
	}
	assert.Len(t, got, 2, "nothing is yielded after cancellation")
	assert.ErrorIs(t, lastErr, context.Canceled)
}

func TestResults_CompilesOnce(t *testing.T) {
	s, schema := docStore(t, 10, true)
	compiles := 0
	b := NewBuilder(s, schema, WithCompileHook(func(*queryir.Predicate) { compiles++ }))
	require.NoError(t, b.Where(queryir.Where(queryir.Gt(F("id"), Int(0)))))
	q, err := b.Build()
	require.NoError(t, err)

	assert.Len(t, collect(t, q), 10)
	assert.Equal(t, 1, compiles)
}

func TestQuery_Explain(t *testing.T) {
	s, schema := docStore(t, 1, true)
	b := NewBuilder(s, schema)
	require.NoError(t, b.Where(queryir.Where(queryir.Eq(F("tag"), Str("a")))))
	require.NoError(t, b.Take(2))
	q, err := b.Build()
	require.NoError(t, err)

	expected := `strategy: TagQuery
predicate: e.tag == "a"
verdict: TagTranslatable
native: <none>
tag: "tag" = 'a'
residual: false
operand_error: false
materializes: false
projection: <entity>
take: 2
`
	assert.Equal(t, expected, q.Explain())
}

func TestBatchDelete(t *testing.T) {
	s, schema := docStore(t, 6, true)
	before := promtest.ToFloat64(metrics.BatchActionsTotal.WithLabelValues(modeBatch))

	b := NewBuilder(s, schema)
	require.NoError(t, b.Where(queryir.Where(queryir.Eq(F("tag"), Str("a")))))
	n, err := b.BatchDelete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got := s.Counts()
	assert.Equal(t, 3, got.Deletes)
	assert.Zero(t, got.Downloads, "exact tag matches are deleted by key")
	assert.Equal(t, []string{"doc-02", "doc-04", "doc-06"}, run(t, s, schema))
	assert.Equal(t, before+3, promtest.ToFloat64(metrics.BatchActionsTotal.WithLabelValues(modeBatch)))
}

func TestBatchDeleteTransaction(t *testing.T) {
	s, schema := docStore(t, 6, true)
	ids := testutil.NewSequentialIDGenerator("del")

	b := NewBuilder(s, schema, WithIDGenerator(ids))
	require.NoError(t, b.Where(queryir.Where(queryir.Gt(F("size"), Int(30)))))
	n, err := b.BatchDeleteTransaction(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, s.Counts().Batches)
	assert.Equal(t, "del-0002", ids.Generate(), "one batch ID was consumed")
	assert.Equal(t, []string{"doc-01", "doc-02", "doc-03"}, run(t, s, schema))
}

func TestBatchDeleteTransaction_NoMatches(t *testing.T) {
	s, schema := docStore(t, 3, true)
	b := NewBuilder(s, schema)
	require.NoError(t, b.Where(queryir.Where(queryir.Eq(F("tag"), Str("zzz")))))

	n, err := b.BatchDeleteTransaction(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, s.Counts().Batches)
}

func TestBatchDeleteTransaction_SQLite(t *testing.T) {
	ctx := context.Background()
	schema := testutil.DocSchema(t)
	s, err := sqlitestore.Open(filepath.Join(t.TempDir(), "entq.db"), schema, sqlitestore.WithPageSize(2))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	testutil.Seed(t, s, testutil.Docs(t, schema, 7)...)

	b := NewBuilder(s, schema, WithIDGenerator(testutil.NewSequentialIDGenerator("")))
	require.NoError(t, b.Where(queryir.Where(queryir.AndOf(
		queryir.Eq(F("tag"), Str("a")),
		queryir.Ge(F("id"), Int(3))))))
	n, err := b.BatchDeleteTransaction(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, []string{"doc-01", "doc-02", "doc-04", "doc-06"}, run(t, s, schema))
}
