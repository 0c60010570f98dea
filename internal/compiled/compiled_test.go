package compiled

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryerr"
	"github.com/roach88/entq/internal/queryir"
)

type row ir.IRObject

func (r row) Lookup(name string) (ir.IRValue, bool) {
	if v, ok := r[name]; ok {
		return v, true
	}
	return ir.IRNull{}, true
}

var F, Str, Int = queryir.F, queryir.Str, queryir.Int

func matrix() []row {
	return []row{
		{},
		{"status": ir.IRString("a"), "total": ir.IRInt(10), "active": ir.IRBool(true), "name": ir.IRString("Widget")},
		{"status": ir.IRString("b"), "total": ir.IRInt(-3), "active": ir.IRBool(false), "name": ir.IRString("gadget")},
		{"status": ir.IRString("a"), "total": ir.IRString("10")},
		{"total": ir.IRInt(0), "name": ir.IRString("")},
	}
}

func predicates() []*queryir.Predicate {
	return []*queryir.Predicate{
		queryir.Where(queryir.Eq(F("status"), Str("a"))),
		queryir.Where(queryir.Ne(F("status"), Str("a"))),
		queryir.Where(queryir.Gt(F("total"), Int(0))),
		queryir.Where(queryir.Le(Int(0), F("total"))),
		queryir.Where(queryir.NotOf(queryir.Gt(F("total"), Int(0)))),
		queryir.Where(queryir.AndOf(queryir.Eq(F("status"), Str("a")), queryir.Gt(F("total"), Int(5)))),
		queryir.Where(queryir.OrOf(F("active"), queryir.Eq(F("status"), queryir.C(ir.IRNull{})))),
		queryir.Where(queryir.CallOf(queryir.MethodStartsWith, queryir.CallOf(queryir.MethodLower, F("name")), Str("w"))),
		queryir.Where(queryir.Gt(queryir.CallOf(queryir.MethodSize, F("name")), F("total"))),
		queryir.Where(queryir.Eq(queryir.Gt(F("total"), Int(1)), F("active"))),
		queryir.Where(queryir.Bool(false)),
	}
}

func TestCompileAgreesWithEval(t *testing.T) {
	for _, pred := range predicates() {
		t.Run(pred.String(), func(t *testing.T) {
			fn, err := Compile(pred)
			require.NoError(t, err)
			for _, r := range matrix() {
				want, err := queryir.Eval(pred, r)
				require.NoError(t, err)
				got, err := fn(r)
				require.NoError(t, err)
				assert.Equal(t, want, got, "row %v", r)
			}
		})
	}
}

func TestCompileFailures(t *testing.T) {
	tests := []struct {
		name string
		pred *queryir.Predicate
	}{
		{"nil", nil},
		{"tag reference", queryir.Where(queryir.Eq(queryir.TagRef{Tag: "t"}, Str("a")))},
		{"placeholder", queryir.Where(queryir.Eq(queryir.Field{Param: queryir.PlaceholderParam, Name: "a"}, Int(1)))},
		{"unknown method", queryir.Where(queryir.CallOf("matches", F("a"), Str("x")))},
		{"bad arity", queryir.Where(queryir.CallOf(queryir.MethodLower, F("a"), Str("x")))},
		{"bad operator", queryir.Where(queryir.Compare{Op: "~", Left: F("a"), Right: Int(1)})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.pred)
			require.Error(t, err)
			assert.True(t, queryerr.IsCompileError(err))
		})
	}
}

func TestPredicateCompilesOnce(t *testing.T) {
	var compiles int
	pred := queryir.Where(queryir.AndOf(queryir.Eq(F("status"), Str("a")), queryir.Gt(F("total"), Int(5))))
	lazy := New(pred, WithCompileHook(func(*queryir.Predicate) { compiles++ }))

	assert.False(t, lazy.Compiled())
	assert.Equal(t, 0, compiles)

	rows := matrix()
	for i := 0; i < 1000; i++ {
		r := rows[i%len(rows)]
		want, err := queryir.Eval(pred, r)
		require.NoError(t, err)
		got, err := lazy.Invoke(r)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	assert.Equal(t, 1, compiles)
	assert.True(t, lazy.Compiled())
	assert.Same(t, pred, lazy.Source())
}

func TestPredicateCompilesOnceConcurrently(t *testing.T) {
	var compiles atomic.Int32
	lazy := New(queryir.Where(queryir.Eq(F("status"), Str("a"))),
		WithCompileHook(func(*queryir.Predicate) { compiles.Add(1) }))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ok, err := lazy.Invoke(row{"status": ir.IRString("a")})
				assert.NoError(t, err)
				assert.True(t, ok)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), compiles.Load())
}

func TestPredicateCompileErrorIsSticky(t *testing.T) {
	var compiles int
	lazy := New(queryir.Where(queryir.CallOf("nope", F("a"))),
		WithCompileHook(func(*queryir.Predicate) { compiles++ }))

	for i := 0; i < 3; i++ {
		_, err := lazy.Invoke(row{})
		require.Error(t, err)
		assert.True(t, queryerr.IsCompileError(err))
	}
	assert.Equal(t, 1, compiles)
}

func TestCompiledRuntimeError(t *testing.T) {
	fn, err := Compile(queryir.Where(F("status")))
	require.NoError(t, err)
	_, err = fn(row{"status": ir.IRString("a")})
	assert.ErrorContains(t, err, "not bool")
}
