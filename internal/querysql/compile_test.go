package querysql

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryir"
)

func testSchema(t *testing.T) *entity.Schema {
	t.Helper()
	s := &entity.Schema{
		Name:  "Order",
		Shape: entity.ShapeTable,
		Fields: []entity.Field{
			{Name: "status", Kind: ir.KindString, Tag: "status", Filterable: true},
			{Name: "total", Kind: ir.KindInt, Filterable: true},
			{Name: "paid", Kind: ir.KindBool, Filterable: true},
			{Name: "created", Kind: ir.KindTime, Filterable: true},
			{Name: "note", Kind: ir.KindString},
		},
	}
	require.NoError(t, s.Validate())
	return s
}

func filter(e queryir.Expr) *queryir.Filter {
	return &queryir.Filter{Expr: e, Text: queryir.Render(e)}
}

func TestCompileList(t *testing.T) {
	c := NewSQLCompiler(testSchema(t))
	sql, params := c.CompileList(false)
	assert.Equal(t, "SELECT e.id, e.pk, e.rk, e.name, e.etag FROM entities e WHERE (1) AND e.id > ? ORDER BY e.id ASC COLLATE BINARY LIMIT ?", sql)
	assert.Empty(t, params)

	sql, _ = c.CompileList(true)
	assert.Contains(t, sql, "json_group_object(t.tag, t.value)")
}

func TestCompileNative_Equality(t *testing.T) {
	c := NewSQLCompiler(testSchema(t))

	sql, params, err := c.CompileNative(filter(queryir.Eq(queryir.F("status"), queryir.Str("open"))))
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE (json_extract(e.body, '$.status') IS ?) AND e.id > ?")
	assert.Contains(t, sql, "ORDER BY e.id ASC COLLATE BINARY LIMIT ?")
	assert.NotContains(t, sql, "json_group_object", "native listings do not select tags")
	// Value NOT in SQL
	assert.NotContains(t, sql, "open")
	assert.Equal(t, []any{"open"}, params)
}

func TestCompileNative_KeyColumns(t *testing.T) {
	c := NewSQLCompiler(testSchema(t))

	e := queryir.AndOf(
		queryir.Eq(queryir.F(entity.KeyPartition), queryir.Str("p1")),
		queryir.Ge(queryir.F(entity.KeyRow), queryir.Str("r5")),
	)
	sql, params, err := c.CompileNative(filter(e))
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE ((e.pk IS ? AND COALESCE(e.rk >= ?, 0))) AND e.id > ?")
	assert.Equal(t, []any{"p1", "r5"}, params)
}

func TestCompileNative_OrderingIsNullSafe(t *testing.T) {
	c := NewSQLCompiler(testSchema(t))

	sql, params, err := c.CompileNative(filter(queryir.NotOf(queryir.Lt(queryir.F("total"), queryir.Int(5)))))
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE (NOT (COALESCE(json_extract(e.body, '$.total') < ?, 0)))")
	assert.Equal(t, []any{int64(5)}, params)
}

func TestCompileNative_NullAndNotEqual(t *testing.T) {
	c := NewSQLCompiler(testSchema(t))

	e := queryir.OrOf(
		queryir.Eq(queryir.F("status"), queryir.C(ir.IRNull{})),
		queryir.Ne(queryir.F("paid"), queryir.Bool(true)),
	)
	sql, params, err := c.CompileNative(filter(e))
	require.NoError(t, err)

	assert.Contains(t, sql, "(json_extract(e.body, '$.status') IS ? OR json_extract(e.body, '$.paid') IS NOT ?)")
	assert.Equal(t, []any{nil, true}, params)
}

func TestCompileNative_TimeBoundAsText(t *testing.T) {
	c := NewSQLCompiler(testSchema(t))
	at := ir.NewIRTime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	_, params, err := c.CompileNative(filter(queryir.Gt(queryir.F("created"), queryir.C(at))))
	require.NoError(t, err)
	assert.Equal(t, []any{"2024-03-01T12:00:00.000000000Z"}, params)
}

func TestCompileNative_Rejects(t *testing.T) {
	c := NewSQLCompiler(testSchema(t))

	tests := []struct {
		name string
		expr queryir.Expr
		want string
	}{
		{"not filterable", queryir.Eq(queryir.F("note"), queryir.Str("x")), "not filterable"},
		{"unknown field", queryir.Eq(queryir.F("missing"), queryir.Str("x")), "unknown field"},
		{"literal on left", queryir.Eq(queryir.Str("x"), queryir.F("status")), "field on the left"},
		{"composite literal", queryir.Eq(queryir.F("status"), queryir.C(ir.IRArray{})), "IRArray"},
		{"method call", queryir.CallOf(queryir.MethodContains, queryir.F("status"), queryir.Str("x")), "unsupported filter node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := c.CompileNative(filter(tt.expr))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, _, err := c.CompileNative(nil)
	require.Error(t, err)
}

func TestCompileTag_Exists(t *testing.T) {
	c := NewSQLCompiler(testSchema(t))

	e := queryir.AndOf(
		queryir.Compare{Op: queryir.OpEq, Left: queryir.TagRef{Tag: "status"}, Right: queryir.Str("open")},
		queryir.Compare{Op: queryir.OpLt, Left: queryir.TagRef{Tag: "total"}, Right: queryir.Str("0009")},
	)
	sql, params, err := c.CompileTag(filter(e))
	require.NoError(t, err)

	probe := "EXISTS (SELECT 1 FROM entity_tags t WHERE t.entity_id = e.id AND t.tag = ? AND t.value %s ?)"
	assert.Contains(t, sql, "("+sprintf(probe, "=")+" AND "+sprintf(probe, "<")+")")
	assert.Contains(t, sql, "ORDER BY e.id ASC COLLATE BINARY")
	assert.Contains(t, sql, "json_group_object(t.tag, t.value)")
	assert.Equal(t, []any{"status", "open", "total", "0009"}, params)
}

func TestCompileTag_NullMeansAbsent(t *testing.T) {
	c := NewSQLCompiler(testSchema(t))

	e := queryir.Compare{Op: queryir.OpEq, Left: queryir.TagRef{Tag: "status"}, Right: queryir.C(ir.IRNull{})}
	sql, params, err := c.CompileTag(filter(e))
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE (NOT EXISTS (SELECT 1 FROM entity_tags t WHERE t.entity_id = e.id AND t.tag = ?))")
	assert.Equal(t, []any{"status"}, params)
}

func TestCompileTag_Rejects(t *testing.T) {
	c := NewSQLCompiler(testSchema(t))

	tests := []struct {
		name string
		expr queryir.Expr
	}{
		{"not equal", queryir.Compare{Op: queryir.OpNe, Left: queryir.TagRef{Tag: "status"}, Right: queryir.Str("x")}},
		{"non-string literal", queryir.Compare{Op: queryir.OpEq, Left: queryir.TagRef{Tag: "status"}, Right: queryir.Int(1)}},
		{"field reference", queryir.Eq(queryir.F("status"), queryir.Str("x"))},
		{"null ordering", queryir.Compare{Op: queryir.OpLt, Left: queryir.TagRef{Tag: "status"}, Right: queryir.C(ir.IRNull{})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := c.CompileTag(filter(tt.expr))
			assert.Error(t, err)
		})
	}
}

func TestIRValueToParam(t *testing.T) {
	tests := []struct {
		in   ir.IRValue
		want any
	}{
		{ir.IRString("s"), "s"},
		{ir.IRInt(-3), int64(-3)},
		{ir.IRBool(false), false},
		{ir.IRNull{}, nil},
	}
	for _, tt := range tests {
		got, err := irValueToParam(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := irValueToParam(ir.IRObject{})
	assert.Error(t, err)
}

func sprintf(format, op string) string {
	return fmt.Sprintf(format, op)
}
