// Package querysql compiles translated store filters into parameterized
// SQLite queries over the entities/entity_tags tables.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryir"
)

// Column list shared by every listing query.
const selectColumns = "e.id, e.pk, e.rk, e.name, e.etag"

// tagsColumn collects an entity's tags as a JSON object ('{}' when none).
const tagsColumn = "(SELECT json_group_object(t.tag, t.value) FROM entity_tags t WHERE t.entity_id = e.id)"

// SQLCompiler compiles queryir filters to parameterized SQL for SQLite.
//
// Every listing query is one page of a keyset scan: it takes two trailing
// parameters after the returned ones, the exclusive id cursor and the page
// size. Selected columns are id, pk, rk, name, etag and, for tag listings,
// a JSON object of the entity's tags.
//
// CRITICAL: ALL queries include ORDER BY for deterministic results.
// CRITICAL: All values are parameterized (never interpolated).
//
// Null handling mirrors queryir evaluation: equality is null-safe (IS / IS
// NOT) and ordering comparisons against NULL are false rather than unknown
// (COALESCE(..., 0)), so NOT behaves like the in-memory evaluator.
type SQLCompiler struct {
	schema *entity.Schema
}

// NewSQLCompiler creates a compiler for entities of the given schema.
func NewSQLCompiler(schema *entity.Schema) *SQLCompiler {
	return &SQLCompiler{schema: schema}
}

// CompileList returns the unfiltered listing query, optionally selecting
// tags.
func (c *SQLCompiler) CompileList(withTags bool) (string, []any) {
	return c.assemble("1", withTags), nil
}

// CompileNative compiles a native filter (key and filterable field
// comparisons) to a listing query.
func (c *SQLCompiler) CompileNative(f *queryir.Filter) (string, []any, error) {
	if f == nil || f.Expr == nil {
		return "", nil, fmt.Errorf("cannot compile nil filter")
	}
	where, params, err := c.compilePredicate(f.Expr, c.compileNativeCompare)
	if err != nil {
		return "", nil, fmt.Errorf("compile native filter %q: %w", f.Text, err)
	}
	return c.assemble(where, false), params, nil
}

// CompileTag compiles a tag filter to a listing query. Each tag
// comparison becomes an EXISTS probe of entity_tags.
func (c *SQLCompiler) CompileTag(f *queryir.Filter) (string, []any, error) {
	if f == nil || f.Expr == nil {
		return "", nil, fmt.Errorf("cannot compile nil filter")
	}
	where, params, err := c.compilePredicate(f.Expr, c.compileTagCompare)
	if err != nil {
		return "", nil, fmt.Errorf("compile tag filter %q: %w", f.Text, err)
	}
	return c.assemble(where, true), params, nil
}

func (c *SQLCompiler) assemble(where string, withTags bool) string {
	cols := selectColumns
	if withTags {
		cols += ", " + tagsColumn
	}
	// MANDATORY: Always add ORDER BY
	return fmt.Sprintf("SELECT %s FROM entities e WHERE (%s) AND e.id > ? ORDER BY %s LIMIT ?",
		cols, where, c.stableOrderKey())
}

// stableOrderKey returns the ORDER BY clause for a listing.
// COLLATE BINARY keeps ordering identical to Go string comparison.
func (c *SQLCompiler) stableOrderKey() string {
	return "e.id ASC COLLATE BINARY"
}

type compareCompiler func(queryir.Compare) (string, []any, error)

// compilePredicate compiles a boolean filter expression to a WHERE
// fragment that always evaluates to 0 or 1.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func (c *SQLCompiler) compilePredicate(e queryir.Expr, leaf compareCompiler) (string, []any, error) {
	switch n := e.(type) {
	case queryir.And:
		return c.compileJunction(n.Left, n.Right, "AND", leaf)
	case queryir.Or:
		return c.compileJunction(n.Left, n.Right, "OR", leaf)
	case queryir.Not:
		sql, params, err := c.compilePredicate(n.X, leaf)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", params, nil
	case queryir.Compare:
		return leaf(n)
	default:
		return "", nil, fmt.Errorf("unsupported filter node: %T", e)
	}
}

func (c *SQLCompiler) compileJunction(l, r queryir.Expr, op string, leaf compareCompiler) (string, []any, error) {
	lsql, lparams, err := c.compilePredicate(l, leaf)
	if err != nil {
		return "", nil, err
	}
	rsql, rparams, err := c.compilePredicate(r, leaf)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("(%s %s %s)", lsql, op, rsql), append(lparams, rparams...), nil
}

// compileNativeCompare compiles field-op-literal.
func (c *SQLCompiler) compileNativeCompare(cmp queryir.Compare) (string, []any, error) {
	f, ok := cmp.Left.(queryir.Field)
	if !ok {
		return "", nil, fmt.Errorf("native comparison must have a field on the left, got %T", cmp.Left)
	}
	k, ok := cmp.Right.(queryir.Const)
	if !ok {
		return "", nil, fmt.Errorf("native comparison must have a literal on the right, got %T", cmp.Right)
	}
	col, err := c.column(f.Name)
	if err != nil {
		return "", nil, err
	}
	return compareSQL(col, cmp.Op, k.Value)
}

// compileTagCompare compiles tag-op-literal.
func (c *SQLCompiler) compileTagCompare(cmp queryir.Compare) (string, []any, error) {
	t, ok := cmp.Left.(queryir.TagRef)
	if !ok {
		return "", nil, fmt.Errorf("tag comparison must have a tag on the left, got %T", cmp.Left)
	}
	k, ok := cmp.Right.(queryir.Const)
	if !ok {
		return "", nil, fmt.Errorf("tag comparison must have a literal on the right, got %T", cmp.Right)
	}
	const probe = "EXISTS (SELECT 1 FROM entity_tags t WHERE t.entity_id = e.id AND t.tag = ?%s)"

	if _, isNull := k.Value.(ir.IRNull); isNull {
		if cmp.Op != queryir.OpEq {
			return "", nil, fmt.Errorf("tag %q can only be compared to null with ==", t.Tag)
		}
		return "NOT " + fmt.Sprintf(probe, ""), []any{t.Tag}, nil
	}
	s, ok := k.Value.(ir.IRString)
	if !ok {
		return "", nil, fmt.Errorf("tag %q compared to non-string %s", t.Tag, ir.KindOf(k.Value))
	}
	op, ok := sqlOps[cmp.Op]
	if !ok || cmp.Op == queryir.OpNe {
		return "", nil, fmt.Errorf("operator %s is not supported on tags", cmp.Op)
	}
	return fmt.Sprintf(probe, " AND t.value "+op+" ?"), []any{t.Tag, string(s)}, nil
}

var sqlOps = map[queryir.Op]string{
	queryir.OpEq: "=",
	queryir.OpNe: "!=",
	queryir.OpLt: "<",
	queryir.OpLe: "<=",
	queryir.OpGt: ">",
	queryir.OpGe: ">=",
}

// compareSQL renders col-op-literal with null-safe semantics.
func compareSQL(col string, op queryir.Op, v ir.IRValue) (string, []any, error) {
	param, err := irValueToParam(v)
	if err != nil {
		return "", nil, err
	}
	switch op {
	case queryir.OpEq:
		return col + " IS ?", []any{param}, nil
	case queryir.OpNe:
		return col + " IS NOT ?", []any{param}, nil
	}
	sqlOp, ok := sqlOps[op]
	if !ok {
		return "", nil, fmt.Errorf("unknown operator %q", op)
	}
	return fmt.Sprintf("COALESCE(%s %s ?, 0)", col, sqlOp), []any{param}, nil
}

// column maps a field to its SQL expression: key fields are columns, body
// fields are extracted from the canonical JSON body.
func (c *SQLCompiler) column(name string) (string, error) {
	if c.schema.IsKey(name) {
		switch name {
		case entity.KeyPartition:
			return "e.pk", nil
		case entity.KeyRow:
			return "e.rk", nil
		default:
			return "e.name", nil
		}
	}
	f, ok := c.schema.Field(name)
	if !ok {
		return "", fmt.Errorf("unknown field %q", name)
	}
	if !f.Filterable {
		return "", fmt.Errorf("field %q is not filterable", name)
	}
	// Field names are validated identifiers, so the JSON path is safe.
	return fmt.Sprintf("json_extract(e.body, '$.%s')", strings.ReplaceAll(name, "'", "")), nil
}

// irValueToParam converts an ir.IRValue to a Go native type for SQL parameter.
// Times are bound as their fixed-width text form, which is how bodies store them.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		return bool(val), nil
	case ir.IRTime:
		return val.String(), nil
	case ir.IRNull, nil:
		return nil, nil
	case ir.IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
