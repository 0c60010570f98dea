// Package celexpr parses predicates and projections written in CEL syntax
// into the query IR. Only the parser of google/cel-go is used; expressions
// are never type-checked or evaluated by CEL itself.
//
// Accepted predicates use one entity parameter, written either bare or
// with an explicit lambda head:
//
//	e.status == "open" && e.total > 10
//	o => o.created >= timestamp("2024-01-01T00:00:00Z")
//	e.status in ["open", "pending"]
//	e.name.startsWith("inv-")
package celexpr

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"

	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryerr"
	"github.com/roach88/entq/internal/queryir"
)

var lambdaHead = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=>`)

var parserEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv()
})

var compareOps = map[string]queryir.Op{
	operators.Equals:        queryir.OpEq,
	operators.NotEquals:     queryir.OpNe,
	operators.Less:          queryir.OpLt,
	operators.LessEquals:    queryir.OpLe,
	operators.Greater:       queryir.OpGt,
	operators.GreaterEquals: queryir.OpGe,
}

// ParsePredicate parses src into a validated predicate.
func ParsePredicate(src string) (*queryir.Predicate, error) {
	c, body, err := parse(src)
	if err != nil {
		return nil, err
	}
	pred := &queryir.Predicate{Param: c.param, Body: body}
	if err := queryir.Validate(pred); err != nil {
		return nil, err
	}
	return pred, nil
}

// ParseProjection parses src into a validated projection. A list literal
// projects each element: `[e.name, e.total]`.
func ParseProjection(src string) (*queryir.Projection, error) {
	c, e, err := parseRaw(src)
	if err != nil {
		return nil, err
	}
	var exprs []queryir.Expr
	if e.Kind() == celast.ListKind {
		for _, elem := range e.AsList().Elements() {
			x, err := c.expr(elem)
			if err != nil {
				return nil, c.fail(err)
			}
			exprs = append(exprs, x)
		}
	} else {
		x, err := c.expr(e)
		if err != nil {
			return nil, c.fail(err)
		}
		exprs = []queryir.Expr{x}
	}
	proj := &queryir.Projection{Param: c.param, Exprs: exprs}
	if err := queryir.ValidateProjection(proj); err != nil {
		return nil, err
	}
	return proj, nil
}

func parse(src string) (*converter, queryir.Expr, error) {
	c, e, err := parseRaw(src)
	if err != nil {
		return nil, nil, err
	}
	body, err := c.expr(e)
	if err != nil {
		return nil, nil, c.fail(err)
	}
	return c, body, nil
}

func parseRaw(src string) (*converter, celast.Expr, error) {
	c := &converter{src: src}
	body := src
	if m := lambdaHead.FindStringSubmatch(src); m != nil {
		c.param = m[1]
		c.fixed = true
		body = src[len(m[0]):]
	}
	if strings.TrimSpace(body) == "" {
		return nil, nil, queryerr.New(queryerr.CodeUnsupportedExpression, "empty expression")
	}

	env, err := parserEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("create CEL environment: %w", err)
	}
	ast, iss := env.Parse(body)
	if iss != nil && iss.Err() != nil {
		return nil, nil, queryerr.Wrap(queryerr.CodeUnsupportedExpression, iss.Err(), "parse expression").WithExpr(src)
	}
	e := ast.NativeRep().Expr()
	c.param = c.resolveParam(e)
	return c, e, nil
}

type converter struct {
	src   string
	param string
	fixed bool
}

func (c *converter) fail(err error) error {
	return queryerr.Wrap(queryerr.CodeUnsupportedExpression, err, "convert expression").WithExpr(c.src)
}

// resolveParam returns the explicit lambda parameter, or the first root
// identifier of the expression, or queryir.DefaultParam.
func (c *converter) resolveParam(e celast.Expr) string {
	if c.fixed {
		return c.param
	}
	if name := firstIdent(e); name != "" {
		return name
	}
	return queryir.DefaultParam
}

func firstIdent(e celast.Expr) string {
	switch e.Kind() {
	case celast.IdentKind:
		return e.AsIdent()
	case celast.SelectKind:
		return firstIdent(e.AsSelect().Operand())
	case celast.CallKind:
		call := e.AsCall()
		if call.IsMemberFunction() {
			if name := firstIdent(call.Target()); name != "" {
				return name
			}
		}
		for _, a := range call.Args() {
			if name := firstIdent(a); name != "" {
				return name
			}
		}
	case celast.ListKind:
		for _, elem := range e.AsList().Elements() {
			if name := firstIdent(elem); name != "" {
				return name
			}
		}
	}
	return ""
}

func (c *converter) expr(e celast.Expr) (queryir.Expr, error) {
	switch e.Kind() {
	case celast.LiteralKind:
		v, err := literal(e.AsLiteral())
		if err != nil {
			return nil, err
		}
		return queryir.C(v), nil
	case celast.IdentKind:
		name := e.AsIdent()
		if name != c.param {
			return nil, fmt.Errorf("unknown identifier %q (parameter is %q)", name, c.param)
		}
		return queryir.Param{Name: name}, nil
	case celast.SelectKind:
		return c.selectExpr(e.AsSelect())
	case celast.CallKind:
		return c.call(e.AsCall())
	case celast.ListKind:
		v, err := c.constList(e.AsList())
		if err != nil {
			return nil, err
		}
		return queryir.C(v), nil
	default:
		return nil, fmt.Errorf("unsupported expression kind %d", e.Kind())
	}
}

func (c *converter) selectExpr(sel celast.SelectExpr) (queryir.Expr, error) {
	if sel.IsTestOnly() {
		return nil, fmt.Errorf("has() is not supported; compare with null instead")
	}
	op := sel.Operand()
	if op.Kind() != celast.IdentKind || op.AsIdent() != c.param {
		return nil, fmt.Errorf("field %s must be selected directly from %s", sel.FieldName(), c.param)
	}
	return queryir.Field{Param: c.param, Name: sel.FieldName()}, nil
}

func (c *converter) call(call celast.CallExpr) (queryir.Expr, error) {
	fn := call.FunctionName()
	args := call.Args()

	if op, ok := compareOps[fn]; ok {
		l, r, err := c.pair(args)
		if err != nil {
			return nil, err
		}
		return queryir.Compare{Op: op, Left: l, Right: r}, nil
	}

	switch fn {
	case operators.LogicalAnd, operators.LogicalOr:
		if len(args) < 2 {
			return nil, fmt.Errorf("%s needs two operands", fn)
		}
		exprs, err := c.all(args)
		if err != nil {
			return nil, err
		}
		if fn == operators.LogicalAnd {
			return queryir.AndOf(exprs...), nil
		}
		return queryir.OrOf(exprs...), nil
	case operators.LogicalNot:
		if len(args) != 1 {
			return nil, fmt.Errorf("! needs one operand")
		}
		x, err := c.expr(args[0])
		if err != nil {
			return nil, err
		}
		return queryir.NotOf(x), nil
	case operators.Negate:
		if len(args) == 1 && args[0].Kind() == celast.LiteralKind {
			if i, ok := args[0].AsLiteral().(types.Int); ok {
				return queryir.Int(-int64(i)), nil
			}
		}
		return nil, fmt.Errorf("negation is only supported on integer literals")
	case operators.In:
		return c.in(args)
	case "timestamp":
		if call.IsMemberFunction() || len(args) != 1 || args[0].Kind() != celast.LiteralKind {
			return nil, fmt.Errorf("timestamp() takes one string literal")
		}
		s, ok := args[0].AsLiteral().(types.String)
		if !ok {
			return nil, fmt.Errorf("timestamp() takes one string literal")
		}
		t, err := ir.ParseIRTime(string(s))
		if err != nil {
			return nil, err
		}
		return queryir.C(t), nil
	}

	if !call.IsMemberFunction() {
		return nil, fmt.Errorf("unsupported function %s", fn)
	}
	target, err := c.expr(call.Target())
	if err != nil {
		return nil, err
	}
	margs, err := c.all(args)
	if err != nil {
		return nil, err
	}
	return queryir.CallOf(fn, target, margs...), nil
}

// in expands `x in [a, b]` into `x == a || x == b`.
func (c *converter) in(args []celast.Expr) (queryir.Expr, error) {
	if len(args) != 2 || args[1].Kind() != celast.ListKind {
		return nil, fmt.Errorf("in is only supported with a list literal")
	}
	x, err := c.expr(args[0])
	if err != nil {
		return nil, err
	}
	elems := args[1].AsList().Elements()
	if len(elems) == 0 {
		return queryir.Bool(false), nil
	}
	var alts []queryir.Expr
	for _, elem := range elems {
		v, err := c.expr(elem)
		if err != nil {
			return nil, err
		}
		alts = append(alts, queryir.Eq(x, v))
	}
	return queryir.OrOf(alts...), nil
}

func (c *converter) pair(args []celast.Expr) (queryir.Expr, queryir.Expr, error) {
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("comparison needs two operands, got %d", len(args))
	}
	l, err := c.expr(args[0])
	if err != nil {
		return nil, nil, err
	}
	r, err := c.expr(args[1])
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

func (c *converter) all(args []celast.Expr) ([]queryir.Expr, error) {
	out := make([]queryir.Expr, 0, len(args))
	for _, a := range args {
		x, err := c.expr(a)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

func (c *converter) constList(list celast.ListExpr) (ir.IRArray, error) {
	out := make(ir.IRArray, 0, list.Size())
	for _, elem := range list.Elements() {
		x, err := c.expr(elem)
		if err != nil {
			return nil, err
		}
		k, ok := x.(queryir.Const)
		if !ok {
			return nil, fmt.Errorf("list literals may only contain constants")
		}
		out = append(out, k.Value)
	}
	return out, nil
}

func literal(v any) (ir.IRValue, error) {
	switch val := v.(type) {
	case types.String:
		return ir.IRString(val), nil
	case types.Int:
		return ir.IRInt(val), nil
	case types.Uint:
		if uint64(val) > 1<<63-1 {
			return nil, fmt.Errorf("integer %d overflows int64", uint64(val))
		}
		return ir.IRInt(val), nil
	case types.Bool:
		return ir.IRBool(val), nil
	case types.Null:
		return ir.IRNull{}, nil
	case types.Double:
		return nil, fmt.Errorf("floating point literals are not supported: %v", float64(val))
	default:
		return nil, fmt.Errorf("unsupported literal %v", v)
	}
}
