// Package compiled turns predicates into Go closures and caches the result
// so each predicate is compiled at most once.
package compiled

import (
	"fmt"

	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryerr"
	"github.com/roach88/entq/internal/queryir"
)

// Func is a compiled predicate.
type Func func(src queryir.FieldSource) (bool, error)

type valueFunc func(src queryir.FieldSource) (ir.IRValue, error)

// Compile translates pred into a closure tree. Evaluation of the result
// agrees with queryir.Eval on every input. Shapes that cannot be evaluated
// against a materialized entity (tag references, placeholder fields,
// unknown methods) fail with COMPILE_FAILED.
func Compile(pred *queryir.Predicate) (Func, error) {
	if pred == nil || pred.Body == nil {
		return nil, queryerr.New(queryerr.CodeCompileFailed, "nil predicate")
	}
	c := &compiler{param: pred.Param}
	fn, err := c.compileBool(pred.Body)
	if err != nil {
		return nil, queryerr.Wrap(queryerr.CodeCompileFailed, err, "compile predicate").WithExpr(pred.String())
	}
	return Func(fn), nil
}

type compiler struct {
	param string
}

func (c *compiler) compileBool(e queryir.Expr) (func(queryir.FieldSource) (bool, error), error) {
	switch n := e.(type) {
	case queryir.And:
		l, r, err := c.compilePair(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return func(src queryir.FieldSource) (bool, error) {
			ok, err := l(src)
			if err != nil || !ok {
				return false, err
			}
			return r(src)
		}, nil
	case queryir.Or:
		l, r, err := c.compilePair(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return func(src queryir.FieldSource) (bool, error) {
			ok, err := l(src)
			if err != nil || ok {
				return ok, err
			}
			return r(src)
		}, nil
	case queryir.Not:
		x, err := c.compileBool(n.X)
		if err != nil {
			return nil, err
		}
		return func(src queryir.FieldSource) (bool, error) {
			ok, err := x(src)
			return !ok && err == nil, err
		}, nil
	case queryir.Compare:
		return c.compileCompare(n)
	default:
		v, err := c.compileValue(e)
		if err != nil {
			return nil, err
		}
		return func(src queryir.FieldSource) (bool, error) {
			val, err := v(src)
			if err != nil {
				return false, err
			}
			switch b := val.(type) {
			case ir.IRBool:
				return bool(b), nil
			case ir.IRNull:
				return false, nil
			}
			return false, fmt.Errorf("%s is %s, not bool", queryir.Render(e), ir.KindOf(val))
		}, nil
	}
}

func (c *compiler) compilePair(l, r queryir.Expr) (func(queryir.FieldSource) (bool, error), func(queryir.FieldSource) (bool, error), error) {
	lf, err := c.compileBool(l)
	if err != nil {
		return nil, nil, err
	}
	rf, err := c.compileBool(r)
	if err != nil {
		return nil, nil, err
	}
	return lf, rf, nil
}

func (c *compiler) compileCompare(cmp queryir.Compare) (func(queryir.FieldSource) (bool, error), error) {
	if !cmp.Op.Valid() {
		return nil, fmt.Errorf("unknown comparison operator %q", cmp.Op)
	}
	l, err := c.compileValue(cmp.Left)
	if err != nil {
		return nil, err
	}
	op := cmp.Op

	// Literal right operands are the common case; avoid a closure call.
	if k, ok := cmp.Right.(queryir.Const); ok {
		rv := constValue(k)
		return func(src queryir.FieldSource) (bool, error) {
			lv, err := l(src)
			if err != nil {
				return false, err
			}
			return queryir.CompareValues(op, lv, rv), nil
		}, nil
	}

	r, err := c.compileValue(cmp.Right)
	if err != nil {
		return nil, err
	}
	return func(src queryir.FieldSource) (bool, error) {
		lv, err := l(src)
		if err != nil {
			return false, err
		}
		rv, err := r(src)
		if err != nil {
			return false, err
		}
		return queryir.CompareValues(op, lv, rv), nil
	}, nil
}

func (c *compiler) compileValue(e queryir.Expr) (valueFunc, error) {
	switch n := e.(type) {
	case queryir.Const:
		v := constValue(n)
		return func(queryir.FieldSource) (ir.IRValue, error) { return v, nil }, nil
	case queryir.Field:
		if n.Param != c.param {
			return nil, fmt.Errorf("field %s is not bound to parameter %q", queryir.Render(n), c.param)
		}
		name := n.Name
		return func(src queryir.FieldSource) (ir.IRValue, error) {
			v, ok := src.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("field %q is unavailable", name)
			}
			if v == nil {
				return ir.IRNull{}, nil
			}
			return v, nil
		}, nil
	case queryir.Call:
		return c.compileCall(n)
	case queryir.Compare, queryir.And, queryir.Or, queryir.Not:
		b, err := c.compileBool(e)
		if err != nil {
			return nil, err
		}
		return func(src queryir.FieldSource) (ir.IRValue, error) {
			ok, err := b(src)
			return ir.IRBool(ok), err
		}, nil
	default:
		return nil, fmt.Errorf("cannot compile %T", e)
	}
}

func (c *compiler) compileCall(call queryir.Call) (valueFunc, error) {
	// Probe the method once so unknown methods fail at compile time.
	if _, err := queryir.ApplyMethod(call.Method, ir.IRNull{}, make([]ir.IRValue, len(call.Args))); err != nil {
		return nil, err
	}
	target, err := c.compileValue(call.Target)
	if err != nil {
		return nil, err
	}
	args := make([]valueFunc, len(call.Args))
	for i, a := range call.Args {
		if args[i], err = c.compileValue(a); err != nil {
			return nil, err
		}
	}
	method := call.Method
	return func(src queryir.FieldSource) (ir.IRValue, error) {
		tv, err := target(src)
		if err != nil {
			return nil, err
		}
		av := make([]ir.IRValue, len(args))
		for i, a := range args {
			if av[i], err = a(src); err != nil {
				return nil, err
			}
		}
		return queryir.ApplyMethod(method, tv, av)
	}, nil
}

func constValue(k queryir.Const) ir.IRValue {
	if k.Value == nil {
		return ir.IRNull{}
	}
	return k.Value
}
