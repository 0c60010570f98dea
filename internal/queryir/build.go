package queryir

import "github.com/roach88/entq/internal/ir"

// Where wraps body as a predicate over DefaultParam.
func Where(body Expr) *Predicate {
	return &Predicate{Param: DefaultParam, Body: body}
}

// F references a field of DefaultParam.
func F(name string) Field {
	return Field{Param: DefaultParam, Name: name}
}

// C wraps a literal value.
func C(v ir.IRValue) Const {
	return Const{Value: v}
}

// Str, Int and Bool are shorthands for common constants.
func Str(s string) Const { return Const{Value: ir.IRString(s)} }
func Int(i int64) Const  { return Const{Value: ir.IRInt(i)} }
func Bool(b bool) Const  { return Const{Value: ir.IRBool(b)} }

func Eq(l, r Expr) Compare { return Compare{Op: OpEq, Left: l, Right: r} }
func Ne(l, r Expr) Compare { return Compare{Op: OpNe, Left: l, Right: r} }
func Lt(l, r Expr) Compare { return Compare{Op: OpLt, Left: l, Right: r} }
func Le(l, r Expr) Compare { return Compare{Op: OpLe, Left: l, Right: r} }
func Gt(l, r Expr) Compare { return Compare{Op: OpGt, Left: l, Right: r} }
func Ge(l, r Expr) Compare { return Compare{Op: OpGe, Left: l, Right: r} }

// AndOf folds exprs left to right with And. It returns nil for no exprs.
func AndOf(exprs ...Expr) Expr {
	var out Expr
	for _, e := range exprs {
		if out == nil {
			out = e
			continue
		}
		out = And{Left: out, Right: e}
	}
	return out
}

// OrOf folds exprs left to right with Or. It returns nil for no exprs.
func OrOf(exprs ...Expr) Expr {
	var out Expr
	for _, e := range exprs {
		if out == nil {
			out = e
			continue
		}
		out = Or{Left: out, Right: e}
	}
	return out
}

// NotOf negates x.
func NotOf(x Expr) Not {
	return Not{X: x}
}

// CallOf builds a method call.
func CallOf(method string, target Expr, args ...Expr) Call {
	return Call{Method: method, Target: target, Args: args}
}
