package queryir

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/entq/internal/ir"
)

// FieldSource resolves field values. ok=false means the value is not
// available (as opposed to null).
type FieldSource interface {
	Lookup(name string) (ir.IRValue, bool)
}

// TagSource resolves raw tag values.
type TagSource interface {
	Tag(name string) (string, bool)
}

// Bindings supplies the values an expression is evaluated against.
// Either side may be nil, in which case its references are unknown.
type Bindings struct {
	Fields FieldSource
	Tags   TagSource
}

// Tri is a three-valued truth value.
type Tri int

const (
	False Tri = iota
	True
	Unknown
)

func (t Tri) String() string {
	switch t {
	case False:
		return "false"
	case True:
		return "true"
	default:
		return "unknown"
	}
}

func triOf(b bool) Tri {
	if b {
		return True
	}
	return False
}

// Eval evaluates pred directly against an entity's fields, without
// compilation. Every referenced field must be available.
func Eval(pred *Predicate, fields FieldSource) (bool, error) {
	t, err := EvalTri(pred.Body, Bindings{Fields: fields})
	if err != nil {
		return false, err
	}
	if t == Unknown {
		return false, fmt.Errorf("evaluate %s: referenced fields are unavailable", pred)
	}
	return t == True, nil
}

// EvalTri evaluates a boolean expression with Kleene logic: an unavailable
// field (no source, or bound to PlaceholderParam) makes the smallest
// enclosing comparison unknown, and And/Or/Not propagate unknown only when
// the known operands do not decide the result.
func EvalTri(e Expr, b Bindings) (Tri, error) {
	switch n := e.(type) {
	case And:
		l, err := EvalTri(n.Left, b)
		if err != nil || l == False {
			return False, err
		}
		r, err := EvalTri(n.Right, b)
		if err != nil {
			return False, err
		}
		if r == False {
			return False, nil
		}
		if l == Unknown || r == Unknown {
			return Unknown, nil
		}
		return True, nil
	case Or:
		l, err := EvalTri(n.Left, b)
		if err != nil || l == True {
			return l, err
		}
		r, err := EvalTri(n.Right, b)
		if err != nil {
			return False, err
		}
		if r == True {
			return True, nil
		}
		if l == Unknown || r == Unknown {
			return Unknown, nil
		}
		return False, nil
	case Not:
		x, err := EvalTri(n.X, b)
		if err != nil {
			return False, err
		}
		switch x {
		case True:
			return False, nil
		case False:
			return True, nil
		}
		return Unknown, nil
	case Compare:
		l, lok, err := evalValue(n.Left, b)
		if err != nil {
			return False, err
		}
		r, rok, err := evalValue(n.Right, b)
		if err != nil {
			return False, err
		}
		if !lok || !rok {
			return Unknown, nil
		}
		return triOf(CompareValues(n.Op, l, r)), nil
	default:
		v, ok, err := evalValue(e, b)
		if err != nil {
			return False, err
		}
		if !ok {
			return Unknown, nil
		}
		return truth(v, e)
	}
}

// truth interprets a value in boolean position. Null is false.
func truth(v ir.IRValue, e Expr) (Tri, error) {
	switch val := v.(type) {
	case ir.IRBool:
		return triOf(bool(val)), nil
	case ir.IRNull:
		return False, nil
	default:
		return False, fmt.Errorf("%s is %s, not bool", Render(e), ir.KindOf(v))
	}
}

// CompareValues applies op with the package's null semantics: equality is
// kind-strict and null-safe; ordering is false unless both operands are
// non-null values of the same kind.
func CompareValues(op Op, l, r ir.IRValue) bool {
	switch op {
	case OpEq:
		return ir.Equal(l, r)
	case OpNe:
		return !ir.Equal(l, r)
	}
	c, ok := ir.Compare(l, r)
	if !ok {
		return false
	}
	switch op {
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}

// evalValue evaluates a value expression. ok=false means unknown.
func evalValue(e Expr, b Bindings) (ir.IRValue, bool, error) {
	switch n := e.(type) {
	case Const:
		if n.Value == nil {
			return ir.IRNull{}, true, nil
		}
		return n.Value, true, nil
	case Field:
		if n.Param == PlaceholderParam || b.Fields == nil {
			return nil, false, nil
		}
		v, ok := b.Fields.Lookup(n.Name)
		if !ok {
			return nil, false, nil
		}
		if v == nil {
			v = ir.IRNull{}
		}
		return v, true, nil
	case TagRef:
		if b.Tags == nil {
			return nil, false, nil
		}
		s, ok := b.Tags.Tag(n.Tag)
		if !ok {
			return ir.IRNull{}, true, nil
		}
		return ir.IRString(s), true, nil
	case Call:
		return evalCall(n, b)
	case Compare, And, Or, Not:
		t, err := EvalTri(e, b)
		if err != nil || t == Unknown {
			return nil, false, err
		}
		return ir.IRBool(t == True), true, nil
	default:
		return nil, false, fmt.Errorf("cannot evaluate %s", describe(e))
	}
}

func evalCall(c Call, b Bindings) (ir.IRValue, bool, error) {
	target, ok, err := evalValue(c.Target, b)
	if err != nil || !ok {
		return nil, false, err
	}
	args := make([]ir.IRValue, len(c.Args))
	for i, a := range c.Args {
		v, ok, err := evalValue(a, b)
		if err != nil || !ok {
			return nil, false, err
		}
		args[i] = v
	}
	v, err := ApplyMethod(c.Method, target, args)
	return v, err == nil, err
}

// ApplyMethod applies a supported method. Applying a method to a value of
// the wrong kind (including null) yields null.
func ApplyMethod(method string, target ir.IRValue, args []ir.IRValue) (ir.IRValue, error) {
	_, arity, known := methodSignature(method)
	if !known {
		return nil, fmt.Errorf("unsupported method %q", method)
	}
	if len(args) != arity {
		return nil, fmt.Errorf("method %s takes %d argument(s), got %d", method, arity, len(args))
	}

	if method == MethodSize {
		switch t := target.(type) {
		case ir.IRString:
			return ir.IRInt(utf8.RuneCountInString(string(t))), nil
		case ir.IRArray:
			return ir.IRInt(len(t)), nil
		case ir.IRObject:
			return ir.IRInt(len(t)), nil
		}
		return ir.IRNull{}, nil
	}

	s, ok := target.(ir.IRString)
	if !ok {
		return ir.IRNull{}, nil
	}
	switch method {
	case MethodLower:
		return ir.IRString(strings.ToLower(string(s))), nil
	case MethodUpper:
		return ir.IRString(strings.ToUpper(string(s))), nil
	}

	arg, ok := args[0].(ir.IRString)
	if !ok {
		return ir.IRNull{}, nil
	}
	switch method {
	case MethodContains:
		return ir.IRBool(strings.Contains(string(s), string(arg))), nil
	case MethodStartsWith:
		return ir.IRBool(strings.HasPrefix(string(s), string(arg))), nil
	default:
		return ir.IRBool(strings.HasSuffix(string(s), string(arg))), nil
	}
}

// ObjectSource is a field source that can also render itself as a whole
// object, for projections of the bare parameter.
type ObjectSource interface {
	FieldSource
	Object() ir.IRObject
}

// EvalValue evaluates a value expression against fields. A bare parameter
// evaluates to fields.Object() when fields is an ObjectSource.
func EvalValue(e Expr, fields FieldSource) (ir.IRValue, error) {
	if p, ok := e.(Param); ok {
		if src, ok := fields.(ObjectSource); ok {
			return src.Object(), nil
		}
		return nil, fmt.Errorf("parameter %s cannot be projected from %T", p.Name, fields)
	}
	v, ok, err := evalValue(e, Bindings{Fields: fields})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("evaluate %s: referenced fields are unavailable", Render(e))
	}
	return v, nil
}

// Project evaluates every expression of proj against fields.
func Project(proj *Projection, fields FieldSource) ([]ir.IRValue, error) {
	out := make([]ir.IRValue, len(proj.Exprs))
	for i, e := range proj.Exprs {
		v, err := EvalValue(e, fields)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
