package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryerr"
)

// Validate checks that a predicate is structurally well formed:
//  1. It has a parameter name and a body
//  2. Every field references that parameter (no free parameters)
//  3. The body and all logical operands are boolean-typed
//  4. Comparison operands are value-typed (field, tag, literal, value call)
//  5. Calls use a known method with the right arity
//  6. Neither the reserved PlaceholderParam nor TagRef appears; both belong
//     to rewritten tag predicates only
//
// Problems are reported as a single UNSUPPORTED_EXPRESSION error.
// Validate is a pure function with no side effects.
func Validate(pred *Predicate) error {
	return validatePredicate(pred, false)
}

// ValidateRewritten checks a predicate produced by the tag rewriter. It
// applies the rules of Validate but accepts TagRef nodes and fields bound
// to PlaceholderParam.
func ValidateRewritten(pred *Predicate) error {
	return validatePredicate(pred, true)
}

func validatePredicate(pred *Predicate, rewritten bool) error {
	if pred == nil {
		return queryerr.New(queryerr.CodeUnsupportedExpression, "nil predicate")
	}
	v := &validator{param: pred.Param, rewritten: rewritten}
	switch {
	case pred.Param == "":
		v.addProblem("predicate has no parameter")
	case pred.Param == PlaceholderParam:
		v.addProblem("parameter name %q is reserved", PlaceholderParam)
	}
	if pred.Body == nil {
		v.addProblem("predicate has no body")
	} else {
		v.validateBool(pred.Body)
	}
	return v.err(Render(pred.Body))
}

// ValidateProjection checks a projection the same way: every expression
// must be a value expression over the projection's parameter.
func ValidateProjection(proj *Projection) error {
	if proj == nil {
		return queryerr.New(queryerr.CodeUnsupportedProjection, "nil projection")
	}
	v := &validator{param: proj.Param, allowParam: true}
	if proj.Param == PlaceholderParam {
		v.addProblem("parameter name %q is reserved", PlaceholderParam)
	}
	rendered := make([]string, len(proj.Exprs))
	for i, e := range proj.Exprs {
		v.validateValue(e)
		rendered[i] = Render(e)
	}
	return v.err(strings.Join(rendered, ", "))
}

// validator accumulates problems during traversal.
type validator struct {
	param      string
	allowParam bool
	rewritten  bool
	problems   []string
}

// addProblem appends a problem message.
func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) err(expr string) error {
	if len(v.problems) == 0 {
		return nil
	}
	return queryerr.New(queryerr.CodeUnsupportedExpression, "%s", strings.Join(v.problems, "; ")).WithExpr(expr)
}

// validateBool validates a node in boolean position.
func (v *validator) validateBool(e Expr) {
	switch n := e.(type) {
	case Compare:
		if !n.Op.Valid() {
			v.addProblem("unknown comparison operator %q", n.Op)
		}
		v.validateValue(n.Left)
		v.validateValue(n.Right)
	case And:
		v.validateBool(n.Left)
		v.validateBool(n.Right)
	case Or:
		v.validateBool(n.Left)
		v.validateBool(n.Right)
	case Not:
		v.validateBool(n.X)
	case Field:
		// Boolean fields are checked at evaluation time.
		v.validateField(n)
	case Const:
		if _, ok := n.Value.(ir.IRBool); !ok {
			v.addProblem("literal %s used as a condition", RenderValue(n.Value))
		}
	case Call:
		if kind, ok := v.validateCall(n); ok && kind != ir.KindBool {
			v.addProblem("method %s returns %s, not a condition", n.Method, kind)
		}
	case nil:
		v.addProblem("missing operand")
	default:
		v.addProblem("%s is not a condition", describe(e))
	}
}

// validateValue validates a node in value position.
func (v *validator) validateValue(e Expr) {
	switch n := e.(type) {
	case Field:
		v.validateField(n)
	case TagRef:
		if !v.rewritten {
			v.addProblem("tag reference %s is not allowed in a predicate", Render(n))
		} else if n.Tag == "" {
			v.addProblem("empty tag reference")
		}
	case Const:
		v.validateConst(n)
	case Call:
		v.validateCall(n)
	case Param:
		if !v.allowParam {
			v.addProblem("parameter %s used as a value", n.Name)
		} else if n.Name != v.param {
			v.addProblem("reference to free parameter %q", n.Name)
		}
	case nil:
		v.addProblem("missing operand")
	default:
		v.addProblem("%s is not a value", describe(e))
	}
}

func (v *validator) validateField(f Field) {
	if f.Name == "" {
		v.addProblem("field with empty name")
	}
	if f.Param == PlaceholderParam && v.rewritten {
		return
	}
	if f.Param != v.param {
		v.addProblem("reference to free parameter %q in %s", f.Param, Render(f))
	}
}

func (v *validator) validateConst(c Const) {
	switch c.Value.(type) {
	case ir.IRNull, ir.IRString, ir.IRInt, ir.IRBool, ir.IRTime:
	case nil:
		v.addProblem("literal without a value")
	default:
		v.addProblem("composite literal %s is not comparable", RenderValue(c.Value))
	}
}

// validateCall checks a call and returns its result kind.
func (v *validator) validateCall(c Call) (ir.Kind, bool) {
	kind, arity, ok := methodSignature(c.Method)
	if !ok {
		v.addProblem("unsupported method %q", c.Method)
		return ir.KindNull, false
	}
	if len(c.Args) != arity {
		v.addProblem("method %s takes %d argument(s), got %d", c.Method, arity, len(c.Args))
	}
	v.validateValue(c.Target)
	for _, a := range c.Args {
		v.validateValue(a)
	}
	return kind, true
}

// methodSignature returns the result kind and arity of a supported method.
func methodSignature(method string) (ir.Kind, int, bool) {
	switch method {
	case MethodContains, MethodStartsWith, MethodEndsWith:
		return ir.KindBool, 1, true
	case MethodLower, MethodUpper:
		return ir.KindString, 0, true
	case MethodSize:
		return ir.KindInt, 0, true
	}
	return ir.KindNull, 0, false
}

func describe(e Expr) string {
	switch e.(type) {
	case Compare, And, Or, Not:
		return "condition " + Render(e)
	default:
		return fmt.Sprintf("%T", e)
	}
}
