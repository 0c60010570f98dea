package queryir

import "github.com/roach88/entq/internal/ir"

// Expr is a node of a predicate or projection expression.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// DefaultParam is the parameter name used by the builder helpers.
const DefaultParam = "e"

// PlaceholderParam binds fields whose values are not available yet, such as
// body fields inside a tag pre-filter. Such fields evaluate to unknown.
const PlaceholderParam = "_"

// Param references the entity parameter itself (e.g. a projection of "e").
type Param struct {
	Name string
}

// Field references a named field of the entity parameter.
// Key fields (PartitionKey, RowKey, Name) are fields like any other.
type Field struct {
	Param string
	Name  string
}

// TagRef references a raw tag value. It only appears in rewritten tag
// predicates; its value is always a string (or null when absent).
type TagRef struct {
	Tag string
}

// Const is a literal operand.
type Const struct {
	Value ir.IRValue
}

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Valid reports whether op is a known comparison operator.
func (op Op) Valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Flip returns the operator with operands swapped (a < b  <=>  b > a).
func (op Op) Flip() Op {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return op
}

// Compare is a binary comparison.
type Compare struct {
	Op    Op
	Left  Expr
	Right Expr
}

// And is logical conjunction.
type And struct {
	Left  Expr
	Right Expr
}

// Or is logical disjunction.
type Or struct {
	Left  Expr
	Right Expr
}

// Not is logical negation.
type Not struct {
	X Expr
}

// Call is a method call on a value, e.g. e.name.startsWith("a").
// Calls are never translated to a store filter.
type Call struct {
	Method string
	Target Expr
	Args   []Expr
}

// Supported call methods.
const (
	MethodContains   = "contains"
	MethodStartsWith = "startsWith"
	MethodEndsWith   = "endsWith"
	MethodLower      = "lower"
	MethodUpper      = "upper"
	MethodSize       = "size"
)

func (Param) exprNode()   {}
func (Field) exprNode()   {}
func (TagRef) exprNode()  {}
func (Const) exprNode()   {}
func (Compare) exprNode() {}
func (And) exprNode()     {}
func (Or) exprNode()      {}
func (Not) exprNode()     {}
func (Call) exprNode()    {}

// Predicate is a boolean expression over one entity parameter.
type Predicate struct {
	Param string
	Body  Expr
}

// String renders the predicate in lambda form: "e => e.a == 1".
func (p *Predicate) String() string {
	if p == nil {
		return "<nil>"
	}
	return p.Param + " => " + Render(p.Body)
}

// Projection selects values from the entity parameter.
type Projection struct {
	Param string
	Exprs []Expr
}

// FieldNames returns the sorted set of fields touched by the projection.
func (p *Projection) FieldNames() []string {
	return FieldNames(p.Exprs...)
}

// Filter is a translated store filter: the expression subset that was
// translated and its rendering in the target filter grammar.
type Filter struct {
	Expr Expr
	Text string
}
