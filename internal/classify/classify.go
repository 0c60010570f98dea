// Package classify inspects a predicate and decides which parts of it a
// store can evaluate on its own: through its native filter language (key
// fields and filterable fields) or through its tag index (tag-mapped
// fields).
package classify

import (
	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryir"
)

// Kind is the classification of a predicate.
type Kind int

const (
	// NoFilter means no predicate was given.
	NoFilter Kind = iota
	// NativeTranslatable means the whole predicate is expressible in the
	// store's native filter grammar.
	NativeTranslatable
	// TagTranslatable means the whole predicate is expressible over tags.
	TagTranslatable
	// PartiallyTagTranslatable means a tag filter over-selects and the
	// original predicate must still run on every candidate.
	PartiallyTagTranslatable
	// Opaque means every candidate must be materialized and tested.
	Opaque
)

var kindNames = map[Kind]string{
	NoFilter:                 "NoFilter",
	NativeTranslatable:       "NativeTranslatable",
	TagTranslatable:          "TagTranslatable",
	PartiallyTagTranslatable: "PartiallyTagTranslatable",
	Opaque:                   "Opaque",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Verdict is the result of classifying one predicate.
type Verdict struct {
	Kind Kind

	// Native is the native filter equivalent to the whole predicate, when
	// one exists. It is reported even when the kind is a tag kind.
	Native *queryir.Filter

	// Tag is the tag filter: exact for TagTranslatable, a superset for
	// PartiallyTagTranslatable, nil otherwise.
	Tag *queryir.Filter

	// OperandError is set when some sub-expression has a shape the
	// classifier cannot analyze at all (method calls, field-to-field
	// comparisons) as opposed to one it merely cannot translate.
	OperandError bool

	// Residual is set when candidates from Tag must be re-checked with the
	// original predicate.
	Residual bool
}

// analysis is the per-subtree classification.
type analysis struct {
	native     queryir.Expr
	tag        queryir.Expr
	tagExact   bool
	operandErr bool
}

// Classify computes the verdict for pred over entities of the given
// schema. It never modifies pred. A nil predicate is NoFilter.
func Classify(pred *queryir.Predicate, schema *entity.Schema) Verdict {
	if pred == nil || pred.Body == nil {
		return Verdict{Kind: NoFilter}
	}
	c := &classifier{param: pred.Param, schema: schema}
	a := c.visit(pred.Body)

	v := Verdict{OperandError: a.operandErr}
	if a.native != nil {
		v.Native = &queryir.Filter{Expr: a.native, Text: RenderNative(a.native)}
	}
	switch {
	case a.tag != nil && a.tagExact:
		v.Kind = TagTranslatable
	case a.tag != nil:
		v.Kind = PartiallyTagTranslatable
		v.Residual = true
	case a.native != nil:
		v.Kind = NativeTranslatable
	default:
		v.Kind = Opaque
	}
	if a.tag != nil {
		v.Tag = &queryir.Filter{Expr: a.tag, Text: RenderTag(a.tag)}
	}
	return v
}

type classifier struct {
	param  string
	schema *entity.Schema
}

func (c *classifier) visit(e queryir.Expr) analysis {
	switch n := e.(type) {
	case queryir.And:
		return c.visitAnd(c.visit(n.Left), c.visit(n.Right))
	case queryir.Or:
		return c.visitOr(c.visit(n.Left), c.visit(n.Right))
	case queryir.Not:
		x := c.visit(n.X)
		out := analysis{operandErr: x.operandErr}
		if x.native != nil {
			out.native = queryir.Not{X: x.native}
		}
		// The tag grammar has no negation.
		return out
	case queryir.Compare:
		return c.visitCompare(n)
	case queryir.Field:
		// A boolean field in condition position reads as field == true.
		return c.visitCompare(queryir.Eq(n, queryir.Bool(true)))
	case queryir.Const:
		return analysis{}
	default:
		return analysis{operandErr: true}
	}
}

func (c *classifier) visitAnd(l, r analysis) analysis {
	out := analysis{operandErr: l.operandErr || r.operandErr}
	if l.native != nil && r.native != nil {
		out.native = queryir.And{Left: l.native, Right: r.native}
	}
	switch {
	case l.tag != nil && r.tag != nil:
		out.tag = queryir.And{Left: l.tag, Right: r.tag}
		out.tagExact = l.tagExact && r.tagExact
	case l.tag != nil:
		out.tag = l.tag
	case r.tag != nil:
		out.tag = r.tag
	}
	return out
}

func (c *classifier) visitOr(l, r analysis) analysis {
	out := analysis{operandErr: l.operandErr || r.operandErr}
	if l.native != nil && r.native != nil {
		out.native = queryir.Or{Left: l.native, Right: r.native}
	}
	// A disjunction with an untranslatable branch cannot be narrowed.
	if l.tag != nil && r.tag != nil && l.tagExact && r.tagExact {
		out.tag = queryir.Or{Left: l.tag, Right: r.tag}
		out.tagExact = true
	}
	return out
}

// visitCompare classifies a leaf comparison. Only field-versus-literal
// comparisons are analyzable.
func (c *classifier) visitCompare(cmp queryir.Compare) analysis {
	field, lit, op, ok := fieldAndConst(cmp)
	if !ok || field.Param != c.param {
		return analysis{operandErr: true}
	}
	def, known := c.schema.Field(field.Name)
	if !known {
		return analysis{}
	}

	var out analysis
	if def.Filterable && nativeOperand(def, op, lit.Value) {
		out.native = queryir.Compare{Op: op, Left: field, Right: lit}
	}
	if def.Tagged() && op != queryir.OpNe && ir.KindOf(lit.Value) == def.Kind {
		if encoded, err := ir.EncodeTagValue(lit.Value); err == nil {
			out.tag = queryir.Compare{
				Op:    op,
				Left:  queryir.TagRef{Tag: def.Tag},
				Right: queryir.Str(encoded),
			}
			out.tagExact = true
		}
	}
	return out
}

// nativeOperand reports whether a literal can be compared to the field in
// the native grammar: same kind, or null for (in)equality.
func nativeOperand(def entity.Field, op queryir.Op, v ir.IRValue) bool {
	kind := ir.KindOf(v)
	if kind == ir.KindNull {
		return op == queryir.OpEq || op == queryir.OpNe
	}
	return kind == def.Kind
}

// fieldAndConst normalizes a comparison to field-op-literal form.
func fieldAndConst(cmp queryir.Compare) (queryir.Field, queryir.Const, queryir.Op, bool) {
	if f, ok := cmp.Left.(queryir.Field); ok {
		if k, ok := cmp.Right.(queryir.Const); ok {
			return f, k, cmp.Op, true
		}
	}
	if f, ok := cmp.Right.(queryir.Field); ok {
		if k, ok := cmp.Left.(queryir.Const); ok {
			return f, k, cmp.Op.Flip(), true
		}
	}
	return queryir.Field{}, queryir.Const{}, "", false
}
