// Package rewrite turns a predicate over entity fields into one over raw
// tag values, for evaluation against tag metadata before (or instead of)
// downloading entity bodies.
package rewrite

import (
	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryerr"
	"github.com/roach88/entq/internal/queryir"
)

// ForTags rewrites pred so that tag-mapped fields read from the tag
// accessor:
//   - string tag fields become TagRef everywhere (tag values are the
//     strings themselves)
//   - other tag fields become TagRef only when compared with a literal of
//     their kind (or null); the literal is replaced by its tag encoding so
//     the string comparison orders like the original
//   - every other field is rebound to queryir.PlaceholderParam and
//     evaluates to unknown until the entity is materialized
//
// The result is a pre-filter: under queryir.EvalTri a False verdict proves
// the entity does not match, True proves it does only if IsPureTag holds.
// The input predicate is not modified.
//
// Rewriting requires tag indexing; with it disabled ForTags fails with
// CONFIG_MISUSE.
func ForTags(pred *queryir.Predicate, schema *entity.Schema, tagIndexing bool) (*queryir.Predicate, error) {
	if !tagIndexing {
		return nil, queryerr.New(queryerr.CodeConfigMisuse,
			"tag rewrite requested for %s but tag indexing is disabled", schema.Name)
	}
	if pred == nil {
		return nil, nil
	}
	r := &rewriter{param: pred.Param, schema: schema}
	out := &queryir.Predicate{Param: pred.Param, Body: r.rewrite(pred.Body)}
	if err := queryir.ValidateRewritten(out); err != nil {
		return nil, err
	}
	return out, nil
}

// IsPureTag reports whether a rewritten predicate references no
// placeholder fields, i.e. tag metadata alone decides it.
func IsPureTag(rewritten *queryir.Predicate) bool {
	pure := true
	queryir.Walk(rewritten.Body, func(n queryir.Expr) bool {
		if _, ok := n.(queryir.Field); ok {
			pure = false
		}
		return pure
	})
	return pure
}

type rewriter struct {
	param  string
	schema *entity.Schema
}

func (r *rewriter) rewrite(e queryir.Expr) queryir.Expr {
	switch n := e.(type) {
	case queryir.And:
		return queryir.And{Left: r.rewrite(n.Left), Right: r.rewrite(n.Right)}
	case queryir.Or:
		return queryir.Or{Left: r.rewrite(n.Left), Right: r.rewrite(n.Right)}
	case queryir.Not:
		return queryir.Not{X: r.rewrite(n.X)}
	case queryir.Compare:
		if out, ok := r.rewriteTypedCompare(n); ok {
			return out
		}
		return queryir.Compare{Op: n.Op, Left: r.rewrite(n.Left), Right: r.rewrite(n.Right)}
	case queryir.Call:
		var args []queryir.Expr
		for _, a := range n.Args {
			args = append(args, r.rewrite(a))
		}
		return queryir.Call{Method: n.Method, Target: r.rewrite(n.Target), Args: args}
	case queryir.Field:
		return r.rewriteField(n)
	default:
		return e
	}
}

// rewriteField handles a field outside a typed comparison.
func (r *rewriter) rewriteField(f queryir.Field) queryir.Expr {
	if f.Param != r.param {
		return f
	}
	if def, ok := r.schema.Field(f.Name); ok && def.Tagged() && def.Kind == ir.KindString {
		return queryir.TagRef{Tag: def.Tag}
	}
	return queryir.Field{Param: queryir.PlaceholderParam, Name: f.Name}
}

// rewriteTypedCompare rewrites field-op-literal comparisons on non-string
// tag fields, encoding the literal.
func (r *rewriter) rewriteTypedCompare(cmp queryir.Compare) (queryir.Expr, bool) {
	field, fieldLeft := cmp.Left.(queryir.Field)
	lit, litRight := cmp.Right.(queryir.Const)
	if !fieldLeft || !litRight {
		var fieldRight, litLeft bool
		field, fieldRight = cmp.Right.(queryir.Field)
		lit, litLeft = cmp.Left.(queryir.Const)
		if !fieldRight || !litLeft {
			return nil, false
		}
		cmp = queryir.Compare{Op: cmp.Op.Flip(), Left: field, Right: lit}
	}
	if field.Param != r.param {
		return nil, false
	}
	def, ok := r.schema.Field(field.Name)
	if !ok || !def.Tagged() || def.Kind == ir.KindString {
		return nil, false
	}

	tag := queryir.TagRef{Tag: def.Tag}
	switch ir.KindOf(lit.Value) {
	case ir.KindNull:
		// An absent tag reads as null, like an absent field.
		return queryir.Compare{Op: cmp.Op, Left: tag, Right: lit}, true
	case def.Kind:
		encoded, err := ir.EncodeTagValue(lit.Value)
		if err != nil {
			return nil, false
		}
		return queryir.Compare{Op: cmp.Op, Left: tag, Right: queryir.Str(encoded)}, true
	}
	return nil, false
}
