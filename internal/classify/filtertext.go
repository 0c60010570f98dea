package classify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryir"
)

var nativeOps = map[queryir.Op]string{
	queryir.OpEq: "eq",
	queryir.OpNe: "ne",
	queryir.OpLt: "lt",
	queryir.OpLe: "le",
	queryir.OpGt: "gt",
	queryir.OpGe: "ge",
}

var tagOps = map[queryir.Op]string{
	queryir.OpEq: "=",
	queryir.OpLt: "<",
	queryir.OpLe: "<=",
	queryir.OpGt: ">",
	queryir.OpGe: ">=",
}

// RenderNative formats a native filter expression in the store's
// OData-style filter grammar:
//
//	PartitionKey eq 'p1' and (total gt 10 or not (status eq 'x'))
func RenderNative(e queryir.Expr) string {
	var sb strings.Builder
	renderNative(&sb, e, false)
	return sb.String()
}

func renderNative(sb *strings.Builder, e queryir.Expr, nested bool) {
	switch n := e.(type) {
	case queryir.Compare:
		f, _ := n.Left.(queryir.Field)
		k, _ := n.Right.(queryir.Const)
		fmt.Fprintf(sb, "%s %s %s", f.Name, nativeOps[n.Op], nativeLiteral(k.Value))
	case queryir.And:
		renderJunction(sb, n.Left, n.Right, " and ", nested, renderNative)
	case queryir.Or:
		renderJunction(sb, n.Left, n.Right, " or ", nested, renderNative)
	case queryir.Not:
		sb.WriteString("not (")
		renderNative(sb, n.X, false)
		sb.WriteByte(')')
	default:
		fmt.Fprintf(sb, "<%T>", e)
	}
}

func nativeLiteral(v ir.IRValue) string {
	switch val := v.(type) {
	case ir.IRString:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'"
	case ir.IRInt:
		return strconv.FormatInt(int64(val), 10)
	case ir.IRBool:
		return strconv.FormatBool(bool(val))
	case ir.IRTime:
		return "datetime'" + val.String() + "'"
	default:
		return "null"
	}
}

// RenderTag formats a tag filter expression in the tag-query grammar:
//
//	"status" = 'a' AND "total" > '09223372036854775818'
//
// Tag values are the order-preserving encodings of the compared literals.
func RenderTag(e queryir.Expr) string {
	var sb strings.Builder
	renderTag(&sb, e, false)
	return sb.String()
}

func renderTag(sb *strings.Builder, e queryir.Expr, nested bool) {
	switch n := e.(type) {
	case queryir.Compare:
		t, _ := n.Left.(queryir.TagRef)
		k, _ := n.Right.(queryir.Const)
		s, _ := k.Value.(ir.IRString)
		fmt.Fprintf(sb, "%s %s '%s'", strconv.Quote(t.Tag), tagOps[n.Op], strings.ReplaceAll(string(s), "'", "''"))
	case queryir.And:
		renderJunction(sb, n.Left, n.Right, " AND ", nested, renderTag)
	case queryir.Or:
		renderJunction(sb, n.Left, n.Right, " OR ", nested, renderTag)
	default:
		fmt.Fprintf(sb, "<%T>", e)
	}
}

// renderJunction writes l sep r. Operands that are themselves junctions
// of the other kind are parenthesized.
func renderJunction(sb *strings.Builder, l, r queryir.Expr, sep string, nested bool,
	render func(*strings.Builder, queryir.Expr, bool)) {
	if nested {
		sb.WriteByte('(')
	}
	for i, operand := range []queryir.Expr{l, r} {
		if i > 0 {
			sb.WriteString(sep)
		}
		render(sb, operand, needsParens(operand, sep))
	}
	if nested {
		sb.WriteByte(')')
	}
}

func needsParens(operand queryir.Expr, sep string) bool {
	switch operand.(type) {
	case queryir.And:
		return !strings.EqualFold(sep, " and ")
	case queryir.Or:
		return !strings.EqualFold(sep, " or ")
	}
	return false
}
