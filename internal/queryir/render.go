package queryir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/entq/internal/ir"
)

// Operator precedence used to decide where Render needs parentheses.
const (
	precOr = iota + 1
	precAnd
	precCompare
	precUnary
	precPrimary
)

// Render formats e in CEL syntax, e.g. `e.status == "a" && e.total > 10`.
// Rendering is deterministic and used in explanations, logs and errors.
func Render(e Expr) string {
	var sb strings.Builder
	render(&sb, e, 0)
	return sb.String()
}

func precedence(e Expr) int {
	switch e.(type) {
	case Or:
		return precOr
	case And:
		return precAnd
	case Compare:
		return precCompare
	case Not:
		return precUnary
	default:
		return precPrimary
	}
}

func render(sb *strings.Builder, e Expr, minPrec int) {
	if e == nil {
		sb.WriteString("<nil>")
		return
	}
	paren := precedence(e) < minPrec
	if paren {
		sb.WriteByte('(')
	}

	switch n := e.(type) {
	case Param:
		sb.WriteString(n.Name)
	case Field:
		sb.WriteString(n.Param)
		sb.WriteByte('.')
		sb.WriteString(n.Name)
	case TagRef:
		sb.WriteString("tags[")
		sb.WriteString(strconv.Quote(n.Tag))
		sb.WriteByte(']')
	case Const:
		sb.WriteString(RenderValue(n.Value))
	case Compare:
		render(sb, n.Left, precCompare+1)
		sb.WriteString(" " + string(n.Op) + " ")
		render(sb, n.Right, precCompare+1)
	case And:
		render(sb, n.Left, precAnd)
		sb.WriteString(" && ")
		render(sb, n.Right, precAnd)
	case Or:
		render(sb, n.Left, precOr)
		sb.WriteString(" || ")
		render(sb, n.Right, precOr)
	case Not:
		sb.WriteByte('!')
		render(sb, n.X, precUnary)
	case Call:
		render(sb, n.Target, precPrimary)
		sb.WriteByte('.')
		sb.WriteString(n.Method)
		sb.WriteByte('(')
		for i, a := range n.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			render(sb, a, 0)
		}
		sb.WriteByte(')')
	default:
		fmt.Fprintf(sb, "<%T>", e)
	}

	if paren {
		sb.WriteByte(')')
	}
}

// RenderValue formats a literal in CEL syntax. Times render as
// timestamp("...") calls.
func RenderValue(v ir.IRValue) string {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return "null"
	case ir.IRString:
		return strconv.Quote(string(val))
	case ir.IRInt:
		return strconv.FormatInt(int64(val), 10)
	case ir.IRBool:
		return strconv.FormatBool(bool(val))
	case ir.IRTime:
		return "timestamp(" + strconv.Quote(val.String()) + ")"
	case ir.IRArray:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = RenderValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ir.IRObject:
		parts := make([]string, 0, len(val))
		for _, k := range val.SortedKeys() {
			parts = append(parts, strconv.Quote(k)+": "+RenderValue(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("<%T>", v)
	}
}
