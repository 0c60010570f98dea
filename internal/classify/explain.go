package classify

import (
	"fmt"
	"strings"

	"github.com/roach88/entq/internal/queryir"
)

// Explain renders a verdict as stable, line-oriented text.
func Explain(v Verdict) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "verdict: %s\n", v.Kind)
	fmt.Fprintf(&sb, "native: %s\n", filterText(v.Native))
	fmt.Fprintf(&sb, "tag: %s\n", filterText(v.Tag))
	fmt.Fprintf(&sb, "residual: %t\n", v.Residual)
	fmt.Fprintf(&sb, "operand_error: %t\n", v.OperandError)
	return sb.String()
}

func filterText(f *queryir.Filter) string {
	if f == nil {
		return "<none>"
	}
	return f.Text
}
