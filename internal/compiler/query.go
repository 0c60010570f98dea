package compiler

import (
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/entq/internal/celexpr"
	"github.com/roach88/entq/internal/queryir"
)

// QuerySpec is a named query declared next to the schemas.
type QuerySpec struct {
	Name   string
	Entity string

	// Where and Select hold the parsed CEL sources; nil when absent.
	Where       *queryir.Predicate
	WhereSource string
	Select      *queryir.Projection

	SelectSource         string
	AllowEmptyProjection bool
	Take                 int

	// Strategy optionally forces an execution strategy by name.
	Strategy string
}

// CompileQuery parses a CUE value into a QuerySpec.
//
// The CUE value should be the query struct itself, e.g.:
//
//	query: openOrders: {
//		entity: "Order"
//		where:  "e.status == \"open\""
//		select: "[e.total]"
//		take:   10
//	}
func CompileQuery(v cue.Value) (*QuerySpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &QuerySpec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		// The name may be quoted in CUE, extract it
		spec.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	// Parse entity (required)
	entityVal := v.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return nil, &CompileError{
			Field:   "entity",
			Message: "entity is required",
			Pos:     v.Pos(),
		}
	}
	name, err := entityVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Entity = name

	// Parse where (optional)
	if whereVal := v.LookupPath(cue.ParsePath("where")); whereVal.Exists() {
		src, err := whereVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		pred, err := celexpr.ParsePredicate(src)
		if err != nil {
			return nil, &CompileError{Field: "where", Message: err.Error(), Pos: whereVal.Pos()}
		}
		spec.Where, spec.WhereSource = pred, src
	}

	// Parse select (optional)
	if selectVal := v.LookupPath(cue.ParsePath("select")); selectVal.Exists() {
		src, err := selectVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		proj, err := celexpr.ParseProjection(src)
		if err != nil {
			return nil, &CompileError{Field: "select", Message: err.Error(), Pos: selectVal.Pos()}
		}
		spec.Select, spec.SelectSource = proj, src
	}

	if aVal := v.LookupPath(cue.ParsePath("allow_empty_projection")); aVal.Exists() {
		allow, err := aVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.AllowEmptyProjection = allow
	}

	// Parse take (optional, 0 means unbounded)
	if takeVal := v.LookupPath(cue.ParsePath("take")); takeVal.Exists() {
		take, err := takeVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Take = int(take)
	}

	// Parse strategy (optional)
	if sVal := v.LookupPath(cue.ParsePath("strategy")); sVal.Exists() {
		s, err := sVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Strategy = s
	}

	return spec, nil
}
