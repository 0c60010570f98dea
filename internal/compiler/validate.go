package compiler

import (
	"fmt"
	"sort"

	"github.com/roach88/entq/internal/dispatch"
	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/queryir"
)

// Validation error codes (E100-E199)
const (
	// QuerySpec errors (E110-E119)
	ErrUnknownEntity     = "E110" // query references an undeclared entity
	ErrUnknownStrategy   = "E111" // strategy name is not a known strategy
	ErrInvalidTake       = "E112" // take is negative
	ErrUnknownField      = "E113" // predicate or projection references an undeclared field
	ErrEmptyProjection   = "E114" // projection references no fields
	ErrStrategyNeedsTags = "E115" // forced strategy needs tag-mapped fields the entity lacks
)

// ValidationError represents a definition validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks the queries of defs against the declared schemas.
// Returns all errors found (does not fail-fast), ordered by query name.
// Schema errors are not reported here: CompileSchema already rejects them.
func Validate(defs *Definitions) []ValidationError {
	names := make([]string, 0, len(defs.Queries))
	for name := range defs.Queries {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []ValidationError
	for _, name := range names {
		errs = append(errs, validateQuery(defs, defs.Queries[name])...)
	}
	return errs
}

func validateQuery(defs *Definitions, q *QuerySpec) []ValidationError {
	var errs []ValidationError
	path := "query." + q.Name

	// E110: entity must be declared
	schema, ok := defs.Schemas[q.Entity]
	if !ok {
		errs = append(errs, ValidationError{
			Field:   path + ".entity",
			Message: fmt.Sprintf("entity %q is not declared", q.Entity),
			Code:    ErrUnknownEntity,
		})
	}

	// E111: strategy must be known
	if q.Strategy != "" {
		s, err := dispatch.ParseStrategy(q.Strategy)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   path + ".strategy",
				Message: err.Error(),
				Code:    ErrUnknownStrategy,
			})
		} else if schema != nil && s.RequiresTagIndexing() && len(schema.TaggedFields()) == 0 {
			// E115: tag strategies over an entity without tag-mapped fields
			errs = append(errs, ValidationError{
				Field:   path + ".strategy",
				Message: fmt.Sprintf("strategy %s needs tag-mapped fields; %s has none", s, schema.Name),
				Code:    ErrStrategyNeedsTags,
			})
		}
	}

	// E112: take must not be negative
	if q.Take < 0 {
		errs = append(errs, ValidationError{
			Field:   path + ".take",
			Message: fmt.Sprintf("take must be >= 1 or omitted, got %d", q.Take),
			Code:    ErrInvalidTake,
		})
	}

	if q.Select != nil && len(q.Select.FieldNames()) == 0 && !q.AllowEmptyProjection {
		errs = append(errs, ValidationError{
			Field:   path + ".select",
			Message: "projection references no fields; set allow_empty_projection to accept it",
			Code:    ErrEmptyProjection,
		})
	}

	// E113: referenced fields must be declared
	if schema != nil {
		if q.Where != nil {
			errs = append(errs, unknownFields(schema, path+".where", q.Where.Body)...)
		}
		if q.Select != nil {
			errs = append(errs, unknownFields(schema, path+".select", q.Select.Exprs...)...)
		}
	}

	return errs
}

func unknownFields(schema *entity.Schema, path string, exprs ...queryir.Expr) []ValidationError {
	var errs []ValidationError
	for _, name := range queryir.FieldNames(exprs...) {
		if _, ok := schema.Field(name); !ok {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("field %q is not declared on %s", name, schema.Name),
				Code:    ErrUnknownField,
			})
		}
	}
	return errs
}
