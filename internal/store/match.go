package store

import (
	"fmt"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryir"
)

// MatchTags evaluates a tag filter against an entity's tags. Stores
// without a server-side tag query engine use it to apply tag filters.
func MatchTags(filter *queryir.Filter, tags entity.Tags) (bool, error) {
	if tags == nil {
		tags = entity.Tags{}
	}
	t, err := queryir.EvalTri(filter.Expr, queryir.Bindings{Tags: tags})
	if err != nil {
		return false, fmt.Errorf("tag filter %s: %w", filter.Text, err)
	}
	if t == queryir.Unknown {
		return false, fmt.Errorf("tag filter %s references non-tag values", filter.Text)
	}
	return t == queryir.True, nil
}

// MatchNative evaluates a native filter against a materialized entity.
func MatchNative(filter *queryir.Filter, e *entity.Entity) (bool, error) {
	t, err := queryir.EvalTri(filter.Expr, queryir.Bindings{Fields: e})
	if err != nil {
		return false, fmt.Errorf("native filter %s: %w", filter.Text, err)
	}
	return t == queryir.True, nil
}

// KeyOnly reports whether a native filter references only key fields, so
// it can be decided from the locator alone.
func KeyOnly(filter *queryir.Filter, schema *entity.Schema) bool {
	for _, name := range queryir.FieldNames(filter.Expr) {
		if !schema.IsKey(name) {
			return false
		}
	}
	return true
}

// LocatorSource exposes only the key fields of a locator; other fields
// are unavailable.
type LocatorSource entity.Locator

// Lookup implements queryir.FieldSource.
func (l LocatorSource) Lookup(name string) (ir.IRValue, bool) {
	if k, ok := entity.Locator(l).Key(name); ok && k != "" {
		return ir.IRString(k), true
	}
	return nil, false
}

// MatchLocator evaluates a key-only native filter against a locator.
func MatchLocator(filter *queryir.Filter, loc entity.Locator) (bool, error) {
	t, err := queryir.EvalTri(filter.Expr, queryir.Bindings{Fields: LocatorSource(loc)})
	if err != nil {
		return false, fmt.Errorf("native filter %s: %w", filter.Text, err)
	}
	if t == queryir.Unknown {
		return false, fmt.Errorf("native filter %s needs the entity body", filter.Text)
	}
	return t == queryir.True, nil
}
