package entity

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/entq/internal/ir"
)

// EncodeBody serializes an entity's fields as canonical JSON.
func EncodeBody(e *Entity) ([]byte, error) {
	body, err := ir.MarshalCanonical(e.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode body of %s: %w", e.Locator, err)
	}
	return body, nil
}

// DecodeBody rebuilds an entity from its stored body. The locator and
// stored ETag come from the store; tags are re-derived from the fields.
func DecodeBody(schema *Schema, loc Locator, etag string, body []byte) (*Entity, error) {
	var fields ir.IRObject
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode body of %s: %w", loc, err)
	}
	coerced, err := Coerce(schema, fields)
	if err != nil {
		return nil, fmt.Errorf("decode body of %s: %w", loc, err)
	}
	tags, err := DeriveTags(schema, coerced)
	if err != nil {
		return nil, fmt.Errorf("decode body of %s: %w", loc, err)
	}
	return &Entity{Locator: loc, Fields: coerced, Tags: tags, ETag: etag}, nil
}
