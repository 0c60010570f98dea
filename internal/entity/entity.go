package entity

import (
	"fmt"

	"github.com/roach88/entq/internal/ir"
)

// TagAccessor exposes an entity's tags without its body.
// Tag names are case-sensitive; values are always strings.
type TagAccessor interface {
	Tag(name string) (string, bool)
}

// Tags is a plain tag map.
type Tags map[string]string

// Tag implements TagAccessor.
func (t Tags) Tag(name string) (string, bool) {
	v, ok := t[name]
	return v, ok
}

// Entity is a materialized record.
type Entity struct {
	Locator Locator
	Fields  ir.IRObject
	Tags    Tags
	ETag    string
}

// Get returns the value of a field. Key fields resolve from the locator;
// missing body fields are IRNull.
func (e *Entity) Get(name string) ir.IRValue {
	if k, ok := e.Locator.Key(name); ok && k != "" {
		return ir.IRString(k)
	}
	if v, ok := e.Fields[name]; ok && v != nil {
		return v
	}
	return ir.IRNull{}
}

// Lookup implements the field source used by predicate evaluation.
func (e *Entity) Lookup(name string) (ir.IRValue, bool) {
	return e.Get(name), true
}

// Object returns the entity's fields with its key fields, as one object.
func (e *Entity) Object() ir.IRObject {
	out := make(ir.IRObject, len(e.Fields)+2)
	for k, v := range e.Fields {
		out[k] = v
	}
	for _, k := range []string{KeyPartition, KeyRow, KeyName} {
		if v, ok := e.Locator.Key(k); ok && v != "" {
			out[k] = ir.IRString(v)
		}
	}
	return out
}

// New builds an entity of the given schema: the locator is checked against
// the shape, fields are coerced to their declared kinds, tags are derived
// from tag-mapped fields and the ETag is computed from the canonical body.
func New(schema *Schema, loc Locator, fields ir.IRObject) (*Entity, error) {
	if err := loc.Validate(schema.Shape); err != nil {
		return nil, err
	}
	coerced, err := Coerce(schema, fields)
	if err != nil {
		return nil, fmt.Errorf("entity %s: %w", loc, err)
	}
	tags, err := DeriveTags(schema, coerced)
	if err != nil {
		return nil, fmt.Errorf("entity %s: %w", loc, err)
	}
	etag, err := ir.ETag(loc.String(), coerced)
	if err != nil {
		return nil, fmt.Errorf("entity %s: %w", loc, err)
	}
	return &Entity{Locator: loc, Fields: coerced, Tags: tags, ETag: etag}, nil
}

// Coerce returns a copy of fields converted to the schema's declared kinds.
// Null fields are dropped (a missing field reads as null). Time fields accept
// TimeLayout/RFC 3339 strings. Undeclared fields pass through unchanged.
func Coerce(schema *Schema, fields ir.IRObject) (ir.IRObject, error) {
	out := make(ir.IRObject, len(fields))
	for name, v := range fields {
		if schema.IsKey(name) {
			return nil, fmt.Errorf("field %q is a key and belongs in the locator", name)
		}
		if v == nil || ir.KindOf(v) == ir.KindNull {
			continue
		}
		f, declared := schema.Field(name)
		if !declared {
			out[name] = v
			continue
		}
		cv, err := coerceValue(f, v)
		if err != nil {
			return nil, err
		}
		out[name] = cv
	}
	return out, nil
}

func coerceValue(f Field, v ir.IRValue) (ir.IRValue, error) {
	kind := ir.KindOf(v)
	if kind == f.Kind {
		return v, nil
	}
	if f.Kind == ir.KindTime && kind == ir.KindString {
		t, err := ir.ParseIRTime(string(v.(ir.IRString)))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		return t, nil
	}
	return nil, fmt.Errorf("field %q: want %s, got %s", f.Name, f.Kind, kind)
}

// DeriveTags encodes every present tag-mapped field as a tag value.
func DeriveTags(schema *Schema, fields ir.IRObject) (Tags, error) {
	tags := Tags{}
	for _, f := range schema.TaggedFields() {
		v, ok := fields[f.Name]
		if !ok || ir.KindOf(v) == ir.KindNull {
			continue
		}
		s, err := ir.EncodeTagValue(v)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", f.Tag, err)
		}
		tags[f.Tag] = s
	}
	return tags, nil
}
