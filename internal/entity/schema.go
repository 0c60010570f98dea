package entity

import (
	"fmt"
	"regexp"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/entq/internal/ir"
)

// Shape is the key shape of an entity type.
type Shape string

const (
	ShapeTable Shape = "table"
	ShapeBlob  Shape = "blob"
)

// MaxTags is the maximum number of tag-mapped fields per schema.
const MaxTags = 10

// maxTagNameLen bounds tag names in bytes.
const maxTagNameLen = 128

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Field describes one body field of an entity type.
type Field struct {
	Name string
	Kind ir.Kind

	// Tag is the tag name this field is mirrored to, or "" when the field
	// is not tag-mapped.
	Tag string

	// Filterable marks the field as usable in the store's native filter
	// language. Key fields are always filterable.
	Filterable bool
}

// Tagged reports whether the field is mirrored onto a tag.
func (f Field) Tagged() bool {
	return f.Tag != ""
}

// Schema describes an entity type.
type Schema struct {
	Name   string
	Shape  Shape
	Fields []Field
}

// KeyFields returns the key field names for the schema's shape.
func (s *Schema) KeyFields() []string {
	if s.Shape == ShapeBlob {
		return []string{KeyName}
	}
	return []string{KeyPartition, KeyRow}
}

// IsKey reports whether name is a key field of this schema.
func (s *Schema) IsKey(name string) bool {
	for _, k := range s.KeyFields() {
		if k == name {
			return true
		}
	}
	return false
}

// Field looks up a field by name. Key fields resolve to filterable strings.
func (s *Schema) Field(name string) (Field, bool) {
	if s.IsKey(name) {
		return Field{Name: name, Kind: ir.KindString, Filterable: true}, true
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// TagFor returns the tag name a field is mapped to.
func (s *Schema) TagFor(field string) (string, bool) {
	f, ok := s.Field(field)
	if !ok || !f.Tagged() {
		return "", false
	}
	return f.Tag, true
}

// FieldForTag returns the field mirrored to the given tag.
func (s *Schema) FieldForTag(tag string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return Field{}, false
}

// TaggedFields returns the tag-mapped fields in declaration order.
func (s *Schema) TaggedFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Tagged() {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks the schema and NFC-normalizes tag names in place.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema name is required")
	}
	if s.Shape != ShapeTable && s.Shape != ShapeBlob {
		return fmt.Errorf("schema %s: unknown shape %q", s.Name, s.Shape)
	}

	seen := make(map[string]bool, len(s.Fields))
	tags := make(map[string]string)
	for i := range s.Fields {
		f := &s.Fields[i]
		if !fieldNamePattern.MatchString(f.Name) {
			return fmt.Errorf("schema %s: invalid field name %q", s.Name, f.Name)
		}
		if s.IsKey(f.Name) {
			return fmt.Errorf("schema %s: field %q shadows a key field", s.Name, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("schema %s: duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = true

		switch f.Kind {
		case ir.KindString, ir.KindInt, ir.KindBool, ir.KindTime:
		case ir.KindArray, ir.KindObject:
			if f.Tagged() || f.Filterable {
				return fmt.Errorf("schema %s: %s field %q cannot be tagged or filterable", s.Name, f.Kind, f.Name)
			}
		default:
			return fmt.Errorf("schema %s: field %q has unsupported kind %s", s.Name, f.Name, f.Kind)
		}

		if !f.Tagged() {
			continue
		}
		f.Tag = norm.NFC.String(f.Tag)
		if len(f.Tag) > maxTagNameLen {
			return fmt.Errorf("schema %s: tag name for %q exceeds %d bytes", s.Name, f.Name, maxTagNameLen)
		}
		if other, dup := tags[f.Tag]; dup {
			return fmt.Errorf("schema %s: tag %q mapped by both %q and %q", s.Name, f.Tag, other, f.Name)
		}
		tags[f.Tag] = f.Name
	}

	if len(tags) > MaxTags {
		return fmt.Errorf("schema %s: %d tags exceeds maximum of %d", s.Name, len(tags), MaxTags)
	}
	return nil
}
