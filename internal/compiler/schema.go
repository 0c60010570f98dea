package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
)

// CompileSchema parses a CUE value into an entity schema.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: Order: { shape: "table", fields: { ... } }`)
//	schema, err := CompileSchema(v.LookupPath(cue.ParsePath("entity.Order")))
//
// A field is declared either as a kind name, as a CUE type, or as a
// struct with kind, tag and filterable:
//
//	fields: {
//		status:  { kind: "string", tag: "status", filterable: true }
//		total:   int
//		created: "time"
//	}
func CompileSchema(v cue.Value) (*entity.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := &entity.Schema{}

	// Schema name from struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		schema.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	// Parse shape (required)
	shapeVal := v.LookupPath(cue.ParsePath("shape"))
	if !shapeVal.Exists() {
		return nil, &CompileError{
			Field:   "shape",
			Message: "shape is required",
			Pos:     v.Pos(),
		}
	}
	shape, err := shapeVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	schema.Shape = entity.Shape(shape)

	// Parse fields (optional, a schema may be keys only)
	schema.Fields, err = parseFields(v)
	if err != nil {
		return nil, err
	}

	if err := schema.Validate(); err != nil {
		return nil, &CompileError{
			Field:   "entity",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return schema, nil
}

// parseFields extracts field definitions in declaration order.
func parseFields(v cue.Value) ([]entity.Field, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []entity.Field
	for iter.Next() {
		field, err := parseField(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, nil
}

// parseField parses one field declaration.
// Supports:
// - Kind name: "string"
// - CUE type: string
// - Struct: { kind: "int", tag: "total", filterable: true }
func parseField(name string, v cue.Value) (entity.Field, error) {
	field := entity.Field{Name: name}

	if v.IncompleteKind() != cue.StructKind {
		kind, err := extractKind(v)
		if err != nil {
			return field, err
		}
		field.Kind = kind
		return field, nil
	}

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return field, &CompileError{
			Field:   "fields." + name + ".kind",
			Message: "kind is required",
			Pos:     v.Pos(),
		}
	}
	kind, err := extractKind(kindVal)
	if err != nil {
		return field, err
	}
	field.Kind = kind

	// Tag is optional
	if tagVal := v.LookupPath(cue.ParsePath("tag")); tagVal.Exists() {
		tag, err := tagVal.String()
		if err != nil {
			return field, formatCUEError(err)
		}
		field.Tag = tag
	}

	// Filterable is optional
	if fVal := v.LookupPath(cue.ParsePath("filterable")); fVal.Exists() {
		filterable, err := fVal.Bool()
		if err != nil {
			return field, formatCUEError(err)
		}
		field.Filterable = filterable
	}

	return field, nil
}

// extractKind converts a kind name or a CUE type to an IR kind.
// Floats are forbidden: they have no order-preserving tag encoding.
func extractKind(v cue.Value) (ir.Kind, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		name, err := v.String()
		if err != nil {
			return ir.KindNull, formatCUEError(err)
		}
		kind, err := ir.ParseKind(name)
		if err != nil || kind == ir.KindNull {
			return ir.KindNull, &CompileError{
				Field:   "kind",
				Message: fmt.Sprintf("unknown kind %q (want string, int, bool, time, array or object)", name),
				Pos:     v.Pos(),
			}
		}
		return kind, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.KindString, nil
	case cue.IntKind:
		return ir.KindInt, nil
	case cue.BoolKind:
		return ir.KindBool, nil
	case cue.ListKind:
		return ir.KindArray, nil
	case cue.StructKind:
		return ir.KindObject, nil
	case cue.FloatKind, cue.NumberKind:
		return ir.KindNull, &CompileError{
			Field:   "kind",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return ir.KindNull, &CompileError{
			Field:   "kind",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}
