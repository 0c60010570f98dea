package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/entq/internal/entity"
)

// Definitions is the compiled content of one CUE file.
type Definitions struct {
	// Schemas by name; Names keeps declaration order.
	Schemas map[string]*entity.Schema
	Names   []string

	Queries map[string]*QuerySpec
}

// Schema returns the named schema, or the only schema when name is empty
// and the file declares exactly one.
func (d *Definitions) Schema(name string) (*entity.Schema, error) {
	if name == "" {
		if len(d.Names) != 1 {
			return nil, fmt.Errorf("schema name required: file declares %d entities", len(d.Names))
		}
		name = d.Names[0]
	}
	s, ok := d.Schemas[name]
	if !ok {
		return nil, fmt.Errorf("entity %q is not declared", name)
	}
	return s, nil
}

// LoadFile compiles every entity and query declared in a CUE file.
func LoadFile(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return LoadBytes(path, data)
}

// LoadBytes compiles CUE source; filename is used in error positions.
func LoadBytes(filename string, data []byte) (*Definitions, error) {
	v := cuecontext.New().CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	defs := &Definitions{
		Schemas: make(map[string]*entity.Schema),
		Queries: make(map[string]*QuerySpec),
	}

	if entities := v.LookupPath(cue.ParsePath("entity")); entities.Exists() {
		iter, err := entities.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			schema, err := CompileSchema(iter.Value())
			if err != nil {
				return nil, err
			}
			defs.Schemas[schema.Name] = schema
			defs.Names = append(defs.Names, schema.Name)
		}
	}

	if queries := v.LookupPath(cue.ParsePath("query")); queries.Exists() {
		iter, err := queries.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			spec, err := CompileQuery(iter.Value())
			if err != nil {
				return nil, err
			}
			defs.Queries[spec.Name] = spec
		}
	}

	if len(defs.Names) == 0 {
		return nil, &CompileError{Field: "entity", Message: "no entity declared", Pos: v.Pos()}
	}
	return defs, nil
}

// LoadSchemaFile loads one entity schema from a CUE file. An empty name
// selects the file's only entity.
func LoadSchemaFile(path, name string) (*entity.Schema, error) {
	defs, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return defs.Schema(name)
}
