package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
)

// SeedFile is a YAML list of entities, as read by LoadSeeds:
//
//	entities:
//	  - key: doc-1
//	    fields: { id: 1, tag: a }
type SeedFile struct {
	Entities []EntitySeed `yaml:"entities"`
}

// LoadSeeds reads a seed file.
func LoadSeeds(path string) ([]EntitySeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file SeedFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for i, seed := range file.Entities {
		if seed.Key == "" {
			return nil, fmt.Errorf("entities[%d]: key is required", i)
		}
	}
	return file.Entities, nil
}

// BuildEntities converts seeds into entities of schema.
func BuildEntities(schema *entity.Schema, seeds []EntitySeed) ([]*entity.Entity, error) {
	out := make([]*entity.Entity, 0, len(seeds))
	for i, seed := range seeds {
		loc, err := entity.ParseLocator(schema.Shape, seed.Key)
		if err != nil {
			return nil, fmt.Errorf("entities[%d]: %w", i, err)
		}
		fields, err := convertFields(seed.Fields)
		if err != nil {
			return nil, fmt.Errorf("entities[%d]: %w", i, err)
		}
		e, err := entity.New(schema, loc, fields)
		if err != nil {
			return nil, fmt.Errorf("entities[%d]: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// convertFields converts YAML field values to IR values.
func convertFields(fields map[string]any) (ir.IRObject, error) {
	obj := make(ir.IRObject, len(fields))
	for k, v := range fields {
		irVal, err := ir.FromNative(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		obj[k] = irVal
	}
	return obj, nil
}
