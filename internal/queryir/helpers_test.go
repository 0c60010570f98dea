package queryir

import "github.com/roach88/entq/internal/ir"

// row is a FieldSource over a plain object; missing fields read as null.
type row ir.IRObject

func (r row) Lookup(name string) (ir.IRValue, bool) {
	if v, ok := r[name]; ok {
		return v, true
	}
	return ir.IRNull{}, true
}

type tags map[string]string

func (t tags) Tag(name string) (string, bool) {
	v, ok := t[name]
	return v, ok
}
