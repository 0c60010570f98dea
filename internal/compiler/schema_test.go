package compiler

import (
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
)

func TestCompileSchemaBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Doc: {
			shape: "blob"
			fields: {
				tag:   {kind: "string", tag: "t"}
				size:  {kind: "int", tag: "size", filterable: true}
				title: string
				count: int
				live:  bool
				at:    "time"
				items: "array"
			}
		}
	`)

	require.NoError(t, v.Err())
	schema, err := CompileSchema(v.LookupPath(cue.ParsePath("entity.Doc")))
	require.NoError(t, err)

	assert.Equal(t, "Doc", schema.Name)
	assert.Equal(t, entity.ShapeBlob, schema.Shape)
	assert.Equal(t, []entity.Field{
		{Name: "tag", Kind: ir.KindString, Tag: "t"},
		{Name: "size", Kind: ir.KindInt, Tag: "size", Filterable: true},
		{Name: "title", Kind: ir.KindString},
		{Name: "count", Kind: ir.KindInt},
		{Name: "live", Kind: ir.KindBool},
		{Name: "at", Kind: ir.KindTime},
		{Name: "items", Kind: ir.KindArray},
	}, schema.Fields, "fields keep declaration order")
}

func TestCompileSchemaKeysOnly(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`entity: Key: shape: "table"`)

	schema, err := CompileSchema(v.LookupPath(cue.ParsePath("entity.Key")))
	require.NoError(t, err)
	assert.Empty(t, schema.Fields)
}

func TestCompileSchemaErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		contains string
	}{
		{"missing shape", `entity: X: fields: a: string`, "shape is required"},
		{"unknown shape", `entity: X: shape: "queue"`, "unknown shape"},
		{"float field", `entity: X: {shape: "blob", fields: a: float}`, "float types are forbidden"},
		{"unknown kind name", `entity: X: {shape: "blob", fields: a: "decimal"}`, "unknown kind"},
		{"missing kind", `entity: X: {shape: "blob", fields: a: {tag: "a"}}`, "kind is required"},
		{"shadowed key", `entity: X: {shape: "blob", fields: Name: string}`, "shadows a key field"},
		{"tagged array", `entity: X: {shape: "blob", fields: a: {kind: "array", tag: "a"}}`, "cannot be tagged"},
		{"duplicate tag", `entity: X: {shape: "blob", fields: {a: {kind: "string", tag: "t"}, b: {kind: "string", tag: "t"}}}`, "mapped by both"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := cuecontext.New().CompileString(tt.src)
			require.NoError(t, v.Err())
			_, err := CompileSchema(v.LookupPath(cue.ParsePath("entity.X")))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoadFile(t *testing.T) {
	defs, err := LoadFile(filepath.Join("testdata", "orders.cue"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Order"}, defs.Names)
	schema, err := defs.Schema("")
	require.NoError(t, err)
	assert.Equal(t, entity.ShapeTable, schema.Shape)
	assert.Len(t, schema.TaggedFields(), 2)

	require.Len(t, defs.Queries, 2)
	open := defs.Queries["openOrders"]
	assert.Equal(t, "Order", open.Entity)
	assert.Equal(t, `e => e.status == "open"`, open.Where.String())
	assert.Equal(t, 10, open.Take)
	assert.Equal(t, []string{"note", "total"}, open.Select.FieldNames())

	big := defs.Queries["bigUnpaid"]
	assert.Equal(t, "o", big.Where.Param)
	assert.Equal(t, "FullScanCompiled", big.Strategy)
}

func TestLoadSchemaFile(t *testing.T) {
	schema, err := LoadSchemaFile(filepath.Join("testdata", "orders.cue"), "Order")
	require.NoError(t, err)
	assert.Equal(t, "Order", schema.Name)

	_, err = LoadSchemaFile(filepath.Join("testdata", "orders.cue"), "Invoice")
	assert.ErrorContains(t, err, "not declared")

	_, err = LoadSchemaFile(filepath.Join("testdata", "missing.cue"), "")
	assert.Error(t, err)
}

func TestLoadBytesErrors(t *testing.T) {
	_, err := LoadBytes("bad.cue", []byte(`entity: {`))
	require.Error(t, err)

	_, err = LoadBytes("empty.cue", []byte(`query: q: entity: "X"`))
	assert.ErrorContains(t, err, "no entity declared")

	_, err = LoadBytes("two.cue", []byte(`
		entity: A: shape: "blob"
		entity: B: shape: "blob"
	`))
	require.NoError(t, err)
}

func TestDefinitionsSchemaAmbiguous(t *testing.T) {
	defs, err := LoadBytes("two.cue", []byte(`
		entity: A: shape: "blob"
		entity: B: shape: "table"
	`))
	require.NoError(t, err)

	_, err = defs.Schema("")
	assert.ErrorContains(t, err, "declares 2 entities")
	b, err := defs.Schema("B")
	require.NoError(t, err)
	assert.Equal(t, entity.ShapeTable, b.Shape)
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "shape", Message: "shape is required"}
	assert.Equal(t, "shape: shape is required", err.Error())
}

func TestCompileErrorFromCUE(t *testing.T) {
	_, err := LoadBytes("bad.cue", []byte(`entity: {`))
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Pos.IsValid())
	assert.Equal(t, "bad.cue", filepath.Base(ce.Pos.Filename()))
	assert.NotNil(t, ce.Unwrap())
	assert.Contains(t, err.Error(), "bad.cue:")
}
