package testutil

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/store"
	"github.com/roach88/entq/internal/store/memstore"
)

// DocSchema is a blob-shaped schema with an untagged "id", tag-mapped
// "tag" (string) and "size" (int) fields and a filterable "title".
func DocSchema(t testing.TB) *entity.Schema {
	t.Helper()
	s := &entity.Schema{
		Name:  "Doc",
		Shape: entity.ShapeBlob,
		Fields: []entity.Field{
			{Name: "id", Kind: ir.KindInt},
			{Name: "tag", Kind: ir.KindString, Tag: "tag"},
			{Name: "size", Kind: ir.KindInt, Tag: "size"},
			{Name: "title", Kind: ir.KindString, Filterable: true},
		},
	}
	require.NoError(t, s.Validate())
	return s
}

// OrderSchema is a table-shaped schema with a tag-mapped status, a
// filterable total and an untagged note.
func OrderSchema(t testing.TB) *entity.Schema {
	t.Helper()
	s := &entity.Schema{
		Name:  "Order",
		Shape: entity.ShapeTable,
		Fields: []entity.Field{
			{Name: "status", Kind: ir.KindString, Tag: "status"},
			{Name: "total", Kind: ir.KindInt, Filterable: true},
			{Name: "note", Kind: ir.KindString},
		},
	}
	require.NoError(t, s.Validate())
	return s
}

// MustEntity builds an entity or fails the test.
func MustEntity(t testing.TB, schema *entity.Schema, loc entity.Locator, fields ir.IRObject) *entity.Entity {
	t.Helper()
	e, err := entity.New(schema, loc, fields)
	require.NoError(t, err)
	return e
}

// Seed stores the given entities.
func Seed(t testing.TB, s store.Store, entities ...*entity.Entity) {
	t.Helper()
	for _, e := range entities {
		require.NoError(t, s.Put(context.Background(), e))
	}
}

// NewMemStore creates a memstore for schema.
func NewMemStore(t testing.TB, schema *entity.Schema, tagIndexing bool) *memstore.Store {
	t.Helper()
	s, err := memstore.New(schema, memstore.WithTagIndexing(tagIndexing))
	require.NoError(t, err)
	return s
}

// Docs returns n documents doc-01..doc-nn with id i, tag "a" for odd i
// and "b" for even i, size i*10 and title "title-i".
func Docs(t testing.TB, schema *entity.Schema, n int) []*entity.Entity {
	t.Helper()
	out := make([]*entity.Entity, 0, n)
	for i := 1; i <= n; i++ {
		tag := "b"
		if i%2 == 1 {
			tag = "a"
		}
		out = append(out, MustEntity(t, schema, entity.BlobLocator(docName(i)), ir.IRObject{
			"id":    ir.IRInt(i),
			"tag":   ir.IRString(tag),
			"size":  ir.IRInt(i * 10),
			"title": ir.IRString("title-" + itoa(i)),
		}))
	}
	return out
}

func docName(i int) string {
	s := itoa(i)
	if len(s) < 2 {
		s = "0" + s
	}
	return "doc-" + s
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
