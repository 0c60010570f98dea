package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entq/internal/queryir"
	"github.com/roach88/entq/internal/store"
)

func TestInstrumented_CountsPullsAndDownloads(t *testing.T) {
	ctx := context.Background()
	schema := DocSchema(t)
	inner := NewMemStore(t, schema, true)
	Seed(t, inner, Docs(t, schema, 4)...)
	s := Instrument(inner)

	n := 0
	for c, err := range s.ListAll(ctx) {
		require.NoError(t, err)
		n++
		if n == 1 {
			_, err := c.Download.Get(ctx)
			require.NoError(t, err)
			_, err = c.Download.Get(ctx)
			require.NoError(t, err)
		}
		if n == 2 {
			break
		}
	}

	got := s.Counts()
	assert.Equal(t, 1, got.ListAll)
	assert.Equal(t, 2, got.Pulled)
	assert.Equal(t, 1, got.Downloads, "a handle fetches once")
}

func TestInstrumented_RecordsFilters(t *testing.T) {
	ctx := context.Background()
	schema := DocSchema(t)
	s := Instrument(NewMemStore(t, schema, true))

	f := &queryir.Filter{
		Expr: queryir.Eq(queryir.TagRef{Tag: "tag"}, queryir.Str("a")),
		Text: `"tag" = 'a'`,
	}
	_, err := store.Collect(s.ListByTagFilter(ctx, f))
	require.NoError(t, err)

	assert.Equal(t, 1, s.Counts().Tag)
	assert.Equal(t, `"tag" = 'a'`, s.Counts().TagFilter)

	s.Reset()
	assert.Equal(t, Counts{}, s.Counts())
}

func TestDocs(t *testing.T) {
	schema := DocSchema(t)
	docs := Docs(t, schema, 3)
	require.Len(t, docs, 3)
	assert.Equal(t, "doc-01", docs[0].Locator.Name)
	assert.Equal(t, "a", docs[0].Tags["tag"])
	assert.Equal(t, "b", docs[1].Tags["tag"])
}
