package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryir"
)

func TestLazyDownloadMemoizes(t *testing.T) {
	want := &entity.Entity{Locator: entity.BlobLocator("a")}
	calls := 0
	d := NewLazyDownload(func(ctx context.Context) (*entity.Entity, error) {
		calls++
		return want, nil
	})

	assert.False(t, d.Fetched())
	for i := 0; i < 3; i++ {
		got, err := d.Get(context.Background())
		require.NoError(t, err)
		assert.Same(t, want, got)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, d.Fetches())
	assert.True(t, d.Fetched())
}

func TestLazyDownloadMemoizesFailure(t *testing.T) {
	calls := 0
	d := NewLazyDownload(func(ctx context.Context) (*entity.Entity, error) {
		calls++
		return nil, ErrNotFound
	})
	for i := 0; i < 2; i++ {
		_, err := d.Get(context.Background())
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, calls)
}

func TestLazyDownloadRetriesAfterCancellation(t *testing.T) {
	calls := 0
	d := NewLazyDownload(func(ctx context.Context) (*entity.Entity, error) {
		calls++
		if calls == 1 {
			return nil, context.Canceled
		}
		return &entity.Entity{}, nil
	})

	_, err := d.Get(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, d.Fetched())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "a cancelled context must not reach the fetch")

	_, err = d.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestResolved(t *testing.T) {
	e := &entity.Entity{}
	d := Resolved(e)
	got, err := d.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, e, got)
	assert.Equal(t, 0, d.Fetches())
}

func TestFailAndCollect(t *testing.T) {
	boom := errors.New("boom")
	got, err := Collect(Fail(boom))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, got)
}

func TestMatchTags(t *testing.T) {
	f := &queryir.Filter{
		Expr: queryir.AndOf(
			queryir.Eq(queryir.TagRef{Tag: "st"}, queryir.Str("a")),
			queryir.Gt(queryir.TagRef{Tag: "n"}, queryir.Str("05")),
		),
		Text: `"st" = 'a' AND "n" > '05'`,
	}

	ok, err := MatchTags(f, entity.Tags{"st": "a", "n": "07"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchTags(f, entity.Tags{"st": "a"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = MatchTags(f, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = MatchTags(&queryir.Filter{Expr: queryir.Eq(queryir.F("x"), queryir.Int(1))}, entity.Tags{})
	assert.Error(t, err)
}

func TestMatchLocator(t *testing.T) {
	schema := &entity.Schema{Name: "T", Shape: entity.ShapeTable, Fields: []entity.Field{{Name: "n", Kind: ir.KindInt, Filterable: true}}}
	keyFilter := &queryir.Filter{Expr: queryir.AndOf(
		queryir.Eq(queryir.F(entity.KeyPartition), queryir.Str("p1")),
		queryir.Ge(queryir.F(entity.KeyRow), queryir.Str("b")),
	)}
	bodyFilter := &queryir.Filter{Expr: queryir.Gt(queryir.F("n"), queryir.Int(1))}

	assert.True(t, KeyOnly(keyFilter, schema))
	assert.False(t, KeyOnly(bodyFilter, schema))

	ok, err := MatchLocator(keyFilter, entity.TableLocator("p1", "c"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchLocator(keyFilter, entity.TableLocator("p1", "a"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = MatchLocator(bodyFilter, entity.TableLocator("p1", "a"))
	assert.Error(t, err)

	e := &entity.Entity{Locator: entity.TableLocator("p", "r"), Fields: ir.IRObject{"n": ir.IRInt(2)}}
	ok, err = MatchNative(bodyFilter, e)
	require.NoError(t, err)
	assert.True(t, ok)
}
