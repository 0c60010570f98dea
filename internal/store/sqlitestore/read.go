package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/queryir"
	"github.com/roach88/entq/internal/store"
)

// row is one listed entity.
type row struct {
	id      string
	loc     entity.Locator
	etag    string
	tags    entity.Tags
	hasTags bool
}

// ListAll implements store.Store.
func (s *Store) ListAll(ctx context.Context) iter.Seq2[store.Candidate, error] {
	query, params := s.compiler.CompileList(false)
	return s.pages(ctx, query, params, false)
}

// ListMetadataOnly implements store.Store.
func (s *Store) ListMetadataOnly(ctx context.Context) iter.Seq2[store.Candidate, error] {
	if !s.caps.TagIndexing {
		return store.Fail(store.ErrTagIndexingDisabled)
	}
	query, params := s.compiler.CompileList(true)
	return s.pages(ctx, query, params, true)
}

// ListByNativeFilter implements store.Store.
func (s *Store) ListByNativeFilter(ctx context.Context, filter *queryir.Filter) iter.Seq2[store.Candidate, error] {
	query, params, err := s.compiler.CompileNative(filter)
	if err != nil {
		return store.Fail(err)
	}
	return s.pages(ctx, query, params, false)
}

// ListByTagFilter implements store.Store.
func (s *Store) ListByTagFilter(ctx context.Context, filter *queryir.Filter) iter.Seq2[store.Candidate, error] {
	if !s.caps.TagIndexing {
		return store.Fail(store.ErrTagIndexingDisabled)
	}
	query, params, err := s.compiler.CompileTag(filter)
	if err != nil {
		return store.Fail(err)
	}
	return s.pages(ctx, query, params, true)
}

// pages runs a compiled listing query page by page. Each page is read
// completely and its rows closed before any candidate is yielded.
func (s *Store) pages(ctx context.Context, query string, params []any, withTags bool) iter.Seq2[store.Candidate, error] {
	return func(yield func(store.Candidate, error) bool) {
		cursor := ""
		for {
			page, err := s.page(ctx, query, params, cursor, withTags)
			if err != nil {
				yield(store.Candidate{}, err)
				return
			}
			for _, r := range page {
				if err := ctx.Err(); err != nil {
					yield(store.Candidate{}, err)
					return
				}
				if !yield(s.candidate(r), nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			cursor = page[len(page)-1].id
		}
	}
}

func (s *Store) page(ctx context.Context, query string, params []any, cursor string, withTags bool) ([]row, error) {
	args := append(append([]any{}, params...), cursor, s.pageSize)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var r row
		var tagsJSON sql.NullString
		dest := []any{&r.id, &r.loc.PartitionKey, &r.loc.RowKey, &r.loc.Name, &r.etag}
		if withTags {
			dest = append(dest, &tagsJSON)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		if withTags {
			r.hasTags = true
			r.tags = entity.Tags{}
			if tagsJSON.Valid {
				if err := json.Unmarshal([]byte(tagsJSON.String), &r.tags); err != nil {
					return nil, fmt.Errorf("decode tags of %s: %w", r.id, err)
				}
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return out, nil
}

func (s *Store) candidate(r row) store.Candidate {
	loc := s.locator(r.loc)
	c := store.Candidate{
		Locator: loc,
		ETag:    r.etag,
		Download: store.NewLazyDownload(func(ctx context.Context) (*entity.Entity, error) {
			return s.Download(ctx, loc)
		}),
	}
	if r.hasTags {
		c.Tags = r.tags
	}
	return c
}

// locator keeps only the key columns of the schema's shape.
func (s *Store) locator(l entity.Locator) entity.Locator {
	if s.schema.Shape == entity.ShapeBlob {
		return entity.BlobLocator(l.Name)
	}
	return entity.TableLocator(l.PartitionKey, l.RowKey)
}

// Download implements store.Store.
func (s *Store) Download(ctx context.Context, loc entity.Locator) (*entity.Entity, error) {
	var body, etag string
	err := s.db.QueryRowContext(ctx, `SELECT body, etag FROM entities WHERE id = ?`, loc.String()).Scan(&body, &etag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("download %s: %w", loc, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", loc, err)
	}
	return entity.DecodeBody(s.schema, loc, etag, []byte(body))
}
