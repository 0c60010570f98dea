// Package memstore is an in-memory store backed by hashicorp/go-memdb.
//
// Entities are kept as canonical JSON bodies, so downloads exercise the same
// codec as the persistent stores. Tags are mirrored into a separate table
// with a compound (tag, value) index that serves equality and range tag
// filters without scanning every entity.
package memstore

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"

	"github.com/hashicorp/go-memdb"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryir"
	"github.com/roach88/entq/internal/store"
)

const (
	tableEntities = "entities"
	tableTags     = "tags"

	indexID     = "id"
	indexTag    = "tag"
	indexEntity = "entity"
)

// record is a stored entity.
type record struct {
	ID      string
	Locator entity.Locator
	Body    []byte
	ETag    string
	Tags    entity.Tags
}

// tagRow mirrors one tag of one entity. Indexed is Value with a fixed
// prefix, since memdb string indexes reject empty values.
type tagRow struct {
	ID       string
	EntityID string
	Tag      string
	Value    string
	Indexed  string
}

const indexedPrefix = "="

func dbSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableEntities: {
				Name: tableEntities,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				},
			},
			tableTags: {
				Name: tableTags,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					indexTag: {Name: indexTag, Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
						&memdb.StringFieldIndex{Field: "Tag"},
						&memdb.StringFieldIndex{Field: "Indexed"},
					}}},
					indexEntity: {Name: indexEntity, Indexer: &memdb.StringFieldIndex{Field: "EntityID"}},
				},
			},
		},
	}
}

// Store is an in-memory store.
type Store struct {
	db     *memdb.MemDB
	schema *entity.Schema
	caps   store.Capabilities
}

// Option configures a Store.
type Option func(*Store)

// WithTagIndexing enables or disables the tag index (enabled by default).
func WithTagIndexing(enabled bool) Option {
	return func(s *Store) {
		s.caps.TagIndexing = enabled
	}
}

// New creates an empty store for entities of the given schema.
func New(schema *entity.Schema, opts ...Option) (*Store, error) {
	db, err := memdb.NewMemDB(dbSchema())
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}
	s := &Store{db: db, schema: schema, caps: store.Capabilities{TagIndexing: true}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var _ store.Store = (*Store)(nil)

// Capabilities implements store.Store.
func (s *Store) Capabilities() store.Capabilities {
	return s.caps
}

// Schema implements store.Store.
func (s *Store) Schema() *entity.Schema {
	return s.schema
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, e *entity.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := entity.EncodeBody(e)
	if err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	id := e.Locator.String()
	if err := deleteTags(txn, id); err != nil {
		return err
	}
	rec := &record{ID: id, Locator: e.Locator, Body: body, ETag: e.ETag, Tags: maps.Clone(e.Tags)}
	if err := txn.Insert(tableEntities, rec); err != nil {
		return fmt.Errorf("put %s: %w", id, err)
	}
	for tag, value := range rec.Tags {
		row := &tagRow{ID: id + "\x00" + tag, EntityID: id, Tag: tag, Value: value, Indexed: indexedPrefix + value}
		if err := txn.Insert(tableTags, row); err != nil {
			return fmt.Errorf("put %s tag %q: %w", id, tag, err)
		}
	}
	txn.Commit()
	return nil
}

// Download implements store.Store.
func (s *Store) Download(ctx context.Context, loc entity.Locator) (*entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn := s.db.Txn(false)
	raw, err := txn.First(tableEntities, indexID, loc.String())
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", loc, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("download %s: %w", loc, store.ErrNotFound)
	}
	return s.decode(raw.(*record))
}

func (s *Store) decode(rec *record) (*entity.Entity, error) {
	return entity.DecodeBody(s.schema, rec.Locator, rec.ETag, rec.Body)
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, loc entity.Locator, etag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := deleteOne(txn, loc, etag); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// SubmitBatch implements store.Store. All actions run in one memdb write
// transaction; any failure aborts the whole batch.
func (s *Store) SubmitBatch(ctx context.Context, batch store.Batch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	for _, a := range batch.Actions {
		if a.Kind != store.ActionDelete {
			return 0, fmt.Errorf("batch %s: unsupported action %q", batch.ID, a.Kind)
		}
		if err := deleteOne(txn, a.Locator, a.ETag); err != nil {
			return 0, fmt.Errorf("batch %s: %w", batch.ID, err)
		}
	}
	txn.Commit()
	slog.Debug("memstore batch committed", "batch", batch.ID, "actions", len(batch.Actions))
	return len(batch.Actions), nil
}

func deleteOne(txn *memdb.Txn, loc entity.Locator, etag string) error {
	id := loc.String()
	raw, err := txn.First(tableEntities, indexID, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if raw == nil {
		return fmt.Errorf("delete %s: %w", id, store.ErrNotFound)
	}
	if etag != "" && raw.(*record).ETag != etag {
		return fmt.Errorf("delete %s: %w", id, store.ErrETagMismatch)
	}
	if err := txn.Delete(tableEntities, raw); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return deleteTags(txn, id)
}

func deleteTags(txn *memdb.Txn, id string) error {
	if _, err := txn.DeleteAll(tableTags, indexEntity, id); err != nil {
		return fmt.Errorf("delete tags of %s: %w", id, err)
	}
	return nil
}

// ListAll implements store.Store.
func (s *Store) ListAll(ctx context.Context) iter.Seq2[store.Candidate, error] {
	return s.scan(ctx, false, nil)
}

// ListMetadataOnly implements store.Store.
func (s *Store) ListMetadataOnly(ctx context.Context) iter.Seq2[store.Candidate, error] {
	if !s.caps.TagIndexing {
		return store.Fail(store.ErrTagIndexingDisabled)
	}
	return s.scan(ctx, true, nil)
}

// ListByNativeFilter implements store.Store. Key-only filters are decided
// from the locator; others decode each body.
func (s *Store) ListByNativeFilter(ctx context.Context, filter *queryir.Filter) iter.Seq2[store.Candidate, error] {
	keyOnly := store.KeyOnly(filter, s.schema)
	return s.scan(ctx, false, func(rec *record) (bool, error) {
		if keyOnly {
			return store.MatchLocator(filter, rec.Locator)
		}
		e, err := s.decode(rec)
		if err != nil {
			return false, err
		}
		return store.MatchNative(filter, e)
	})
}

// ListByTagFilter implements store.Store.
func (s *Store) ListByTagFilter(ctx context.Context, filter *queryir.Filter) iter.Seq2[store.Candidate, error] {
	if !s.caps.TagIndexing {
		return store.Fail(store.ErrTagIndexingDisabled)
	}
	return func(yield func(store.Candidate, error) bool) {
		txn := s.db.Txn(false)
		ids, indexed, err := candidateIDs(txn, filter.Expr)
		if err != nil {
			yield(store.Candidate{}, err)
			return
		}
		if !indexed {
			s.scan(ctx, true, func(rec *record) (bool, error) {
				return store.MatchTags(filter, rec.Tags)
			})(yield)
			return
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(store.Candidate{}, err)
				return
			}
			raw, err := txn.First(tableEntities, indexID, id)
			if err != nil {
				yield(store.Candidate{}, fmt.Errorf("lookup %s: %w", id, err))
				return
			}
			if raw == nil {
				continue
			}
			rec := raw.(*record)
			ok, err := store.MatchTags(filter, rec.Tags)
			if err != nil {
				yield(store.Candidate{}, err)
				return
			}
			if ok && !yield(s.candidate(rec, true), nil) {
				return
			}
		}
	}
}

// scan walks the entity table in id order, yielding records accepted by
// match (all records when match is nil).
func (s *Store) scan(ctx context.Context, withTags bool, match func(*record) (bool, error)) iter.Seq2[store.Candidate, error] {
	return func(yield func(store.Candidate, error) bool) {
		txn := s.db.Txn(false)
		it, err := txn.Get(tableEntities, indexID)
		if err != nil {
			yield(store.Candidate{}, fmt.Errorf("list entities: %w", err))
			return
		}
		for raw := it.Next(); raw != nil; raw = it.Next() {
			if err := ctx.Err(); err != nil {
				yield(store.Candidate{}, err)
				return
			}
			rec := raw.(*record)
			if match != nil {
				ok, err := match(rec)
				if err != nil {
					yield(store.Candidate{}, err)
					return
				}
				if !ok {
					continue
				}
			}
			if !yield(s.candidate(rec, withTags), nil) {
				return
			}
		}
	}
}

func (s *Store) candidate(rec *record, withTags bool) store.Candidate {
	c := store.Candidate{
		Locator: rec.Locator,
		ETag:    rec.ETag,
		Download: store.NewLazyDownload(func(context.Context) (*entity.Entity, error) {
			return s.decode(rec)
		}),
	}
	if withTags {
		c.Tags = maps.Clone(rec.Tags)
	}
	return c
}

// candidateIDs narrows a tag filter through the (tag, value) index. It
// picks the first indexable comparison on the conjunction spine of the
// filter; the filter itself is re-checked on every candidate. indexed is
// false when no comparison can use the index.
func candidateIDs(txn *memdb.Txn, e queryir.Expr) (ids []string, indexed bool, err error) {
	cmp, ok := indexableCompare(e)
	if !ok {
		return nil, false, nil
	}
	tag := cmp.Left.(queryir.TagRef).Tag
	value := string(cmp.Right.(queryir.Const).Value.(ir.IRString))

	var it memdb.ResultIterator
	switch cmp.Op {
	case queryir.OpEq:
		it, err = txn.Get(tableTags, indexTag, tag, indexedPrefix+value)
	default:
		it, err = txn.LowerBound(tableTags, indexTag, tag, indexedPrefix)
	}
	if err != nil {
		return nil, false, fmt.Errorf("tag index %q: %w", tag, err)
	}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		row := raw.(*tagRow)
		if row.Tag != tag {
			break
		}
		if queryir.CompareValues(cmp.Op, ir.IRString(row.Value), ir.IRString(value)) {
			ids = append(ids, row.EntityID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), true, nil
}

func indexableCompare(e queryir.Expr) (queryir.Compare, bool) {
	switch n := e.(type) {
	case queryir.And:
		if c, ok := indexableCompare(n.Left); ok {
			return c, true
		}
		return indexableCompare(n.Right)
	case queryir.Compare:
		if _, ok := n.Left.(queryir.TagRef); !ok {
			return queryir.Compare{}, false
		}
		k, ok := n.Right.(queryir.Const)
		if !ok {
			return queryir.Compare{}, false
		}
		if _, ok := k.Value.(ir.IRString); !ok || n.Op == queryir.OpNe {
			return queryir.Compare{}, false
		}
		return n, true
	}
	return queryir.Compare{}, false
}
