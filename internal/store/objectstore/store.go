// Package objectstore is a blob-shaped store on S3-compatible object
// storage. Each entity is one object named by its locator, holding the
// canonical JSON body; tag-mapped values are stored as object tags.
//
// Object stores have no server-side query language, so native and tag
// filters are evaluated client-side over listings: key-only native filters
// and tag filters never download bodies. Downloads are retried on transient
// failures.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/queryir"
	"github.com/roach88/entq/internal/store"
)

// Store is an object storage backed store.
type Store struct {
	bucket  Bucket
	schema  *entity.Schema
	caps    store.Capabilities
	backoff func() retry.Backoff
}

// Option configures a Store.
type Option func(*Store)

// WithTagIndexing enables or disables object tags (enabled by default).
func WithTagIndexing(enabled bool) Option {
	return func(s *Store) {
		s.caps.TagIndexing = enabled
	}
}

// WithRetry sets the download retry policy: up to maxRetries retries with
// exponential backoff starting at base.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(s *Store) {
		s.backoff = func() retry.Backoff {
			return retry.WithMaxRetries(maxRetries, retry.NewExponential(base))
		}
	}
}

// New creates a store over bucket. The schema must be blob-shaped.
func New(bucket Bucket, schema *entity.Schema, opts ...Option) (*Store, error) {
	if schema.Shape != entity.ShapeBlob {
		return nil, fmt.Errorf("objectstore: schema %s has shape %s, want %s", schema.Name, schema.Shape, entity.ShapeBlob)
	}
	s := &Store{bucket: bucket, schema: schema, caps: store.Capabilities{TagIndexing: true}}
	WithRetry(3, 100*time.Millisecond)(s)
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
	body, err := entity.EncodeBody(e)
	if err != nil {
		return err
	}
	obj := Object{Key: e.Locator.Name, ETag: e.ETag}
	if s.caps.TagIndexing && len(e.Tags) > 0 {
		obj.Tags = map[string]string(e.Tags)
	}
	return s.bucket.Put(ctx, obj, body)
}

// Download implements store.Store.
func (s *Store) Download(ctx context.Context, loc entity.Locator) (*entity.Entity, error) {
	var body []byte
	var obj Object
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		var err error
		body, obj, err = s.bucket.Get(ctx, loc.Name)
		if errors.Is(err, errTransient) {
			slog.Warn("retrying download", "locator", loc.String(), "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", loc, err)
	}
	return entity.DecodeBody(s.schema, loc, obj.ETag, body)
}

// Delete implements store.Store. The ETag check and the removal are two
// requests; a concurrent writer between them is not detected.
func (s *Store) Delete(ctx context.Context, loc entity.Locator, etag string) error {
	if err := s.check(ctx, loc, etag); err != nil {
		return err
	}
	if err := s.bucket.Remove(ctx, []string{loc.Name}); err != nil {
		return fmt.Errorf("delete %s: %w", loc, err)
	}
	return nil
}

// SubmitBatch implements store.Store. Every action is checked before any
// object is removed, and all removals go out in one multi-object delete.
func (s *Store) SubmitBatch(ctx context.Context, batch store.Batch) (int, error) {
	keys := make([]string, 0, len(batch.Actions))
	for _, a := range batch.Actions {
		if a.Kind != store.ActionDelete {
			return 0, fmt.Errorf("batch %s: unsupported action %q", batch.ID, a.Kind)
		}
		if err := s.check(ctx, a.Locator, a.ETag); err != nil {
			return 0, fmt.Errorf("batch %s: %w", batch.ID, err)
		}
		keys = append(keys, a.Locator.Name)
	}
	if err := s.bucket.Remove(ctx, keys); err != nil {
		return 0, fmt.Errorf("batch %s: %w", batch.ID, err)
	}
	slog.Debug("objectstore batch committed", "batch", batch.ID, "actions", len(keys))
	return len(keys), nil
}

// check verifies that loc exists and, when etag is set, carries it.
func (s *Store) check(ctx context.Context, loc entity.Locator, etag string) error {
	obj, err := s.bucket.Stat(ctx, loc.Name)
	if err != nil {
		return fmt.Errorf("delete %s: %w", loc, err)
	}
	if etag != "" && obj.ETag != etag {
		return fmt.Errorf("delete %s: %w", loc, store.ErrETagMismatch)
	}
	return nil
}

// ListAll implements store.Store.
func (s *Store) ListAll(ctx context.Context) iter.Seq2[store.Candidate, error] {
	return s.list(ctx, false, nil)
}

// ListMetadataOnly implements store.Store.
func (s *Store) ListMetadataOnly(ctx context.Context) iter.Seq2[store.Candidate, error] {
	if !s.caps.TagIndexing {
		return store.Fail(store.ErrTagIndexingDisabled)
	}
	return s.list(ctx, true, nil)
}

// ListByTagFilter implements store.Store by evaluating the filter over the
// tag listing.
func (s *Store) ListByTagFilter(ctx context.Context, filter *queryir.Filter) iter.Seq2[store.Candidate, error] {
	if !s.caps.TagIndexing {
		return store.Fail(store.ErrTagIndexingDisabled)
	}
	return s.list(ctx, true, func(ctx context.Context, c store.Candidate) (bool, error) {
		return store.MatchTags(filter, c.Tags)
	})
}

// ListByNativeFilter implements store.Store. Filters on Name are decided
// from the listing; others download each body.
func (s *Store) ListByNativeFilter(ctx context.Context, filter *queryir.Filter) iter.Seq2[store.Candidate, error] {
	keyOnly := store.KeyOnly(filter, s.schema)
	return s.list(ctx, false, func(ctx context.Context, c store.Candidate) (bool, error) {
		if keyOnly {
			return store.MatchLocator(filter, c.Locator)
		}
		e, err := c.Download.Get(ctx)
		if err != nil {
			return false, err
		}
		return store.MatchNative(filter, e)
	})
}

func (s *Store) list(ctx context.Context, withTags bool, match func(context.Context, store.Candidate) (bool, error)) iter.Seq2[store.Candidate, error] {
	return func(yield func(store.Candidate, error) bool) {
		for obj, err := range s.bucket.List(ctx, withTags) {
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				yield(store.Candidate{}, err)
				return
			}
			c := s.candidate(obj)
			if match != nil {
				ok, err := match(ctx, c)
				if err != nil {
					yield(store.Candidate{}, err)
					return
				}
				if !ok {
					continue
				}
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (s *Store) candidate(obj Object) store.Candidate {
	loc := entity.BlobLocator(obj.Key)
	c := store.Candidate{
		Locator: loc,
		ETag:    obj.ETag,
		Download: store.NewLazyDownload(func(ctx context.Context) (*entity.Entity, error) {
			return s.Download(ctx, loc)
		}),
	}
	if obj.Tags != nil {
		c.Tags = entity.Tags(obj.Tags)
	}
	return c
}
