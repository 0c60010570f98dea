// Package cachestore wraps a store with a download cache.
//
// Bodies are cached per entity version: the key is derived from the
// locator and the ETag the listing reported, so a cached body is never
// served for a different version. Writes made through the wrapper evict the
// entity. Cache failures are logged and fall back to the wrapped store.
package cachestore

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/metrics"
	"github.com/roach88/entq/internal/queryir"
	"github.com/roach88/entq/internal/store"
)

const keyPrefix = "entq:"

// Store is a store.Store with cached downloads.
type Store struct {
	store.Store
	cache Cache
	ttl   time.Duration
}

var _ store.Store = (*Store)(nil)

// New wraps inner. Cached bodies expire after ttl (0 keeps them until
// evicted).
func New(inner store.Store, cache Cache, ttl time.Duration) *Store {
	return &Store{Store: inner, cache: cache, ttl: ttl}
}

func bodyKey(loc entity.Locator, etag string) string {
	return keyPrefix + "body:" + ir.CacheKey(loc.String(), etag)
}

func versionKey(loc entity.Locator) string {
	return keyPrefix + "version:" + loc.String()
}

// Download implements store.Store. Without a known ETag the wrapped store
// is consulted and the result cached.
func (s *Store) Download(ctx context.Context, loc entity.Locator) (*entity.Entity, error) {
	e, err := s.Store.Download(ctx, loc)
	if err != nil {
		return nil, err
	}
	s.populate(ctx, e)
	return e, nil
}

// download serves one known version from the cache, falling back to the
// wrapped store.
func (s *Store) download(ctx context.Context, loc entity.Locator, etag string) (*entity.Entity, error) {
	body, err := s.cache.Get(ctx, bodyKey(loc, etag))
	switch {
	case err == nil:
		e, derr := entity.DecodeBody(s.Schema(), loc, etag, body)
		if derr == nil {
			metrics.CacheRequestsTotal.WithLabelValues(metrics.CacheHit).Inc()
			return e, nil
		}
		slog.Warn("discarding undecodable cache entry", "locator", loc.String(), "error", derr)
		metrics.CacheRequestsTotal.WithLabelValues(metrics.CacheError).Inc()
	case errors.Is(err, ErrMiss):
		metrics.CacheRequestsTotal.WithLabelValues(metrics.CacheMiss).Inc()
	default:
		slog.Warn("cache lookup failed", "locator", loc.String(), "error", err)
		metrics.CacheRequestsTotal.WithLabelValues(metrics.CacheError).Inc()
	}
	return s.Download(ctx, loc)
}

func (s *Store) populate(ctx context.Context, e *entity.Entity) {
	body, err := entity.EncodeBody(e)
	if err != nil {
		slog.Warn("cache encode failed", "locator", e.Locator.String(), "error", err)
		return
	}
	if err := s.cache.Set(ctx, bodyKey(e.Locator, e.ETag), body, s.ttl); err != nil {
		slog.Warn("cache populate failed", "locator", e.Locator.String(), "error", err)
		return
	}
	if err := s.cache.Set(ctx, versionKey(e.Locator), []byte(e.ETag), s.ttl); err != nil {
		slog.Warn("cache populate failed", "locator", e.Locator.String(), "error", err)
	}
}

// evict drops the cached version of loc.
func (s *Store) evict(ctx context.Context, loc entity.Locator) {
	keys := []string{versionKey(loc)}
	if etag, err := s.cache.Get(ctx, versionKey(loc)); err == nil {
		keys = append(keys, bodyKey(loc, string(etag)))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		slog.Warn("cache evict failed", "locator", loc.String(), "error", err)
	}
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, e *entity.Entity) error {
	if err := s.Store.Put(ctx, e); err != nil {
		return err
	}
	s.evict(ctx, e.Locator)
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, loc entity.Locator, etag string) error {
	if err := s.Store.Delete(ctx, loc, etag); err != nil {
		return err
	}
	s.evict(ctx, loc)
	return nil
}

// SubmitBatch implements store.Store.
func (s *Store) SubmitBatch(ctx context.Context, batch store.Batch) (int, error) {
	n, err := s.Store.SubmitBatch(ctx, batch)
	if err != nil {
		return n, err
	}
	for _, a := range batch.Actions {
		s.evict(ctx, a.Locator)
	}
	return n, nil
}

// ListAll implements store.Store.
func (s *Store) ListAll(ctx context.Context) iter.Seq2[store.Candidate, error] {
	return s.cached(s.Store.ListAll(ctx))
}

// ListMetadataOnly implements store.Store.
func (s *Store) ListMetadataOnly(ctx context.Context) iter.Seq2[store.Candidate, error] {
	return s.cached(s.Store.ListMetadataOnly(ctx))
}

// ListByNativeFilter implements store.Store.
func (s *Store) ListByNativeFilter(ctx context.Context, filter *queryir.Filter) iter.Seq2[store.Candidate, error] {
	return s.cached(s.Store.ListByNativeFilter(ctx, filter))
}

// ListByTagFilter implements store.Store.
func (s *Store) ListByTagFilter(ctx context.Context, filter *queryir.Filter) iter.Seq2[store.Candidate, error] {
	return s.cached(s.Store.ListByTagFilter(ctx, filter))
}

// cached routes each candidate's download through the cache. Candidates
// whose download already ran keep their handle.
func (s *Store) cached(seq iter.Seq2[store.Candidate, error]) iter.Seq2[store.Candidate, error] {
	return func(yield func(store.Candidate, error) bool) {
		for c, err := range seq {
			if err == nil && c.ETag != "" && (c.Download == nil || !c.Download.Fetched()) {
				loc, etag := c.Locator, c.ETag
				c.Download = store.NewLazyDownload(func(ctx context.Context) (*entity.Entity, error) {
					return s.download(ctx, loc, etag)
				})
			}
			if !yield(c, err) {
				return
			}
		}
	}
}
