package store

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/entq/internal/entity"
)

// DownloadFunc fetches one entity body.
type DownloadFunc func(ctx context.Context) (*entity.Entity, error)

// LazyDownload fetches an entity on first Get and memoizes the outcome,
// so repeated Gets return the same entity without re-fetching.
// Cancellation errors are not memoized; a later Get with a live context
// retries.
type LazyDownload struct {
	mu      sync.Mutex
	fetch   DownloadFunc
	done    bool
	fetches int
	ent     *entity.Entity
	err     error
}

// NewLazyDownload wraps fetch.
func NewLazyDownload(fetch DownloadFunc) *LazyDownload {
	return &LazyDownload{fetch: fetch}
}

// Resolved returns a handle that already holds e.
func Resolved(e *entity.Entity) *LazyDownload {
	return &LazyDownload{done: true, ent: e}
}

// Get returns the entity, fetching it on first use.
func (d *LazyDownload) Get(ctx context.Context) (*entity.Entity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return d.ent, d.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.fetches++
	ent, err := d.fetch(ctx)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}
	d.ent, d.err, d.done = ent, err, true
	return ent, err
}

// Fetched reports whether the entity has been materialized (or failed
// permanently).
func (d *LazyDownload) Fetched() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Fetches returns how many times the underlying fetch ran.
func (d *LazyDownload) Fetches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetches
}
