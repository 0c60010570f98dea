package testutil

import (
	"context"
	"iter"
	"sync"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/queryir"
	"github.com/roach88/entq/internal/store"
)

// Counts is a snapshot of the calls observed by an Instrumented store.
type Counts struct {
	ListAll      int
	Native       int
	Tag          int
	Metadata     int
	Pulled       int // candidates handed to the consumer
	Downloads    int // body fetches through candidate handles or Download
	Deletes      int
	Batches      int
	NativeFilter string // last native filter text
	TagFilter    string // last tag filter text
}

// Instrumented wraps a store and records how the query layer used it.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Instrumented struct {
	store.Store

	mu     sync.Mutex
	counts Counts
}

// Instrument wraps s.
func Instrument(s store.Store) *Instrumented {
	return &Instrumented{Store: s}
}

// Counts returns a snapshot of the recorded calls.
func (i *Instrumented) Counts() Counts {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.counts
}

// Reset clears the recorded calls.
func (i *Instrumented) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.counts = Counts{}
}

func (i *Instrumented) record(fn func(*Counts)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	fn(&i.counts)
}

func (i *Instrumented) ListAll(ctx context.Context) iter.Seq2[store.Candidate, error] {
	i.record(func(c *Counts) { c.ListAll++ })
	return i.wrap(i.Store.ListAll(ctx))
}

func (i *Instrumented) ListByNativeFilter(ctx context.Context, filter *queryir.Filter) iter.Seq2[store.Candidate, error] {
	i.record(func(c *Counts) {
		c.Native++
		c.NativeFilter = filter.Text
	})
	return i.wrap(i.Store.ListByNativeFilter(ctx, filter))
}

func (i *Instrumented) ListByTagFilter(ctx context.Context, filter *queryir.Filter) iter.Seq2[store.Candidate, error] {
	i.record(func(c *Counts) {
		c.Tag++
		c.TagFilter = filter.Text
	})
	return i.wrap(i.Store.ListByTagFilter(ctx, filter))
}

func (i *Instrumented) ListMetadataOnly(ctx context.Context) iter.Seq2[store.Candidate, error] {
	i.record(func(c *Counts) { c.Metadata++ })
	return i.wrap(i.Store.ListMetadataOnly(ctx))
}

func (i *Instrumented) Download(ctx context.Context, loc entity.Locator) (*entity.Entity, error) {
	i.record(func(c *Counts) { c.Downloads++ })
	return i.Store.Download(ctx, loc)
}

func (i *Instrumented) Delete(ctx context.Context, loc entity.Locator, etag string) error {
	i.record(func(c *Counts) { c.Deletes++ })
	return i.Store.Delete(ctx, loc, etag)
}

func (i *Instrumented) SubmitBatch(ctx context.Context, batch store.Batch) (int, error) {
	i.record(func(c *Counts) { c.Batches++ })
	return i.Store.SubmitBatch(ctx, batch)
}

// wrap counts pulled candidates and replaces each download handle with
// one that counts fetches. Handles that are already resolved are kept.
func (i *Instrumented) wrap(seq iter.Seq2[store.Candidate, error]) iter.Seq2[store.Candidate, error] {
	return func(yield func(store.Candidate, error) bool) {
		for c, err := range seq {
			if err == nil {
				i.record(func(c *Counts) { c.Pulled++ })
				if c.Download != nil && !c.Download.Fetched() {
					inner := c.Download
					c.Download = store.NewLazyDownload(func(ctx context.Context) (*entity.Entity, error) {
						i.record(func(c *Counts) { c.Downloads++ })
						return inner.Get(ctx)
					})
				}
			}
			if !yield(c, err) {
				return
			}
		}
	}
}
