package store

import (
	"context"
	"errors"
	"iter"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/queryir"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrETagMismatch is returned by conditional writes when the stored
	// ETag differs from the expected one.
	ErrETagMismatch = errors.New("etag mismatch")

	// ErrTagIndexingDisabled is returned by tag listings on a store whose
	// tag index is disabled.
	ErrTagIndexingDisabled = errors.New("tag indexing is disabled")
)

// Capabilities describes optional store features.
type Capabilities struct {
	TagIndexing bool
}

// Candidate is one listed entity.
type Candidate struct {
	Locator entity.Locator
	ETag    string

	// Tags is set by ListMetadataOnly and by stores that list tags for
	// free; nil otherwise.
	Tags entity.Tags

	Download *LazyDownload
}

// ActionKind is the kind of a batched action.
type ActionKind string

const (
	ActionDelete ActionKind = "delete"
)

// Action is one entry of a batch. An empty ETag is unconditional.
type Action struct {
	Kind    ActionKind
	Locator entity.Locator
	ETag    string
}

// Batch is a set of actions applied atomically.
type Batch struct {
	ID      string
	Actions []Action
}

// Store is the storage collaborator surface consumed by the query layer.
type Store interface {
	// Capabilities reports optional features.
	Capabilities() Capabilities

	// Schema returns the entity schema served by the store.
	Schema() *entity.Schema

	// ListAll enumerates every entity.
	ListAll(ctx context.Context) iter.Seq2[Candidate, error]

	// ListByNativeFilter enumerates entities matching a native filter
	// (key and filterable-field comparisons).
	ListByNativeFilter(ctx context.Context, filter *queryir.Filter) iter.Seq2[Candidate, error]

	// ListByTagFilter enumerates entities whose tags match a tag filter.
	ListByTagFilter(ctx context.Context, filter *queryir.Filter) iter.Seq2[Candidate, error]

	// ListMetadataOnly enumerates every entity with its tags, without
	// downloading bodies.
	ListMetadataOnly(ctx context.Context) iter.Seq2[Candidate, error]

	// Download materializes one entity. Missing entities are ErrNotFound.
	Download(ctx context.Context, loc entity.Locator) (*entity.Entity, error)

	// Delete removes one entity. A non-empty etag makes the delete
	// conditional (ErrETagMismatch).
	Delete(ctx context.Context, loc entity.Locator, etag string) error

	// SubmitBatch applies all actions atomically and returns the number
	// of actions applied.
	SubmitBatch(ctx context.Context, batch Batch) (int, error)

	// Put inserts or replaces an entity.
	Put(ctx context.Context, e *entity.Entity) error
}

// Fail returns a sequence that yields err once.
func Fail(err error) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		yield(Candidate{}, err)
	}
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Candidate, error]) ([]Candidate, error) {
	var out []Candidate
	for c, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}
