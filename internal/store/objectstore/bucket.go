package objectstore

import (
	"context"
	"errors"
	"iter"
)

// errTransient marks bucket errors worth retrying.
var errTransient = errors.New("transient object store error")

// Object is the listing view of one stored object.
type Object struct {
	Key string

	// ETag is the entity ETag recorded in object metadata, not the
	// storage-level ETag.
	ETag string

	// Tags holds the object tags; nil when not requested.
	Tags map[string]string
}

// Bucket is the object storage surface used by Store. Missing objects are
// reported with store.ErrNotFound; errors wrapping errTransient are retried.
type Bucket interface {
	// List enumerates objects in key order, with tags when withTags is set.
	List(ctx context.Context, withTags bool) iter.Seq2[Object, error]

	// Get returns an object's body and metadata.
	Get(ctx context.Context, key string) ([]byte, Object, error)

	// Stat returns an object's metadata.
	Stat(ctx context.Context, key string) (Object, error)

	// Put writes an object with its tags and entity ETag.
	Put(ctx context.Context, obj Object, body []byte) error

	// Remove deletes the given objects.
	Remove(ctx context.Context, keys []string) error
}
