// Package store defines the storage collaborator the query layer runs
// against: listing (all, by native filter, by tag filter, tag metadata
// only), lazy per-entity downloads, conditional deletes and atomic batches.
//
// Implementations live in sub-packages:
//   - memstore: in-memory, go-memdb backed, with a tag index
//   - sqlitestore: SQLite backed, filters compiled to SQL
//   - objectstore: S3-compatible object storage (minio), object tags
//   - cachestore: wraps any Store with a redis download cache
//
// # Sequences
//
// Listings are pull-based iter.Seq2[Candidate, error] sequences. A store
// performs I/O only while the consumer pulls, and releases its resources
// (rows, iterators, channels) as soon as the consumer stops. A failure is
// yielded as the final element; candidates yielded before it remain valid.
// Cancellation of ctx is reported the same way with ctx.Err().
//
// # Candidates
//
// A Candidate carries the locator and a LazyDownload handle that fetches
// the body at most once. Metadata listings also carry the entity's tags.
package store
