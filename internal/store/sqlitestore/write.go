package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/store"
)

// Put implements store.Store. The entity and its tags are replaced in one
// transaction.
func (s *Store) Put(ctx context.Context, e *entity.Entity) error {
	body, err := entity.EncodeBody(e)
	if err != nil {
		return err
	}
	id := e.Locator.String()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entities (id, pk, rk, name, body, etag) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET pk = excluded.pk, rk = excluded.rk,
				name = excluded.name, body = excluded.body, etag = excluded.etag`,
			id, e.Locator.PartitionKey, e.Locator.RowKey, e.Locator.Name, string(body), e.ETag)
		if err != nil {
			return fmt.Errorf("put %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entity_tags WHERE entity_id = ?`, id); err != nil {
			return fmt.Errorf("put %s: clear tags: %w", id, err)
		}
		if !s.caps.TagIndexing {
			return nil
		}
		for tag, value := range e.Tags {
			_, err := tx.ExecContext(ctx, `INSERT INTO entity_tags (entity_id, tag, value) VALUES (?, ?, ?)`, id, tag, value)
			if err != nil {
				return fmt.Errorf("put %s tag %q: %w", id, tag, err)
			}
		}
		return nil
	})
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, loc entity.Locator, etag string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteOne(ctx, tx, loc, etag)
	})
}

// SubmitBatch implements store.Store. All actions run in one SQL
// transaction; any failure rolls back the whole batch.
func (s *Store) SubmitBatch(ctx context.Context, batch store.Batch) (int, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, a := range batch.Actions {
			if a.Kind != store.ActionDelete {
				return fmt.Errorf("unsupported action %q", a.Kind)
			}
			if err := deleteOne(ctx, tx, a.Locator, a.ETag); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("batch %s: %w", batch.ID, err)
	}
	slog.Debug("sqlitestore batch committed", "batch", batch.ID, "actions", len(batch.Actions))
	return len(batch.Actions), nil
}

// deleteOne removes one entity inside tx. Tag rows cascade.
func deleteOne(ctx context.Context, tx *sql.Tx, loc entity.Locator, etag string) error {
	id := loc.String()
	var current string
	err := tx.QueryRowContext(ctx, `SELECT etag FROM entities WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("delete %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if etag != "" && current != etag {
		return fmt.Errorf("delete %s: %w", id, store.ErrETagMismatch)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}
