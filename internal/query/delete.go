package query

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/entq/internal/metrics"
	"github.com/roach88/entq/internal/store"
)

// Batch modes, used as metric labels.
const (
	modeBatch       = "batch"
	modeTransaction = "transaction"
)

// BatchDelete enumerates the query keys-only and deletes every matching
// entity one by one, conditional on the ETag it was listed with. Entities
// already gone are skipped. It returns the number of entities deleted; on
// error, the entities deleted before the failure stay deleted.
//
// BatchDelete freezes the builder.
func (b *Builder) BatchDelete(ctx context.Context) (int, error) {
	targets, err := b.deleteTargets(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, r := range targets {
		err := b.store.Delete(ctx, r.Locator, r.ETag)
		if errors.Is(err, store.ErrNotFound) {
			slog.Debug("delete target already gone", "locator", r.Locator.String())
			continue
		}
		if err != nil {
			metrics.BatchActionsTotal.WithLabelValues(modeBatch).Add(float64(deleted))
			return deleted, err
		}
		deleted++
	}
	metrics.BatchActionsTotal.WithLabelValues(modeBatch).Add(float64(deleted))
	slog.Info("batch delete", "schema", b.schema.Name, "deleted", deleted)
	return deleted, nil
}

// BatchDeleteTransaction enumerates the query keys-only and submits one
// atomic batch deleting every match. Nothing is submitted when nothing
// matches. It returns the number of actions the store applied.
//
// BatchDeleteTransaction freezes the builder.
func (b *Builder) BatchDeleteTransaction(ctx context.Context) (int, error) {
	targets, err := b.deleteTargets(ctx)
	if err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		return 0, nil
	}

	batch := store.Batch{ID: b.ids.Generate(), Actions: make([]store.Action, 0, len(targets))}
	for _, r := range targets {
		batch.Actions = append(batch.Actions, store.Action{
			Kind:    store.ActionDelete,
			Locator: r.Locator,
			ETag:    r.ETag,
		})
	}

	n, err := b.store.SubmitBatch(ctx, batch)
	if err != nil {
		return 0, err
	}
	metrics.BatchActionsTotal.WithLabelValues(modeTransaction).Add(float64(n))
	slog.Info("batch delete transaction", "schema", b.schema.Name, "batch_id", batch.ID, "deleted", n)
	return n, nil
}

// deleteTargets runs the query to completion before anything is deleted,
// so deletes never race the listing.
func (b *Builder) deleteTargets(ctx context.Context) ([]Result, error) {
	q, err := b.build(true)
	if err != nil {
		return nil, err
	}
	var out []Result
	for r, err := range q.Results(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
