package query

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/roach88/entq/internal/dispatch"
	"github.com/roach88/entq/internal/entity"
	"github.com/roach88/entq/internal/ir"
	"github.com/roach88/entq/internal/queryerr"
	"github.com/roach88/entq/internal/queryir"
	"github.com/roach88/entq/internal/store"
)

// Result is one query result.
type Result struct {
	Locator entity.Locator
	ETag    string

	// Entity is the materialized entity; nil for key-only enumeration.
	Entity *entity.Entity

	// Values holds one value per projection expression; nil without Select.
	Values []ir.IRValue
}

// Query is a built, immutable query.
type Query struct {
	store    store.Store
	plan     *dispatch.Plan
	proj     *queryir.Projection
	take     int
	keysOnly bool

	consumed atomic.Bool
}

// Plan returns the execution plan.
func (q *Query) Plan() *dispatch.Plan {
	return q.plan
}

// Results enumerates the query. The sequence may be ranged over once; a
// second enumeration yields a single ALREADY_CONSUMED error.
//
// Enumeration stops after Take results without pulling another candidate
// from the store. A cancelled ctx ends the sequence with ctx.Err().
// Storage errors are yielded after the results that preceded them.
func (q *Query) Results(ctx context.Context) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		if !q.consumed.CompareAndSwap(false, true) {
			yield(Result{}, queryerr.New(queryerr.CodeAlreadyConsumed,
				"query results were already enumerated; build a new query"))
			return
		}

		n := 0
		for c, err := range q.plan.Execute(ctx, q.store) {
			if err != nil {
				yield(Result{}, err)
				return
			}
			r, err := q.result(ctx, c)
			if errors.Is(err, store.ErrNotFound) {
				slog.Debug("result vanished before download", "locator", c.Locator.String())
				continue
			}
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				yield(Result{}, err)
				return
			}
			if !yield(r, nil) {
				return
			}
			n++
			if q.take > 0 && n >= q.take {
				return
			}
		}
	}
}

func (q *Query) result(ctx context.Context, c store.Candidate) (Result, error) {
	r := Result{Locator: c.Locator, ETag: c.ETag}
	if q.keysOnly {
		return r, nil
	}
	if c.Download == nil {
		return r, fmt.Errorf("candidate %s has no download handle", c.Locator)
	}
	e, err := c.Download.Get(ctx)
	if err != nil {
		return r, err
	}
	r.Entity = e
	if r.ETag == "" {
		r.ETag = e.ETag
	}
	if q.proj != nil {
		r.Values, err = queryir.Project(q.proj, e)
		if err != nil {
			return r, fmt.Errorf("project %s: %w", c.Locator, err)
		}
	}
	return r, nil
}

// Explain renders the plan followed by the projection and result bound.
func (q *Query) Explain() string {
	var sb strings.Builder
	sb.WriteString(q.plan.Explain())
	switch {
	case q.keysOnly:
		sb.WriteString("projection: <keys>\n")
	case q.proj != nil:
		fmt.Fprintf(&sb, "projection: %s\n", renderProjection(q.proj))
	default:
		sb.WriteString("projection: <entity>\n")
	}
	if q.take > 0 {
		fmt.Fprintf(&sb, "take: %d\n", q.take)
	} else {
		sb.WriteString("take: <all>\n")
	}
	return sb.String()
}
