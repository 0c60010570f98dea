package dispatch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/roach88/entq/internal/metrics"
	"github.com/roach88/entq/internal/queryerr"
	"github.com/roach88/entq/internal/queryir"
	"github.com/roach88/entq/internal/store"
)

// Execute runs the plan against s and returns the matching candidates.
// Every yielded candidate satisfies the original predicate. Candidates that
// were materialized for a re-check carry the fetched download, so the body
// is never fetched twice.
//
// Storage errors are yielded in-sequence after any earlier candidates; a
// cancelled ctx ends the sequence with ctx.Err().
func (p *Plan) Execute(ctx context.Context, s store.Store) iter.Seq2[store.Candidate, error] {
	if p.Strategy.RequiresTagIndexing() && !s.Capabilities().TagIndexing {
		return store.Fail(queryerr.New(queryerr.CodeConfigMisuse,
			"strategy %s requires tag indexing, which is disabled on the store", p.Strategy))
	}
	metrics.PlansTotal.WithLabelValues(p.Strategy.String()).Inc()

	switch p.Strategy {
	case FullListing:
		return exact(ctx, s.ListAll(ctx))
	case NativeQuery:
		return exact(ctx, s.ListByNativeFilter(ctx, p.Verdict.Native))
	case TagQuery:
		return exact(ctx, s.ListByTagFilter(ctx, p.Verdict.Tag))
	case TagQueryResidual:
		return p.filter(ctx, s.ListByTagFilter(ctx, p.Verdict.Tag), p.recheck)
	case TagMetadataScan:
		return p.filter(ctx, s.ListMetadataOnly(ctx), p.metadataCheck)
	case FullScanCompiled:
		return p.filter(ctx, s.ListAll(ctx), p.recheck)
	default:
		return store.Fail(fmt.Errorf("unknown strategy %s", p.Strategy))
	}
}

// exact passes through a listing whose every element is a match.
func exact(ctx context.Context, seq iter.Seq2[store.Candidate, error]) iter.Seq2[store.Candidate, error] {
	return func(yield func(store.Candidate, error) bool) {
		for c, err := range seq {
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				yield(store.Candidate{}, err)
				return
			}
			metrics.CandidatesTotal.WithLabelValues(metrics.OutcomeScanned).Inc()
			metrics.CandidatesTotal.WithLabelValues(metrics.OutcomeMatched).Inc()
			if !yield(c, nil) {
				return
			}
		}
	}
}

type checkFunc func(ctx context.Context, c store.Candidate) (bool, error)

// filter yields the candidates of seq accepted by check.
func (p *Plan) filter(ctx context.Context, seq iter.Seq2[store.Candidate, error], check checkFunc) iter.Seq2[store.Candidate, error] {
	return func(yield func(store.Candidate, error) bool) {
		for c, err := range seq {
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				yield(store.Candidate{}, err)
				return
			}
			metrics.CandidatesTotal.WithLabelValues(metrics.OutcomeScanned).Inc()
			ok, err := check(ctx, c)
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				yield(store.Candidate{}, err)
				return
			}
			if !ok {
				metrics.CandidatesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
				continue
			}
			metrics.CandidatesTotal.WithLabelValues(metrics.OutcomeMatched).Inc()
			if !yield(c, nil) {
				return
			}
		}
	}
}

// recheck materializes c and tests it with the original predicate. An
// entity deleted since it was listed does not match.
func (p *Plan) recheck(ctx context.Context, c store.Candidate) (bool, error) {
	if c.Download == nil {
		return false, fmt.Errorf("candidate %s has no download handle", c.Locator)
	}
	fetched := c.Download.Fetched()
	e, err := c.Download.Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		slog.Debug("candidate vanished before re-check", "locator", c.Locator.String())
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !fetched {
		metrics.DownloadsTotal.Inc()
	}
	return p.residual.Invoke(e)
}

// metadataCheck decides c from its tags when it can and re-checks the
// body otherwise.
func (p *Plan) metadataCheck(ctx context.Context, c store.Candidate) (bool, error) {
	t, err := queryir.EvalTri(p.TagPredicate.Body, queryir.Bindings{Tags: c.Tags})
	if err != nil {
		return false, err
	}
	switch {
	case t == queryir.False:
		return false, nil
	case t == queryir.True && p.PureTag:
		return true, nil
	}
	return p.recheck(ctx, c)
}
