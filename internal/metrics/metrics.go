// Package metrics holds the prometheus collectors of the query layer.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Candidate outcomes.
const (
	OutcomeScanned  = "scanned"
	OutcomeMatched  = "matched"
	OutcomeRejected = "rejected"
)

// Cache results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	// PlansTotal counts executed plans by strategy.
	PlansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entq_query_plans_total",
			Help: "Total number of executed query plans",
		},
		[]string{"strategy"},
	)
	// CandidatesTotal counts listed candidates by outcome.
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entq_candidates_total",
			Help: "Total number of listed candidates by outcome",
		},
		[]string{"outcome"},
	)
	// DownloadsTotal counts entity bodies materialized by plans.
	DownloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entq_downloads_total",
		Help: "Total number of entity bodies materialized during query execution",
	})
	// CompilationsTotal counts predicate compilations.
	CompilationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entq_predicate_compilations_total",
		Help: "Total number of predicate compilations",
	})
	// CacheRequestsTotal counts download cache lookups by result.
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entq_cache_requests_total",
			Help: "Total number of download cache lookups",
		},
		[]string{"result"},
	)
	// BatchActionsTotal counts deleted entities by mode (batch, transaction).
	BatchActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entq_batch_actions_total",
			Help: "Total number of entities deleted by batch operations",
		},
		[]string{"mode"},
	)
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
