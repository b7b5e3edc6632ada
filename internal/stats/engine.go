// Package stats answers the analytical queries over the loaded products.
//
// Every query runs against one published store generation and on a
// bounded pool. Standard deviations and variances are population values.
package stats

import (
	"context"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	perrors "github.com/xtxerr/prodstats/internal/errors"
	"github.com/xtxerr/prodstats/internal/logging"
	"github.com/xtxerr/prodstats/internal/store"
	"github.com/xtxerr/prodstats/internal/telemetry"
)

// Options configures the Engine.
type Options struct {
	// Workers bounds concurrent queries. Zero means GOMAXPROCS.
	Workers int

	// MinCategorySize excludes smaller categories from outlier and
	// variability results.
	MinCategorySize int
}

// Engine runs statistics queries against a Store.
type Engine struct {
	store   *store.Store
	opts    Options
	sem     *semaphore.Weighted
	metrics *telemetry.Metrics
}

// NewEngine creates an Engine. A nil metrics disables instrumentation.
func NewEngine(s *store.Store, opts Options, metrics *telemetry.Metrics) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.MinCategorySize < 1 {
		opts.MinCategorySize = 1
	}
	return &Engine{
		store:   s,
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(opts.Workers)),
		metrics: metrics,
	}
}

// CategoryStats returns the rating statistics of every category, ordered
// by category name.
func (e *Engine) CategoryStats(ctx context.Context) ([]CategorySummary, error) {
	var out []CategorySummary
	err := e.run(ctx, "category_stats", func(ctx context.Context, h *store.Handle) (err error) {
		out, err = queryCategoryStats(ctx, h.DB())
		return err
	})
	return out, err
}

// ZScoreOutliers returns the categories whose mean rating lies at least
// threshold population standard deviations from the mean of all category
// means, ordered by |z| descending then category.
func (e *Engine) ZScoreOutliers(ctx context.Context, threshold float64) ([]Outlier, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold <= 0 {
		return nil, perrors.NewInvalidParameter("threshold", threshold, "must be a positive finite number")
	}

	var out []Outlier
	err := e.run(ctx, "z_score_outliers", func(ctx context.Context, h *store.Handle) error {
		cats, err := queryCategoryStats(ctx, h.DB())
		if err != nil {
			return err
		}
		out = zScoreOutliers(cats, threshold, e.opts.MinCategorySize)
		return nil
	})
	return out, err
}

// HighVariability returns up to limit categories by rating std, highest
// first. It is the exact reverse of LowVariability(Unlimited).
func (e *Engine) HighVariability(ctx context.Context, limit int) ([]Variability, error) {
	return e.variability(ctx, "high_variability", limit, true)
}

// LowVariability returns up to limit categories by rating std, lowest
// first, ties by category.
func (e *Engine) LowVariability(ctx context.Context, limit int) ([]Variability, error) {
	return e.variability(ctx, "low_variability", limit, false)
}

func (e *Engine) variability(ctx context.Context, name string, limit int, high bool) ([]Variability, error) {
	if limit < 1 {
		return nil, perrors.NewInvalidParameter("limit", limit, "must be at least 1")
	}

	var out []Variability
	err := e.run(ctx, name, func(ctx context.Context, h *store.Handle) error {
		cats, err := queryCategoryStats(ctx, h.DB())
		if err != nil {
			return err
		}
		out = lowVariability(cats, e.opts.MinCategorySize)
		if high {
			reverse(out)
		}
		out = truncate(out, limit)
		return nil
	})
	return out, err
}

// GlobalStats returns dataset-wide statistics.
func (e *Engine) GlobalStats(ctx context.Context) (GlobalStats, error) {
	var out GlobalStats
	err := e.run(ctx, "global_stats", func(ctx context.Context, h *store.Handle) (err error) {
		out, err = globalStats(ctx, h)
		return err
	})
	return out, err
}

// CategoryDistribution returns the product count and share per category,
// ordered by count descending then category.
func (e *Engine) CategoryDistribution(ctx context.Context) ([]DistributionEntry, error) {
	var out []DistributionEntry
	err := e.run(ctx, "category_distribution", func(ctx context.Context, h *store.Handle) (err error) {
		out, err = queryDistribution(ctx, h.DB())
		return err
	})
	return out, err
}

// Summary runs GlobalStats, CategoryStats and CategoryDistribution
// concurrently against the same generation. It occupies one pool slot.
func (e *Engine) Summary(ctx context.Context) (*Summary, error) {
	out := &Summary{}

	err := e.run(ctx, "summary", func(ctx context.Context, h *store.Handle) error {
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() (err error) {
			out.Global, err = globalStats(gctx, h)
			return err
		})
		g.Go(func() (err error) {
			out.Categories, err = queryCategoryStats(gctx, h.DB())
			return err
		})
		g.Go(func() (err error) {
			out.Distribution, err = queryDistribution(gctx, h.DB())
			return err
		})

		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func globalStats(ctx context.Context, h *store.Handle) (GlobalStats, error) {
	g, err := queryGlobalStats(ctx, h.DB())
	if err != nil {
		return g, err
	}
	r := h.Ratings()
	g.P25, g.P50, g.P75, g.P90 = r.P25, r.P50, r.P75, r.P90
	g.Rejected = h.Rejected()
	g.Generation = h.Generation()
	return g, nil
}

// run executes fn on a pool slot against the current generation. The slot
// is always taken before the generation is pinned.
func (e *Engine) run(ctx context.Context, name string, fn func(ctx context.Context, h *store.Handle) error) (err error) {
	start := time.Now()
	defer func() {
		e.metrics.Query(ctx, name, start, err)
	}()

	return e.slot(ctx, func() error {
		return e.store.View(func(h *store.Handle) error {
			qctx := logging.ContextWithGeneration(ctx, h.Generation())
			if err := fn(qctx, h); err != nil {
				logging.WithContext(qctx).Warn("query failed", "component", "stats", "query", name, "error", err)
				return err
			}
			return nil
		})
	})
}

// slot runs fn while holding one pool slot.
func (e *Engine) slot(ctx context.Context, fn func() error) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)
	return fn()
}
