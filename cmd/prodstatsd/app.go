package main

import (
	"github.com/xtxerr/prodstats/internal/cache"
	"github.com/xtxerr/prodstats/internal/config"
	"github.com/xtxerr/prodstats/internal/dataset"
	"github.com/xtxerr/prodstats/internal/stats"
	"github.com/xtxerr/prodstats/internal/store"
	"github.com/xtxerr/prodstats/internal/telemetry"
	"github.com/xtxerr/prodstats/internal/validation"
)

// app is the wired component graph shared by every command.
type app struct {
	store  *store.Store
	cache  *cache.Controller
	engine *stats.Engine
}

func newApp(c *config.Config) *app {
	metrics := telemetry.Default()

	acq := dataset.New(dataset.Config{
		RemoteURL:      c.Dataset.RemoteURL,
		CachePath:      c.Dataset.CachePath(),
		FallbackPath:   c.Dataset.FallbackPath,
		PreferInMemory: c.Dataset.PreferInMemory,
		FetchTimeout:   c.Dataset.FetchTimeout,
	})

	st := store.New(store.Options{
		MaxRejectRate:  c.Quality.MaxRejectRate,
		SketchAccuracy: c.Query.SketchAccuracy,
		Threads:        c.Query.DuckDBThreads,
	})

	validator := validation.NewValidator(validation.Rules{
		MinRows:          c.Quality.MinRows,
		PriceMissingWarn: c.Quality.PriceMissingWarn,
		NullRatingWarn:   c.Quality.NullRatingWarn,
		SketchAccuracy:   c.Query.SketchAccuracy,
	})

	ctrl := cache.New(cache.Config{
		Acquirer:     acq,
		Store:        st,
		Validator:    validator,
		SnapshotPath: c.Dataset.SnapshotPath(),
		Metrics:      metrics,
	})

	engine := stats.NewEngine(st, stats.Options{
		Workers:         c.Query.QueryWorkers(),
		MinCategorySize: c.Query.MinCategorySize,
	}, metrics)

	return &app{store: st, cache: ctrl, engine: engine}
}

func (a *app) Close() error {
	return a.cache.Close()
}
