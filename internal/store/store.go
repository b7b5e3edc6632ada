// Package store holds the loaded product dataset in an in-memory DuckDB.
//
// Each load produces a new generation: a fresh database built off to the
// side and then published by swapping an atomic pointer. Readers go
// through View, which pins the current handle; a replaced handle is closed
// only once its readers have released it.
package store

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	defaults "github.com/xtxerr/prodstats/config"
	"github.com/xtxerr/prodstats/internal/dataset"
	perrors "github.com/xtxerr/prodstats/internal/errors"
	"github.com/xtxerr/prodstats/internal/logging"
	"github.com/xtxerr/prodstats/internal/profile"
)

// Options configures the Store.
type Options struct {
	// MaxRejectRate is the largest tolerated fraction of rows failing
	// coercion.
	MaxRejectRate float64

	// SketchAccuracy is the relative accuracy of the rating sketch.
	SketchAccuracy float64

	// Threads limits DuckDB worker threads. Zero keeps DuckDB's default.
	Threads int
}

// DefaultOptions returns default store options.
func DefaultOptions() Options {
	return Options{
		MaxRejectRate:  defaults.DefaultMaxRejectRate,
		SketchAccuracy: defaults.DefaultSketchAccuracy,
	}
}

// Handle is one loaded generation.
type Handle struct {
	mu     sync.RWMutex
	closed bool

	db         *sql.DB
	generation uint64
	rows       int64
	rejected   int64
	ratings    *profile.Numeric
	loadedAt   time.Time
}

// DB returns the generation's database. Only valid inside View.
func (h *Handle) DB() *sql.DB { return h.db }

// Generation returns the generation number, starting at 1.
func (h *Handle) Generation() uint64 { return h.generation }

// Rows returns the number of loaded products.
func (h *Handle) Rows() int64 { return h.rows }

// Rejected returns the number of rows excluded during coercion.
func (h *Handle) Rejected() int64 { return h.rejected }

// Ratings returns the rating profile of the generation.
func (h *Handle) Ratings() profile.NumericSummary { return h.ratings.Summary() }

// LoadedAt returns when the generation finished building.
func (h *Handle) LoadedAt() time.Time { return h.loadedAt }

// Close closes the handle once in-flight readers are done.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.db.Close()
}

// LoadResult describes a completed load.
type LoadResult struct {
	Generation uint64
	Rows       int64
	Rejected   int64
	Duration   time.Duration
}

// Store owns the current generation.
type Store struct {
	opts Options
	log  *slog.Logger

	current atomic.Pointer[Handle]
	gen     atomic.Uint64
	retired sync.WaitGroup
}

// New creates an empty Store.
func New(opts Options) *Store {
	if opts.MaxRejectRate < 0 {
		opts.MaxRejectRate = 0
	}
	return &Store{
		opts: opts,
		log:  logging.Component("store"),
	}
}

// Coerce converts t to products with the store's reject ceiling and logs
// rejections in aggregate.
func (s *Store) Coerce(t *dataset.Table) (*Coerced, error) {
	c, err := Coerce(t, s.opts.MaxRejectRate)
	if c != nil && c.Rejected > 0 {
		s.log.Warn("rows rejected during coercion",
			"rejected", c.Rejected,
			"total", c.Total,
			"reasons", c.Reasons,
			"samples", c.Samples)
	}
	return c, err
}

// Load coerces t, builds a new generation from it and publishes it.
func (s *Store) Load(ctx context.Context, t *dataset.Table) (*LoadResult, error) {
	start := time.Now()

	c, err := s.Coerce(t)
	if err != nil {
		return nil, err
	}

	res, err := s.LoadProducts(ctx, c.Products, c.Rejected)
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

// LoadProducts builds and publishes a generation from coerced products.
func (s *Store) LoadProducts(ctx context.Context, products []Product, rejected int64) (*LoadResult, error) {
	start := time.Now()

	h, err := s.Build(ctx, products, rejected)
	if err != nil {
		return nil, err
	}
	s.Swap(h)

	return &LoadResult{
		Generation: h.generation,
		Rows:       h.rows,
		Rejected:   h.rejected,
		Duration:   time.Since(start),
	}, nil
}

// Swap publishes h as the current generation and retires the previous one.
func (s *Store) Swap(h *Handle) {
	h.generation = s.gen.Add(1)
	old := s.current.Swap(h)
	s.log.Info("generation published", "generation", h.generation, "rows", h.rows)
	s.retire(old)
}

// Discard drops the current generation. The store is not loaded afterwards.
func (s *Store) Discard() {
	s.retire(s.current.Swap(nil))
}

// retire closes h in the background once readers release it.
func (s *Store) retire(h *Handle) {
	if h == nil {
		return
	}
	s.retired.Add(1)
	go func() {
		defer s.retired.Done()
		if err := h.Close(); err != nil {
			s.log.Warn("closing retired generation", "generation", h.generation, "error", err)
		}
	}()
}

// View runs fn against the current generation while holding it open.
func (s *Store) View(fn func(h *Handle) error) error {
	for {
		h := s.current.Load()
		if h == nil {
			return perrors.ErrStoreNotLoaded
		}

		h.mu.RLock()
		if h.closed {
			// replaced and retired between Load and RLock
			h.mu.RUnlock()
			continue
		}
		err := fn(h)
		h.mu.RUnlock()
		return err
	}
}

// IsLoaded reports whether a generation is published.
func (s *Store) IsLoaded() bool {
	return s.current.Load() != nil
}

// RowCount returns the current generation's row count, or 0.
func (s *Store) RowCount() int64 {
	if h := s.current.Load(); h != nil {
		return h.rows
	}
	return 0
}

// Rejected returns the current generation's rejected-row count, or 0.
func (s *Store) Rejected() int64 {
	if h := s.current.Load(); h != nil {
		return h.rejected
	}
	return 0
}

// Generation returns the current generation number, or 0.
func (s *Store) Generation() uint64 {
	if h := s.current.Load(); h != nil {
		return h.generation
	}
	return 0
}

// Close discards the current generation and waits for retired ones.
func (s *Store) Close() error {
	s.Discard()
	s.retired.Wait()
	return nil
}
