// Package cache owns the dataset lifecycle: acquiring, validating and
// loading the products into the store, and clearing them again.
//
// Concurrent callers share one load attempt, and attempts never overlap. A
// Clear issued while a load is in flight wins: the late result is discarded,
// nothing it fetched is left on disk, and its waiters get ErrLoadSuperseded.
package cache

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/prodstats/internal/dataset"
	perrors "github.com/xtxerr/prodstats/internal/errors"
	"github.com/xtxerr/prodstats/internal/logging"
	"github.com/xtxerr/prodstats/internal/store"
	"github.com/xtxerr/prodstats/internal/store/snapshot"
	"github.com/xtxerr/prodstats/internal/telemetry"
	"github.com/xtxerr/prodstats/internal/validation"
)

const loadKey = "load"

// Config wires the Controller's collaborators.
type Config struct {
	Acquirer  *dataset.Acquirer
	Store     *store.Store
	Validator *validation.Validator

	// SnapshotPath enables Parquet snapshots when non-empty.
	SnapshotPath string

	// Metrics is optional.
	Metrics *telemetry.Metrics
}

// Controller drives the dataset state machine.
type Controller struct {
	acq       *dataset.Acquirer
	store     *store.Store
	validator *validation.Validator
	snapPath  string
	metrics   *telemetry.Metrics
	log       *slog.Logger

	group singleflight.Group

	// acquiring serializes attempts. An attempt started after a Clear waits
	// here for the superseded one.
	acquiring sync.Mutex

	// files is held while the cache file or snapshot is written or removed.
	files sync.Mutex

	mu           sync.Mutex
	state        State
	epoch        uint64
	lastErr      error
	lastLoad     time.Time
	lastDuration time.Duration
	origin       string
	inMemory     bool
	warnings     []string
	profile      *validation.Report
}

// New creates a Controller in state Empty.
func New(cfg Config) *Controller {
	return &Controller{
		acq:       cfg.Acquirer,
		store:     cfg.Store,
		validator: cfg.Validator,
		snapPath:  cfg.SnapshotPath,
		metrics:   cfg.Metrics,
		log:       logging.Component("cache"),
	}
}

// Store returns the controlled store.
func (c *Controller) Store() *store.Store {
	return c.store
}

// EnsureReady returns once the dataset is loaded. If it is not, it starts
// or joins the shared load attempt. Cancelling ctx stops waiting but does
// not cancel the attempt.
//
// A published generation counts as ready, also while a Reload is running.
func (c *Controller) EnsureReady(ctx context.Context) error {
	if c.store.IsLoaded() {
		return nil
	}
	return c.load(ctx)
}

// Reload loads the dataset again even when it is ready. The current
// generation keeps serving until the new one is published.
func (c *Controller) Reload(ctx context.Context) error {
	return c.load(ctx)
}

func (c *Controller) load(ctx context.Context) error {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(loadKey, func() (any, error) {
		return nil, c.attempt(detached)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loaded is a built but unpublished generation.
type loaded struct {
	src      *dataset.Source
	handle   *store.Handle
	origin   string
	inMemory bool
	report   *validation.Report
	products []store.Product
	rejected int64
}

func (c *Controller) attempt(ctx context.Context) (err error) {
	c.mu.Lock()
	epoch := c.epoch
	c.state = StateLoading
	c.mu.Unlock()

	c.acquiring.Lock()
	defer c.acquiring.Unlock()

	if c.superseded(epoch) {
		c.log.Info("load superseded by clear before it started")
		return perrors.ErrLoadSuperseded
	}

	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "prodstats.load")
	origin := "none"
	defer func() {
		span.SetAttributes(attribute.String(telemetry.AttrOrigin, origin))
		telemetry.EndSpan(span, err)
		c.metrics.Load(ctx, origin, start, err)
	}()

	c.log.Info("loading dataset")
	l, err := c.build(ctx)
	if l != nil {
		origin = l.origin
	}
	if err == nil {
		c.persist(epoch, l)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		if l != nil && l.handle != nil {
			l.handle.Close()
		}
		c.log.Info("load superseded by clear, result discarded")
		return perrors.ErrLoadSuperseded
	}
	if err != nil {
		// a failed reload keeps serving the previous generation
		c.state = StateFailed
		if c.store.IsLoaded() {
			c.state = StateReady
		}
		c.lastErr = err
		c.mu.Unlock()
		c.log.Error("dataset load failed", "error", err)
		return err
	}

	c.store.Swap(l.handle)
	c.state = StateReady
	c.lastErr = nil
	c.lastLoad = time.Now()
	c.lastDuration = time.Since(start)
	c.origin = l.origin
	c.inMemory = l.inMemory
	c.profile = l.report
	c.warnings = nil
	if l.report != nil {
		c.warnings = l.report.Warnings
	}
	c.mu.Unlock()

	c.log.Info("dataset ready",
		"origin", l.origin,
		"rows", l.handle.Rows(),
		"rejected", l.handle.Rejected(),
		"generation", l.handle.Generation(),
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func (c *Controller) superseded(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch != epoch
}

// persist caches a staged download and writes the snapshot, unless a Clear
// has superseded the attempt.
func (c *Controller) persist(epoch uint64, l *loaded) {
	c.files.Lock()
	defer c.files.Unlock()

	if c.superseded(epoch) {
		return
	}
	if err := c.acq.Persist(l.src); err != nil {
		c.log.Warn("dataset persistence skipped, keeping it in memory", "error", err)
	}
	l.inMemory = l.src.InMemory()
	c.writeSnapshot(l)
}

// build acquires the dataset and builds an unpublished generation,
// preferring a matching snapshot over parsing the CSV.
func (c *Controller) build(ctx context.Context) (*loaded, error) {
	src, err := c.acq.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	l := &loaded{
		src:      src,
		origin:   string(src.Origin),
		inMemory: src.InMemory(),
	}

	if c.snapshotsEnabled(src) {
		products, meta, err := snapshot.Read(c.snapPath, src.Fingerprint)
		switch {
		case err == nil:
			// the rules may have changed since the snapshot was written
			report, err := c.validator.ValidateProducts(int(meta.Total()), products)
			l.report = report
			c.logReport(report)
			if err != nil {
				return l, err
			}
			h, err := c.store.Build(ctx, products, meta.Rejected)
			if err != nil {
				return l, err
			}
			l.handle = h
			l.origin = OriginSnapshot
			return l, nil
		case errors.Is(err, fs.ErrNotExist):
		default:
			c.log.Info("snapshot not used", "path", c.snapPath, "reason", err)
		}
	}

	rc, err := src.Open()
	if err != nil {
		return l, perrors.NewAcquisition(src.Path, err)
	}
	tbl, err := dataset.ReadTable(rc)
	rc.Close()
	if err != nil {
		return l, err
	}

	report, err := c.validator.Validate(tbl)
	l.report = report
	c.logReport(report)
	if err != nil {
		return l, err
	}

	coerced, err := c.store.Coerce(tbl)
	if err != nil {
		return l, err
	}

	h, err := c.store.Build(ctx, coerced.Products, coerced.Rejected)
	if err != nil {
		return l, err
	}
	l.handle = h
	l.products = coerced.Products
	l.rejected = coerced.Rejected
	return l, nil
}

func (c *Controller) logReport(report *validation.Report) {
	for _, w := range report.Warnings {
		c.log.Warn("data quality", "warning", w)
	}
	if !report.OK() {
		return
	}
	c.log.Info("data quality summary",
		"rows", report.Profile.Rows,
		"categories", report.Profile.Categories,
		"null_ratings", report.Profile.Rating.Nulls,
		"missing_prices", report.Profile.Price.Nulls)
}

func (c *Controller) snapshotsEnabled(src *dataset.Source) bool {
	return c.snapPath != "" && !src.InMemory()
}

// writeSnapshot persists freshly coerced products. Failures only log.
func (c *Controller) writeSnapshot(l *loaded) {
	if c.snapPath == "" || l.inMemory || l.products == nil {
		return
	}
	meta := snapshot.Meta{Fingerprint: l.src.Fingerprint, Rejected: l.rejected}
	if err := snapshot.Write(c.snapPath, l.products, meta); err != nil {
		c.log.Warn("snapshot not written", "path", c.snapPath, "error", err)
		return
	}
	c.log.Debug("snapshot written", "path", c.snapPath, "rows", len(l.products))
}

// Clear removes the cached dataset and snapshot and unloads the store.
// It does not wait for an in-flight load; that load's result is discarded
// and it writes nothing afterwards.
func (c *Controller) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.epoch++
	c.group.Forget(loadKey)
	c.store.Discard()
	c.state = StateEmpty
	c.lastErr = nil
	c.origin = ""
	c.inMemory = false
	c.warnings = nil
	c.profile = nil
	c.mu.Unlock()

	c.files.Lock()
	defer c.files.Unlock()

	var errs []error
	if err := c.acq.Clear(); err != nil {
		errs = append(errs, err)
	}
	if c.snapPath != "" {
		if err := snapshot.Remove(c.snapPath); err != nil {
			errs = append(errs, err)
		}
	}

	c.log.Info("cache cleared")
	return errors.Join(errs...)
}

// Close unloads the store and waits for retired generations.
func (c *Controller) Close() error {
	return c.store.Close()
}
