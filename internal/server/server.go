// Package server exposes the product statistics over HTTP.
//
// Every data route first makes sure the dataset is loaded, then runs the
// matching statistics query. Errors are rendered as a JSON envelope whose
// status code follows the error class.
package server

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	fiber "github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/hyp3rd/ewrap"

	defaults "github.com/xtxerr/prodstats/config"
	"github.com/xtxerr/prodstats/internal/cache"
	"github.com/xtxerr/prodstats/internal/logging"
	"github.com/xtxerr/prodstats/internal/stats"
)

// Cache is the dataset lifecycle the routes drive.
type Cache interface {
	EnsureReady(ctx context.Context) error
	Reload(ctx context.Context) error
	Clear(ctx context.Context) error
	Info() cache.Info
}

// Stats answers the statistics queries.
type Stats interface {
	CategoryStats(ctx context.Context) ([]stats.CategorySummary, error)
	ZScoreOutliers(ctx context.Context, threshold float64) ([]stats.Outlier, error)
	HighVariability(ctx context.Context, limit int) ([]stats.Variability, error)
	LowVariability(ctx context.Context, limit int) ([]stats.Variability, error)
	GlobalStats(ctx context.Context) (stats.GlobalStats, error)
	CategoryDistribution(ctx context.Context) ([]stats.DistributionEntry, error)
	Summary(ctx context.Context) (*stats.Summary, error)
}

// Config holds server configuration.
type Config struct {
	// Listen is the address to listen on (e.g., "0.0.0.0:8000").
	Listen string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Warmup starts loading the dataset in the background on Run.
	Warmup bool
}

// Server is the HTTP front of prodstats.
type Server struct {
	cfg   Config
	cache Cache
	stats Stats
	app   *fiber.App
	log   *slog.Logger

	mu sync.Mutex
	ln net.Listener
}

// New creates a server with all routes mounted.
func New(cfg Config, c Cache, st Stats) *Server {
	if cfg.Listen == "" {
		cfg.Listen = defaults.DefaultListenAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.DefaultWriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.DefaultShutdownTimeout
	}

	s := &Server{
		cfg:   cfg,
		cache: c,
		stats: st,
		log:   logging.Component("server"),
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "prodstats",
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ErrorHandler: s.errorHandler,
	})
	s.app.Use(recoverer.New())
	s.app.Use(cors.New())
	s.app.Use(requestid.New())
	s.app.Use(s.accessLog)
	s.mountRoutes()

	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return ewrap.Wrap(err, "listen")
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info("listening", "address", ln.Addr().String())

	if s.cfg.Warmup {
		go s.warmup(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return ewrap.Wrap(err, "serve")
		}
		return nil
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Address returns the bound address, or "" before Run.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown() error {
	s.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return ewrap.Wrap(err, "shutdown")
	}
	s.log.Info("shutdown complete")
	return nil
}

func (s *Server) warmup(ctx context.Context) {
	start := time.Now()
	if err := s.cache.EnsureReady(ctx); err != nil {
		s.log.Warn("warmup load failed, routes will retry", "error", err)
		return
	}
	s.log.Info("warmup complete", "duration", time.Since(start).Round(time.Millisecond))
}

// accessLog carries the request ID into the handler context and logs the
// request once it completes.
func (s *Server) accessLog(c fiber.Ctx) error {
	c.SetContext(logging.ContextWithRequestID(c.Context(), requestid.FromContext(c)))

	start := time.Now()
	err := c.Next()
	logging.WithContext(c.Context()).Debug("request",
		"component", "server",
		"status", c.Response().StatusCode(),
		"method", c.Method(),
		"path", c.Path(),
		"duration", time.Since(start).Round(time.Microsecond))
	return err
}
