package server

import (
	fiber "github.com/gofiber/fiber/v3"

	"github.com/xtxerr/prodstats/internal/validation"
)

// Endpoints lists the routes advertised by GET /.
var Endpoints = []string{
	"/health",
	"/category-stats",
	"/z-score-outliers",
	"/high-variability",
	"/low-variability",
	"/global-stats",
	"/category-distribution",
	"/summary",
	"/cache-info",
	"/clear-cache",
	"/reload",
}

func (s *Server) mountRoutes() {
	s.app.Get("/", s.handleRoot)
	s.app.Get("/health", s.handleHealth)

	s.app.Get("/cache-info", s.handleCacheInfo)
	s.app.Post("/clear-cache", s.handleClearCache)
	s.app.Post("/reload", s.handleReload)

	s.app.Get("/category-stats", s.ready(s.handleCategoryStats))
	s.app.Get("/z-score-outliers", s.ready(s.handleZScoreOutliers))
	s.app.Get("/high-variability", s.ready(s.handleHighVariability))
	s.app.Get("/low-variability", s.ready(s.handleLowVariability))
	s.app.Get("/global-stats", s.ready(s.handleGlobalStats))
	s.app.Get("/category-distribution", s.ready(s.handleCategoryDistribution))
	s.app.Get("/summary", s.ready(s.handleSummary))
}

// ready loads the dataset on demand before running h.
func (s *Server) ready(h fiber.Handler) fiber.Handler {
	return func(c fiber.Ctx) error {
		if err := s.cache.EnsureReady(c.Context()); err != nil {
			return err
		}
		return h(c)
	}
}

func (s *Server) handleRoot(c fiber.Ctx) error {
	return ok(c, "Amazon Product Analytics API", fiber.Map{"endpoints": Endpoints})
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	info := s.cache.Info()
	return c.JSON(fiber.Map{
		"status":     "ok",
		"state":      info.State,
		"loaded":     info.Loaded,
		"generation": info.Generation,
	})
}

func (s *Server) handleCacheInfo(c fiber.Ctx) error {
	return ok(c, "Cache information retrieved successfully", s.cache.Info())
}

// handleClearCache clears the dataset and loads it again.
func (s *Server) handleClearCache(c fiber.Ctx) error {
	if err := s.cache.Clear(c.Context()); err != nil {
		return err
	}
	if err := s.cache.EnsureReady(c.Context()); err != nil {
		return err
	}
	return ok(c, "Cache cleared successfully", s.cache.Info())
}

func (s *Server) handleReload(c fiber.Ctx) error {
	if err := s.cache.Reload(c.Context()); err != nil {
		return err
	}
	return ok(c, "Dataset reloaded successfully", s.cache.Info())
}

func (s *Server) handleCategoryStats(c fiber.Ctx) error {
	res, err := s.stats.CategoryStats(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleZScoreOutliers(c fiber.Ctx) error {
	threshold, err := validation.Threshold(c.Query("threshold"))
	if err != nil {
		return err
	}
	res, err := s.stats.ZScoreOutliers(c.Context(), threshold)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleHighVariability(c fiber.Ctx) error {
	limit, err := validation.Limit(c.Query("limit"))
	if err != nil {
		return err
	}
	res, err := s.stats.HighVariability(c.Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleLowVariability(c fiber.Ctx) error {
	limit, err := validation.Limit(c.Query("limit"))
	if err != nil {
		return err
	}
	res, err := s.stats.LowVariability(c.Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleGlobalStats(c fiber.Ctx) error {
	res, err := s.stats.GlobalStats(c.Context())
	if err != nil {
		return err
	}
	return ok(c, "Global statistics retrieved successfully", res)
}

func (s *Server) handleCategoryDistribution(c fiber.Ctx) error {
	res, err := s.stats.CategoryDistribution(c.Context())
	if err != nil {
		return err
	}
	return ok(c, "Category distribution retrieved successfully", res)
}

func (s *Server) handleSummary(c fiber.Ctx) error {
	res, err := s.stats.Summary(c.Context())
	if err != nil {
		return err
	}
	return ok(c, "Summary retrieved successfully", res)
}
