package validation

import (
	"math"
	"strconv"
	"strings"

	defaults "github.com/xtxerr/prodstats/config"
	perrors "github.com/xtxerr/prodstats/internal/errors"
)

// =============================================================================
// Query Parameters
// =============================================================================

// Threshold parses a z-score threshold. Empty means the default; the value
// must be finite and in (0, MaxZScoreThreshold].
func Threshold(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaults.DefaultZScoreThreshold, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, perrors.NewInvalidParameter("threshold", raw, "must be a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, perrors.NewInvalidParameter("threshold", raw, "must be finite")
	}
	if v <= 0 || v > defaults.MaxZScoreThreshold {
		return 0, perrors.NewInvalidParameter("threshold", raw, "must be in (0, 5]")
	}
	return v, nil
}

// Limit parses a result limit. Empty means the default; the value must be
// in [1, MaxVariabilityLimit].
func Limit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaults.DefaultVariabilityLimit, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, perrors.NewInvalidParameter("limit", raw, "must be an integer")
	}
	if v < 1 || v > defaults.MaxVariabilityLimit {
		return 0, perrors.NewInvalidParameter("limit", raw, "must be in [1, 100]")
	}
	return v, nil
}
