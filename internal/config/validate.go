package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}

	if err := c.Dataset.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("dataset: %w", err))
	}

	if err := c.Quality.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("quality: %w", err))
	}

	if err := c.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("query: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		errs = append(errs, errors.New("timeouts cannot be negative"))
	}

	return errors.Join(errs...)
}

// Validate checks the dataset configuration.
func (c *DatasetConfig) Validate() error {
	var errs []error

	if c.CacheDir == "" && !c.PreferInMemory {
		errs = append(errs, errors.New("cache_dir is required unless prefer_in_memory is set"))
	}
	if c.CacheFile == "" {
		errs = append(errs, errors.New("cache_file is required"))
	}
	if c.Snapshot && c.SnapshotFile == "" {
		errs = append(errs, errors.New("snapshot_file is required when snapshot is enabled"))
	}
	if c.RemoteURL == "" && c.FallbackPath == "" && c.PreferInMemory {
		errs = append(errs, errors.New("remote_url or fallback_path is required in memory-only mode"))
	}
	if c.RemoteURL != "" {
		u, err := url.Parse(c.RemoteURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("remote_url must be an http(s) URL: %q", c.RemoteURL))
		}
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("fetch_timeout must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks the data quality thresholds.
func (c *QualityConfig) Validate() error {
	var errs []error

	if c.MinRows < 1 {
		errs = append(errs, errors.New("min_rows must be at least 1"))
	}
	if c.MaxRejectRate < 0 || c.MaxRejectRate > 1 {
		errs = append(errs, errors.New("max_reject_rate must be in [0, 1]"))
	}
	if c.PriceMissingWarn < 0 || c.PriceMissingWarn > 1 {
		errs = append(errs, errors.New("price_missing_warn must be in [0, 1]"))
	}
	if c.NullRatingWarn < 0 || c.NullRatingWarn > 1 {
		errs = append(errs, errors.New("null_rating_warn must be in [0, 1]"))
	}

	return errors.Join(errs...)
}

// Validate checks the statistics engine configuration.
func (c *QueryConfig) Validate() error {
	var errs []error

	if c.Workers < 0 {
		errs = append(errs, errors.New("workers cannot be negative"))
	}
	if c.DuckDBThreads < 0 {
		errs = append(errs, errors.New("duckdb_threads cannot be negative"))
	}
	if c.MinCategorySize < 1 {
		errs = append(errs, errors.New("min_category_size must be at least 1"))
	}
	if c.SketchAccuracy <= 0 || c.SketchAccuracy >= 1 {
		errs = append(errs, errors.New("sketch_accuracy must be in (0, 1)"))
	}

	return errors.Join(errs...)
}
