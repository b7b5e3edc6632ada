// Package config provides configuration defaults for the prodstats application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or PRODSTATS_* environment
// variables.
package config

import "time"

// =============================================================================
// Server Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: server.listen
	DefaultListenAddress = "0.0.0.0:8000"

	// DefaultReadTimeout bounds reading a request.
	// Override via config: server.read_timeout
	DefaultReadTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds writing a response. Loads triggered by the
	// first request can take a while, so this is generous.
	// Override via config: server.write_timeout
	DefaultWriteTimeout = 15 * time.Minute

	// DefaultShutdownTimeout is how long graceful shutdown may take.
	DefaultShutdownTimeout = 10 * time.Second
)

// =============================================================================
// Dataset Defaults
// =============================================================================

const (
	// DefaultRemoteURL is the download location of the Amazon UK products
	// dataset. The response may be a CSV file or a ZIP archive containing one.
	// Override via config: dataset.remote_url
	DefaultRemoteURL = "https://www.kaggle.com/api/v1/datasets/download/asaniczka/amazon-uk-products-dataset-2023"

	// DefaultCacheDir is the directory holding the cached CSV and snapshot.
	// Override via config: dataset.cache_dir
	DefaultCacheDir = "data"

	// DefaultCacheFile is the file name of the cached raw dataset.
	// Override via config: dataset.cache_file
	DefaultCacheFile = "amz_uk_processed_data.csv"

	// DefaultSnapshotFile is the file name of the Parquet store snapshot.
	// Override via config: dataset.snapshot_file
	DefaultSnapshotFile = "products.parquet"

	// DefaultFetchTimeout bounds the remote download.
	// Override via config: dataset.fetch_timeout
	DefaultFetchTimeout = 10 * time.Minute
)

// =============================================================================
// Data Quality Defaults
// =============================================================================

const (
	// DefaultMinRows guards against truncated downloads. The real dataset
	// has about 2.2 million rows.
	// Override via config: quality.min_rows
	DefaultMinRows = 1000

	// DefaultMaxRejectRate is the largest fraction of rows that may fail
	// type coercion before the whole load is rejected.
	// Override via config: quality.max_reject_rate
	DefaultMaxRejectRate = 0.05

	// DefaultPriceMissingWarn is the fraction of missing prices above which
	// the validator emits a warning.
	// Override via config: quality.price_missing_warn
	DefaultPriceMissingWarn = 0.10

	// DefaultNullRatingWarn is the fraction of null ratings above which the
	// validator emits a warning.
	// Override via config: quality.null_rating_warn
	DefaultNullRatingWarn = 0.50
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultMinCategorySize is the minimum row count for a category to take
	// part in outlier detection and variability rankings. 1 includes all.
	// Override via config: query.min_category_size
	DefaultMinCategorySize = 1

	// DefaultSketchAccuracy is the relative accuracy of rating quantiles.
	// Override via config: query.sketch_accuracy
	DefaultSketchAccuracy = 0.01

	// DefaultZScoreThreshold is used by the route layer when the caller
	// does not pass one.
	DefaultZScoreThreshold = 1.75

	// MaxZScoreThreshold is the largest threshold the route layer accepts.
	MaxZScoreThreshold = 5.0

	// DefaultVariabilityLimit is used by the route layer when the caller
	// does not pass a limit.
	DefaultVariabilityLimit = 20

	// MaxVariabilityLimit is the largest limit the route layer accepts.
	MaxVariabilityLimit = 100
)
