// Package config loads and validates the prodstats configuration.
//
// Precedence: environment (PRODSTATS_*) > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/prodstats/config"
)

// EnvPrefix is the prefix of environment variable overrides.
// PRODSTATS_DATASET_CACHE_DIR overrides dataset.cache_dir.
const EnvPrefix = "PRODSTATS"

// Config represents the complete application configuration.
type Config struct {
	// Server configures the HTTP route layer.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Dataset configures acquisition and the on-disk cache.
	Dataset DatasetConfig `mapstructure:"dataset" yaml:"dataset"`

	// Quality configures the data quality thresholds.
	Quality QualityConfig `mapstructure:"quality" yaml:"quality"`

	// Query configures the statistics engine.
	Query QueryConfig `mapstructure:"query" yaml:"query"`

	// Log configures logging.
	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// ServerConfig configures the HTTP route layer.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen" yaml:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// LoadOnStart runs EnsureReady before accepting requests.
	LoadOnStart bool `mapstructure:"load_on_start" yaml:"load_on_start"`
}

// DatasetConfig configures acquisition and the on-disk cache.
type DatasetConfig struct {
	// RemoteURL is the dataset download location. Empty disables fetching.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`

	// CacheDir holds the cached CSV and the store snapshot.
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir"`

	// CacheFile is the cached CSV file name inside CacheDir.
	CacheFile string `mapstructure:"cache_file" yaml:"cache_file"`

	// SnapshotFile is the Parquet snapshot file name inside CacheDir.
	SnapshotFile string `mapstructure:"snapshot_file" yaml:"snapshot_file"`

	// Snapshot enables writing and reading the Parquet snapshot.
	Snapshot bool `mapstructure:"snapshot" yaml:"snapshot"`

	// FallbackPath is a local CSV used when the remote fetch fails.
	FallbackPath string `mapstructure:"fallback_path" yaml:"fallback_path"`

	// PreferInMemory skips all persistence (restricted filesystems).
	PreferInMemory bool `mapstructure:"prefer_in_memory" yaml:"prefer_in_memory"`

	// FetchTimeout bounds the remote download.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
}

// CachePath returns the full path of the cached CSV.
func (c *DatasetConfig) CachePath() string {
	return filepath.Join(c.CacheDir, c.CacheFile)
}

// SnapshotPath returns the full path of the store snapshot, or "" when
// snapshots are disabled.
func (c *DatasetConfig) SnapshotPath() string {
	if !c.Snapshot || c.PreferInMemory {
		return ""
	}
	return filepath.Join(c.CacheDir, c.SnapshotFile)
}

// QualityConfig configures the data quality thresholds.
type QualityConfig struct {
	MinRows          int     `mapstructure:"min_rows" yaml:"min_rows"`
	MaxRejectRate    float64 `mapstructure:"max_reject_rate" yaml:"max_reject_rate"`
	PriceMissingWarn float64 `mapstructure:"price_missing_warn" yaml:"price_missing_warn"`
	NullRatingWarn   float64 `mapstructure:"null_rating_warn" yaml:"null_rating_warn"`
}

// QueryConfig configures the statistics engine.
type QueryConfig struct {
	// Workers bounds concurrent aggregation queries. 0 means GOMAXPROCS.
	Workers int `mapstructure:"workers" yaml:"workers"`

	// DuckDBThreads limits DuckDB worker threads per generation. 0 keeps
	// DuckDB's default.
	DuckDBThreads   int     `mapstructure:"duckdb_threads" yaml:"duckdb_threads"`
	MinCategorySize int     `mapstructure:"min_category_size" yaml:"min_category_size"`
	SketchAccuracy  float64 `mapstructure:"sketch_accuracy" yaml:"sketch_accuracy"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:       defaults.DefaultListenAddress,
			ReadTimeout:  defaults.DefaultReadTimeout,
			WriteTimeout: defaults.DefaultWriteTimeout,
			LoadOnStart:  true,
		},
		Dataset: DatasetConfig{
			RemoteURL:    defaults.DefaultRemoteURL,
			CacheDir:     defaults.DefaultCacheDir,
			CacheFile:    defaults.DefaultCacheFile,
			SnapshotFile: defaults.DefaultSnapshotFile,
			Snapshot:     true,
			FetchTimeout: defaults.DefaultFetchTimeout,
		},
		Quality: QualityConfig{
			MinRows:          defaults.DefaultMinRows,
			MaxRejectRate:    defaults.DefaultMaxRejectRate,
			PriceMissingWarn: defaults.DefaultPriceMissingWarn,
			NullRatingWarn:   defaults.DefaultNullRatingWarn,
		},
		Query: QueryConfig{
			Workers:         0,
			MinCategorySize: defaults.DefaultMinCategorySize,
			SketchAccuracy:  defaults.DefaultSketchAccuracy,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from path (optional), the environment and defaults.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.load_on_start", d.Server.LoadOnStart)

	v.SetDefault("dataset.remote_url", d.Dataset.RemoteURL)
	v.SetDefault("dataset.cache_dir", d.Dataset.CacheDir)
	v.SetDefault("dataset.cache_file", d.Dataset.CacheFile)
	v.SetDefault("dataset.snapshot_file", d.Dataset.SnapshotFile)
	v.SetDefault("dataset.snapshot", d.Dataset.Snapshot)
	v.SetDefault("dataset.fallback_path", d.Dataset.FallbackPath)
	v.SetDefault("dataset.prefer_in_memory", d.Dataset.PreferInMemory)
	v.SetDefault("dataset.fetch_timeout", d.Dataset.FetchTimeout)

	v.SetDefault("quality.min_rows", d.Quality.MinRows)
	v.SetDefault("quality.max_reject_rate", d.Quality.MaxRejectRate)
	v.SetDefault("quality.price_missing_warn", d.Quality.PriceMissingWarn)
	v.SetDefault("quality.null_rating_warn", d.Quality.NullRatingWarn)

	v.SetDefault("query.workers", d.Query.Workers)
	v.SetDefault("query.duckdb_threads", d.Query.DuckDBThreads)
	v.SetDefault("query.min_category_size", d.Query.MinCategorySize)
	v.SetDefault("query.sketch_accuracy", d.Query.SketchAccuracy)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Dump renders the configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	return b, nil
}

// QueryWorkers returns the effective worker count.
func (c *QueryConfig) QueryWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}
