package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	defaults "github.com/xtxerr/prodstats/config"
	perrors "github.com/xtxerr/prodstats/internal/errors"
	"github.com/xtxerr/prodstats/internal/logging"
)

// Origin tells where a Source came from.
type Origin string

const (
	OriginCache    Origin = "cache"
	OriginRemote   Origin = "remote"
	OriginFallback Origin = "fallback"
)

// Config configures the Acquirer.
type Config struct {
	// RemoteURL is fetched on a cache miss. Empty disables fetching.
	RemoteURL string

	// CachePath is where the downloaded CSV is persisted.
	CachePath string

	// FallbackPath is read when the remote fetch fails. Optional.
	FallbackPath string

	// PreferInMemory never writes the download to disk.
	PreferInMemory bool

	// FetchTimeout bounds the whole remote download.
	FetchTimeout time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Source is an acquired raw dataset, on disk or in memory.
//
// A fresh download is staged: it stays in memory until Persist writes it
// to the cache file, so data that never passes validation is not cached.
type Source struct {
	Origin      Origin
	Path        string
	Data        []byte
	Size        int64
	Fingerprint uint64

	staged bool
}

// Staged reports whether the source is a download awaiting Persist.
func (s *Source) Staged() bool {
	return s.staged
}

// InMemory reports whether the dataset lives only in memory.
func (s *Source) InMemory() bool {
	return s.Path == ""
}

// Open returns a reader over the dataset bytes.
func (s *Source) Open() (io.ReadCloser, error) {
	if s.InMemory() {
		return io.NopCloser(bytes.NewReader(s.Data)), nil
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	return f, nil
}

// FileStat describes the cache file.
type FileStat struct {
	Path    string
	Exists  bool
	Size    int64
	ModTime time.Time
}

// Acquirer ensures a raw dataset is available locally.
//
// Acquirer is safe for concurrent use, but callers are expected to
// serialize acquisitions (the cache controller does).
type Acquirer struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger

	fetches atomic.Int64
}

// New creates an Acquirer.
func New(cfg Config) *Acquirer {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaults.DefaultFetchTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Acquirer{
		cfg:    cfg,
		client: client,
		log:    logging.Component("dataset"),
	}
}

// Acquire returns the dataset, from the cache file if it is usable, else
// from the remote source, else from the fallback file.
func (a *Acquirer) Acquire(ctx context.Context) (*Source, error) {
	if src, ok := a.cached(); ok {
		a.log.Info("using cached dataset", "path", src.Path, "bytes", src.Size)
		return src, nil
	}

	var remoteErr error
	if a.cfg.RemoteURL != "" {
		a.log.Info("dataset not cached, downloading", "url", a.cfg.RemoteURL)
		src, err := a.fetchRemote(ctx)
		if err == nil {
			return src, nil
		}
		remoteErr = err
		a.log.Warn("remote fetch failed", "url", a.cfg.RemoteURL, "error", err)
	} else {
		remoteErr = fmt.Errorf("no remote source configured")
	}

	if a.cfg.FallbackPath != "" {
		src, err := fileSource(a.cfg.FallbackPath, OriginFallback)
		if err == nil {
			a.log.Info("using fallback dataset", "path", src.Path, "bytes", src.Size)
			return src, nil
		}
		a.log.Warn("fallback dataset unusable", "path", a.cfg.FallbackPath, "error", err)
		return nil, perrors.NewAcquisition(a.cfg.FallbackPath, perrors.Join(remoteErr, err))
	}

	return nil, perrors.NewAcquisition(a.sourceName(), remoteErr)
}

// Persist writes a staged download to the cache file. Afterwards src reads
// from the file. Sources that are not staged are left alone. On failure
// src stays in memory.
func (a *Acquirer) Persist(src *Source) error {
	if !src.staged {
		return nil
	}
	src.staged = false

	if err := writeAtomic(a.cfg.CachePath, src.Data); err != nil {
		return fmt.Errorf("persist dataset: %w", err)
	}

	a.log.Info("dataset cached", "path", a.cfg.CachePath, "bytes", src.Size)
	src.Path = a.cfg.CachePath
	src.Data = nil
	return nil
}

// Fetches returns how many remote downloads were attempted.
func (a *Acquirer) Fetches() int64 {
	return a.fetches.Load()
}

// Stat describes the cache file.
func (a *Acquirer) Stat() FileStat {
	st := FileStat{Path: a.cfg.CachePath}
	if a.cfg.CachePath == "" {
		return st
	}
	if fi, err := os.Stat(a.cfg.CachePath); err == nil && fi.Mode().IsRegular() {
		st.Exists = true
		st.Size = fi.Size()
		st.ModTime = fi.ModTime()
	}
	return st
}

// Clear removes the cache file. A missing file is not an error.
func (a *Acquirer) Clear() error {
	if a.cfg.CachePath == "" {
		return nil
	}
	if err := os.Remove(a.cfg.CachePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cached dataset: %w", err)
	}
	return nil
}

func (a *Acquirer) sourceName() string {
	if a.cfg.RemoteURL != "" {
		return a.cfg.RemoteURL
	}
	return a.cfg.CachePath
}

// cached returns the cache file when it is a readable, non-empty file.
func (a *Acquirer) cached() (*Source, bool) {
	if a.cfg.CachePath == "" || a.cfg.PreferInMemory {
		return nil, false
	}
	src, err := fileSource(a.cfg.CachePath, OriginCache)
	if err != nil {
		if !os.IsNotExist(err) {
			a.log.Warn("cached dataset unusable", "path", a.cfg.CachePath, "error", err)
		}
		return nil, false
	}
	return src, true
}

func (a *Acquirer) fetchRemote(ctx context.Context) (*Source, error) {
	a.fetches.Add(1)

	data, err := a.download(ctx)
	if err != nil {
		return nil, err
	}

	src := &Source{
		Origin:      OriginRemote,
		Data:        data,
		Size:        int64(len(data)),
		Fingerprint: xxhash.Sum64(data),
	}

	if a.cfg.PreferInMemory || a.cfg.CachePath == "" {
		a.log.Info("keeping dataset in memory, persistence disabled", "bytes", src.Size)
		return src, nil
	}

	src.staged = true
	a.log.Info("dataset downloaded", "bytes", src.Size)
	return src, nil
}

// fileSource opens path as a Source, rejecting empty or unreadable files.
func fileSource(path string, origin Origin) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return &Source{
		Origin:      origin,
		Path:        path,
		Size:        fi.Size(),
		Fingerprint: h.Sum64(),
	}, nil
}

// writeAtomic writes data next to path and renames it into place, so a
// failed write never leaves a truncated cache file behind.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
