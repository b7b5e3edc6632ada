package cache

import (
	"time"

	"github.com/xtxerr/prodstats/internal/profile"
	"github.com/xtxerr/prodstats/internal/store/snapshot"
)

// FileInfo describes a persisted file.
type FileInfo struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
	Size   int64  `json:"size_bytes"`
}

// Info is a point-in-time view of the cache.
type Info struct {
	State        State            `json:"state"`
	Loaded       bool             `json:"loaded"`
	Generation   uint64           `json:"generation"`
	Rows         int64            `json:"rows"`
	Rejected     int64            `json:"rejected_rows"`
	CacheFile    FileInfo         `json:"cache_file"`
	Snapshot     *FileInfo        `json:"snapshot,omitempty"`
	InMemory     bool             `json:"in_memory"`
	Origin       string           `json:"origin,omitempty"`
	LastLoad     *time.Time       `json:"last_load,omitempty"`
	LastDuration string           `json:"last_load_duration,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
	Warnings     []string         `json:"warnings,omitempty"`
	Profile      *profile.Summary `json:"profile,omitempty"`
}

// Info returns the current cache information. It never triggers a load.
func (c *Controller) Info() Info {
	c.mu.Lock()
	info := Info{
		State:    c.state,
		InMemory: c.inMemory,
		Origin:   c.origin,
		Warnings: append([]string(nil), c.warnings...),
	}
	if c.lastErr != nil {
		info.LastError = c.lastErr.Error()
	}
	if !c.lastLoad.IsZero() && c.state != StateEmpty {
		t := c.lastLoad
		info.LastLoad = &t
		info.LastDuration = c.lastDuration.Round(time.Millisecond).String()
	}
	if c.profile != nil {
		p := c.profile.Profile
		info.Profile = &p
	}
	c.mu.Unlock()

	info.Loaded = c.store.IsLoaded()
	info.Generation = c.store.Generation()
	info.Rows = c.store.RowCount()
	info.Rejected = c.store.Rejected()

	st := c.acq.Stat()
	info.CacheFile = FileInfo{Path: st.Path, Exists: st.Exists, Size: st.Size}

	if c.snapPath != "" {
		size, ok := snapshot.Size(c.snapPath)
		info.Snapshot = &FileInfo{Path: c.snapPath, Exists: ok, Size: size}
	}
	return info
}
