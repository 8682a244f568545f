package dataset

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"icdlookup/internal"
)

// LoadInfo describes one completed dataset load.
type LoadInfo struct {
	Path     string
	ModTime  time.Time
	Records  int
	Excluded int
	Columns  internal.ColumnMapping
	Duration time.Duration
}

type cacheEntry struct {
	key   string
	table internal.CanonicalTable
	info  LoadInfo
}

// Cache keeps one loaded table per file and reloads it when the file's modification time
// or size changes. Concurrent callers for the same file version share a single load.
// Returned tables are shared and must not be modified.
type Cache struct {
	opts   Options
	OnLoad func(LoadInfo)

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
	loadFn  func(path string, opts Options) (internal.CanonicalTable, error)
}

func NewCache(opts Options) *Cache {
	return &Cache{opts: opts, entries: map[string]cacheEntry{}, loadFn: LoadFile}
}

func (c *Cache) Get(path string) (internal.CanonicalTable, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return internal.CanonicalTable{}, fmt.Errorf("load dataset %s: %w", path, err)
	}
	key := fmt.Sprintf("%s|%d|%d", path, stat.ModTime().UnixNano(), stat.Size())

	c.mu.RLock()
	entry, ok := c.entries[path]
	c.mu.RUnlock()
	if ok && entry.key == key {
		return entry.table, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		entry, ok := c.entries[path]
		c.mu.RUnlock()
		if ok && entry.key == key {
			return entry.table, nil
		}

		start := time.Now()
		table, err := c.loadFn(path, c.opts)
		if err != nil {
			return nil, err
		}
		info := LoadInfo{
			Path:     path,
			ModTime:  stat.ModTime(),
			Records:  table.Len(),
			Excluded: countExcluded(table),
			Columns:  table.Columns,
			Duration: time.Since(start),
		}
		c.mu.Lock()
		c.entries[path] = cacheEntry{key: key, table: table, info: info}
		c.mu.Unlock()
		if c.OnLoad != nil {
			c.OnLoad(info)
		}
		return table, nil
	})
	if err != nil {
		return internal.CanonicalTable{}, err
	}
	return v.(internal.CanonicalTable), nil
}

// Tables binds the cache to one file.
func (c *Cache) Tables(path string) func() (internal.CanonicalTable, error) {
	return func() (internal.CanonicalTable, error) { return c.Get(path) }
}

// Info returns the metadata of the last successful load of path.
func (c *Cache) Info(path string) (LoadInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[path]
	return entry.info, ok
}

func countExcluded(table internal.CanonicalTable) int {
	n := 0
	for _, rec := range table.Records {
		if rec.Status == internal.StatusExcluded {
			n++
		}
	}
	return n
}
