package ilut

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/pbnjay/memory"
	"golang.org/x/sync/singleflight"

	"github.com/banshee-data/ilut/internal/fsutil"
	"github.com/banshee-data/ilut/internal/lut"
)

// defaultBudgetFraction of physical memory is used when no budget is given.
const defaultBudgetFraction = 4

type cacheKey struct {
	config string
	band   string
}

type cacheEntry struct {
	ilut    *ILUT
	size    int64
	modTime time.Time
	bytes   int64
	lastUse uint64
}

// Cache maps (configuration, band) to loaded interpolants. It is owned by
// the caller; there is no process-wide instance. An entry is reloaded when
// its artifact's size or modification time changes, and least recently used
// entries are dropped once the memory budget is exceeded. Artifacts are
// decoded outside the lock; concurrent loads of one band share one read.
type Cache struct {
	fs      fsutil.FileSystem
	root    string
	budget  int64
	loading singleflight.Group

	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
	used    int64
	clock   uint64
	loads   int
}

// NewCache returns a cache over artifacts under root. A budget of zero or
// less means a quarter of physical memory.
func NewCache(fsys fsutil.FileSystem, root string, budget int64) *Cache {
	if budget <= 0 {
		budget = int64(memory.TotalMemory() / defaultBudgetFraction)
		if budget <= 0 {
			budget = 1 << 30
		}
	}
	return &Cache{fs: fsys, root: root, budget: budget, entries: make(map[cacheKey]*cacheEntry)}
}

// footprint approximates the resident size of l's channel arrays.
func footprint(l *ILUT) int64 {
	return int64(l.Nodes()) * lut.NumChannels * 8
}

// Get returns the interpolant for cfg and band, loading it on first use or
// after the artifact changed on disk.
func (c *Cache) Get(cfg lut.Config, band string) (*ILUT, error) {
	path := ArtifactPath(c.root, cfg, band)
	info, err := c.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("no iLUT for %s band %s: %w", cfg.Key(), band, err)
	}

	key := cacheKey{config: cfg.Key(), band: band}
	if l := c.lookup(key, info); l != nil {
		return l, nil
	}
	v, err, _ := c.loading.Do(key.config+"/"+key.band, func() (interface{}, error) {
		// A load that finished after our lookup is as good as our own.
		if l := c.lookup(key, info); l != nil {
			return l, nil
		}
		return c.load(key, cfg, path, info)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ILUT), nil
}

// lookup returns the cached interpolant for key if it matches info.
func (c *Cache) lookup(key cacheKey, info fs.FileInfo) *ILUT {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock++
	e, ok := c.entries[key]
	if !ok || e.size != info.Size() || !e.modTime.Equal(info.ModTime()) {
		return nil
	}
	e.lastUse = c.clock
	return e.ilut
}

// load reads the artifact without holding the lock, then installs it.
func (c *Cache) load(key cacheKey, cfg lut.Config, path string, info fs.FileInfo) (*ILUT, error) {
	l, err := Open(c.fs, path)
	if err != nil {
		return nil, err
	}
	if l.Config != cfg || l.Band.Name != key.band {
		return nil, &lut.StorageCorruptionError{
			Path:   path,
			Reason: fmt.Sprintf("artifact holds %s band %s", l.Config.Key(), l.Band.Name),
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock++
	c.loads++
	if _, ok := c.entries[key]; ok {
		logf("%s changed on disk, reloading", path)
		c.drop(key)
	}
	e := &cacheEntry{ilut: l, size: info.Size(), modTime: info.ModTime(), bytes: footprint(l), lastUse: c.clock}
	c.entries[key] = e
	c.used += e.bytes
	c.evict(key)
	return l, nil
}

// Invalidate forgets the entry for cfg and band. An empty band forgets
// every band of cfg.
func (c *Cache) Invalidate(cfg lut.Config, band string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.config == cfg.Key() && (band == "" || k.band == band) {
			c.drop(k)
		}
	}
}

// Len is the number of loaded interpolants.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Loads counts artifact reads since the cache was created.
func (c *Cache) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

// Available lists the artifacts present under root for cfg.
func (c *Cache) Available(cfg lut.Config) ([]string, error) {
	var out []string
	for _, b := range cfg.Sensor.Bands() {
		if _, err := c.fs.Stat(ArtifactPath(c.root, cfg, b.Name)); err == nil {
			out = append(out, b.Name)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return out, nil
}

func (c *Cache) drop(k cacheKey) {
	if e, ok := c.entries[k]; ok {
		c.used -= e.bytes
		delete(c.entries, k)
	}
}

// evict removes least recently used entries other than keep until the
// budget holds.
func (c *Cache) evict(keep cacheKey) {
	for c.used > c.budget && len(c.entries) > 1 {
		var victim cacheKey
		oldest := ^uint64(0)
		for k, e := range c.entries {
			if k != keep && e.lastUse < oldest {
				victim, oldest = k, e.lastUse
			}
		}
		logf("evicting %s band %s from cache", victim.config, victim.band)
		c.drop(victim)
	}
}
