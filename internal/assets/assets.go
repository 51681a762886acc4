// Package assets handles COLLADA imports with caching, concurrent batch
// loading and re-import on change.
package assets

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/daeprim/pkg/prim"
)

// Manager loads documents through a prim.Loader and caches the results by
// absolute path.
type Manager struct {
	loader  *prim.Loader
	cache   *Cache
	workers int
	log     *zap.Logger
}

// NewManager creates a new asset manager. workers bounds LoadAll; values
// below 1 mean one load at a time.
func NewManager(loader *prim.Loader, workers int, log *zap.Logger) *Manager {
	if loader == nil {
		loader = prim.NewLoader()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		loader:  loader,
		cache:   NewCache(),
		workers: max(workers, 1),
		log:     log,
	}
}

// Result is the outcome of one document in LoadAll.
type Result struct {
	Path       string
	Primitives []*prim.Primitive
	Err        error
}

// Load returns the primitives of the document at path, importing it on the
// first request. Failed imports are not cached.
func (m *Manager) Load(path string) ([]*prim.Primitive, error) {
	key, err := cacheKey(path)
	if err != nil {
		return nil, err
	}

	if prims, ok := m.cache.Get(key); ok {
		return prims, nil
	}

	prims, err := m.loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	m.cache.Set(key, prims)
	m.log.Debug("imported", zap.String("path", path), zap.Int("primitives", len(prims)))
	return prims, nil
}

// LoadAll imports paths concurrently, at most workers at a time. Per-file
// failures are reported in the matching Result; the returned error is only
// set when ctx is cancelled. Results keep the order of paths.
func (m *Manager) LoadAll(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for i, path := range paths {
		results[i].Path = path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i].Primitives, results[i].Err = m.Load(path)
			if results[i].Err != nil {
				m.log.Warn("import failed", zap.String("path", path), zap.Error(results[i].Err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("batch import: %w", err)
	}
	return results, nil
}

// Invalidate drops the cached result for path.
func (m *Manager) Invalidate(path string) {
	if key, err := cacheKey(path); err == nil {
		m.cache.Delete(key)
	}
}

// Stats returns the cache hit and miss counts.
func (m *Manager) Stats() (hits, misses int) {
	return m.cache.Stats()
}

func cacheKey(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return abs, nil
}

// Cache is a simple in-memory cache for imported documents.
type Cache struct {
	data map[string][]*prim.Primitive
	mu   sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]*prim.Primitive),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]*prim.Primitive, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prims, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return prims, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, prims []*prim.Primitive) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = prims
}

// Delete removes an item from cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Stats returns the hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
