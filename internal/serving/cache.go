// Package serving answers price predictions from trained bundles, loading
// each make's bundle from the object store on first use and keeping it in
// memory afterwards.
package serving

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kalambet/appraise/internal/blob"
	"github.com/kalambet/appraise/internal/bundle"
)

// Cache holds decoded bundles keyed by make. Concurrent first requests for
// the same make share a single store fetch; a failed load caches nothing, so
// the next request retries.
type Cache struct {
	store blob.ObjectStore
	group singleflight.Group

	mu      sync.RWMutex
	bundles map[string]*bundle.Bundle
}

// NewCache creates an empty cache backed by the given object store.
func NewCache(store blob.ObjectStore) *Cache {
	return &Cache{
		store:   store,
		bundles: make(map[string]*bundle.Bundle),
	}
}

// GetOrLoad returns the make's bundle, fetching and decoding it on first use.
// Returns blob.ErrNotExist (wrapped) when no bundle has been published for
// the make.
func (c *Cache) GetOrLoad(ctx context.Context, makeName string) (*bundle.Bundle, error) {
	c.mu.RLock()
	b, ok := c.bundles[makeName]
	c.mu.RUnlock()
	if ok {
		return b, nil
	}

	v, err, _ := c.group.Do(makeName, func() (any, error) {
		// Re-check under the group: a concurrent caller may have finished
		// loading between our read and the flight starting.
		c.mu.RLock()
		cached, ok := c.bundles[makeName]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		data, err := c.store.Get(ctx, bundle.Key(makeName))
		if err != nil {
			bundleLoadsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("fetching bundle for %s: %w", makeName, err)
		}
		loaded, err := bundle.Open(data)
		if err != nil {
			bundleLoadsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("opening bundle for %s: %w", makeName, err)
		}
		bundleLoadsTotal.WithLabelValues("ok").Inc()

		c.mu.Lock()
		c.bundles[makeName] = loaded
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bundle.Bundle), nil
}

// Invalidate drops the make's cached bundle so the next request reloads it
// from the store. Called after a training run replaces the archive.
func (c *Cache) Invalidate(makeName string) {
	c.mu.Lock()
	delete(c.bundles, makeName)
	c.mu.Unlock()
}

// Loaded returns the makes currently held in memory, sorted.
func (c *Cache) Loaded() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	makes := make([]string, 0, len(c.bundles))
	for m := range c.bundles {
		makes = append(makes, m)
	}
	sort.Strings(makes)
	return makes
}
