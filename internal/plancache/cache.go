// Package plancache caches generated SearchPlans keyed by the fingerprint
// of the output schema's shape, so structurally identical requests skip the
// architect stage.
package plancache

import (
	"sync"

	"github.com/Domusgpt/parserator-sub000/internal/logger"
	"github.com/Domusgpt/parserator-sub000/internal/plan"
)

// DefaultMaxSize bounds the cache when no explicit capacity is given.
const DefaultMaxSize = 100

// Cache is an insertion-order LRU: when full, the oldest-inserted entry is
// evicted regardless of read recency. Mutations are serialized by a coarse
// lock; the cache is small enough that contention is not a concern.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]plan.SearchPlan
	order   []string // fingerprints in insertion order
}

// New creates a Cache with the given capacity. Capacity values below 1 fall
// back to DefaultMaxSize.
func New(maxSize int) *Cache {
	if maxSize < 1 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		maxSize: maxSize,
		entries: make(map[string]plan.SearchPlan, maxSize),
	}
}

// Lookup returns the cached plan for a fingerprint, if any.
func (c *Cache) Lookup(fingerprint string) (plan.SearchPlan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[fingerprint]
	return p, ok
}

// Store inserts or refreshes the plan for a fingerprint, evicting the
// oldest-inserted entry when the cache would exceed capacity.
func (c *Cache) Store(fingerprint string, p plan.SearchPlan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fingerprint]; exists {
		// Refresh moves the entry to the back of the insertion order.
		c.removeFromOrder(fingerprint)
	} else if len(c.entries) >= c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		logger.Debug("plan cache evicted oldest entry", "fingerprint", oldest, "max_size", c.maxSize)
	}

	c.entries[fingerprint] = p
	c.order = append(c.order, fingerprint)
}

// Invalidate removes the entry for a fingerprint, if present.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[fingerprint]; !ok {
		return
	}
	delete(c.entries, fingerprint)
	c.removeFromOrder(fingerprint)
	logger.Debug("plan cache entry invalidated", "fingerprint", fingerprint)
}

// Len returns the number of cached plans.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) removeFromOrder(fingerprint string) {
	for i, fp := range c.order {
		if fp == fingerprint {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
