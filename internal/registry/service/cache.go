package service

import (
	"sync"
	"time"

	"github.com/deathcert/registry/internal/registry/model"
)

type cacheEntry struct {
	cert      model.Certificate
	expiresAt time.Time
}

// lookupCache holds successful lookups by IC for a fixed TTL. A zero TTL
// disables caching.
type lookupCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func newLookupCache(ttl time.Duration) *lookupCache {
	return &lookupCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *lookupCache) get(ic string) (model.Certificate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[ic]
	if !ok || c.now().After(e.expiresAt) {
		return model.Certificate{}, false
	}
	return e.cert, true
}

func (c *lookupCache) set(ic string, cert model.Certificate) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ic] = &cacheEntry{cert: cert, expiresAt: c.now().Add(c.ttl)}
}

func (c *lookupCache) invalidate(ic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ic)
}

func (c *lookupCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// evict drops expired entries and returns how many were removed.
func (c *lookupCache) evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *lookupCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
