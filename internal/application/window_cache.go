package application

import (
	"sync"
	"time"
)

// windowCache holds resolved window configurations per scope for a short TTL.
// Readers may observe a window up to ttl old; UpdateWindow invalidates.
type windowCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]windowCacheEntry
}

type windowCacheEntry struct {
	config    WindowConfig
	expiresAt time.Time
}

func newWindowCache(ttl time.Duration, maxEntries int, now func() time.Time) *windowCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if now == nil {
		now = time.Now
	}
	return &windowCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]windowCacheEntry),
	}
}

func (c *windowCache) Get(scope string) (WindowConfig, bool) {
	if c == nil {
		return WindowConfig{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[scope]
	c.mu.RUnlock()
	if !ok {
		return WindowConfig{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, scope)
		c.mu.Unlock()
		return WindowConfig{}, false
	}
	return entry.config, true
}

func (c *windowCache) Store(scope string, cfg WindowConfig) {
	if c == nil {
		return
	}
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[scope] = windowCacheEntry{config: cfg, expiresAt: expiry}
}

// Invalidate drops every entry. A global window change affects every scope
// that falls back to it, so per-scope invalidation is not enough.
func (c *windowCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]windowCacheEntry)
	c.mu.Unlock()
}

func (c *windowCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *windowCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}
