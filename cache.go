package shield

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cachedEntry is one stored result with its expiry.
type cachedEntry struct {
	value     any
	expiresAt time.Time
}

// ResultCache is an optional TTL'd cache for results of calls the caller
// declares cacheable. Entries are evicted by the LRU bound or lazily on
// expired reads. Errors are never cached.
type ResultCache struct {
	entries    *lru.Cache[string, cachedEntry]
	defaultTTL time.Duration

	now func() time.Time
}

// NewResultCache creates a cache holding at most size entries with the given
// default TTL.
func NewResultCache(size int, defaultTTL time.Duration) *ResultCache {
	if size <= 0 {
		size = 1024
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	entries, _ := lru.New[string, cachedEntry](size)
	return &ResultCache{
		entries:    entries,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns a live cached value for key. Expired entries are removed.
func (c *ResultCache) Get(key string) (any, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Set stores a value under key. A non-positive ttl uses the cache default.
func (c *ResultCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.entries.Add(key, cachedEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	})
}

// Len returns the number of stored entries, including not-yet-evicted
// expired ones.
func (c *ResultCache) Len() int {
	return c.entries.Len()
}

// Purge discards all entries.
func (c *ResultCache) Purge() {
	c.entries.Purge()
}
