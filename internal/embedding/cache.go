package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// cacheEntry holds a vector and its creation time. Entries older than the
// TTL are treated as absent (lazy expiry) and reclaimed on the next write.
type cacheEntry struct {
	vector    []float32
	createdAt time.Time
}

// Cache is a content-addressed embedding cache bounded by TTL and entry
// count. Keys are the sha256 of the input text. Safe for concurrent use;
// racing writers for the same key are last-writer-wins, which is harmless
// since embeddings for identical text are deterministic.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int

	// now is swappable in tests.
	now func() time.Time
}

// NewCache creates a cache holding at most maxEntries vectors, each live
// for ttl after creation.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Key returns the cache key for text.
func Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached vector for text, or false when absent or expired.
func (c *Cache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[Key(text)]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.createdAt) >= c.ttl {
		return nil, false
	}
	return entry.vector, true
}

// Put stores a vector for text, refreshing the creation time if the key
// already exists. Expired entries are evicted first; if the cache is still
// over capacity the oldest entries go next.
func (c *Cache) Put(text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[Key(text)] = cacheEntry{vector: vector, createdAt: c.now()}

	if len(c.entries) <= c.maxEntries {
		return
	}

	c.evictExpiredLocked()
	for len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
}

// Len reports the current entry count, expired entries included until
// their lazy reclamation.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops all entries.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *Cache) evictExpiredLocked() {
	cutoff := c.now().Add(-c.ttl)
	for k, e := range c.entries {
		if !e.createdAt.After(cutoff) {
			delete(c.entries, k)
		}
	}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.createdAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
