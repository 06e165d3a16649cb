package cache

import (
	"sync"
	"time"

	"github.com/valutatrade/parser-service/internal/domain/entity"
)

// batchEntry is one cached upstream batch with its fetch time.
type batchEntry struct {
	pairs     []entity.RatePair
	fetchedAt time.Time
}

// QuoteCache is a thread-safe, short-TTL cache of upstream fetch results,
// keyed by source name. It keeps repeated update calls from hammering the
// rate providers inside one TTL window.
type QuoteCache struct {
	cache map[string]batchEntry
	ttl   time.Duration
	mutex sync.RWMutex
}

// NewQuoteCache creates a quote cache with the given TTL. A zero TTL
// disables caching entirely.
func NewQuoteCache(ttl time.Duration) *QuoteCache {
	return &QuoteCache{
		cache: make(map[string]batchEntry),
		ttl:   ttl,
	}
}

// Get returns the cached batch for a source if present and not expired.
func (c *QuoteCache) Get(source string) ([]entity.RatePair, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.ttl <= 0 {
		return nil, false
	}
	entry, exists := c.cache[source]
	if !exists || time.Since(entry.fetchedAt) > c.ttl {
		return nil, false
	}
	return entry.pairs, true
}

// Put stores a fetched batch for a source.
func (c *QuoteCache) Put(source string, pairs []entity.RatePair) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cache[source] = batchEntry{
		pairs:     pairs,
		fetchedAt: time.Now(),
	}
}

// Clear drops all cached batches.
func (c *QuoteCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cache = make(map[string]batchEntry)
}

// Size returns the number of cached batches.
func (c *QuoteCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.cache)
}
