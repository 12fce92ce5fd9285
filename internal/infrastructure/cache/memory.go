package cache

import (
	"time"

	"storefront-core/pkg/cache"

	gocache "github.com/patrickmn/go-cache"
)

type memoryCache struct {
	store *gocache.Cache
}

// NewMemoryCache creates a go-cache backed CacheService. Items use
// defaultExpiration unless Set passes a non-zero duration; expired items are
// evicted every cleanupInterval.
func NewMemoryCache(defaultExpiration, cleanupInterval time.Duration) cache.CacheService {
	return &memoryCache{
		store: gocache.New(defaultExpiration, cleanupInterval),
	}
}

func (c *memoryCache) Get(key string) (interface{}, bool) {
	return c.store.Get(key)
}

func (c *memoryCache) Set(key string, value interface{}, duration time.Duration) {
	if duration <= 0 {
		duration = gocache.DefaultExpiration
	}
	c.store.Set(key, value, duration)
}

func (c *memoryCache) Add(key string, value interface{}, duration time.Duration) bool {
	if duration <= 0 {
		duration = gocache.DefaultExpiration
	}
	return c.store.Add(key, value, duration) == nil
}

func (c *memoryCache) Delete(key string) {
	c.store.Delete(key)
}

func (c *memoryCache) Flush() {
	c.store.Flush()
}
