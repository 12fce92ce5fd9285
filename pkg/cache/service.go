package cache

import "time"

// CacheService is a process-local key/value cache with per-item expiry.
type CacheService interface {
	// Get returns the value and true if present and not expired.
	Get(key string) (interface{}, bool)

	Set(key string, value interface{}, duration time.Duration)

	// Add stores value only if key is absent or expired and reports whether it did.
	Add(key string, value interface{}, duration time.Duration) bool

	Delete(key string)

	Flush()
}

// Key builds a namespaced cache key such as "intent:abc".
func Key(namespace, id string) string {
	return namespace + ":" + id
}
