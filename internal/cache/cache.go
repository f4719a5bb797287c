// Package cache provides a namespaced, TTL-based cache for expensive
// operations such as extraction calls and document conversions.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Config configures the cache.
type Config struct {
	// TTL is how long entries stay valid. Reads after expiry are misses.
	TTL time.Duration `koanf:"ttl"`

	// CleanupInterval is how often expired entries are purged.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:             24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// Cache is a namespaced TTL key-value store. It is safe for concurrent
// use across sessions; namespacing keeps different extractors' and
// conversion steps' entries from colliding.
type Cache struct {
	backend *gocache.Cache
}

// New creates a cache from config.
func New(cfg Config) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultConfig().TTL
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = DefaultConfig().CleanupInterval
	}
	return &Cache{
		backend: gocache.New(ttl, cleanup),
	}
}

// Get returns the cached value for (namespace, key), or false on a miss.
// Expired entries are misses.
func (c *Cache) Get(namespace, key string) ([]byte, bool) {
	v, ok := c.backend.Get(namespace + ":" + key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Set stores a value under (namespace, key) with the default TTL.
func (c *Cache) Set(namespace, key string, value []byte) {
	c.backend.Set(namespace+":"+key, value, gocache.DefaultExpiration)
}

// SetWithTTL stores a value with an explicit TTL.
func (c *Cache) SetWithTTL(namespace, key string, value []byte, ttl time.Duration) {
	c.backend.Set(namespace+":"+key, value, ttl)
}

// ContentKey derives a stable cache key from content. Callers combine it
// with a namespace carrying the extractor identity.
func ContentKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
