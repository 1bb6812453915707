package providers

import (
	"attendees/internal/structures"
	"time"
	"unsafe"

	"github.com/coocood/freecache"
)

// CacheProviderInterface holds short-lived fan-out results on the coordinator.
type CacheProviderInterface interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	// Clear drops every entry. Called whenever the shard set changes.
	Clear()
}

type CacheProvider struct {
	cache *freecache.Cache
	ttl   int
}

func NewCacheProvider(conf *structures.Config, logger Logger) CacheProviderInterface {
	if !conf.Cache.Enabled || conf.Cache.Size <= 0 {
		logger.Infof(TypeApp, "Fan-out cache disabled")
		return &noopCache{}
	}

	sizeBytes := conf.Cache.Size * 1024 * 1024
	ttl := cacheTTLSeconds(conf.Coordinator.CacheTTL)

	logger.Infof(TypeApp, "Fan-out cache initialized: %dMB, TTL=%ds", conf.Cache.Size, ttl)

	return &CacheProvider{
		cache: freecache.NewCache(sizeBytes),
		ttl:   ttl,
	}
}

// cacheTTLSeconds rounds up to whole seconds, the granularity freecache
// expires on.
func cacheTTLSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 1
	}
	return int((ttl + time.Second - 1) / time.Second)
}

// keyBytes avoids copying the key; freecache copies keys internally.
func keyBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func (c *CacheProvider) Get(key string) ([]byte, bool) {
	val, err := c.cache.Get(keyBytes(key))
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *CacheProvider) Set(key string, value []byte) {
	_ = c.cache.Set(keyBytes(key), value, c.ttl)
}

func (c *CacheProvider) Clear() {
	c.cache.Clear()
}

type noopCache struct{}

func (n *noopCache) Get(_ string) ([]byte, bool) { return nil, false }
func (n *noopCache) Set(_ string, _ []byte)      {}
func (n *noopCache) Clear()                      {}
