package services

import (
	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"
)

const (
	dedupSizeBytes  = 4 * 1024 * 1024
	dedupTTLSeconds = 24 * 60 * 60
)

// dedupLog remembers the outcome of idempotent calls. Memory is bounded by
// size and entries expire after ttl, so a retry arriving later than that is
// treated as a new call.
type dedupLog[T any] struct {
	cache *freecache.Cache
	ttl   int
}

func newDedupLog[T any](sizeBytes, ttlSeconds int) *dedupLog[T] {
	return &dedupLog[T]{cache: freecache.NewCache(sizeBytes), ttl: ttlSeconds}
}

func (d *dedupLog[T]) get(key string) (T, bool) {
	var v T
	if key == "" {
		return v, false
	}
	raw, err := d.cache.Get([]byte(key))
	if err != nil {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}

func (d *dedupLog[T]) put(key string, v T) {
	if key == "" {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = d.cache.Set([]byte(key), raw, d.ttl)
}

func (d *dedupLog[T]) len() int64 {
	return d.cache.EntryCount()
}
