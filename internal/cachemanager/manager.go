// Package cachemanager provides a generic TTL cache used by the registry for
// entity snapshots. Hit and miss counts are tracked so the registry can
// expose them through Statistics.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is the caching contract consumed by the registry.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
	Stats() Stats
}

// Stats holds cache effectiveness counters.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}
