package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryCacheManager_GetSet(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("test", DefaultExpiration, DefaultCleanupInterval)

	_, ok := cache.Get(ctx, "missing")
	require.False(t, ok)

	cache.Set(ctx, "a", 1, time.Minute)
	got, ok := cache.Get(ctx, "a")
	require.True(t, ok)
	require.Equal(t, 1, got)

	// Overwrite.
	cache.Set(ctx, "a", 2, time.Minute)
	got, _ = cache.Get(ctx, "a")
	require.Equal(t, 2, got)
}

func TestInMemoryCacheManager_Delete(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "a", "x", time.Minute)
	cache.Set(ctx, "b", "y", time.Minute)
	require.NoError(t, cache.Delete(ctx, "a", "b", "never-existed"))

	_, ok := cache.Get(ctx, "a")
	require.False(t, ok)
	_, ok = cache.Get(ctx, "b")
	require.False(t, ok)
}

func TestInMemoryCacheManager_Flush(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "a", "x", time.Minute)
	require.NoError(t, cache.Flush(ctx))

	_, ok := cache.Get(ctx, "a")
	require.False(t, ok)
}

func TestInMemoryCacheManager_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "a", "x", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, ok := cache.Get(ctx, "a")
	require.False(t, ok)
}

func TestInMemoryCacheManager_Stats(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("test", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "a", 1, time.Minute)
	cache.Get(ctx, "a")
	cache.Get(ctx, "a")
	cache.Get(ctx, "missing")

	stats := cache.Stats()
	require.Equal(t, uint64(2), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
}
