package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestNewMemoryCache(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()

	assert.NotNil(t, cache)
	assert.NotZero(t, cache.config.DefaultTTL)
	assert.Equal(t, "restdecl:", cache.config.Prefix)
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "test-key", []byte("test-value"), time.Minute))

	got, err := cache.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("test-value"), got)
}

func TestMemoryCache_GetMissing(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()

	_, err := cache.Get(context.Background(), "missing")
	assert.True(t, IsCacheMiss(err))
	assert.EqualError(t, err, "cache miss: missing")
}

func TestMemoryCache_Expiration(t *testing.T) {
	clock := newFakeClock()
	cache := newMemoryCache(DefaultCacheConfig(), clock.Now, time.Hour)
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Second))

	clock.Advance(999 * time.Millisecond)
	_, err := cache.Get(ctx, "k")
	require.NoError(t, err)

	clock.Advance(time.Millisecond)
	_, err = cache.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCache_DefaultAndNegativeTTL(t *testing.T) {
	clock := newFakeClock()
	cache := newMemoryCache(CacheConfig{DefaultTTL: time.Minute}, clock.Now, time.Hour)
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "default", []byte("v"), 0))
	require.NoError(t, cache.Set(ctx, "forever", []byte("v"), -1))

	clock.Advance(24 * time.Hour)

	ok, err := cache.Exists(ctx, "default")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = cache.Exists(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), time.Minute))

	require.NoError(t, cache.Delete(ctx, "a"))
	ok, _ := cache.Exists(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, cache.Clear(ctx))
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	cache := newMemoryCache(DefaultCacheConfig(), clock.Now, time.Hour)
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "short", []byte("v"), time.Second))
	require.NoError(t, cache.Set(ctx, "long", []byte("v"), time.Hour))

	clock.Advance(time.Minute)
	cache.sweep()

	assert.Equal(t, 1, cache.Len())
}

func TestMemoryCache_ContextCancellation(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	t.Run("Get", func(t *testing.T) {
		_, err := cache.Get(ctx, "k")
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run("Set", func(t *testing.T) {
		assert.ErrorIs(t, cache.Set(ctx, "k", []byte("v"), time.Minute), context.Canceled)
	})
	t.Run("Delete", func(t *testing.T) {
		assert.ErrorIs(t, cache.Delete(ctx, "k"), context.Canceled)
	})
	t.Run("Clear", func(t *testing.T) {
		assert.ErrorIs(t, cache.Clear(ctx), context.Canceled)
	})
	t.Run("Exists", func(t *testing.T) {
		_, err := cache.Exists(ctx, "k")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
