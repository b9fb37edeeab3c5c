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

func newTestCache(t *testing.T, opts ...MemoryOption) (*MemoryCache, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(append([]MemoryOption{WithMemoryClock(clk.Now), WithMemoryCleanup(time.Hour)}, opts...)...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc, clk
}

func TestMemoryCacheRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	mc, clk := newTestCache(t)

	type doc struct {
		ID  string
		Vol float64
	}
	require.NoError(t, mc.Set(ctx, "a", doc{ID: "2330", Vol: 12.5}, time.Minute))

	var got doc
	require.NoError(t, mc.Get(ctx, "a", &got))
	assert.Equal(t, doc{ID: "2330", Vol: 12.5}, got)

	clk.Advance(2 * time.Minute)
	assert.ErrorIs(t, mc.Get(ctx, "a", &got), ErrCacheMiss)
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc, _ := newTestCache(t)
	require.NoError(t, mc.MSet(ctx, map[string]interface{}{
		"rankmap:twse:trader:stock:2330": "x",
		"rankmap:twse:trader:stock:2317": "y",
		"rankmap:otc:trader:stock:6488":  "z",
	}, 0))

	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("rankmap:twse:")))
	vals, err := mc.MGet(ctx, "rankmap:twse:trader:stock:2330", "rankmap:otc:trader:stock:6488")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"rankmap:otc:trader:stock:6488": "z"}, vals)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc, clk := newTestCache(t, WithMemoryMaxSize(2))

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	clk.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	clk.Advance(time.Second)
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	clk.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	ok, err := mc.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, mc.Len())
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc, clk := newTestCache(t)

	ok, err := mc.TryLock(ctx, "scope", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = mc.TryLock(ctx, "scope", time.Minute)
	assert.False(t, ok)

	clk.Advance(2 * time.Minute)
	ok, _ = mc.TryLock(ctx, "scope", time.Minute)
	assert.True(t, ok, "expired lock is reclaimable")

	require.NoError(t, mc.Unlock(ctx, "scope"))
	ok, _ = mc.TryLock(ctx, "scope", time.Minute)
	assert.True(t, ok)
}
