package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestMemoryCache_TypedRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	type entry struct {
		T int64   `json:"t"`
		V float64 `json:"v"`
	}
	require.NoError(t, mc.Set(ctx, "k", []entry{{1, 2.5}}, time.Minute))

	var got []entry
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, []entry{{1, 2.5}}, got)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &got), ErrCacheMiss)
}

func TestMemoryCache_MaxAge(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	mc := NewMemoryCache(WithMemoryClock(clock.now))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", 5*time.Minute))
	clock.t = clock.t.Add(4 * time.Minute)
	var s string
	require.NoError(t, mc.Get(ctx, "k", &s))
	assert.Equal(t, "v", s)

	clock.t = clock.t.Add(2 * time.Minute)
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	var n int
	require.NoError(t, mc.Get(ctx, "a", &n)) // a is now most recent
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &n), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &n))
	assert.Equal(t, 1, n)
}

func TestMemoryCache_PurgeAndDelete(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	mc := NewMemoryCache(WithMemoryClock(clock.now))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "old", 1, time.Second))
	require.NoError(t, mc.Set(ctx, "keep", 1, time.Hour))
	require.NoError(t, mc.Set(ctx, "gone", 1, time.Hour))
	clock.t = clock.t.Add(time.Minute)
	mc.purgeExpired()
	require.NoError(t, mc.Delete(ctx, "gone"))
	assert.Equal(t, 1, mc.Len())
}

func TestGetOrLoad(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	calls := 0
	load := func(context.Context) ([]int, error) {
		calls++
		return []int{1, 2}, nil
	}
	v, hit, err := GetOrLoad(ctx, mc, "k", time.Minute, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []int{1, 2}, v)

	v, hit, err = GetOrLoad(ctx, mc, "k", time.Minute, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []int{1, 2}, v)
	assert.Equal(t, 1, calls)
}

func TestParamsKeyStable(t *testing.T) {
	type params struct {
		ID       string
		Range    string
		Interval string
	}
	a, err := ParamsKey("raw", params{"bitcoin", "1d", "5m"})
	require.NoError(t, err)
	b, err := ParamsKey("raw", params{"bitcoin", "1d", "5m"})
	require.NoError(t, err)
	c, err := ParamsKey("raw", params{"bitcoin", "7d", "5m"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^raw:[0-9a-f]{32}$`, a)
}
