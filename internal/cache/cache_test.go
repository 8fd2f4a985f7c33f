package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func TestRedisGetMiss(t *testing.T) {
	r, _ := newTestRedis(t)
	_, err := r.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrMiss)
}

func TestRedisIncrExpire(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	n, err := r.Incr(ctx, "ratelimit:1.2.3.4")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.NoError(t, r.Expire(ctx, "ratelimit:1.2.3.4", time.Minute))

	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists("ratelimit:1.2.3.4"))
}

func TestNewRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedis(ctx, Options{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}

func TestRedisTokenSet(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)
	set := NewRedisTokenSet(r)

	ok, err := set.Claim(ctx, "abc", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = set.Claim(ctx, "abc", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, set.Release(ctx, "abc"))
	ok, err = set.Claim(ctx, "abc", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, err = set.Claim(ctx, "abc", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryTokenSet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	set := NewMemoryTokenSet()
	set.Now = func() time.Time { return now }

	ok, _ := set.Claim(ctx, "abc", time.Minute)
	require.True(t, ok)
	ok, _ = set.Claim(ctx, "abc", time.Minute)
	require.False(t, ok)
	require.Equal(t, 1, set.Len())

	now = now.Add(time.Minute)
	require.Equal(t, 0, set.Len())
	ok, _ = set.Claim(ctx, "abc", time.Minute)
	require.True(t, ok)

	require.NoError(t, set.Release(ctx, "abc"))
	ok, _ = set.Claim(ctx, "abc", time.Minute)
	require.True(t, ok)
}
