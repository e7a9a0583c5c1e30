package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMini(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := NewRedis(ctx, mr.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestLRUEvicts(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRU(2)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	require.NoError(t, c.Set(ctx, "b", []byte("2")))
	require.NoError(t, c.Set(ctx, "c", []byte("3")))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	v, ok, _ := c.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, "3", string(v))
	assert.Equal(t, 2, c.Len())

	_, err = NewLRU(0)
	assert.Error(t, err)
}

func TestRedisGetSetTTL(t *testing.T) {
	ctx := context.Background()
	rc, mr := newMini(t, time.Minute)

	_, ok, err := rc.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rc.Set(ctx, "k", []byte("v")))
	v, ok, err := rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))

	mr.FastForward(2 * time.Minute)
	_, ok, err = rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisRequiresAddr(t *testing.T) {
	_, err := NewRedis(context.Background(), "", time.Minute)
	assert.Error(t, err)
}

func TestTieredBackfillsLocal(t *testing.T) {
	ctx := context.Background()
	rc, _ := newMini(t, time.Minute)
	local, err := NewLRU(8)
	require.NoError(t, err)
	tc := Tiered{Local: local, Shared: rc}

	require.NoError(t, rc.Set(ctx, "shared-only", []byte("x")))
	v, ok, err := tc.Get(ctx, "shared-only")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", string(v))

	v, ok, _ = local.Get(ctx, "shared-only")
	assert.True(t, ok)
	assert.Equal(t, "x", string(v))

	require.NoError(t, tc.Set(ctx, "both", []byte("y")))
	_, ok, _ = rc.Get(ctx, "both")
	assert.True(t, ok)
}
