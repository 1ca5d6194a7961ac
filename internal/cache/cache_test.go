package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	Use(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = Close() })
	return mr
}

type listing struct {
	IDs []uint `json:"ids"`
}

func TestRemember_HitAndMiss(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()
	key := SwapListKey("CS101", "open")

	calls := 0
	load := func() (listing, error) {
		calls++
		return listing{IDs: []uint{3, 2, 1}}, nil
	}

	first, err := Remember(ctx, key, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, []uint{3, 2, 1}, first.IDs)
	assert.True(t, mr.Exists(key))

	second, err := Remember(ctx, key, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls, "second read should be served from cache")

	mr.FastForward(2 * time.Minute)
	_, err = Remember(ctx, key, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRemember_ZeroTTLBypasses(t *testing.T) {
	mr := setupMiniredis(t)
	key := SwapListKey("", "")

	got, err := Remember(context.Background(), key, 0, func() (listing, error) {
		return listing{IDs: []uint{1}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, got.IDs)
	assert.False(t, mr.Exists(key))
}

func TestRemember_CorruptEntryReloads(t *testing.T) {
	mr := setupMiniredis(t)
	key := SwapListKey("CS101", "")
	require.NoError(t, mr.Set(key, "{not json"))

	got, err := Remember(context.Background(), key, time.Minute, func() (listing, error) {
		return listing{IDs: []uint{9}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{9}, got.IDs)
}

func TestRemember_LoadError(t *testing.T) {
	mr := setupMiniredis(t)
	boom := errors.New("db down")
	key := SwapListKey("CS101", "")

	_, err := Remember(context.Background(), key, time.Minute, func() (listing, error) {
		return listing{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(key), "failures are not cached")
}

func TestRemember_NoRedis(t *testing.T) {
	Use(nil)
	calls := 0
	for i := 0; i < 2; i++ {
		_, err := Remember(context.Background(), "k", time.Minute, func() (listing, error) {
			calls++
			return listing{}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestInvalidateSwapLists(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		require.NoError(t, mr.Set(SwapListKey("C"+string(rune('A'+i%26)), string(rune('a'+i/26))), "[]"))
	}
	require.NoError(t, mr.Set(BlacklistKey("abc"), "1"))

	InvalidateSwapLists(ctx)

	assert.Equal(t, []string{BlacklistKey("abc")}, mr.Keys(), "only listing keys are dropped")
}

func TestConnect_Unreachable(t *testing.T) {
	assert.Nil(t, Connect("redis://:bad@127.0.0.1:1/0"))
	assert.Nil(t, Connect("redis://%zz"))
}

func TestSwapListKey(t *testing.T) {
	assert.Equal(t, "swaps:list:course=CS101:status=open", SwapListKey("CS101", "open"))
	assert.NotEqual(t, SwapListKey("CS101", ""), SwapListKey("", "CS101"))
}
