package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jstittsworth/nfl-predictor/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniCache(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewCacheService(rdb, testutil.QuietLogger()), mr
}

func TestCacheService_SetGetDelete(t *testing.T) {
	cache, mr := newMiniCache(t)
	ctx := context.Background()

	key := PredictionsCacheKey(2025, 14)
	require.NoError(t, cache.Set(ctx, key, map[string]float64{"KC": 1612.5}, time.Minute))
	assert.True(t, mr.Exists("predictions:2025:14"))

	var got map[string]float64
	require.NoError(t, cache.Get(ctx, key, &got))
	assert.Equal(t, 1612.5, got["KC"])

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, cache.Get(ctx, key, &got), ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, EloRatingsCacheKey(), []int{1}, 0))
	cache.Invalidate(ctx, EloRatingsCacheKey())
	assert.False(t, mr.Exists(EloRatingsCacheKey()))
}

func TestCacheService_Disabled(t *testing.T) {
	ctx := context.Background()
	for _, cache := range []*CacheService{nil, NewCacheService(nil, nil)} {
		assert.False(t, cache.Enabled())
		assert.NoError(t, cache.Set(ctx, "k", 1, time.Minute))
		var v int
		assert.ErrorIs(t, cache.Get(ctx, "k", &v), ErrCacheMiss)
		assert.NoError(t, cache.Delete(ctx, "k"))
		assert.NoError(t, cache.Ping(ctx))
	}
}

func TestCacheService_CorruptEntry(t *testing.T) {
	cache, mr := newMiniCache(t)
	require.NoError(t, mr.Set("predictions:2025:1", "{not json"))

	var v []int
	err := cache.Get(context.Background(), PredictionsCacheKey(2025, 1), &v)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestNewRedisClient(t *testing.T) {
	client, err := NewRedisClient(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, client)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err = NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())

	_, err = NewRedisClient(context.Background(), "not-a-url://")
	assert.Error(t, err)
}
