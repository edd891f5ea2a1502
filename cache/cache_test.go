package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/oneyeking31/local-explorer/cache"
	"github.com/oneyeking31/local-explorer/cache/mock"
	"github.com/oneyeking31/local-explorer/models"
)

func entryAged(data string, staleIn int64) *models.CacheEntry {
	now := time.Now().Unix()
	return &models.CacheEntry{Data: []byte(data), CreatedAt: now - 30, StaleAt: now + staleIn, ExpiresAt: now + 3600}
}

func TestReadThrough_Hit(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewMockLevelAwareCache(ctrl)
	metrics := mock.NewMockMetricsRecorder(ctrl)

	c.EXPECT().GetWithLevel("weather:1,2").Return(&models.CacheResult{Entry: entryAged("cached", 60), Found: true, Level: models.CacheLevelL2})
	metrics.EXPECT().TimeCacheOperation("get", "multi").Return(func() {})
	metrics.EXPECT().RecordCacheHit("weather", "l2", "HIT", gomock.Any())
	metrics.EXPECT().RecordCacheBytesRead("l2", "weather", 6)

	rt := cache.NewReadThrough(c, cache.WithReadThroughMetrics(metrics))
	data, status, err := rt.Get(context.Background(), "weather", "weather:1,2", models.CacheTypeShort, func(context.Context) ([]byte, error) {
		t.Fatal("fetch must not run on a hit")
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "cached", string(data))
	assert.Equal(t, models.CacheStatusHit, status)
}

func TestReadThrough_MissStoresWithPolicyTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewMockLevelAwareCache(ctrl)

	c.EXPECT().GetWithLevel("k").Return(&models.CacheResult{Level: models.CacheLevelMiss})
	c.EXPECT().Set("k", []byte("fresh"), models.CacheTypePermanent.TTL())

	rt := cache.NewReadThrough(c)
	data, status, err := rt.Get(context.Background(), "places", "k", models.CacheTypePermanent, func(context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})

	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
	assert.Equal(t, models.CacheStatusMiss, status)
}

func TestReadThrough_StaleIfError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewMockLevelAwareCache(ctrl)
	logger := mock.NewMockLogger(ctrl)

	c.EXPECT().GetWithLevel("k").Return(&models.CacheResult{Level: models.CacheLevelMiss})
	c.EXPECT().GetStaleWithLevel("k").Return(&models.CacheResult{Entry: entryAged("old", -10), Found: true, Level: models.CacheLevelL1})
	logger.EXPECT().Warn("serving stale cache entry after upstream failure", gomock.Any())

	rt := cache.NewReadThrough(c, cache.WithReadThroughLogger(logger))
	data, status, err := rt.Get(context.Background(), "weather", "k", models.CacheTypeShort, func(context.Context) ([]byte, error) {
		return nil, errors.New("upstream down")
	})

	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	assert.Equal(t, models.CacheStatusStale, status)
}

func TestReadThrough_ErrorWithoutStale(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewMockLevelAwareCache(ctrl)
	boom := errors.New("upstream down")

	c.EXPECT().GetWithLevel("k").Return(&models.CacheResult{Level: models.CacheLevelMiss})
	c.EXPECT().GetStaleWithLevel("k").Return(&models.CacheResult{Level: models.CacheLevelMiss})

	rt := cache.NewReadThrough(c)
	_, status, err := rt.Get(context.Background(), "weather", "k", models.CacheTypeShort, func(context.Context) ([]byte, error) {
		return nil, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, models.CacheStatusMiss, status)
}

func TestReadThrough_NonePolicyBypasses(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewMockLevelAwareCache(ctrl)

	rt := cache.NewReadThrough(c)
	data, status, err := rt.Get(context.Background(), "suggestions", "k", models.CacheTypeNone, func(context.Context) ([]byte, error) {
		return []byte("live"), nil
	})

	require.NoError(t, err)
	assert.Equal(t, "live", string(data))
	assert.Equal(t, models.CacheStatusBypass, status)
}

func TestNoopImplementations(t *testing.T) {
	var logger cache.Logger = cache.NoopLogger{}
	logger.Debug("msg", "k", 1)
	logger.Error("msg")

	var metrics cache.MetricsRecorder = cache.NoopMetrics{}
	metrics.RecordCacheHit("weather", "l1", "HIT", time.Second)
	metrics.TimeCacheOperation("get", "l1")()
}
