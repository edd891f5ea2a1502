package l2

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/oneyeking31/local-explorer/cache"
	"github.com/oneyeking31/local-explorer/cache/mock"
	"github.com/oneyeking31/local-explorer/models"
)

func envelope(t *testing.T, staleIn, expiresIn int64) string {
	t.Helper()
	now := time.Now().Unix()
	raw, err := json.Marshal(models.CacheEntry{
		Data:      []byte("places"),
		CreatedAt: now - 10,
		StaleAt:   now + staleIn,
		ExpiresAt: now + expiresIn,
	})
	require.NoError(t, err)
	return string(raw)
}

func newTestKeyDBCache(t *testing.T, opts ...Option) (*KeyDBCache, *mock.MockKeyDbClient) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockKeyDbClient(ctrl)
	return NewKeyDBCache(&cache.KeyDBConfig{}, client, opts...), client
}

func TestKeyDBCache_GetFresh(t *testing.T) {
	c, client := newTestKeyDBCache(t)
	client.EXPECT().Get(gomock.Any(), "k").Return(redis.NewStringResult(envelope(t, 100, 200), nil))

	entry, found := c.Get("k")
	require.True(t, found)
	assert.Equal(t, []byte("places"), entry.Data)
}

func TestKeyDBCache_StaleOnlyFromGetStale(t *testing.T) {
	c, client := newTestKeyDBCache(t)
	stale := envelope(t, -10, 200)
	client.EXPECT().Get(gomock.Any(), "k").Return(redis.NewStringResult(stale, nil)).Times(2)

	_, found := c.Get("k")
	assert.False(t, found)

	entry, found := c.GetStale("k")
	require.True(t, found)
	assert.False(t, entry.IsFresh())
}

func TestKeyDBCache_ExpiredIsDeleted(t *testing.T) {
	c, client := newTestKeyDBCache(t)
	client.EXPECT().Get(gomock.Any(), "k").Return(redis.NewStringResult(envelope(t, -20, -10), nil))
	client.EXPECT().Del(gomock.Any(), "k").Return(redis.NewIntResult(1, nil))

	_, found := c.GetStale("k")
	assert.False(t, found)
}

func TestKeyDBCache_Miss(t *testing.T) {
	ctrl := gomock.NewController(t)
	metrics := mock.NewMockMetricsRecorder(ctrl)
	c, client := newTestKeyDBCache(t, WithMetrics(metrics))
	client.EXPECT().Get(gomock.Any(), "k").Return(redis.NewStringResult("", redis.Nil))

	_, found := c.Get("k")
	assert.False(t, found)
}

func TestKeyDBCache_GetError(t *testing.T) {
	ctrl := gomock.NewController(t)
	metrics := mock.NewMockMetricsRecorder(ctrl)
	metrics.EXPECT().RecordCacheError("l2", "get")

	c, client := newTestKeyDBCache(t, WithMetrics(metrics))
	client.EXPECT().Get(gomock.Any(), "k").Return(redis.NewStringResult("", errors.New("connection refused")))

	_, found := c.GetStale("k")
	assert.False(t, found)
}

func TestKeyDBCache_CorruptEntry(t *testing.T) {
	ctrl := gomock.NewController(t)
	metrics := mock.NewMockMetricsRecorder(ctrl)
	metrics.EXPECT().RecordCacheError("l2", "decode")

	c, client := newTestKeyDBCache(t, WithMetrics(metrics))
	client.EXPECT().Get(gomock.Any(), "k").Return(redis.NewStringResult("{", nil))
	client.EXPECT().Del(gomock.Any(), "k").Return(redis.NewIntResult(1, nil))

	_, found := c.Get("k")
	assert.False(t, found)
}

func TestKeyDBCache_Set(t *testing.T) {
	t.Run("expires after fresh plus stale", func(t *testing.T) {
		c, client := newTestKeyDBCache(t)
		client.EXPECT().
			Set(gomock.Any(), "k", gomock.Any(), 70*time.Minute).
			DoAndReturn(func(_ any, _ string, value any, _ time.Duration) *redis.StatusCmd {
				var entry models.CacheEntry
				require.NoError(t, json.Unmarshal(value.([]byte), &entry))
				assert.Equal(t, []byte("v"), entry.Data)
				assert.Equal(t, int64(600), entry.StaleAt-entry.CreatedAt)
				return redis.NewStatusResult("OK", nil)
			})

		c.Set("k", []byte("v"), models.CacheTypeShort.TTL())
	})

	t.Run("capped at max ttl", func(t *testing.T) {
		c, client := newTestKeyDBCache(t)
		c.cfg.Cache.MaxTTL = time.Hour
		client.EXPECT().Set(gomock.Any(), "k", gomock.Any(), time.Hour).Return(redis.NewStatusResult("OK", nil))

		c.Set("k", []byte("v"), models.CacheTypePermanent.TTL())
	})

	t.Run("zero ttl is skipped", func(t *testing.T) {
		c, _ := newTestKeyDBCache(t)
		c.Set("k", []byte("v"), models.CacheTypeNone.TTL())
	})

	t.Run("error is recorded", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		metrics := mock.NewMockMetricsRecorder(ctrl)
		metrics.EXPECT().RecordCacheError("l2", "set")

		c, client := newTestKeyDBCache(t, WithMetrics(metrics))
		client.EXPECT().Set(gomock.Any(), "k", gomock.Any(), gomock.Any()).Return(redis.NewStatusResult("", errors.New("READONLY")))

		c.Set("k", []byte("v"), models.CacheTypeMinimal.TTL())
	})
}

func TestKeyDBCache_DeleteAndClose(t *testing.T) {
	c, client := newTestKeyDBCache(t)
	client.EXPECT().Del(gomock.Any(), "k").Return(redis.NewIntResult(0, errors.New("timeout")))
	client.EXPECT().Close().Return(nil)

	c.Delete("k")
	assert.NoError(t, c.Close())
}

func TestClientOptions(t *testing.T) {
	cfg := &cache.KeyDBConfig{URL: "redis://:secret@keydb.internal:6380/2"}

	opts, err := ClientOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "keydb.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	_, err = ClientOptions(&cache.KeyDBConfig{URL: "http://nope"})
	assert.Error(t, err)
}

func TestKeyDBCache_KeyPrefix(t *testing.T) {
	c, client := newTestKeyDBCache(t)
	c.cfg.Cache.KeyPrefix = "local-explorer:"

	client.EXPECT().Set(gomock.Any(), "local-explorer:weather|1|2", gomock.Any(), gomock.Any()).Return(redis.NewStatusResult("OK", nil))
	client.EXPECT().Get(gomock.Any(), "local-explorer:weather|1|2").Return(redis.NewStringResult("", redis.Nil))
	client.EXPECT().Del(gomock.Any(), "local-explorer:weather|1|2").Return(redis.NewIntResult(1, nil))

	c.Set("weather|1|2", []byte("v"), models.CacheTypeShort.TTL())
	_, found := c.GetStale("weather|1|2")
	assert.False(t, found)
	c.Delete("weather|1|2")
}
