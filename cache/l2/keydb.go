package l2

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/oneyeking31/local-explorer/cache"
	"github.com/oneyeking31/local-explorer/models"
)

var _ cache.Cache = (*KeyDBCache)(nil)

// KeyDBCache is the shared level. Entries are stored as JSON envelopes so
// every backend instance sees the same fresh and stale windows.
type KeyDBCache struct {
	client  cache.KeyDbClient
	cfg     *cache.KeyDBConfig
	logger  cache.Logger
	metrics cache.MetricsRecorder
	now     func() time.Time
}

type Option func(*KeyDBCache)

func WithLogger(logger cache.Logger) Option {
	return func(kc *KeyDBCache) {
		kc.logger = logger
	}
}

func WithMetrics(metrics cache.MetricsRecorder) Option {
	return func(kc *KeyDBCache) {
		kc.metrics = metrics
	}
}

func NewKeyDBCache(cfg *cache.KeyDBConfig, client cache.KeyDbClient, opts ...Option) *KeyDBCache {
	cfg.ApplyDefaults()
	kc := &KeyDBCache{
		client:  client,
		cfg:     cfg,
		logger:  cache.NoopLogger{},
		metrics: cache.NoopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(kc)
	}
	return kc
}

func (kc *KeyDBCache) Get(key string) (*models.CacheEntry, bool) {
	entry, ok := kc.read(key)
	if !ok || !entry.IsFresh() {
		return nil, false
	}
	return entry, true
}

func (kc *KeyDBCache) GetStale(key string) (*models.CacheEntry, bool) {
	return kc.read(key)
}

// Set writes val with a store expiry covering both windows of ttl, never
// longer than the configured maximum
func (kc *KeyDBCache) Set(key string, val []byte, ttl models.TTL) {
	if ttl.IsZero() {
		return
	}

	raw, err := json.Marshal(models.NewCacheEntry(val, ttl, kc.now()))
	if err != nil {
		kc.fail("encode", key, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), kc.cfg.Connection.SendTimeout)
	defer cancel()
	if err := kc.client.Set(ctx, kc.storeKey(key), raw, min(ttl.Total(), kc.cfg.Cache.MaxTTL)).Err(); err != nil {
		kc.fail("set", key, err)
	}
}

func (kc *KeyDBCache) Delete(key string) {
	kc.remove(key)
}

func (kc *KeyDBCache) Close() error {
	return kc.client.Close()
}

func (kc *KeyDBCache) read(key string) (*models.CacheEntry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), kc.cfg.Connection.ReadTimeout)
	defer cancel()

	raw, err := kc.client.Get(ctx, kc.storeKey(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false
	case err != nil:
		kc.fail("get", key, err)
		return nil, false
	}

	entry := new(models.CacheEntry)
	if err := json.Unmarshal(raw, entry); err != nil {
		kc.fail("decode", key, err)
		kc.remove(key)
		return nil, false
	}
	if entry.IsExpired() {
		kc.remove(key)
		return nil, false
	}
	return entry, true
}

func (kc *KeyDBCache) remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), kc.cfg.Connection.SendTimeout)
	defer cancel()
	if err := kc.client.Del(ctx, kc.storeKey(key)).Err(); err != nil {
		kc.logger.Warn("l2 cache delete failed", "key", key, "error", err)
	}
}

func (kc *KeyDBCache) fail(op, key string, err error) {
	kc.logger.Warn("l2 cache "+op+" failed", "key", key, "error", err)
	kc.metrics.RecordCacheError("l2", op)
}

func (kc *KeyDBCache) storeKey(key string) string {
	return kc.cfg.Cache.KeyPrefix + key
}
