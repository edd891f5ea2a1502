package l1

import (
	"context"
	"encoding/json"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/oneyeking31/local-explorer/cache"
	"github.com/oneyeking31/local-explorer/models"
	"github.com/oneyeking31/local-explorer/scheduler"
)

// Ensure BigCache implements cache.Cache
var _ cache.Cache = (*BigCache)(nil)

// lifeWindow outlives the longest policy (fresh plus stale); entries are
// expired by their own timestamps before bigcache evicts them
const lifeWindow = 48 * time.Hour

const statsInterval = 30 * time.Second

// BigCache implements the in-process L1 cache
type BigCache struct {
	cache          *bigcache.BigCache
	logger         cache.Logger
	metrics        cache.MetricsRecorder
	statsScheduler *scheduler.Scheduler
	maxEntrySize   int
	now            func() time.Time
}

// Option is a functional option for configuring BigCache
type Option func(*BigCache)

// WithLogger sets the logger for BigCache
func WithLogger(logger cache.Logger) Option {
	return func(bc *BigCache) {
		bc.logger = logger
	}
}

// WithMetrics sets the metrics recorder for BigCache
func WithMetrics(metrics cache.MetricsRecorder) Option {
	return func(bc *BigCache) {
		bc.metrics = metrics
	}
}

// NewBigCache creates a new BigCache instance
func NewBigCache(cfg *cache.BigCacheConfig, opts ...Option) (*BigCache, error) {
	cfg.ApplyDefaults()

	config := bigcache.DefaultConfig(lifeWindow)
	config.HardMaxCacheSize = cfg.Size
	config.Verbose = false
	config.MaxEntrySize = cfg.MaxEntrySize
	config.Shards = cfg.Shards
	config.CleanWindow = 5 * time.Minute

	c, err := bigcache.New(context.Background(), config)
	if err != nil {
		return nil, err
	}

	bc := &BigCache{
		cache:        c,
		logger:       cache.NoopLogger{},
		metrics:      cache.NoopMetrics{},
		maxEntrySize: cfg.MaxEntrySize,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(bc)
	}

	bc.statsScheduler = scheduler.New(statsInterval, func(context.Context) { bc.updateMetrics() }, scheduler.WithImmediateRun())
	bc.statsScheduler.Start()

	return bc, nil
}

func (bc *BigCache) load(key string) (*models.CacheEntry, bool) {
	data, err := bc.cache.Get(key)
	if err != nil {
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		bc.logger.Warn("failed to unmarshal L1 cache entry", "key", key, "error", err)
		bc.metrics.RecordCacheError("l1", "decode")
		_ = bc.cache.Delete(key)
		return nil, false
	}

	if entry.IsExpired() {
		_ = bc.cache.Delete(key)
		return nil, false
	}

	return &entry, true
}

// Get returns the entry while it is fresh. Stale entries stay stored for GetStale.
func (bc *BigCache) Get(key string) (*models.CacheEntry, bool) {
	entry, ok := bc.load(key)
	if !ok || !entry.IsFresh() {
		return nil, false
	}
	return entry, true
}

// GetStale returns the entry regardless of freshness until it expires
func (bc *BigCache) GetStale(key string) (*models.CacheEntry, bool) {
	return bc.load(key)
}

// Set stores value in cache with TTL
func (bc *BigCache) Set(key string, val []byte, ttl models.TTL) {
	if ttl.IsZero() {
		return
	}

	data, err := json.Marshal(models.NewCacheEntry(val, ttl, bc.now()))
	if err != nil {
		bc.logger.Error("failed to marshal L1 cache entry", "key", key, "error", err)
		bc.metrics.RecordCacheError("l1", "encode")
		return
	}

	if len(data) > bc.maxEntrySize {
		bc.logger.Warn("cache entry too large, skipping L1 cache",
			"key", key,
			"size", len(data),
			"max_size", bc.maxEntrySize)
		bc.metrics.RecordCacheError("l1", "entry_too_large")
		return
	}

	if err := bc.cache.Set(key, data); err != nil {
		bc.logger.Error("failed to set L1 cache entry", "key", key, "error", err)
		bc.metrics.RecordCacheError("l1", "set")
	}
}

// Delete removes entry from cache
func (bc *BigCache) Delete(key string) {
	_ = bc.cache.Delete(key)
}

// Len is the number of stored entries, fresh or not
func (bc *BigCache) Len() int {
	return bc.cache.Len()
}

// Close stops stats collection and releases the cache
func (bc *BigCache) Close() error {
	bc.statsScheduler.Stop()
	return bc.cache.Close()
}

func (bc *BigCache) updateMetrics() {
	bc.metrics.UpdateL1CacheCapacity(int64(bc.cache.Capacity()), int64(bc.cache.Len()))
	bc.metrics.UpdateCacheKeys("l1", int64(bc.cache.Len()))
}
