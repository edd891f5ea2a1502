// Package multi stacks cache levels so a lookup walks from the in-process
// cache to the shared one and stops at the first hit.
package multi

import (
	"github.com/oneyeking31/local-explorer/cache"
	"github.com/oneyeking31/local-explorer/models"
)

var (
	_ cache.Cache           = (*MultiCache)(nil)
	_ cache.LevelAwareCache = (*MultiCache)(nil)
)

type lookupFunc func(c cache.Cache, key string) (*models.CacheEntry, bool)

type MultiCache struct {
	levels  []cache.Cache
	logger  cache.Logger
	promote bool
}

type Option func(*MultiCache)

func WithLogger(logger cache.Logger) Option {
	return func(mc *MultiCache) {
		mc.logger = logger
	}
}

// NewMultiCache orders levels L1 first. With promote set, a hit on a lower
// level is written back to the levels above it.
func NewMultiCache(levels []cache.Cache, promote bool, opts ...Option) *MultiCache {
	mc := &MultiCache{levels: levels, logger: cache.NoopLogger{}, promote: promote}
	for _, opt := range opts {
		opt(mc)
	}
	return mc
}

func (mc *MultiCache) Get(key string) (*models.CacheEntry, bool) {
	res := mc.GetWithLevel(key)
	return res.Entry, res.Found
}

func (mc *MultiCache) GetStale(key string) (*models.CacheEntry, bool) {
	res := mc.GetStaleWithLevel(key)
	return res.Entry, res.Found
}

func (mc *MultiCache) GetWithLevel(key string) *models.CacheResult {
	return mc.find(key, cache.Cache.Get)
}

// GetStaleWithLevel is used when the upstream failed and any unexpired
// copy beats an error
func (mc *MultiCache) GetStaleWithLevel(key string) *models.CacheResult {
	return mc.find(key, cache.Cache.GetStale)
}

func (mc *MultiCache) Set(key string, val []byte, ttl models.TTL) {
	for _, level := range mc.levels {
		level.Set(key, val, ttl)
	}
}

func (mc *MultiCache) Delete(key string) {
	for _, level := range mc.levels {
		level.Delete(key)
	}
}

// GetCacheCount is the number of configured levels
func (mc *MultiCache) GetCacheCount() int {
	return len(mc.levels)
}

func (mc *MultiCache) find(key string, get lookupFunc) *models.CacheResult {
	if len(mc.levels) == 0 {
		mc.logger.Debug("cache lookup with no levels", "key", key)
		return &models.CacheResult{Level: models.CacheLevelMiss}
	}

	for depth, level := range mc.levels {
		entry, ok := get(level, key)
		if !ok {
			continue
		}
		if mc.promote && depth > 0 {
			mc.writeAbove(key, entry, depth)
		}
		return &models.CacheResult{Entry: entry, Found: true, Level: models.CacheLevelFromIndex(depth)}
	}
	return &models.CacheResult{Level: models.CacheLevelMiss}
}

// writeAbove copies entry into the levels above depth with what is left of
// its windows, so the copy expires with the original
func (mc *MultiCache) writeAbove(key string, entry *models.CacheEntry, depth int) {
	if entry == nil || entry.IsExpired() {
		return
	}
	left := entry.RemainingTTL()
	if left.IsZero() {
		return
	}
	for _, level := range mc.levels[:depth] {
		level.Set(key, entry.Data, left)
	}
	mc.logger.Debug("cache entry promoted", "key", key, "from_level", models.CacheLevelFromIndex(depth))
}
