package cache

import (
	"context"
	"strings"

	"github.com/oneyeking31/local-explorer/models"
)

// FetchFunc loads a value from the upstream on a cache miss
type FetchFunc func(ctx context.Context) ([]byte, error)

// ReadThrough serves upstream responses from a cache, falling back to stale
// entries when the upstream fails
type ReadThrough struct {
	cache   LevelAwareCache
	logger  Logger
	metrics MetricsRecorder
}

// ReadThroughOption configures a ReadThrough
type ReadThroughOption func(*ReadThrough)

// WithReadThroughLogger sets the logger
func WithReadThroughLogger(logger Logger) ReadThroughOption {
	return func(rt *ReadThrough) {
		rt.logger = logger
	}
}

// WithReadThroughMetrics sets the metrics recorder
func WithReadThroughMetrics(metrics MetricsRecorder) ReadThroughOption {
	return func(rt *ReadThrough) {
		rt.metrics = metrics
	}
}

// NewReadThrough wraps c
func NewReadThrough(c LevelAwareCache, opts ...ReadThroughOption) *ReadThrough {
	rt := &ReadThrough{
		cache:   c,
		logger:  NoopLogger{},
		metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Get returns the cached value for key or calls fetch. A fetch error is
// answered with a stale entry when one is still within its stale window.
func (rt *ReadThrough) Get(ctx context.Context, endpoint, key string, policy models.CacheType, fetch FetchFunc) ([]byte, models.CacheStatus, error) {
	ttl := policy.TTL()
	if ttl.IsZero() {
		data, err := fetch(ctx)
		return data, models.CacheStatusBypass, err
	}

	done := rt.metrics.TimeCacheOperation("get", "multi")
	result := rt.cache.GetWithLevel(key)
	done()

	if result.Found {
		level := strings.ToLower(result.Level.String())
		rt.metrics.RecordCacheHit(endpoint, level, models.CacheStatusHit.String(), result.Entry.Age())
		rt.metrics.RecordCacheBytesRead(level, endpoint, len(result.Entry.Data))
		return result.Entry.Data, models.CacheStatusHit, nil
	}
	rt.metrics.RecordCacheMiss(endpoint)

	data, err := fetch(ctx)
	if err != nil {
		stale := rt.cache.GetStaleWithLevel(key)
		if !stale.Found {
			return nil, models.CacheStatusMiss, err
		}
		level := strings.ToLower(stale.Level.String())
		rt.logger.Warn("serving stale cache entry after upstream failure",
			"endpoint", endpoint,
			"level", level,
			"age", stale.Entry.Age(),
			"error", err)
		rt.metrics.RecordCacheHit(endpoint, level, models.CacheStatusStale.String(), stale.Entry.Age())
		return stale.Entry.Data, models.CacheStatusStale, nil
	}

	done = rt.metrics.TimeCacheOperation("set", "multi")
	rt.cache.Set(key, data, ttl)
	done()
	rt.metrics.RecordCacheSet("multi", endpoint, len(data))

	return data, models.CacheStatusMiss, nil
}
