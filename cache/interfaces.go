package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/oneyeking31/local-explorer/models"
)

//go:generate mockgen -package=mock -source=interfaces.go -destination=mock/cache.go

// Cache interface defines the contract for cache implementations
type Cache interface {
	// Get returns an entry only while it is fresh
	Get(key string) (*models.CacheEntry, bool)
	// GetStale returns any entry that has not expired (stale-if-error)
	GetStale(key string) (*models.CacheEntry, bool)
	Set(key string, val []byte, ttl models.TTL)
	Delete(key string)
}

// LevelAwareCache interface extends Cache with level-aware operations
type LevelAwareCache interface {
	Cache
	GetWithLevel(key string) *models.CacheResult
	GetStaleWithLevel(key string) *models.CacheResult // stale-if-error
}

// KeyDbClient defines the interface for KeyDB/Redis client operations
type KeyDbClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Logger is the subset of *slog.Logger the cache layer logs through
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder records cache activity per backend endpoint
type MetricsRecorder interface {
	RecordCacheError(level, kind string)
	UpdateL1CacheCapacity(capacity, used int64)
	UpdateCacheKeys(level string, count int64)
	RecordCacheHit(endpoint, level, status string, itemAge time.Duration)
	RecordCacheMiss(endpoint string)
	RecordCacheSet(level, endpoint string, dataSize int)
	RecordCacheBytesRead(level, endpoint string, bytesRead int)
	TimeCacheOperation(operation, level string) func()
}

// NoopLogger discards all log messages
type NoopLogger struct{}

func (NoopLogger) Debug(msg string, args ...any) {}
func (NoopLogger) Info(msg string, args ...any)  {}
func (NoopLogger) Warn(msg string, args ...any)  {}
func (NoopLogger) Error(msg string, args ...any) {}

// NoopMetrics discards all metrics
type NoopMetrics struct{}

func (NoopMetrics) RecordCacheError(level, kind string)                                  {}
func (NoopMetrics) UpdateL1CacheCapacity(capacity, used int64)                           {}
func (NoopMetrics) UpdateCacheKeys(level string, count int64)                            {}
func (NoopMetrics) RecordCacheHit(endpoint, level, status string, itemAge time.Duration) {}
func (NoopMetrics) RecordCacheMiss(endpoint string)                                      {}
func (NoopMetrics) RecordCacheSet(level, endpoint string, dataSize int)                  {}
func (NoopMetrics) RecordCacheBytesRead(level, endpoint string, bytesRead int)           {}
func (NoopMetrics) TimeCacheOperation(operation, level string) func()                    { return func() {} }
