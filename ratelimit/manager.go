package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/time/rate"

	"github.com/oneyeking31/local-explorer/apikeys"
)

// IRateLimiterManager provides a way to get a rate limiter for a specific key
type IRateLimiterManager interface {
	GetLimiter(key string, keyType apikeys.KeyType) *rate.Limiter
	SetConfig(config map[apikeys.KeyType]RateLimit)
}

var _ IRateLimiterManager = (*RateLimiterManager)(nil)

type limiterKey struct {
	keyType apikeys.KeyType
	key     string
}

// RateLimiterManager manages per-key rate limiters
type RateLimiterManager struct {
	mu       sync.RWMutex
	limiters map[limiterKey]*rate.Limiter
	config   map[apikeys.KeyType]RateLimit
}

// NewRateLimiterManager creates a new rate limiter manager
func NewRateLimiterManager(config map[apikeys.KeyType]RateLimit) *RateLimiterManager {
	return &RateLimiterManager{
		limiters: make(map[limiterKey]*rate.Limiter),
		config:   config,
	}
}

// SetConfig applies a new configuration. Existing limiters are dropped and
// rebuilt lazily on the next GetLimiter.
func (m *RateLimiterManager) SetConfig(newConfig map[apikeys.KeyType]RateLimit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = newConfig
	clear(m.limiters)
}

// GetLimiter returns a limiter for a given key and type, creating it if missing
func (m *RateLimiterManager) GetLimiter(key string, keyType apikeys.KeyType) *rate.Limiter {
	k := limiterKey{keyType: keyType, key: key}

	m.mu.RLock()
	if lim, ok := m.limiters[k]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if lim, ok := m.limiters[k]; ok {
		return lim
	}

	limit := m.limitForType(keyType)
	limiter := rate.NewLimiter(limit, m.burstForType(keyType, limit))
	m.limiters[k] = limiter
	return limiter
}

// Wait blocks until the key may spend one request or ctx is done
func (m *RateLimiterManager) Wait(ctx context.Context, key string, keyType apikeys.KeyType) error {
	if err := m.GetLimiter(key, keyType).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s key: %w", keyType, err)
	}
	return nil
}

func (m *RateLimiterManager) limitForType(keyType apikeys.KeyType) rate.Limit {
	if cfg, ok := m.config[keyType]; ok && cfg.RateLimitPerMinute > 0 {
		return rate.Limit(float64(cfg.RateLimitPerMinute) / 60.0)
	}
	return rate.Limit(DefaultRateLimitPerMinute / 60.0)
}

func (m *RateLimiterManager) burstForType(keyType apikeys.KeyType, limit rate.Limit) int {
	if cfg, ok := m.config[keyType]; ok && cfg.Burst > 0 {
		return cfg.Burst
	}
	return defaultBurstForLimit(limit)
}

func defaultBurstForLimit(limit rate.Limit) int {
	if limit <= 1.0 {
		return 1
	}
	return int(math.Ceil(float64(limit)))
}
