package noop

import (
	"github.com/oneyeking31/local-explorer/cache"
	"github.com/oneyeking31/local-explorer/models"
)

var _ cache.LevelAwareCache = (*NoOpCache)(nil)

// NoOpCache stands in when every cache level is disabled; every lookup misses
type NoOpCache struct{}

func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (n *NoOpCache) Get(string) (*models.CacheEntry, bool)      { return nil, false }
func (n *NoOpCache) GetStale(string) (*models.CacheEntry, bool) { return nil, false }
func (n *NoOpCache) Set(string, []byte, models.TTL)             {}
func (n *NoOpCache) Delete(string)                              {}

func (n *NoOpCache) GetWithLevel(string) *models.CacheResult {
	return &models.CacheResult{Level: models.CacheLevelMiss}
}

func (n *NoOpCache) GetStaleWithLevel(string) *models.CacheResult {
	return &models.CacheResult{Level: models.CacheLevelMiss}
}
