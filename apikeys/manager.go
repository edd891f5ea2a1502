package apikeys

import (
	"log/slog"
	"sync"
	"time"
)

// IAPIKeyManager defines the interface for API key management
type IAPIKeyManager interface {
	// GetAvailableKeys returns the keys of the given types that are not in backoff
	GetAvailableKeys(keyTypes ...KeyType) []APIKey

	// MarkKeyAsFailed marks a key as failed, which will put it in backoff
	MarkKeyAsFailed(key string)

	// HasKeys reports whether any key of the type is configured
	HasKeys(keyType KeyType) bool
}

var _ IAPIKeyManager = (*APIKeyManager)(nil)

// APIKeyManager implements IAPIKeyManager with backoff support
type APIKeyManager struct {
	provider    KeyProvider
	lastFailed  map[string]time.Time
	backoffTime time.Duration
	logger      *slog.Logger
	mu          sync.RWMutex
}

// ManagerOption configures an APIKeyManager
type ManagerOption func(*APIKeyManager)

// WithLogger sets the logger used for backoff events
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *APIKeyManager) {
		m.logger = logger
	}
}

// NewAPIKeyManager creates a new API key manager. A zero backoff means five minutes.
func NewAPIKeyManager(provider KeyProvider, backoff time.Duration, opts ...ManagerOption) *APIKeyManager {
	if backoff == 0 {
		backoff = 5 * time.Minute
	}
	m := &APIKeyManager{
		provider:    provider,
		lastFailed:  make(map[string]time.Time),
		backoffTime: backoff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// failedAt returns when key last failed, if that is within the backoff period
func (m *APIKeyManager) failedAt(key string) (time.Time, bool) {
	if key == "" {
		return time.Time{}, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	at, ok := m.lastFailed[key]
	if !ok || time.Since(at) >= m.backoffTime {
		return time.Time{}, false
	}
	return at, true
}

// HasKeys reports whether any key of keyType is configured, in backoff or not
func (m *APIKeyManager) HasKeys(keyType KeyType) bool {
	return len(m.provider.GetKeys(keyType)) > 0
}

// GetAvailableKeys returns keys in the priority order of keyTypes, skipping
// keys in backoff. When every key of a type is in backoff the one that failed
// longest ago is still returned, so callers see the upstream error instead of
// an empty key list.
func (m *APIKeyManager) GetAvailableKeys(keyTypes ...KeyType) []APIKey {
	var availableKeys []APIKey

	for _, keyType := range keyTypes {
		var (
			usable     int
			oldest     string
			oldestTime time.Time
		)
		for _, key := range m.provider.GetKeys(keyType) {
			at, inBackoff := m.failedAt(key)
			if !inBackoff {
				availableKeys = append(availableKeys, APIKey{Key: key, Type: keyType, Source: SourceProcessEnv})
				usable++
				continue
			}
			if oldest == "" || at.Before(oldestTime) {
				oldest, oldestTime = key, at
			}
		}
		if usable == 0 && oldest != "" {
			availableKeys = append(availableKeys, APIKey{Key: oldest, Type: keyType, Source: SourceProcessEnv})
		}
	}

	return availableKeys
}

// MarkKeyAsFailed marks a key as non-working for the backoff period
func (m *APIKeyManager) MarkKeyAsFailed(key string) {
	if key == "" {
		return
	}

	m.mu.Lock()
	m.lastFailed[key] = time.Now()
	m.mu.Unlock()

	m.logger.Warn("api key put in backoff", "key", Redact(key), "backoff", m.backoffTime)
}
