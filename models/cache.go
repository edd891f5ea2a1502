package models

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheType selects how long an upstream response may be reused
type CacheType string

const (
	CacheTypePermanent CacheType = "permanent"
	CacheTypeShort     CacheType = "short"
	CacheTypeMinimal   CacheType = "minimal"
	CacheTypeNone      CacheType = "none"
)

// IsValid reports whether the cache type is one of the known policies
func (c CacheType) IsValid() bool {
	switch c {
	case CacheTypePermanent, CacheTypeShort, CacheTypeMinimal, CacheTypeNone:
		return true
	default:
		return false
	}
}

// UnmarshalYAML implements custom YAML unmarshaling for CacheType
func (c *CacheType) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	ct := CacheType(str)
	if !ct.IsValid() {
		return fmt.Errorf("invalid cache type '%s': must be one of 'permanent', 'short', 'minimal', 'none'", str)
	}
	*c = ct
	return nil
}

// TTL returns the fresh and stale windows for the cache type.
// Forecasts move hourly, so "short" keeps an entry fresh for ten minutes and
// lets it be served for another hour when the upstream is failing.
func (c CacheType) TTL() TTL {
	switch c {
	case CacheTypePermanent:
		return TTL{Fresh: 24 * time.Hour, Stale: 24 * time.Hour}
	case CacheTypeShort:
		return TTL{Fresh: 10 * time.Minute, Stale: time.Hour}
	case CacheTypeMinimal:
		return TTL{Fresh: 30 * time.Second, Stale: 5 * time.Minute}
	default:
		return TTL{}
	}
}

// CacheStatus is reported to clients in the X-Cache header
type CacheStatus string

const (
	CacheStatusHit    CacheStatus = "HIT"
	CacheStatusStale  CacheStatus = "STALE"
	CacheStatusMiss   CacheStatus = "MISS"
	CacheStatusBypass CacheStatus = "BYPASS"
)

func (cs CacheStatus) String() string {
	return string(cs)
}

// IsValid checks if the cache status is one of the valid values
func (cs CacheStatus) IsValid() bool {
	switch cs {
	case CacheStatusHit, CacheStatusStale, CacheStatusMiss, CacheStatusBypass:
		return true
	default:
		return false
	}
}

// TTL represents cache time-to-live configuration
type TTL struct {
	Fresh time.Duration // served without contacting the upstream
	Stale time.Duration // served only when the upstream fails
}

// Total is the full lifetime of an entry
func (t TTL) Total() time.Duration {
	return t.Fresh + t.Stale
}

// IsZero reports whether nothing should be stored
func (t TTL) IsZero() bool {
	return t.Fresh <= 0 && t.Stale <= 0
}

// CacheLevel represents the cache level where data was found
type CacheLevel string

const (
	CacheLevelL1   CacheLevel = "L1"
	CacheLevelL2   CacheLevel = "L2"
	CacheLevelMiss CacheLevel = "MISS"
)

func (cl CacheLevel) String() string {
	return string(cl)
}

// CacheLevelFromIndex maps a position in a multi-level cache to its level name.
// Negative indices are treated as L1.
func CacheLevelFromIndex(index int) CacheLevel {
	switch {
	case index <= 0:
		return CacheLevelL1
	case index == 1:
		return CacheLevelL2
	default:
		return CacheLevel(fmt.Sprintf("L%d", index+1))
	}
}

// CacheResult represents the result of a cache lookup with level information
type CacheResult struct {
	Entry *CacheEntry `json:"entry,omitempty"`
	Found bool        `json:"found"`
	Level CacheLevel  `json:"level"`
}

// CacheEntry is the stored envelope around an upstream response body
type CacheEntry struct {
	Data      []byte `json:"data"`
	ExpiresAt int64  `json:"expires_at"`
	StaleAt   int64  `json:"stale_at"`
	CreatedAt int64  `json:"created_at"`
}

// NewCacheEntry stamps data with the windows of ttl starting at now
func NewCacheEntry(data []byte, ttl TTL, now time.Time) CacheEntry {
	created := now.Unix()
	staleAt := created + int64(ttl.Fresh.Seconds())
	return CacheEntry{
		Data:      data,
		CreatedAt: created,
		StaleAt:   staleAt,
		ExpiresAt: staleAt + int64(ttl.Stale.Seconds()),
	}
}

// IsExpired checks if the cache entry is completely expired
func (ce *CacheEntry) IsExpired() bool {
	return time.Now().Unix() > ce.ExpiresAt
}

// IsFresh checks if the cache entry is still fresh
func (ce *CacheEntry) IsFresh() bool {
	return time.Now().Unix() <= ce.StaleAt
}

// Age is the time since the entry was written
func (ce *CacheEntry) Age() time.Duration {
	return time.Duration(time.Now().Unix()-ce.CreatedAt) * time.Second
}

// RemainingTTL calculates the remaining windows for this entry
func (ce *CacheEntry) RemainingTTL() TTL {
	now := time.Now().Unix()

	freshRemaining := ce.StaleAt - now
	if freshRemaining < 0 {
		freshRemaining = 0
	}

	staleRemaining := ce.ExpiresAt - ce.StaleAt
	if now > ce.StaleAt {
		staleRemaining = ce.ExpiresAt - now
	}
	if staleRemaining < 0 {
		staleRemaining = 0
	}

	return TTL{
		Fresh: time.Duration(freshRemaining) * time.Second,
		Stale: time.Duration(staleRemaining) * time.Second,
	}
}
