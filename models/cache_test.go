package models

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestCacheLevelFromIndex(t *testing.T) {
	tests := []struct {
		name     string
		index    int
		expected CacheLevel
	}{
		{name: "Index 0 returns L1", index: 0, expected: CacheLevelL1},
		{name: "Index 1 returns L2", index: 1, expected: CacheLevelL2},
		{name: "Index 2 returns L3", index: 2, expected: CacheLevel("L3")},
		{name: "Index 10 returns L11", index: 10, expected: CacheLevel("L11")},
		{name: "Negative index returns L1", index: -5, expected: CacheLevelL1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CacheLevelFromIndex(tt.index)
			if result != tt.expected {
				t.Errorf("CacheLevelFromIndex(%d) = %v, want %v", tt.index, result, tt.expected)
			}
		})
	}
}

func TestCacheType_UnmarshalYAML(t *testing.T) {
	var policy struct {
		Weather CacheType `yaml:"weather"`
	}

	if err := yaml.Unmarshal([]byte("weather: short\n"), &policy); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if policy.Weather != CacheTypeShort {
		t.Errorf("expected short, got %q", policy.Weather)
	}

	if err := yaml.Unmarshal([]byte("weather: forever\n"), &policy); err == nil {
		t.Error("expected error for unknown cache type")
	}
}

func TestCacheType_TTL(t *testing.T) {
	if ttl := CacheTypeNone.TTL(); !ttl.IsZero() {
		t.Errorf("expected zero TTL for none, got %+v", ttl)
	}

	short := CacheTypeShort.TTL()
	if short.Fresh != 10*time.Minute || short.Stale != time.Hour {
		t.Errorf("unexpected short TTL %+v", short)
	}
	if short.Total() != 70*time.Minute {
		t.Errorf("expected total 70m, got %v", short.Total())
	}

	if CacheTypeMinimal.TTL().Fresh >= short.Fresh {
		t.Error("minimal should be fresh for less time than short")
	}
}

func TestCacheEntry_Windows(t *testing.T) {
	now := time.Now()

	t.Run("fresh entry", func(t *testing.T) {
		entry := NewCacheEntry([]byte("x"), TTL{Fresh: time.Minute, Stale: time.Minute}, now)
		if !entry.IsFresh() || entry.IsExpired() {
			t.Errorf("expected fresh, unexpired entry: %+v", entry)
		}
	})

	t.Run("stale entry", func(t *testing.T) {
		entry := NewCacheEntry([]byte("x"), TTL{Fresh: time.Minute, Stale: time.Hour}, now.Add(-2*time.Minute))
		if entry.IsFresh() {
			t.Error("expected stale entry")
		}
		if entry.IsExpired() {
			t.Error("stale entry should not be expired")
		}
		remaining := entry.RemainingTTL()
		if remaining.Fresh != 0 {
			t.Errorf("expected no fresh time left, got %v", remaining.Fresh)
		}
		if remaining.Stale <= 50*time.Minute || remaining.Stale > time.Hour {
			t.Errorf("unexpected stale remaining %v", remaining.Stale)
		}
	})

	t.Run("expired entry", func(t *testing.T) {
		entry := NewCacheEntry([]byte("x"), TTL{Fresh: time.Second, Stale: time.Second}, now.Add(-time.Hour))
		if !entry.IsExpired() {
			t.Error("expected expired entry")
		}
	})
}

func TestCacheStatus_IsValid(t *testing.T) {
	for _, s := range []CacheStatus{CacheStatusHit, CacheStatusStale, CacheStatusMiss, CacheStatusBypass} {
		if !s.IsValid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if CacheStatus("WARM").IsValid() {
		t.Error("expected unknown status to be invalid")
	}
}
