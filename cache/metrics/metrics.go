package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/oneyeking31/local-explorer/cache"
)

const (
	DefaultNamespace = "local_explorer"
	DefaultSubsystem = "cache"
)

var _ cache.MetricsRecorder = (*CacheMetrics)(nil)

// Config defines configuration for cache metrics
type Config struct {
	Namespace string
	Subsystem string
	// Registerer defaults to prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
	// Endpoints lists the endpoint label values kept as is; others become "other"
	Endpoints []string
}

// CacheMetrics holds all cache-related Prometheus metrics
type CacheMetrics struct {
	namespace        string
	subsystem        string
	allowedEndpoints map[string]bool

	Requests     *prometheus.CounterVec
	Hits         *prometheus.CounterVec
	Misses       *prometheus.CounterVec
	Sets         *prometheus.CounterVec
	Errors       *prometheus.CounterVec
	BytesRead    *prometheus.CounterVec
	BytesWritten *prometheus.CounterVec

	OperationDuration *prometheus.HistogramVec
	ItemAge           *prometheus.HistogramVec

	Keys     *prometheus.GaugeVec
	Capacity *prometheus.GaugeVec
	Used     *prometheus.GaugeVec
}

// New creates a new CacheMetrics instance with the given configuration
func New(cfg Config) *CacheMetrics {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = DefaultSubsystem
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registerer)

	m := &CacheMetrics{
		namespace: cfg.Namespace,
		subsystem: cfg.Subsystem,
	}
	if len(cfg.Endpoints) > 0 {
		m.allowedEndpoints = make(map[string]bool, len(cfg.Endpoints))
		for _, e := range cfg.Endpoints {
			m.allowedEndpoints[e] = true
		}
	}

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, []string{"level"})
	}

	m.Requests = counter("requests_total", "Total number of cache lookups", "endpoint", "level", "status")
	m.Hits = counter("hits_total", "Total number of cache hits", "endpoint", "level", "status")
	m.Misses = counter("misses_total", "Total number of cache misses", "endpoint")
	m.Sets = counter("sets_total", "Total number of cache set operations", "level", "endpoint")
	m.Errors = counter("errors_total", "Cache errors by kind", "level", "kind")
	m.BytesRead = counter("bytes_read_total", "Bytes read from cache", "level", "endpoint")
	m.BytesWritten = counter("bytes_written_total", "Bytes written to cache", "level", "endpoint")

	m.OperationDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "operation_duration_seconds",
		Help:      "Duration of cache operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "level"})

	m.ItemAge = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "item_age_seconds",
		Help:      "Age of item at hit time",
		Buckets:   []float64{1, 5, 30, 60, 300, 600, 1800, 3600, 21600, 86400},
	}, []string{"level", "endpoint"})

	m.Keys = gauge("keys", "Current number of keys in cache")
	m.Capacity = gauge("capacity_bytes", "L1 cache capacity in bytes")
	m.Used = gauge("used_bytes", "L1 cache used space in bytes")

	return m
}

// normalizeEndpoint bounds label cardinality to the configured endpoints
func (m *CacheMetrics) normalizeEndpoint(endpoint string) string {
	if m.allowedEndpoints == nil || m.allowedEndpoints[endpoint] {
		if endpoint == "" {
			return "unknown"
		}
		return endpoint
	}
	return "other"
}

// RecordCacheHit records a fresh or stale hit and the age of the entry served
func (m *CacheMetrics) RecordCacheHit(endpoint, level, status string, itemAge time.Duration) {
	endpoint = m.normalizeEndpoint(endpoint)

	m.Requests.WithLabelValues(endpoint, level, status).Inc()
	m.Hits.WithLabelValues(endpoint, level, status).Inc()
	if itemAge > 0 {
		m.ItemAge.WithLabelValues(level, endpoint).Observe(itemAge.Seconds())
	}
}

// RecordCacheMiss records a lookup that no level could answer
func (m *CacheMetrics) RecordCacheMiss(endpoint string) {
	endpoint = m.normalizeEndpoint(endpoint)

	m.Requests.WithLabelValues(endpoint, "miss", "MISS").Inc()
	m.Misses.WithLabelValues(endpoint).Inc()
}

// RecordCacheSet records a cache set operation with size tracking
func (m *CacheMetrics) RecordCacheSet(level, endpoint string, dataSize int) {
	endpoint = m.normalizeEndpoint(endpoint)

	m.Sets.WithLabelValues(level, endpoint).Inc()
	if dataSize > 0 {
		m.BytesWritten.WithLabelValues(level, endpoint).Add(float64(dataSize))
	}
}

// RecordCacheError records a cache error
func (m *CacheMetrics) RecordCacheError(level, kind string) {
	m.Errors.WithLabelValues(level, kind).Inc()
}

// RecordCacheBytesRead records bytes read from cache
func (m *CacheMetrics) RecordCacheBytesRead(level, endpoint string, bytesRead int) {
	if bytesRead > 0 {
		m.BytesRead.WithLabelValues(level, m.normalizeEndpoint(endpoint)).Add(float64(bytesRead))
	}
}

// UpdateL1CacheCapacity updates L1 cache capacity metrics
func (m *CacheMetrics) UpdateL1CacheCapacity(capacity, used int64) {
	m.Capacity.WithLabelValues("l1").Set(float64(capacity))
	m.Used.WithLabelValues("l1").Set(float64(used))
}

// UpdateCacheKeys updates the number of keys in cache
func (m *CacheMetrics) UpdateCacheKeys(level string, count int64) {
	m.Keys.WithLabelValues(level).Set(float64(count))
}

// TimeCacheOperation returns a timer function for measuring cache operation duration
func (m *CacheMetrics) TimeCacheOperation(operation, level string) func() {
	timer := prometheus.NewTimer(m.OperationDuration.WithLabelValues(operation, level))
	return func() {
		timer.ObserveDuration()
	}
}
