// Package metrics holds the upstream and HTTP server metrics of both servers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oneyeking31/local-explorer/httpclient"
)

const DefaultNamespace = "local_explorer"

// NewRegistry returns a registry with the process and Go collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes reg on /metrics
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// UpstreamMetrics counts requests to third-party APIs
type UpstreamMetrics struct {
	Requests   *prometheus.CounterVec
	Retries    *prometheus.CounterVec
	KeyFailure *prometheus.CounterVec
}

func NewUpstreamMetrics(reg prometheus.Registerer) *UpstreamMetrics {
	factory := promauto.With(reg)
	return &UpstreamMetrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: DefaultNamespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Upstream API requests by outcome",
		}, []string{"upstream", "status"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: DefaultNamespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Upstream API request retries",
		}, []string{"upstream"}),
		KeyFailure: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: DefaultNamespace,
			Subsystem: "upstream",
			Name:      "key_failures_total",
			Help:      "API keys put into backoff after a failed request",
		}, []string{"upstream", "key_type"}),
	}
}

// For returns the status handler of one upstream
func (m *UpstreamMetrics) For(upstream string) httpclient.IHttpStatusHandler {
	return &upstreamHandler{m: m, upstream: upstream}
}

// RecordKeyFailure counts a key marked as failed
func (m *UpstreamMetrics) RecordKeyFailure(upstream, keyType string) {
	m.KeyFailure.WithLabelValues(upstream, keyType).Inc()
}

type upstreamHandler struct {
	m        *UpstreamMetrics
	upstream string
}

var _ httpclient.IHttpStatusHandler = (*upstreamHandler)(nil)

func (h *upstreamHandler) OnRequest(status string) {
	h.m.Requests.WithLabelValues(h.upstream, status).Inc()
}

func (h *upstreamHandler) OnRetry() {
	h.m.Retries.WithLabelValues(h.upstream).Inc()
}

// ServerMetrics instruments the handlers of one HTTP server
type ServerMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, server string) *ServerMetrics {
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"server": server}
	return &ServerMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   DefaultNamespace,
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "HTTP requests served",
			ConstLabels: constLabels,
		}, []string{"handler", "code", "method"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   DefaultNamespace,
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request latency",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"handler", "code", "method"}),
	}
}

// Instrument wraps next, labelling its series with name
func (m *ServerMetrics) Instrument(name string, next http.Handler) http.Handler {
	labels := prometheus.Labels{"handler": name}
	return promhttp.InstrumentHandlerCounter(m.requests.MustCurryWith(labels),
		promhttp.InstrumentHandlerDuration(m.duration.MustCurryWith(labels), next))
}
