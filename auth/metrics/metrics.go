package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Token verification outcomes
const (
	StatusSuccess      = "success"
	StatusMissingToken = "missing_token"
	StatusInvalidToken = "invalid_token"
	StatusRateLimited  = "rate_limited"
)

type MetricsRecorder interface {
	RecordTokenVerification(status string)
	IncrementTokensIssued()
	SetActiveTokens(n int)
}

type NoopMetrics struct{}

func NewNoopMetrics() MetricsRecorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordTokenVerification(status string) {}

func (n *NoopMetrics) IncrementTokensIssued() {}

func (n *NoopMetrics) SetActiveTokens(int) {}

type PrometheusMetrics struct {
	tokensIssued       prometheus.Counter
	tokenVerifications *prometheus.CounterVec
	activeTokens       prometheus.Gauge
}

// NewPrometheusMetrics registers the session metrics on reg.
// A nil reg uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		tokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "The total number of session tokens issued",
		}),
		tokenVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_verifications_total",
			Help: "The total number of token verification attempts",
		}, []string{"status"}),
		activeTokens: factory.NewGauge(prometheus.GaugeOpts{
			Name: "auth_active_tokens",
			Help: "Number of token ids with tracked usage",
		}),
	}
}

func (p *PrometheusMetrics) RecordTokenVerification(status string) {
	p.tokenVerifications.WithLabelValues(status).Inc()
}

func (p *PrometheusMetrics) IncrementTokensIssued() {
	p.tokensIssued.Inc()
}

func (p *PrometheusMetrics) SetActiveTokens(n int) {
	p.activeTokens.Set(float64(n))
}
