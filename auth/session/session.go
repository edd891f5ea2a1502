package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oneyeking31/local-explorer/auth/config"
	"github.com/oneyeking31/local-explorer/auth/jwt"
	"github.com/oneyeking31/local-explorer/auth/metrics"
)

// Token is what the gateway hands to the browser
type Token struct {
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	RequestLimit int       `json:"request_limit"`
}

type usage struct {
	count     int
	expiresAt time.Time
}

// Manager issues session tokens and meters requests made with them
type Manager struct {
	config  *config.Config
	signer  *jwt.Signer
	metrics metrics.MetricsRecorder
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	tokenUsage map[string]*usage
}

type Option func(*Manager)

func WithMetrics(m metrics.MetricsRecorder) Option {
	return func(s *Manager) {
		s.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Manager) {
		s.logger = l
	}
}

func New(cfg *config.Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	signer, err := jwt.NewSigner(cfg.Secret, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config:     cfg,
		signer:     signer,
		metrics:    metrics.NewNoopMetrics(),
		logger:     slog.Default(),
		now:        time.Now,
		tokenUsage: make(map[string]*usage),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue mints a fresh token with the configured request budget
func (m *Manager) Issue() (Token, error) {
	signed, claims, err := m.signer.Generate(m.config.TokenExpiry, m.config.RequestsPerToken)
	if err != nil {
		return Token{}, err
	}
	m.metrics.IncrementTokensIssued()

	return Token{
		Token:        signed,
		ExpiresAt:    claims.ExpiresAt.Time,
		RequestLimit: claims.RequestLimit,
	}, nil
}

// IssueHandler answers with a new token as JSON
func (m *Manager) IssueHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	tok, err := m.Issue()
	if err != nil {
		m.logger.Error("failed to issue session token", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "failed to issue token"})
		return
	}

	if err := json.NewEncoder(w).Encode(tok); err != nil {
		m.logger.Error("failed to encode token response", "error", err)
	}
}

// verdict is the result of checking one request
type verdict struct {
	status    int
	limit     int
	remaining int
	metered   bool
}

func (m *Manager) check(r *http.Request) verdict {
	tokenString := tokenFromRequest(r)
	if tokenString == "" {
		m.metrics.RecordTokenVerification(metrics.StatusMissingToken)
		return verdict{status: http.StatusUnauthorized}
	}

	claims, err := m.signer.Verify(tokenString)
	if err != nil {
		m.metrics.RecordTokenVerification(metrics.StatusInvalidToken)
		m.logger.Debug("rejected session token", "error", err)
		return verdict{status: http.StatusUnauthorized}
	}

	limit := claims.RequestLimit
	if limit <= 0 {
		limit = m.config.RequestsPerToken
	}

	m.mu.Lock()
	u, ok := m.tokenUsage[claims.ID]
	if !ok {
		u = &usage{expiresAt: claims.ExpiresAt.Time}
		m.tokenUsage[claims.ID] = u
	}
	if u.count >= limit {
		m.mu.Unlock()
		m.metrics.RecordTokenVerification(metrics.StatusRateLimited)
		return verdict{status: http.StatusTooManyRequests, limit: limit, remaining: 0, metered: true}
	}
	u.count++
	remaining := limit - u.count
	m.mu.Unlock()

	m.metrics.RecordTokenVerification(metrics.StatusSuccess)
	return verdict{status: http.StatusOK, limit: limit, remaining: remaining, metered: true}
}

func (v verdict) writeHeaders(w http.ResponseWriter) {
	if !v.metered {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(v.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
}

// VerifyHandler is a bare status check, usable as a reverse proxy auth_request target
func (m *Manager) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	v := m.check(r)
	v.writeHeaders(w)
	w.WriteHeader(v.status)
}

// Middleware admits requests carrying a valid token with budget left
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := m.check(r)
		v.writeHeaders(w)
		if v.status != http.StatusOK {
			writeError(w, v.status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Sweep forgets usage of expired tokens. It fits scheduler.Task.
func (m *Manager) Sweep(_ context.Context) {
	now := m.now()

	m.mu.Lock()
	for id, u := range m.tokenUsage {
		if !now.Before(u.expiresAt) {
			delete(m.tokenUsage, id)
		}
	}
	active := len(m.tokenUsage)
	m.mu.Unlock()

	m.metrics.SetActiveTokens(active)
}

// ActiveTokens is the number of token ids with tracked usage
func (m *Manager) ActiveTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokenUsage)
}

func tokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}

func writeError(w http.ResponseWriter, status int) {
	msg := "invalid or missing session token"
	if status == http.StatusTooManyRequests {
		msg = "session token request limit reached"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
