package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	slogctx "github.com/veqryn/slog-context"

	"github.com/oneyeking31/local-explorer/apikeys"
)

// KeyExtractor picks the identity a request is limited under.
// An empty result lets the request through unlimited.
type KeyExtractor func(r *http.Request) string

// ByRemoteIP limits per client address
func ByRemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ByQueryParam limits per value of a query parameter
func ByQueryParam(name string) KeyExtractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(name)
	}
}

// ByBearer limits per bearer token, falling back to the client address
func ByBearer(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return token
	}
	return ByRemoteIP(r)
}

// Fixed puts every request in one bucket
func Fixed(name string) KeyExtractor {
	return func(*http.Request) string { return name }
}

// Middleware rejects requests over budget with 429. Limits are looked up
// under keyType so inbound budgets sit next to the upstream key budgets.
// Rejections are logged through the request's context logger.
func Middleware(m IRateLimiterManager, keyType apikeys.KeyType, extract KeyExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := extract(r)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}

			limiter := m.GetLimiter(id, keyType)
			if !limiter.Allow() {
				logger := slogctx.FromCtx(r.Context())
				logger.Warn("request rate limited", "path", r.URL.Path, "key_type", keyType.String())
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(float64(limiter.Limit()))))
				w.WriteHeader(http.StatusTooManyRequests)
				if err := json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"}); err != nil {
					logger.Error("failed to encode rate limit response", "error", err)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(perSecond float64) int {
	if perSecond <= 0 {
		return 60
	}
	if s := int(1 / perSecond); s > 1 {
		return s
	}
	return 1
}
