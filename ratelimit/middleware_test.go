package ratelimit

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	slogctx "github.com/veqryn/slog-context"

	"github.com/oneyeking31/local-explorer/apikeys"
)

func TestMiddleware(t *testing.T) {
	mgr := NewRateLimiterManager(map[apikeys.KeyType]RateLimit{
		apikeys.NoKey: {RateLimitPerMinute: 60, Burst: 2},
	})
	handler := Middleware(mgr, apikeys.NoKey, ByRemoteIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/weather?lat=1&lon=2", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1235").Code)

	rec := do("10.0.0.1:1236")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, do("10.0.0.2:1234").Code, "other clients keep their own budget")
}

func TestMiddlewareLogsThroughRequestLogger(t *testing.T) {
	mgr := NewRateLimiterManager(map[apikeys.KeyType]RateLimit{
		apikeys.NoKey: {RateLimitPerMinute: 1, Burst: 1},
	})
	handler := Middleware(mgr, apikeys.NoKey, Fixed("all"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil)).With("request_id", "req-1")
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/places", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(slogctx.NewCtx(req.Context(), logger)))
	}

	assert.Contains(t, buf.String(), "request rate limited")
	assert.Contains(t, buf.String(), "request_id=req-1")
}

func TestExtractors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/places?location=1,2&token=abc", nil)
	req.RemoteAddr = "192.0.2.7:5555"

	assert.Equal(t, "192.0.2.7", ByRemoteIP(req))
	assert.Equal(t, "abc", ByQueryParam("token")(req))
	assert.Equal(t, "192.0.2.7", ByBearer(req))
	assert.Equal(t, "all", Fixed("all")(req))

	req.Header.Set("Authorization", "Bearer tok")
	assert.Equal(t, "tok", ByBearer(req))
}

func TestMiddleware_EmptyIdentityIsNotLimited(t *testing.T) {
	mgr := NewRateLimiterManager(map[apikeys.KeyType]RateLimit{
		apikeys.NoKey: {RateLimitPerMinute: 1, Burst: 1},
	})
	handler := Middleware(mgr, apikeys.NoKey, ByQueryParam("client"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
