package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStatusHandler implements IHttpStatusHandler for testing
type recordingStatusHandler struct {
	mu       sync.Mutex
	statuses []string
	retries  int
}

func (h *recordingStatusHandler) OnRequest(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, status)
}

func (h *recordingStatusHandler) OnRetry() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retries++
}

func fastOptions() RetryOptions {
	opts := DefaultRetryOptions()
	opts.BaseBackoff = 5 * time.Millisecond
	opts.LogPrefix = "test"
	return opts
}

func TestHTTPClientWithRetries_Timeouts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("delay") == "response" {
			time.Sleep(300 * time.Millisecond)
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	t.Run("RequestTimeout", func(t *testing.T) {
		opts := fastOptions()
		opts.RequestTimeout = 50 * time.Millisecond

		handler := &recordingStatusHandler{}
		client := NewHTTPClientWithRetries(opts, handler, nil)

		req, _ := http.NewRequest(http.MethodGet, server.URL+"?delay=response", nil)
		_, _, _, err := client.ExecuteRequest(req)

		require.Error(t, err)
		assert.Equal(t, []string{StatusFailed, StatusFailed, StatusFailed}, handler.statuses)
		assert.Equal(t, 2, handler.retries)
	})

	t.Run("NoTimeout", func(t *testing.T) {
		handler := &recordingStatusHandler{}
		client := NewHTTPClientWithRetries(fastOptions(), handler, nil)

		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		_, body, _, err := client.ExecuteRequest(req)

		require.NoError(t, err)
		assert.Equal(t, `{"status":"ok"}`, string(body))
		assert.Equal(t, []string{StatusSuccess}, handler.statuses)
		assert.Zero(t, handler.retries)
	})
}

func TestHTTPClientWithRetries_Retries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"service unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	handler := &recordingStatusHandler{}
	client := NewHTTPClientWithRetries(fastOptions(), handler, nil)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, body, duration, err := client.ExecuteRequest(req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"status":"ok"}`, string(body))
	assert.EqualValues(t, 3, attempts.Load())
	assert.Positive(t, duration)
	assert.Equal(t, []string{StatusRateLimited, StatusRateLimited, StatusSuccess}, handler.statuses)
	assert.Equal(t, 2, handler.retries)
}

func TestHTTPClientWithRetries_NonRetryableError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	handler := &recordingStatusHandler{}
	client := NewHTTPClientWithRetries(fastOptions(), handler, nil)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, _, _, err := client.ExecuteRequest(req)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Contains(t, statusErr.Error(), "bad request")
	assert.EqualValues(t, 1, attempts.Load())
	assert.Equal(t, []string{StatusFailed}, handler.statuses)
	assert.Zero(t, handler.retries)
}

// roundTripFunc is a mock http.RoundTripper
type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestHTTPClientWithRetries_NetworkErrors(t *testing.T) {
	opts := fastOptions()
	opts.MaxRetries = 2

	handler := &recordingStatusHandler{}
	client := NewHTTPClientWithRetries(opts, handler, nil)

	failed := false
	client.Client.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if !failed {
			failed = true
			return nil, errors.New("connection reset by peer")
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString(`{"status":"ok"}`)),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	_, body, _, err := client.ExecuteRequest(req)

	require.NoError(t, err)
	assert.Equal(t, `{"status":"ok"}`, string(body))
	assert.Equal(t, []string{StatusFailed, StatusSuccess}, handler.statuses)
	assert.Equal(t, 1, handler.retries)
}

func TestHTTPClientWithRetries_ReplaysBody(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		n := len(bodies)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewHTTPClientWithRetries(fastOptions(), nil, nil)
	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"q":1}`))

	_, _, _, err := client.ExecuteRequest(req)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"q":1}`, `{"q":1}`}, bodies)
}

func TestHTTPClientWithRetries_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	opts := fastOptions()
	opts.BaseBackoff = time.Hour
	client := NewHTTPClientWithRetries(opts, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	start := time.Now()
	_, _, _, err := client.ExecuteRequest(req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHTTPClientWithRetries_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewHTTPClientWithRetries(fastOptions(), nil, nil)

	var out struct {
		Status string `json:"status"`
	}
	require.NoError(t, client.GetJSON(context.Background(), server.URL, &out))
	assert.Equal(t, "ok", out.Status)
}

func TestCalculateBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, base, CalculateBackoffWithJitter(base, 0))

	for attempt := 1; attempt <= 4; attempt++ {
		got := CalculateBackoffWithJitter(base, attempt)
		floor := base << uint(attempt-1)
		assert.GreaterOrEqual(t, got, floor)
		assert.Less(t, got, floor+floor/2)
	}

	assert.Equal(t, time.Duration(1), CalculateBackoffWithJitter(1, 1))
}

func TestHTTPClientWithRetries_TransportErrorHidesURL(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	target := server.URL
	server.Close()

	client := NewHTTPClientWithRetries(fastOptions(), nil, nil)
	req, _ := http.NewRequest(http.MethodGet, target+"/search?key=very-secret-value", nil)

	_, _, _, err := client.ExecuteRequest(req)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "very-secret-value")
}
