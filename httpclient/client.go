package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// StatusError is returned for any non-200 upstream response
type StatusError struct {
	StatusCode int
	RetryAfter string
	Body       []byte
	Duration   time.Duration
	URLLength  int
}

func (e *StatusError) Error() string {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return fmt.Sprintf("rate limit exceeded (status %d), retry after %s: %s", e.StatusCode, e.RetryAfter, e.Body)
	case e.StatusCode == http.StatusRequestURITooLong:
		return fmt.Sprintf("API request failed with status %d after %.2fs (URL length: %d): %s",
			e.StatusCode, e.Duration.Seconds(), e.URLLength, e.Body)
	default:
		return fmt.Sprintf("API request failed with status %d after %.2fs: %s", e.StatusCode, e.Duration.Seconds(), e.Body)
	}
}

// Retryable reports whether another attempt could succeed
func (e *StatusError) Retryable() bool {
	return isRetryableError(e.StatusCode)
}

// HTTPClientWithRetries wraps an HTTP Client with retry capabilities
type HTTPClientWithRetries struct {
	Client        *http.Client
	Opts          RetryOptions
	StatusHandler IHttpStatusHandler
	// RateLimiter optionally returns the limiter a request must pass before each attempt
	RateLimiter func(*http.Request) *rate.Limiter
	Logger      *slog.Logger
}

// NewHTTPClientWithRetries creates a new HTTP Client with retry capabilities
func NewHTTPClientWithRetries(opts RetryOptions, handler IHttpStatusHandler, rateLimiter func(*http.Request) *rate.Limiter) *HTTPClientWithRetries {
	opts.ApplyDefaults()

	client := &http.Client{
		Timeout: opts.RequestTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: opts.ConnectionTimeout,
			}).DialContext,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &HTTPClientWithRetries{
		Client:        client,
		Opts:          opts,
		StatusHandler: handler,
		RateLimiter:   rateLimiter,
		Logger:        slog.Default(),
	}
}

// SetStatusHandler sets the status handler for this Client
func (c *HTTPClientWithRetries) SetStatusHandler(handler IHttpStatusHandler) {
	c.StatusHandler = handler
}

func (c *HTTPClientWithRetries) report(status string) {
	if c.StatusHandler != nil {
		c.StatusHandler.OnRequest(status)
	}
}

// ExecuteRequest executes req, retrying network errors and retryable statuses.
// The response body is fully read and returned; resp.Body is already closed.
// Requests with a body must set GetBody (http.NewRequest does for common readers).
func (c *HTTPClientWithRetries) ExecuteRequest(req *http.Request) (*http.Response, []byte, time.Duration, error) {
	ctx := req.Context()
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 0; attempt < c.Opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if c.StatusHandler != nil {
				c.StatusHandler.OnRetry()
			}

			backoff := CalculateBackoffWithJitter(c.Opts.BaseBackoff, attempt)
			logger.WarnContext(ctx, "retrying upstream request",
				"upstream", c.Opts.LogPrefix,
				"attempt", attempt,
				"max_retries", c.Opts.MaxRetries-1,
				"backoff", backoff,
				"error", lastErr)

			if err := sleepContext(ctx, backoff); err != nil {
				return nil, nil, 0, fmt.Errorf("%s: retry aborted: %w", c.Opts.LogPrefix, err)
			}
		}

		attemptReq, err := rewindRequest(req, attempt)
		if err != nil {
			return nil, nil, 0, err
		}

		if c.RateLimiter != nil {
			if limiter := c.RateLimiter(attemptReq); limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					c.report(StatusFailed)
					return nil, nil, 0, fmt.Errorf("%s: rate limiter wait failed: %w", c.Opts.LogPrefix, err)
				}
			}
		}

		requestStart := time.Now()
		resp, err := c.Client.Do(attemptReq)
		requestDuration := time.Since(requestStart)

		if err != nil {
			c.report(StatusFailed)
			if ctx.Err() != nil {
				return nil, nil, requestDuration, fmt.Errorf("%s: %w", c.Opts.LogPrefix, ctx.Err())
			}
			lastErr = fmt.Errorf("request failed after %.2fs: %w", requestDuration.Seconds(), withoutURL(err))
			continue
		}

		body, err := c.readResponse(resp, attemptReq, requestDuration)
		_ = resp.Body.Close()
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.Retryable() {
				c.report(StatusRateLimited)
				lastErr = err
				continue
			}
			c.report(StatusFailed)
			return resp, nil, requestDuration, err
		}

		c.report(StatusSuccess)
		return resp, body, requestDuration, nil
	}

	return nil, nil, 0, fmt.Errorf("%s: all %d attempts failed, last error: %w",
		c.Opts.LogPrefix, c.Opts.MaxRetries, lastErr)
}

// GetJSON performs a GET with retries and decodes the JSON body into out
func (c *HTTPClientWithRetries) GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	_, body, _, err := c.ExecuteRequest(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", c.Opts.LogPrefix, err)
	}
	return nil
}

// withoutURL drops the request url from transport errors; query strings can carry keys
func withoutURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

func rewindRequest(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("cannot retry request with a body that has no GetBody")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

// readResponse reads the body of resp, turning non-200 responses into a StatusError
func (c *HTTPClientWithRetries) readResponse(resp *http.Response, req *http.Request, requestDuration time.Duration) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.Opts.MaxBodySize))
	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Body:       body,
			Duration:   requestDuration,
		}
		if req != nil && req.URL != nil {
			statusErr.URLLength = len(req.URL.String())
		}
		return nil, statusErr
	}
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	return body, nil
}

// isRetryableError determines if a given HTTP status code should trigger a retry
func isRetryableError(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}
