// Package backend serves the API behind the /api proxy: current weather,
// activity suggestions and nearby places.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/oneyeking31/local-explorer/apikeys"
	"github.com/oneyeking31/local-explorer/auth/metrics"
	"github.com/oneyeking31/local-explorer/auth/session"
	"github.com/oneyeking31/local-explorer/cache"
	cachemetrics "github.com/oneyeking31/local-explorer/cache/metrics"
	"github.com/oneyeking31/local-explorer/cache/multi"
	"github.com/oneyeking31/local-explorer/config"
	"github.com/oneyeking31/local-explorer/httpclient"
	"github.com/oneyeking31/local-explorer/httpserver"
	"github.com/oneyeking31/local-explorer/logging"
	appmetrics "github.com/oneyeking31/local-explorer/metrics"
	"github.com/oneyeking31/local-explorer/models"
	"github.com/oneyeking31/local-explorer/ratelimit"
	"github.com/oneyeking31/local-explorer/scheduler"
)

const WelcomeMessage = "Welcome to the Local Explorer Backend!"

// Cache policy names
const (
	EndpointWeather     = "weather"
	EndpointPlaces      = "places"
	EndpointSuggestions = "suggestions"
)

var (
	errBadRequest = errors.New("bad request")
	// errUpstream marks an upstream answer that could not be used
	errUpstream = errors.New("upstream error")
)

type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	provider apikeys.KeyProvider
	now      func() time.Time

	weather  *WeatherClient
	chat     *ChatClient
	places   *PlacesClient
	cache    *cache.ReadThrough
	sessions *session.Manager
	limiter  *ratelimit.RateLimiterManager
	sweeper  *scheduler.Scheduler
	closers  []func() error
	handler  http.Handler
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithKeyProvider replaces the environment as the source of upstream keys
func WithKeyProvider(p apikeys.KeyProvider) Option {
	return func(s *Server) {
		s.provider = p
	}
}

func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithClock is used by tests to pin the current hour
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = appmetrics.NewRegistry()
	}
	if s.provider == nil {
		s.provider = apikeys.NewEnvKeyProvider()
	}

	keyRates, err := cfg.Backend.KeyRateLimits()
	if err != nil {
		return nil, err
	}
	s.limiter = ratelimit.NewRateLimiterManager(keyRates)

	upstream := appmetrics.NewUpstreamMetrics(s.registry)
	keys := apikeys.NewAPIKeyManager(s.provider, cfg.Backend.KeyBackoff, apikeys.WithLogger(s.logger))
	failed := func(upstreamName string) apikeys.OnFailedCallback {
		markFailed := apikeys.CreateFailCallback(keys)
		return func(k apikeys.APIKey) {
			upstream.RecordKeyFailure(upstreamName, k.Type.String())
			markFailed(k)
		}
	}

	newClient := func(name string, limit func(*http.Request) string, keyType apikeys.KeyType) *httpclient.HTTPClientWithRetries {
		opts := cfg.Backend.HTTP
		opts.LogPrefix = name
		var limiter func(*http.Request) *rate.Limiter
		if limit != nil {
			limiter = func(r *http.Request) *rate.Limiter {
				return s.limiter.GetLimiter(limit(r), keyType)
			}
		}
		c := httpclient.NewHTTPClientWithRetries(opts, upstream.For(name), limiter)
		c.Logger = s.logger
		return c
	}

	s.weather = NewWeatherClient(cfg.Backend.WeatherURL, newClient("open-meteo", nil, apikeys.NoKey))
	s.chat = NewChatClient(cfg.Backend.OpenAIURL, cfg.Backend.OpenAIModel,
		newClient("openai", bearerKey, apikeys.OpenAIKey), keys, failed("openai"))
	s.places = NewPlacesClient(cfg.Backend.PlacesURL,
		newClient("places", queryKey, apikeys.MapsKey), keys, failed("places"), cfg.Backend.MaxKeywords)

	cacheMetrics := cachemetrics.New(cachemetrics.Config{
		Registerer: s.registry,
		Endpoints:  []string{EndpointWeather, EndpointPlaces},
	})
	stack, err := multi.Build(ctx, &cfg.Cache, s.logger, cacheMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build cache: %w", err)
	}
	s.closers = append(s.closers, stack.Close)
	s.cache = cache.NewReadThrough(stack,
		cache.WithReadThroughLogger(s.logger),
		cache.WithReadThroughMetrics(cacheMetrics))

	if cfg.Auth.Enabled {
		s.sessions, err = session.New(&cfg.Auth,
			session.WithLogger(s.logger),
			session.WithMetrics(metrics.NewPrometheusMetrics(s.registry)))
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to set up sessions: %w", err)
		}
		s.sweeper = scheduler.New(time.Minute, s.sessions.Sweep)
		s.sweeper.Start()
	}

	if !s.places.HasKey() {
		s.logger.Warn("no server-side maps key configured; /places will answer 400",
			"env", apikeys.EnvMapsKey)
	}

	s.handler = s.routes()
	return s, nil
}

func bearerKey(r *http.Request) string {
	key, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return key
}

func queryKey(r *http.Request) string {
	return r.URL.Query().Get("key")
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	sm := appmetrics.NewServerMetrics(s.registry, "backend")

	gate := func(h http.Handler) http.Handler {
		h = ratelimit.Middleware(s.limiter, apikeys.NoKey, ratelimit.ByRemoteIP)(h)
		if s.sessions != nil {
			h = s.sessions.Middleware(h)
		}
		return h
	}

	mux.Handle("GET /{$}", sm.Instrument("home", http.HandlerFunc(s.handleHome)))
	mux.Handle("GET /weather", sm.Instrument("weather", http.HandlerFunc(s.handleWeather)))
	mux.Handle("GET /suggestions", sm.Instrument("suggestions", gate(http.HandlerFunc(s.handleSuggestions))))
	places := sm.Instrument("places", gate(http.HandlerFunc(s.handlePlaces)))
	mux.Handle("GET /places", places)
	mux.Handle("GET /api/places", places)
	mux.Handle("GET /metrics", appmetrics.Handler(s.registry))
	if s.sessions != nil {
		mux.Handle("POST /session", sm.Instrument("session", http.HandlerFunc(s.sessions.IssueHandler)))
		mux.Handle("GET /session/verify", sm.Instrument("session_verify", http.HandlerFunc(s.sessions.VerifyHandler)))
	}

	return cors(s.cfg.Backend.CORSOrigins, logging.Middleware(s.logger, mux))
}

// Handler is the full middleware chain
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Registry exposes the server's metrics registry
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Server) Close() error {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// ListenAndServe serves on the configured address until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	return httpserver.ListenAndServe(ctx, s.cfg.Backend.Listen, s.handler, s.logger)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, WelcomeMessage)
}

func (s *Server) coordinates(r *http.Request) (string, string, error) {
	lat := strings.TrimSpace(r.URL.Query().Get("lat"))
	lon := strings.TrimSpace(r.URL.Query().Get("lon"))
	if lat == "" || lon == "" {
		return "", "", fmt.Errorf("%w: latitude and longitude are required", errBadRequest)
	}
	return lat, lon, nil
}

// currentWeather loads the forecast through the cache and picks the current hour
func (s *Server) currentWeather(ctx context.Context, lat, lon string) (CurrentWeather, models.CacheStatus, error) {
	key := "weather|" + lat + "|" + lon
	body, status, err := s.cache.Get(ctx, EndpointWeather, key, s.cfg.Cache.Policy(EndpointWeather), func(ctx context.Context) ([]byte, error) {
		return s.weather.FetchRaw(ctx, lat, lon)
	})
	if err != nil {
		return CurrentWeather{}, status, fmt.Errorf("failed to fetch weather data: %w", err)
	}

	forecast, err := ParseForecast(body)
	if err != nil {
		return CurrentWeather{}, status, err
	}
	current, err := forecast.Current(s.now())
	return current, status, err
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := s.coordinates(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	current, status, err := s.currentWeather(r.Context(), lat, lon)
	w.Header().Set("X-Cache", status.String())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]CurrentWeather{"current_weather": current})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := s.coordinates(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	current, _, err := s.currentWeather(r.Context(), lat, lon)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	text, err := s.chat.Complete(r.Context(), SuggestionPrompt(current))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("failed to generate suggestions: %w", err))
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"suggestions": text})
}

func (s *Server) handlePlaces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := PlacesQuery{
		Location: strings.TrimSpace(q.Get("location")),
		Radius:   strings.TrimSpace(q.Get("radius")),
		Keyword:  q.Get("keyword"),
		Type:     strings.TrimSpace(q.Get("type")),
	}
	if query.Location == "" || query.Radius == "" || !s.places.HasKey() {
		s.writeError(w, r, fmt.Errorf("%w: missing required parameters: location, radius, or key", errBadRequest))
		return
	}

	body, status, err := s.cache.Get(r.Context(), EndpointPlaces, query.CacheKey(), s.cfg.Cache.Policy(EndpointPlaces), func(ctx context.Context) ([]byte, error) {
		return s.places.Nearby(ctx, query)
	})
	w.Header().Set("X-Cache", status.String())
	if err != nil {
		s.writeError(w, r, fmt.Errorf("failed to fetch places: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func statusFor(err error) int {
	var statusErr *httpclient.StatusError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoWeatherForHour):
		return http.StatusNotFound
	case errors.Is(err, apikeys.ErrNoKeys):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errUpstream), errors.As(err, &statusErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusBadRequest {
		msg = strings.TrimPrefix(msg, errBadRequest.Error()+": ")
	}
	logger := logging.FromContext(r.Context())
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", "path", r.URL.Path, "status", code, "error", err)
	} else {
		logger.Debug("request rejected", "path", r.URL.Path, "status", code, "error", err)
	}
	s.writeJSON(w, r, code, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}
