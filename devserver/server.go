// Package devserver is the development gateway. It serves the single-page
// app with its bootstrap document, resolves bare module imports from
// node_modules and forwards the configured prefixes to the backend.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/oneyeking31/local-explorer/apikeys"
	"github.com/oneyeking31/local-explorer/auth/metrics"
	"github.com/oneyeking31/local-explorer/auth/session"
	"github.com/oneyeking31/local-explorer/bootstrap"
	"github.com/oneyeking31/local-explorer/config"
	"github.com/oneyeking31/local-explorer/devproxy"
	"github.com/oneyeking31/local-explorer/httpserver"
	"github.com/oneyeking31/local-explorer/logging"
	appmetrics "github.com/oneyeking31/local-explorer/metrics"
	"github.com/oneyeking31/local-explorer/scheduler"
)

const (
	// ModulesPrefix serves packages from node_modules
	ModulesPrefix = "/@modules/"
	DevtoolsPath  = "/__devtools/config"
)

type Server struct {
	cfg      *config.Config
	proxyCfg *devproxy.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	getenv   func(string) string
	dial     dialFunc

	fsys     fs.FS
	hidden   map[string]bool
	mapsKey  apikeys.APIKey
	app      *bootstrap.App
	router   *devproxy.Router
	sessions *session.Manager

	targetUp  *prometheus.GaugeVec
	reachMu   sync.Mutex
	reachable map[string]bool

	tasks   []*scheduler.Scheduler
	handler http.Handler
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithProxyConfig replaces the dev server document named in the config
func WithProxyConfig(c *devproxy.Config) Option {
	return func(s *Server) {
		s.proxyCfg = c
	}
}

// WithGetenv replaces os.Getenv when resolving the maps key
func WithGetenv(getenv func(string) string) Option {
	return func(s *Server) {
		s.getenv = getenv
	}
}

func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    slog.Default(),
		getenv:    os.Getenv,
		dial:      defaultDial,
		reachable: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = appmetrics.NewRegistry()
	}

	if s.proxyCfg == nil {
		pc, err := LoadProxyConfig(cfg.Dev.ProxyConfig)
		if err != nil {
			return nil, err
		}
		s.proxyCfg = pc
	}
	if err := s.proxyCfg.Validate(); err != nil {
		return nil, err
	}

	s.fsys = os.DirFS(cfg.Dev.Root)
	hidden, err := hiddenFiles(cfg.Dev.Root, append(slices.Clone(cfg.Files), cfg.Dev.ProxyConfig))
	if err != nil {
		return nil, err
	}
	s.hidden = hidden

	key, err := s.resolveMapsKey()
	if err != nil {
		return nil, err
	}
	s.mapsKey = key

	s.app = bootstrap.New(
		bootstrap.WithLogger(s.logger),
		bootstrap.WithModules(s.proxyCfg.ImportMap(ModulesPrefix), s.proxyCfg.ModulePreloads(ModulesPrefix)),
		bootstrap.WithValue("api", s.apiPrefixes()),
	)
	if err := s.app.Use(bootstrap.MapsPlugin(key.Key, cfg.Maps.Libraries...)); err != nil {
		return nil, err
	}
	if s.proxyCfg.HasPlugin(devproxy.PluginVueDevtools) {
		if err := s.app.Use(bootstrap.Plugin{Name: devproxy.PluginVueDevtools, Config: map[string]string{"config": DevtoolsPath}}); err != nil {
			return nil, err
		}
	}

	if cfg.Auth.Enabled {
		s.sessions, err = session.New(&cfg.Auth,
			session.WithLogger(s.logger),
			session.WithMetrics(metrics.NewPrometheusMetrics(s.registry)))
		if err != nil {
			return nil, fmt.Errorf("failed to set up sessions: %w", err)
		}
	}

	sm := appmetrics.NewServerMetrics(s.registry, "dev")
	s.router, err = devproxy.NewRouter(s.proxyCfg,
		devproxy.WithLogger(s.logger),
		devproxy.WithFallback(s.appHandler(sm)))
	if err != nil {
		return nil, err
	}

	s.targetUp = promauto.With(s.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: appmetrics.DefaultNamespace,
		Subsystem: "dev_proxy",
		Name:      "target_up",
		Help:      "Whether the proxy target of a prefix accepted a connection on the last probe",
	}, []string{"prefix"})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", appmetrics.Handler(s.registry))
	if s.proxyCfg.HasPlugin(devproxy.PluginVueDevtools) {
		mux.Handle("GET "+DevtoolsPath, sm.Instrument("devtools", http.HandlerFunc(s.handleDevtools)))
	}
	mux.Handle("/", s.router)
	s.handler = logging.Middleware(s.logger, mux)

	return s, nil
}

// LoadProxyConfig reads the dev server document at path, or returns the
// built-in one when path is empty
func LoadProxyConfig(path string) (*devproxy.Config, error) {
	if path == "" {
		return devproxy.Default(), nil
	}
	return devproxy.Load(path)
}

// resolveMapsKey reads the browser key once. A missing key is not fatal:
// the page is still served and the map widget fails to load.
func (s *Server) resolveMapsKey() (apikeys.APIKey, error) {
	opts, err := s.cfg.Maps.ResolveOptions()
	if err != nil {
		return apikeys.APIKey{}, err
	}
	opts.Getenv = s.getenv

	key, err := apikeys.ResolveMapsKey(opts)
	switch {
	case errors.Is(err, apikeys.ErrKeyNotSet):
		s.logger.Warn("maps api key not set; the map widget will not load", "error", err)
		return apikeys.APIKey{Type: apikeys.MapsKey, Source: opts.Source}, nil
	case err != nil:
		return apikeys.APIKey{}, err
	}
	if key.Source == apikeys.SourceProcessEnv {
		s.logger.Warn("maps api key read from the process environment; move it to the build environment",
			"variable", key.Label, "build_variable", s.cfg.Maps.BuildVar)
	}
	s.logger.Info("maps api key resolved", "source", key.Source.String(), "from", key.Label, "key", apikeys.Redact(key.Key))
	return key, nil
}

func (s *Server) apiPrefixes() []string {
	var out []string
	for prefix := range s.proxyCfg.Server.Proxy {
		out = append(out, devproxy.NormalizePrefix(prefix))
	}
	slices.Sort(out)
	return out
}

// App is the application description served in the host page
func (s *Server) App() *bootstrap.App {
	return s.app
}

// MapsKey is the browser key resolved at start-up
func (s *Server) MapsKey() apikeys.APIKey {
	return s.mapsKey
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Addr is the listen address, the dev server document winning over the config
func (s *Server) Addr() string {
	if addr := s.proxyCfg.Server.Addr(); addr != "" {
		return addr
	}
	return s.cfg.Dev.Listen
}

// ListenAndServe starts the background probes and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.start()
	defer s.Close()

	s.logger.Info("dev server routes", "proxy", strings.TrimSpace(s.router.String()), "root", s.cfg.Dev.Root)
	return httpserver.ListenAndServe(ctx, s.Addr(), s.handler, s.logger)
}

func (s *Server) start() {
	if s.cfg.Dev.ProbeInterval > 0 {
		s.tasks = append(s.tasks, scheduler.New(s.cfg.Dev.ProbeInterval, s.probeTargets, scheduler.WithImmediateRun()))
	}
	if s.sessions != nil {
		s.tasks = append(s.tasks, scheduler.New(time.Minute, s.sessions.Sweep))
	}
	for _, t := range s.tasks {
		t.Start()
	}
}

func (s *Server) Close() error {
	for _, t := range s.tasks {
		t.Stop()
	}
	s.tasks = nil
	return nil
}

func (s *Server) handleDevtools(w http.ResponseWriter, r *http.Request) {
	targets := make(map[string]string)
	for prefix, u := range s.router.Targets() {
		targets[prefix] = u.String()
	}

	doc := map[string]any{
		"plugins":      s.proxyCfg.Plugins,
		"proxy":        targets,
		"alias":        s.proxyCfg.Resolve.Alias,
		"optimizeDeps": s.proxyCfg.OptimizeDeps,
		"mapsKey": map[string]string{
			"source": s.mapsKey.Source.String(),
			"key":    redactOrEmpty(s.mapsKey.Key),
		},
		"auth": s.sessions != nil,
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		logging.FromContext(r.Context()).Error("failed to encode devtools config", "error", err)
	}
}

func redactOrEmpty(key string) string {
	if key == "" {
		return ""
	}
	return apikeys.Redact(key)
}

// hiddenFiles maps the config files that sit under root to their fs.FS names
func hiddenFiles(root string, files []string) (map[string]bool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dev root: %w", err)
	}
	hidden := make(map[string]bool)
	for _, f := range files {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", f, err)
		}
		rel, err := filepath.Rel(absRoot, abs)
		if err != nil || !filepath.IsLocal(rel) {
			continue
		}
		hidden[filepath.ToSlash(rel)] = true
	}
	return hidden, nil
}

// denied reports whether the file at name must not reach a browser: dot
// files and directories, names matching dev.deny and the loaded config files
func (s *Server) denied(name string) bool {
	if name == "." {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	base := path.Base(name)
	for _, pattern := range s.cfg.Dev.Deny {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return s.hidden[name]
}

// cleanPath maps a URL path onto an fs.FS name, false when it escapes the root
func cleanPath(p string) (string, bool) {
	name := strings.TrimPrefix(path.Clean("/"+p), "/")
	if name == "" {
		name = "."
	}
	return name, fs.ValidPath(name)
}
