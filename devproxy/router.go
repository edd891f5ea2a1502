package devproxy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"
)

type route struct {
	prefix  string
	rule    ProxyRule
	target  *url.URL
	rewrite *compiledRewrite
	proxy   *httputil.ReverseProxy
}

// matches is true for the prefix itself and paths below it, never for
// "/apiary" under "/api"
func (rt *route) matches(path string) bool {
	if rt.prefix == "/" {
		return true
	}
	return path == rt.prefix || strings.HasPrefix(path, rt.prefix+"/")
}

// Router forwards requests matching a proxy rule and hands the rest to a fallback
type Router struct {
	routes    []*route
	fallback  http.Handler
	logger    *slog.Logger
	transport http.RoundTripper
}

type RouterOption func(*Router)

// WithFallback serves requests no rule matches; the default answers 404
func WithFallback(h http.Handler) RouterOption {
	return func(r *Router) {
		r.fallback = h
	}
}

func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

func WithTransport(t http.RoundTripper) RouterOption {
	return func(r *Router) {
		r.transport = t
	}
}

func NewRouter(cfg *Config, opts ...RouterOption) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Router{
		fallback: http.NotFoundHandler(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for prefix, rule := range cfg.Server.Proxy {
		rt := &route{prefix: NormalizePrefix(prefix), rule: rule}

		rt.target, _ = url.Parse(rule.Target)
		rw := rule.Rewrite
		if rw == nil {
			rw = StripPrefix(rt.prefix)
		}
		re, err := rw.compile()
		if err != nil {
			return nil, err
		}
		rt.rewrite = &compiledRewrite{re: re, replacement: rw.Replacement}
		rt.proxy = r.newReverseProxy(rt)

		r.routes = append(r.routes, rt)
	}

	// longest prefix first
	sort.Slice(r.routes, func(i, j int) bool {
		return len(r.routes[i].prefix) > len(r.routes[j].prefix)
	})
	return r, nil
}

func (r *Router) newReverseProxy(rt *route) *httputil.ReverseProxy {
	targetOrigin := rt.target.Scheme + "://" + rt.target.Host

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = rt.rewrite.apply(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			pr.SetURL(rt.target)
			pr.SetXForwarded()

			if rt.rule.ChangeOrigin {
				if pr.In.Header.Get("Origin") != "" {
					pr.Out.Header.Set("Origin", targetOrigin)
				}
			} else {
				pr.Out.Host = pr.In.Host
			}
		},
		Transport: r.transport,
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			r.logger.WarnContext(req.Context(), "proxy upstream unavailable",
				"prefix", rt.prefix,
				"target", rt.rule.Target,
				"path", req.URL.Path,
				"error", err)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":  "upstream unavailable",
				"target": rt.rule.Target,
			})
		},
	}
}

func (r *Router) match(path string) *route {
	for _, rt := range r.routes {
		if rt.matches(path) {
			return rt
		}
	}
	return nil
}

// Resolve returns the URL a request for path would be forwarded to
func (r *Router) Resolve(path string) (*url.URL, bool) {
	rt := r.match(path)
	if rt == nil {
		return nil, false
	}
	u := *rt.target
	u.Path = singleJoiningSlash(rt.target.Path, rt.rewrite.apply(path))
	u.RawPath = ""
	return &u, true
}

// Targets lists the distinct target origins, keyed by prefix
func (r *Router) Targets() map[string]*url.URL {
	out := make(map[string]*url.URL, len(r.routes))
	for _, rt := range r.routes {
		out[rt.prefix] = rt.target
	}
	return out
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rt := r.match(req.URL.Path)
	if rt == nil {
		r.fallback.ServeHTTP(w, req)
		return
	}
	r.logger.DebugContext(req.Context(), "proxying request",
		"prefix", rt.prefix,
		"path", req.URL.Path,
		"target", rt.rule.Target)
	rt.proxy.ServeHTTP(w, req)
}

func (r *Router) String() string {
	var b strings.Builder
	for _, rt := range r.routes {
		fmt.Fprintf(&b, "%s -> %s\n", rt.prefix, rt.rule.Target)
	}
	return b.String()
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
