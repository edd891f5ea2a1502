package devserver

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/oneyeking31/local-explorer/bootstrap"
	"github.com/oneyeking31/local-explorer/logging"
	appmetrics "github.com/oneyeking31/local-explorer/metrics"
)

// appHandler serves everything the proxy does not forward
func (s *Server) appHandler(sm *appmetrics.ServerMetrics) http.Handler {
	index := sm.Instrument("index", http.HandlerFunc(s.serveIndex))
	modules := sm.Instrument("modules", http.HandlerFunc(s.serveModule))
	static := sm.Instrument("static", http.HandlerFunc(s.serveStatic))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		p := r.URL.Path
		switch {
		case p == "/" || p == "/"+s.cfg.Dev.Index:
			index.ServeHTTP(w, r)
		case strings.HasPrefix(p, ModulesPrefix):
			modules.ServeHTTP(w, r)
		default:
			static.ServeHTTP(w, r)
		}
	})
}

// hostPage is the app's index file, or the built-in page when there is none
func (s *Server) hostPage() ([]byte, error) {
	page, err := fs.ReadFile(s.fsys, s.cfg.Dev.Index)
	if errors.Is(err, fs.ErrNotExist) {
		return bootstrap.DefaultHostPage, nil
	}
	return page, err
}

// RenderIndex mounts the app into the host page, with a fresh session token
// when sessions are enabled
func (s *Server) RenderIndex() (bootstrap.MountResult, error) {
	page, err := s.hostPage()
	if err != nil {
		return bootstrap.MountResult{}, fmt.Errorf("failed to read host page: %w", err)
	}

	extra := map[string]any{}
	if s.sessions != nil {
		tok, err := s.sessions.Issue()
		if err != nil {
			return bootstrap.MountResult{}, fmt.Errorf("failed to issue session token: %w", err)
		}
		extra["session"] = tok
	}
	return s.app.Render(page, extra), nil
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	res, err := s.RenderIndex()
	if err != nil {
		logger.Error("failed to render host page", "error", err)
		http.Error(w, "failed to render host page", http.StatusInternalServerError)
		return
	}
	if !res.Mounted {
		logger.Warn("serving host page without the app", "anchor", res.Anchor)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(res.Page)
}

// serveStatic serves files under the app root. Extension-less paths that
// match no file are client-side routes and get the host page.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	name, ok := cleanPath(r.URL.Path)
	if !ok || s.denied(name) {
		http.NotFound(w, r)
		return
	}

	info, err := fs.Stat(s.fsys, name)
	switch {
	case err == nil && !info.IsDir():
		http.ServeFileFS(w, r, s.fsys, name)
	case path.Ext(name) == "" && !strings.HasPrefix(name, "node_modules"):
		s.serveIndex(w, r)
	default:
		http.NotFound(w, r)
	}
}
