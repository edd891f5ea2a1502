package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

var errModuleNotFound = errors.New("module not found")

type packageManifest struct {
	Module string `json:"module"`
	Main   string `json:"main"`
}

// splitSpecifier separates "@scope/pkg/sub/file.js" into "@scope/pkg" and "sub/file.js"
func splitSpecifier(spec string) (pkg, sub string) {
	parts := strings.SplitN(spec, "/", 3)
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		pkg = parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			sub = parts[2]
		}
		return pkg, sub
	}
	pkg, sub, _ = strings.Cut(spec, "/")
	return pkg, sub
}

// resolveModule maps an import specifier, aliases applied, to a file under node_modules
func (s *Server) resolveModule(spec string) (string, error) {
	spec = s.proxyCfg.Resolve.Alias.Resolve(strings.Trim(spec, "/"))
	pkg, sub := splitSpecifier(spec)
	if pkg == "" {
		return "", errModuleNotFound
	}

	dir, ok := cleanPath(path.Join("node_modules", pkg))
	if !ok || !strings.HasPrefix(dir, "node_modules/") {
		return "", errModuleNotFound
	}

	if sub == "" {
		entry, err := s.entryPoint(dir)
		if err != nil {
			return "", err
		}
		sub = entry
	}

	name, ok := cleanPath(path.Join(dir, sub))
	if !ok || !strings.HasPrefix(name, dir+"/") {
		return "", errModuleNotFound
	}
	for _, candidate := range []string{name, name + ".js", name + ".mjs", path.Join(name, "index.js")} {
		if s.denied(candidate) {
			continue
		}
		if info, err := fs.Stat(s.fsys, candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", errModuleNotFound, spec)
}

// entryPoint prefers the ES module build a package advertises
func (s *Server) entryPoint(dir string) (string, error) {
	data, err := fs.ReadFile(s.fsys, path.Join(dir, "package.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return "index.js", nil
	}
	if err != nil {
		return "", err
	}

	var m packageManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("invalid package.json in %s: %w", dir, err)
	}
	for _, entry := range []string{m.Module, m.Main} {
		if entry != "" {
			return entry, nil
		}
	}
	return "index.js", nil
}

func (s *Server) serveModule(w http.ResponseWriter, r *http.Request) {
	spec := strings.TrimPrefix(r.URL.Path, ModulesPrefix)
	name, err := s.resolveModule(spec)
	if err != nil {
		if !errors.Is(err, errModuleNotFound) {
			s.logger.WarnContext(r.Context(), "failed to resolve module", "module", spec, "error", err)
		}
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	http.ServeFileFS(w, r, s.fsys, name)
}
