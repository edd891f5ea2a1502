// Package bootstrap assembles the document the single-page app reads at start-up:
// the maps widget plugin with its key, the mount anchor and the module wiring,
// and injects it into the host page.
package bootstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/oneyeking31/local-explorer/apikeys"
	"github.com/oneyeking31/local-explorer/devproxy"
)

const (
	DefaultAnchor = "app"
	// MapsPluginName is the import name the app registers the maps widget under
	MapsPluginName = "vue-google-maps"
)

var ErrPluginRegistered = errors.New("plugin already registered")

// LoadOptions is the widget's load block
type LoadOptions struct {
	Key string `json:"key"`
	// Libraries is comma-separated, e.g. "places"
	Libraries string `json:"libraries,omitempty"`
}

type MapsConfig struct {
	Load LoadOptions `json:"load"`
}

type Plugin struct {
	Name   string `json:"name"`
	Config any    `json:"config"`
}

// MapsPlugin builds the maps widget plugin
func MapsPlugin(key string, libraries ...string) Plugin {
	var libs []string
	for _, l := range libraries {
		if l = strings.TrimSpace(l); l != "" {
			libs = append(libs, l)
		}
	}
	return Plugin{
		Name: MapsPluginName,
		Config: MapsConfig{Load: LoadOptions{
			Key:       key,
			Libraries: strings.Join(libs, ","),
		}},
	}
}

// App is the root application description
type App struct {
	anchor    string
	plugins   []Plugin
	logger    *slog.Logger
	importMap *devproxy.ImportMap
	preloads  []string
	values    map[string]any
}

type Option func(*App)

// WithAnchor sets the mount element id; "#app" and "app" are the same
func WithAnchor(anchor string) Option {
	return func(a *App) {
		a.anchor = strings.TrimPrefix(strings.TrimSpace(anchor), "#")
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// WithModules adds an import map and module preloads to the host page
func WithModules(im devproxy.ImportMap, preloads []string) Option {
	return func(a *App) {
		a.importMap = &im
		a.preloads = preloads
	}
}

// WithValue adds a top-level entry to the bootstrap document
func WithValue(name string, v any) Option {
	return func(a *App) {
		a.values[name] = v
	}
}

func New(opts ...Option) *App {
	a := &App{
		anchor: DefaultAnchor,
		logger: slog.Default(),
		values: make(map[string]any),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.anchor == "" {
		a.anchor = DefaultAnchor
	}
	return a
}

// Anchor is the mount selector, e.g. "#app"
func (a *App) Anchor() string {
	return "#" + a.anchor
}

// Use registers a plugin once. Problems with the maps key are logged, not returned.
func (a *App) Use(p Plugin) error {
	for _, existing := range a.plugins {
		if existing.Name == p.Name {
			return fmt.Errorf("%w: %s", ErrPluginRegistered, p.Name)
		}
	}
	if mc, ok := p.Config.(MapsConfig); ok {
		a.checkMapsKey(mc.Load.Key)
	}
	a.plugins = append(a.plugins, p)
	return nil
}

func (a *App) checkMapsKey(key string) {
	switch {
	case key == "":
		a.logger.Warn("maps api key is empty; the map widget will not load")
	case !apikeys.ContainsLiteralKey(key):
		a.logger.Warn("maps api key does not look like a Google API key", "key", apikeys.Redact(key))
	}
}

// Plugins returns the registered plugins in registration order
func (a *App) Plugins() []Plugin {
	return append([]Plugin(nil), a.plugins...)
}

// Document is what the app reads from the page
type Document struct {
	Mount   string         `json:"mount"`
	Plugins []Plugin       `json:"plugins"`
	Values  map[string]any `json:"-"`
}

func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Values)+2)
	maps.Copy(out, d.Values)
	out["mount"] = d.Mount
	plugins := d.Plugins
	if plugins == nil {
		plugins = []Plugin{}
	}
	out["plugins"] = plugins
	return json.Marshal(out)
}

// Document returns the bootstrap document, with extra merged over the
// values given at construction
func (a *App) Document(extra map[string]any) Document {
	values := maps.Clone(a.values)
	maps.Copy(values, extra)
	return Document{Mount: a.Anchor(), Plugins: a.Plugins(), Values: values}
}

// Bootstrap returns the bootstrap document as JSON
func (a *App) Bootstrap() ([]byte, error) {
	return json.Marshal(a.Document(nil))
}
