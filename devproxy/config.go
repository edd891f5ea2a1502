// Package devproxy holds the development server configuration: which build
// plugins run, how /api style prefixes are forwarded to the backend, module
// aliases and the dependencies the browser should fetch eagerly.
package devproxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Build plugins understood by the development gateway
const (
	PluginVue         = "vue"
	PluginVueDevtools = "vue-devtools"
)

var (
	ErrDuplicatePrefix = errors.New("duplicate proxy prefix")
	ErrUnknownPlugin   = errors.New("unknown plugin")
)

type Config struct {
	Plugins      []string     `yaml:"plugins" json:"plugins"`
	Server       Server       `yaml:"server" json:"server"`
	OptimizeDeps OptimizeDeps `yaml:"optimizeDeps" json:"optimizeDeps"`
	Resolve      Resolve      `yaml:"resolve" json:"resolve"`
}

type Server struct {
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty"`
	// Proxy is keyed by path prefix
	Proxy map[string]ProxyRule `yaml:"proxy" json:"proxy"`
}

// Addr is host:port, empty when neither is set
func (s Server) Addr() string {
	if s.Host == "" && s.Port == 0 {
		return ""
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ProxyRule forwards a path prefix to Target
type ProxyRule struct {
	Target       string `yaml:"target" json:"target"`
	ChangeOrigin bool   `yaml:"changeOrigin" json:"changeOrigin"`
	// Rewrite defaults to stripping the prefix
	Rewrite *Rewrite `yaml:"rewrite,omitempty" json:"rewrite,omitempty"`
}

type OptimizeDeps struct {
	Include []string `yaml:"include" json:"include"`
}

type Resolve struct {
	Alias Aliases `yaml:"alias" json:"alias"`
}

// Default is the configuration the front end was developed with
func Default() *Config {
	return &Config{
		Plugins: []string{PluginVue, PluginVueDevtools},
		Server: Server{
			Proxy: map[string]ProxyRule{
				"/api": {
					Target:       "http://127.0.0.1:5000",
					ChangeOrigin: true,
					Rewrite:      StripPrefix("/api"),
				},
			},
		},
		OptimizeDeps: OptimizeDeps{Include: []string{"fast-deep-equal"}},
		Resolve: Resolve{Alias: Aliases{
			"vue-google-maps": "@fawmi/vue-google-maps",
		}},
	}
}

// Parse reads a YAML or JSON document and validates it
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse dev server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads path, or returns Default when path is empty
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dev server config: %w", err)
	}
	return Parse(data)
}

// Marshal encodes the config as "yaml" or "json"
func (c *Config) Marshal(format string) ([]byte, error) {
	switch format {
	case "yaml", "yml", "":
		return yaml.Marshal(c)
	case "json":
		return json.MarshalIndent(c, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// HasPlugin reports whether name is enabled
func (c *Config) HasPlugin(name string) bool {
	return slices.Contains(c.Plugins, name)
}

// NormalizePrefix gives "/api", "api" and "/api/" the same form
func NormalizePrefix(prefix string) string {
	return "/" + strings.Trim(strings.TrimSpace(prefix), "/")
}

func (c *Config) Validate() error {
	for _, p := range c.Plugins {
		if p != PluginVue && p != PluginVueDevtools {
			return fmt.Errorf("%w %q", ErrUnknownPlugin, p)
		}
	}

	seen := make(map[string]string, len(c.Server.Proxy))
	for prefix, rule := range c.Server.Proxy {
		norm := NormalizePrefix(prefix)
		if other, ok := seen[norm]; ok {
			return fmt.Errorf("%w: %q and %q", ErrDuplicatePrefix, other, prefix)
		}
		seen[norm] = prefix

		if rule.Target == "" {
			return fmt.Errorf("proxy %q: target is required", prefix)
		}
		target, err := url.Parse(rule.Target)
		if err != nil {
			return fmt.Errorf("proxy %q: invalid target: %w", prefix, err)
		}
		if target.Scheme != "http" && target.Scheme != "https" || target.Host == "" {
			return fmt.Errorf("proxy %q: target must be an absolute http(s) url, got %q", prefix, rule.Target)
		}
		if rule.Rewrite != nil {
			if _, err := rule.Rewrite.compile(); err != nil {
				return fmt.Errorf("proxy %q: %w", prefix, err)
			}
		}
	}

	for alias, canonical := range c.Resolve.Alias {
		if alias == "" || canonical == "" {
			return errors.New("module aliases need both a name and a target")
		}
	}
	return nil
}
