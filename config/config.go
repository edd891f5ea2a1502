// Package config loads the process configuration shared by the backend and
// the development gateway.
package config

import (
	"errors"
	"fmt"
	"path"
	"time"

	authconfig "github.com/oneyeking31/local-explorer/auth/config"
	"github.com/oneyeking31/local-explorer/apikeys"
	"github.com/oneyeking31/local-explorer/cache"
	"github.com/oneyeking31/local-explorer/httpclient"
	"github.com/oneyeking31/local-explorer/ratelimit"
)

type Config struct {
	Log     LogConfig         `yaml:"log" mapstructure:"log"`
	Maps    MapsConfig        `yaml:"maps" mapstructure:"maps"`
	Backend BackendConfig     `yaml:"backend" mapstructure:"backend"`
	Dev     DevConfig         `yaml:"dev" mapstructure:"dev"`
	Cache   cache.Config      `yaml:"cache" mapstructure:"cache"`
	Auth    authconfig.Config `yaml:"auth" mapstructure:"auth"`

	// Files lists the config and env files this configuration was read from
	Files []string `yaml:"-" mapstructure:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// MapsConfig selects where the browser maps key comes from
type MapsConfig struct {
	KeySource       string   `yaml:"key_source" mapstructure:"key_source"`
	AllowProcessEnv bool     `yaml:"allow_process_env" mapstructure:"allow_process_env"`
	BuildVar        string   `yaml:"build_var" mapstructure:"build_var"`
	Libraries       []string `yaml:"libraries" mapstructure:"libraries"`
}

// ResolveOptions turns the section into apikeys.ResolveOptions
func (c MapsConfig) ResolveOptions() (apikeys.ResolveOptions, error) {
	source, err := apikeys.ParseKeySource(c.KeySource)
	if err != nil {
		return apikeys.ResolveOptions{}, err
	}
	return apikeys.ResolveOptions{
		Source:          source,
		AllowProcessEnv: c.AllowProcessEnv,
		BuildVar:        c.BuildVar,
	}, nil
}

type BackendConfig struct {
	Listen      string `yaml:"listen" mapstructure:"listen"`
	WeatherURL  string `yaml:"weather_url" mapstructure:"weather_url"`
	PlacesURL   string `yaml:"places_url" mapstructure:"places_url"`
	OpenAIURL   string `yaml:"openai_url" mapstructure:"openai_url"`
	OpenAIModel string `yaml:"openai_model" mapstructure:"openai_model"`
	// MaxKeywords caps how many comma-separated keywords one places search fans out to
	MaxKeywords int           `yaml:"max_keywords" mapstructure:"max_keywords"`
	KeyBackoff  time.Duration `yaml:"key_backoff" mapstructure:"key_backoff"`
	// RateLimits is keyed by key type: maps and openai budget each upstream
	// key, none budgets each client address
	RateLimits  map[string]ratelimit.RateLimit `yaml:"rate_limits" mapstructure:"rate_limits"`
	HTTP        httpclient.RetryOptions        `yaml:"http" mapstructure:"http"`
	CORSOrigins []string                       `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// KeyRateLimits converts RateLimits to the form ratelimit.NewRateLimiterManager takes
func (c BackendConfig) KeyRateLimits() (map[apikeys.KeyType]ratelimit.RateLimit, error) {
	out := make(map[apikeys.KeyType]ratelimit.RateLimit, len(c.RateLimits))
	for name, rl := range c.RateLimits {
		kt, err := apikeys.ParseKeyType(name)
		if err != nil {
			return nil, fmt.Errorf("backend.rate_limits: %w", err)
		}
		out[kt] = rl
	}
	return out, nil
}

type DevConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
	// Root is the directory of the single-page app
	Root  string `yaml:"root" mapstructure:"root"`
	Index string `yaml:"index" mapstructure:"index"`
	// ProxyConfig is a dev-server YAML document; empty uses the built-in one
	ProxyConfig   string        `yaml:"proxy_config" mapstructure:"proxy_config"`
	ProbeInterval time.Duration `yaml:"probe_interval" mapstructure:"probe_interval"`
	// Deny holds base-name patterns the dev server never serves. Paths with
	// a segment starting with a dot are always refused.
	Deny []string `yaml:"deny" mapstructure:"deny"`
}

// DefaultDeny keeps env files and key material off the dev server
func DefaultDeny() []string {
	return []string{"*.env", "*.env.*", "*.pem", "*.crt", "*.key"}
}

// Default returns a configuration with every default applied
func Default() *Config {
	c := &Config{}
	c.Cache.L1.Enabled = true
	c.ApplyDefaults()
	return c
}

func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Maps.KeySource == "" {
		c.Maps.KeySource = apikeys.SourceBuildEnv.String()
	}
	if c.Maps.BuildVar == "" {
		c.Maps.BuildVar = apikeys.EnvBuildMapsKey
	}
	if len(c.Maps.Libraries) == 0 {
		c.Maps.Libraries = []string{"places"}
	}

	b := &c.Backend
	if b.Listen == "" {
		b.Listen = "127.0.0.1:5000"
	}
	if b.WeatherURL == "" {
		b.WeatherURL = "https://api.open-meteo.com/v1/forecast"
	}
	if b.PlacesURL == "" {
		b.PlacesURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"
	}
	if b.OpenAIURL == "" {
		b.OpenAIURL = "https://api.openai.com/v1/chat/completions"
	}
	if b.OpenAIModel == "" {
		b.OpenAIModel = "gpt-3.5-turbo"
	}
	if b.MaxKeywords == 0 {
		b.MaxKeywords = 5
	}
	if b.KeyBackoff == 0 {
		b.KeyBackoff = 5 * time.Minute
	}
	if b.RateLimits == nil {
		b.RateLimits = map[string]ratelimit.RateLimit{
			apikeys.MapsKey.String():   {RateLimitPerMinute: 60, Burst: 10},
			apikeys.OpenAIKey.String(): {RateLimitPerMinute: 20, Burst: 3},
			apikeys.NoKey.String():     {RateLimitPerMinute: 120, Burst: 20},
		}
	}
	b.HTTP.ApplyDefaults()
	if len(b.CORSOrigins) == 0 {
		b.CORSOrigins = []string{"*"}
	}

	d := &c.Dev
	if d.Listen == "" {
		d.Listen = "127.0.0.1:5173"
	}
	if d.Root == "" {
		d.Root = "."
	}
	if d.Index == "" {
		d.Index = "index.html"
	}
	if d.ProbeInterval == 0 {
		d.ProbeInterval = 30 * time.Second
	}
	if d.Deny == nil {
		d.Deny = DefaultDeny()
	}

	c.Cache.ApplyDefaults()
	c.Auth.ApplyDefaults()
}

func (c *Config) Validate() error {
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	source, err := apikeys.ParseKeySource(c.Maps.KeySource)
	if err != nil {
		return fmt.Errorf("maps.key_source: %w", err)
	}
	if source == apikeys.SourceLiteral {
		return fmt.Errorf("maps.key_source: %w", apikeys.ErrLiteralKey)
	}
	if source == apikeys.SourceProcessEnv && !c.Maps.AllowProcessEnv {
		return fmt.Errorf("maps.key_source: %w; set maps.allow_process_env", apikeys.ErrSourceDisabled)
	}

	if c.Backend.Listen == "" || c.Dev.Listen == "" {
		return errors.New("listen addresses must not be empty")
	}
	for _, pattern := range c.Dev.Deny {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("dev.deny: bad pattern %q: %w", pattern, err)
		}
	}
	if c.Backend.MaxKeywords <= 0 {
		return errors.New("backend.max_keywords must be positive")
	}
	if _, err := c.Backend.KeyRateLimits(); err != nil {
		return err
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}
