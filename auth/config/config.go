package config

import (
	"errors"
	"fmt"
	"time"
)

const minSecretLength = 16

// Config controls the session tokens that gate key-spending endpoints
type Config struct {
	Enabled          bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Secret           string        `yaml:"secret" json:"-" mapstructure:"secret"`
	Issuer           string        `yaml:"issuer" json:"issuer" mapstructure:"issuer"`
	RequestsPerToken int           `yaml:"requests_per_token" json:"requests_per_token" mapstructure:"requests_per_token"`
	TokenExpiry      time.Duration `yaml:"token_expiry" json:"token_expiry" mapstructure:"token_expiry"`
}

type Option func(*Config)

func New(opts ...Option) *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

func WithEnabled(enabled bool) Option {
	return func(c *Config) {
		c.Enabled = enabled
	}
}

func WithSecret(secret string) Option {
	return func(c *Config) {
		c.Secret = secret
	}
}

func WithIssuer(issuer string) Option {
	return func(c *Config) {
		c.Issuer = issuer
	}
}

func WithRequestsPerToken(requests int) Option {
	return func(c *Config) {
		c.RequestsPerToken = requests
	}
}

func WithTokenExpiry(expiry time.Duration) Option {
	return func(c *Config) {
		c.TokenExpiry = expiry
	}
}

func (c *Config) ApplyDefaults() {
	if c.Issuer == "" {
		c.Issuer = "local-explorer"
	}
	if c.RequestsPerToken == 0 {
		c.RequestsPerToken = 100
	}
	if c.TokenExpiry == 0 {
		c.TokenExpiry = time.Hour
	}
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Secret == "" {
		return errors.New("auth.secret is required when auth is enabled")
	}
	if len(c.Secret) < minSecretLength {
		return fmt.Errorf("auth.secret must be at least %d characters", minSecretLength)
	}
	if c.RequestsPerToken <= 0 {
		return errors.New("requests per token must be positive")
	}
	if c.TokenExpiry <= 0 {
		return errors.New("token expiry must be positive")
	}
	return nil
}
