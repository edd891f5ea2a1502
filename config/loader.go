package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. LOCAL_EXPLORER_BACKEND_LISTEN
const EnvPrefix = "LOCAL_EXPLORER"

// LoaderConfig holds optional file overrides
type LoaderConfig struct {
	ConfigFile string
	EnvFile    string
	// Viper receives flag bindings and overrides; a fresh instance is used when nil
	Viper *viper.Viper
}

type LoaderOption func(*LoaderConfig)

// WithConfigFile sets an explicit YAML config path
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env path
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithViper loads through v so that bound flags take part
func WithViper(v *viper.Viper) LoaderOption {
	return func(lc *LoaderConfig) { lc.Viper = v }
}

// Load builds the configuration from, in increasing precedence: defaults, the
// YAML file, the .env file and the process environment.
// A missing default .env is fine; an explicitly named one must exist.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	v := lc.Viper
	if v == nil {
		v = viper.New()
	}

	envFile, err := loadEnvFile(lc.EnvFile)
	if err != nil {
		return nil, err
	}

	// Seed every key with its default so AutomaticEnv can override keys
	// that appear in no file.
	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to read defaults: %w", err)
	}

	if lc.ConfigFile != "" {
		v.SetConfigFile(lc.ConfigFile)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", lc.ConfigFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	for _, f := range []string{lc.ConfigFile, envFile} {
		if f != "" {
			cfg.Files = append(cfg.Files, f)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadEnvFile returns the path it read, empty when the default file is absent
func loadEnvFile(path string) (string, error) {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("env file %s: %w", path, err)
	}
	// godotenv.Load never overrides variables already set in the process
	if err := godotenv.Load(path); err != nil {
		return "", fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return path, nil
}
