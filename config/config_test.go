package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneyeking31/local-explorer/apikeys"
	"github.com/oneyeking31/local-explorer/models"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:5000", cfg.Backend.Listen)
	assert.Equal(t, "127.0.0.1:5173", cfg.Dev.Listen)
	assert.Equal(t, "build-env", cfg.Maps.KeySource)
	assert.Equal(t, apikeys.EnvBuildMapsKey, cfg.Maps.BuildVar)
	assert.Equal(t, []string{"places"}, cfg.Maps.Libraries)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Backend.OpenAIModel)
	assert.Equal(t, models.CacheTypeShort, cfg.Cache.Policy("weather"))
	assert.False(t, cfg.Auth.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"literal key source", func(c *Config) { c.Maps.KeySource = "literal" }, apikeys.ErrLiteralKey},
		{"process env without opt-in", func(c *Config) { c.Maps.KeySource = "process-env" }, apikeys.ErrSourceDisabled},
		{"unknown key source", func(c *Config) { c.Maps.KeySource = "vault" }, nil},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, nil},
		{"unknown rate limit key type", func(c *Config) { c.Backend.RateLimits["weather"] = c.Backend.RateLimits["maps"] }, nil},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	cfg := Default()
	cfg.Maps.KeySource = "process-env"
	cfg.Maps.AllowProcessEnv = true
	assert.NoError(t, cfg.Validate())
}

func TestMapsResolveOptions(t *testing.T) {
	opts, err := Default().Maps.ResolveOptions()
	require.NoError(t, err)
	assert.Equal(t, apikeys.SourceBuildEnv, opts.Source)
	assert.Equal(t, apikeys.EnvBuildMapsKey, opts.BuildVar)
}

func TestKeyRateLimits(t *testing.T) {
	limits, err := Default().Backend.KeyRateLimits()
	require.NoError(t, err)
	assert.Equal(t, 60, limits[apikeys.MapsKey].RateLimitPerMinute)
	assert.Equal(t, 20, limits[apikeys.OpenAIKey].RateLimitPerMinute)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	file := writeTemp(t, "config.yaml", `
log:
  level: debug
backend:
  listen: 0.0.0.0:5000
  key_backoff: 2m
  rate_limits:
    maps:
      rate_limit_per_minute: 5
      burst: 1
cache:
  policies:
    weather: minimal
dev:
  probe_interval: 5s
`)
	t.Setenv("LOCAL_EXPLORER_LOG_FORMAT", "json")
	t.Setenv("LOCAL_EXPLORER_BACKEND_LISTEN", "127.0.0.1:6000")
	t.Setenv("LOCAL_EXPLORER_MAPS_LIBRARIES", "places,geometry")

	cfg, err := Load(WithConfigFile(file))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "env beats defaults")
	assert.Equal(t, "127.0.0.1:6000", cfg.Backend.Listen, "env beats file")
	assert.Equal(t, 2*time.Minute, cfg.Backend.KeyBackoff)
	assert.Equal(t, 5, cfg.Backend.RateLimits["maps"].RateLimitPerMinute)
	assert.Equal(t, models.CacheTypeMinimal, cfg.Cache.Policy("weather"))
	assert.Equal(t, models.CacheTypePermanent, cfg.Cache.Policy("places"))
	assert.Equal(t, 5*time.Second, cfg.Dev.ProbeInterval)
	assert.Equal(t, []string{"places", "geometry"}, cfg.Maps.Libraries)
	assert.Contains(t, cfg.Files, file)
	assert.Equal(t, DefaultDeny(), cfg.Dev.Deny)
}

func TestLoadEnvFile(t *testing.T) {
	const name = "LOCAL_EXPLORER_DEV_ROOT"
	t.Cleanup(func() { os.Unsetenv(name) })

	envFile := writeTemp(t, ".env", name+"=/srv/app\n")
	cfg, err := Load(WithEnvFile(envFile))
	require.NoError(t, err)
	assert.Equal(t, "/srv/app", cfg.Dev.Root)
	assert.Equal(t, []string{envFile}, cfg.Files)

	_, err = Load(WithEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	assert.Error(t, err)
}

func TestLoadWithViperOverride(t *testing.T) {
	v := viper.New()
	v.Set("dev.listen", "127.0.0.1:9999")

	cfg, err := Load(WithViper(v))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Dev.Listen)
}

func TestLoadRejectsLiteralSource(t *testing.T) {
	t.Setenv("LOCAL_EXPLORER_MAPS_KEY_SOURCE", "literal")
	_, err := Load()
	assert.ErrorIs(t, err, apikeys.ErrLiteralKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(WithConfigFile(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)
}

func TestValidateRejectsBadDenyPattern(t *testing.T) {
	cfg := Default()
	cfg.Dev.Deny = []string{"[.env"}
	assert.ErrorContains(t, cfg.Validate(), "dev.deny")
}
