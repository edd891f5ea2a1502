package config

import (
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Enabled {
		t.Error("expected auth to be disabled by default")
	}
	if cfg.Issuer != "local-explorer" {
		t.Errorf("expected issuer local-explorer, got %s", cfg.Issuer)
	}
	if cfg.RequestsPerToken != 100 {
		t.Errorf("expected requests per token 100, got %d", cfg.RequestsPerToken)
	}
	if cfg.TokenExpiry != time.Hour {
		t.Errorf("expected token expiry 1h, got %v", cfg.TokenExpiry)
	}
}

func TestWithOptions(t *testing.T) {
	cfg := New(
		WithEnabled(true),
		WithSecret("0123456789abcdef"),
		WithIssuer("dev-gateway"),
		WithRequestsPerToken(50),
		WithTokenExpiry(20*time.Minute),
	)

	if !cfg.Enabled || cfg.Secret != "0123456789abcdef" || cfg.Issuer != "dev-gateway" {
		t.Errorf("options not applied: %+v", cfg)
	}
	if cfg.RequestsPerToken != 50 {
		t.Errorf("expected requests per token 50, got %d", cfg.RequestsPerToken)
	}
	if cfg.TokenExpiry != 20*time.Minute {
		t.Errorf("expected token expiry 20m, got %v", cfg.TokenExpiry)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{"disabled needs nothing", &Config{}, ""},
		{"valid", New(WithEnabled(true), WithSecret(strings.Repeat("s", 16))), ""},
		{"missing secret", New(WithEnabled(true)), "required"},
		{"short secret", New(WithEnabled(true), WithSecret("short")), "at least"},
		{"bad limit", New(WithEnabled(true), WithSecret(strings.Repeat("s", 16)), WithRequestsPerToken(-1)), "positive"},
		{"bad expiry", New(WithEnabled(true), WithSecret(strings.Repeat("s", 16)), WithTokenExpiry(-time.Second)), "positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
