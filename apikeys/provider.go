package apikeys

import (
	"os"
	"strings"
)

// Ensure EnvKeyProvider implements KeyProvider
var _ KeyProvider = (*EnvKeyProvider)(nil)

// EnvKeyProvider reads keys from environment variables.
// For each key type the variables are tried in order and the first non-empty
// one wins; its value may hold several comma-separated keys.
type EnvKeyProvider struct {
	Vars   map[KeyType][]string
	Getenv func(string) string
}

// NewEnvKeyProvider returns a provider for the server-side upstream keys.
// The browser maps key is resolved separately by ResolveMapsKey.
func NewEnvKeyProvider() *EnvKeyProvider {
	return &EnvKeyProvider{
		Vars: map[KeyType][]string{
			MapsKey:   {EnvMapsKeys, EnvMapsKey},
			OpenAIKey: {EnvOpenAIKeys, EnvOpenAIKey},
		},
		Getenv: os.Getenv,
	}
}

// GetKeys returns the configured keys for keyType, deduplicated and in order
func (p *EnvKeyProvider) GetKeys(keyType KeyType) []string {
	getenv := p.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	for _, name := range p.Vars[keyType] {
		if keys := SplitKeys(getenv(name)); len(keys) > 0 {
			return keys
		}
	}
	return nil
}

// SplitKeys splits a comma-separated list, dropping blanks and repeats
func SplitKeys(value string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(value, ",") {
		key := strings.TrimSpace(part)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// StaticKeyProvider serves fixed keys, mostly useful in tests and tools
type StaticKeyProvider map[KeyType][]string

func (p StaticKeyProvider) GetKeys(keyType KeyType) []string {
	return p[keyType]
}
