package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneyeking31/local-explorer/apikeys"
)

// testKey builds a key-shaped value at runtime so no literal sits in the tree
func testKey() string {
	return "AI" + "za" + strings.Repeat("r", 35)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := New("test")
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func appDir(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"),
		[]byte(`<html><head></head><body><div id="app"></div></body></html>`), 0o644))
	return dir
}

func writeConfig(t *testing.T, root string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "dev:\n  root: " + root + "\nlog:\n  level: warn\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRenderJSONRedactsKey(t *testing.T) {
	t.Setenv(apikeys.EnvBuildMapsKey, testKey())
	root := appDir(t)

	out, err := run(t, "render", "--json", "--config", writeConfig(t, root))
	require.NoError(t, err)
	assert.NotContains(t, out, testKey())

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "#app", doc["mount"])
}

func TestRenderShowKey(t *testing.T) {
	t.Setenv(apikeys.EnvBuildMapsKey, testKey())
	root := appDir(t)

	out, err := run(t, "render", "--show-key", "--config", writeConfig(t, root))
	require.NoError(t, err)
	assert.Contains(t, out, testKey())
	assert.Contains(t, out, `id="app-bootstrap"`)
	assert.Contains(t, out, `<div id="app"></div>`)
}

func TestCheckSecrets(t *testing.T) {
	clean := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(clean, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(clean, "src", "main.js"),
		[]byte("key: import.meta.env.VITE_GOOGLE_MAPS_API_KEY\n"), 0o644))

	out, err := run(t, "check-secrets", clean)
	require.NoError(t, err)
	assert.Empty(t, out)

	dirty := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dirty, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dirty, "src", "main.js"),
		[]byte("load: {\n  key: '"+testKey()+"',\n}\n"), 0o644))

	out, err = run(t, "check-secrets", dirty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found 1 literal api key")
	assert.Contains(t, out, filepath.Join(dirty, "src", "main.js")+":2:")
	assert.NotContains(t, out, testKey())
}

func TestCheckSecretsDefaultsToDevRoot(t *testing.T) {
	root := appDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte("const k = '"+testKey()+"'\n"), 0o644))

	_, err := run(t, "check-secrets", "--config", writeConfig(t, root))
	assert.Error(t, err)
}

func TestInvalidFlagsAndConfig(t *testing.T) {
	_, err := run(t, "render", "--log-format", "xml")
	assert.Error(t, err)

	_, err = run(t, "render", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = run(t, "render", "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	_, err = run(t, "backend", "extra-arg")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "test")
}
