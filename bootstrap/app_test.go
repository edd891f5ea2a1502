package bootstrap

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/oneyeking31/local-explorer/apikeys"
	"github.com/oneyeking31/local-explorer/devproxy"
)

func testKey() string {
	return "AI" + "za" + strings.Repeat("b", 35)
}

func capture() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestMapsPlugin(t *testing.T) {
	p := MapsPlugin(testKey(), "places", " ", "geometry ")
	assert.Equal(t, MapsPluginName, p.Name)

	data, err := json.Marshal(p.Config)
	require.NoError(t, err)
	assert.JSONEq(t, `{"load":{"key":"`+testKey()+`","libraries":"places,geometry"}}`, string(data))

	data, err = json.Marshal(MapsPlugin(testKey()).Config)
	require.NoError(t, err)
	assert.JSONEq(t, `{"load":{"key":"`+testKey()+`"}}`, string(data))
}

func TestUseOnce(t *testing.T) {
	app := New()
	require.NoError(t, app.Use(MapsPlugin(testKey(), "places")))

	err := app.Use(MapsPlugin(testKey() + "x"))
	assert.ErrorIs(t, err, ErrPluginRegistered)

	require.Len(t, app.Plugins(), 1)
	assert.Equal(t, testKey(), app.Plugins()[0].Config.(MapsConfig).Load.Key)
}

func TestUseWarnsOnBadKey(t *testing.T) {
	logger, logs := capture()
	app := New(WithLogger(logger))

	require.NoError(t, app.Use(MapsPlugin("")))
	assert.Contains(t, logs.String(), "maps api key is empty")

	logger, logs = capture()
	app = New(WithLogger(logger))
	require.NoError(t, app.Use(MapsPlugin("not-a-google-key")))
	assert.Contains(t, logs.String(), "does not look like a Google API key")
	assert.NotContains(t, logs.String(), "not-a-google-key")
}

func TestAnchor(t *testing.T) {
	assert.Equal(t, "#app", New().Anchor())
	assert.Equal(t, "#root", New(WithAnchor("#root")).Anchor())
	assert.Equal(t, "#root", New(WithAnchor("root")).Anchor())
	assert.Equal(t, "#app", New(WithAnchor("")).Anchor())
}

func TestBootstrapDocument(t *testing.T) {
	app := New(WithValue("version", "dev"))
	require.NoError(t, app.Use(MapsPlugin(testKey(), "places")))

	data, err := app.Bootstrap()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"mount": "#app",
		"version": "dev",
		"plugins": [{"name": "vue-google-maps", "config": {"load": {"key": "`+testKey()+`", "libraries": "places"}}}]
	}`, string(data))

	data, err = New().Bootstrap()
	require.NoError(t, err)
	assert.JSONEq(t, `{"mount":"#app","plugins":[]}`, string(data))
}

// Every key source that resolves yields a document with a non-empty key
func TestBootstrapFromEachKeySource(t *testing.T) {
	env := map[string]string{
		apikeys.EnvMapsKey:      testKey(),
		apikeys.EnvBuildMapsKey: testKey(),
	}
	getenv := func(name string) string { return env[name] }

	for _, opts := range []apikeys.ResolveOptions{
		{Source: apikeys.SourceBuildEnv, Getenv: getenv},
		{Source: apikeys.SourceProcessEnv, AllowProcessEnv: true, Getenv: getenv},
	} {
		key, err := apikeys.ResolveMapsKey(opts)
		require.NoError(t, err, opts.Source.String())

		app := New()
		require.NoError(t, app.Use(MapsPlugin(key.Key, "places")))
		doc := app.Document(nil)
		assert.NotEmpty(t, doc.Plugins[0].Config.(MapsConfig).Load.Key, opts.Source.String())
	}

	_, err := apikeys.ResolveMapsKey(apikeys.ResolveOptions{Source: apikeys.SourceLiteral, Getenv: getenv})
	assert.ErrorIs(t, err, apikeys.ErrLiteralKey)
}

func bootstrapFrom(t *testing.T, page []byte) map[string]any {
	t.Helper()
	doc, err := html.Parse(bytes.NewReader(page))
	require.NoError(t, err)
	script := findByID(doc, ScriptID)
	require.NotNil(t, script, "bootstrap script missing")
	assert.Equal(t, "application/json", attr(script, "type"))

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(script.FirstChild.Data), &out))
	return out
}

func TestMount(t *testing.T) {
	cfg := devproxy.Default()
	app := New(WithModules(cfg.ImportMap("/@modules/"), cfg.ModulePreloads("/@modules/")))
	require.NoError(t, app.Use(MapsPlugin(testKey(), "places")))

	res := app.Mount(DefaultHostPage)
	require.True(t, res.Mounted)
	assert.Equal(t, "#app", res.Anchor)

	page := string(res.Page)
	assert.Contains(t, page, `<div id="app"></div>`)
	assert.Contains(t, page, `<link rel="modulepreload" href="/@modules/fast-deep-equal"/>`)
	assert.Less(t, strings.Index(page, `type="importmap"`), strings.Index(page, `src="/src/main.js"`))

	doc := bootstrapFrom(t, res.Page)
	assert.Equal(t, "#app", doc["mount"])

	parsed, err := html.Parse(bytes.NewReader(res.Page))
	require.NoError(t, err)
	var im devproxy.ImportMap
	require.NoError(t, json.Unmarshal([]byte(findByID(parsed, ScriptID+"-importmap").FirstChild.Data), &im))
	assert.Equal(t, im.Imports["vue-google-maps"], im.Imports["@fawmi/vue-google-maps"])
}

func TestMountTwiceReplaces(t *testing.T) {
	cfg := devproxy.Default()
	app := New(WithModules(cfg.ImportMap("/@modules/"), cfg.ModulePreloads("/@modules/")))

	first := app.Render(DefaultHostPage, map[string]any{"n": 1})
	second := app.Render(first.Page, map[string]any{"n": 2})
	require.True(t, second.Mounted)

	page := string(second.Page)
	assert.Equal(t, 1, strings.Count(page, `id="`+ScriptID+`"`))
	assert.Equal(t, 1, strings.Count(page, `rel="modulepreload"`))
	assert.Equal(t, 2.0, bootstrapFrom(t, second.Page)["n"])
}

func TestMountMissingAnchorDoesNotRaise(t *testing.T) {
	logger, logs := capture()
	app := New(WithLogger(logger), WithAnchor("#missing"))
	page := []byte(`<html><body><div id="app"></div></body></html>`)

	var res MountResult
	assert.NotPanics(t, func() { res = app.Mount(page) })
	assert.False(t, res.Mounted)
	assert.Equal(t, page, res.Page)
	assert.Contains(t, logs.String(), "mount anchor not found")

	res = app.Mount(nil)
	assert.False(t, res.Mounted)
}

func TestMountEscapesScriptBreakout(t *testing.T) {
	app := New(WithValue("note", "</script><script>alert(1)</script>"))
	res := app.Mount(DefaultHostPage)
	require.True(t, res.Mounted)

	assert.NotContains(t, string(res.Page), "<script>alert(1)")
	assert.Equal(t, "</script><script>alert(1)</script>", bootstrapFrom(t, res.Page)["note"])
}
