package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := vars[key]
		return value, ok
	}
}

func TestRenderBytesHelpers(t *testing.T) {
	raw := []byte(`driver: {{ env "BRIDGE_DRIVER" | lower }}
target: {{ dataDir "app.db" | quote }}
lang: {{ envOr "BRIDGE_LANG" "de" }}
name: {{ env "BRIDGE_EMPTY" | default "bridge" }}
`)
	res, err := RenderBytes("", raw, Options{
		DataDir:   "/var/lib/bridge",
		LookupEnv: fakeEnv(map[string]string{"BRIDGE_DRIVER": "SQLITE", "BRIDGE_EMPTY": ""}),
	})
	require.NoError(t, err)
	assert.Equal(t, `driver: sqlite
target: "/var/lib/bridge/app.db"
lang: de
name: bridge
`, string(res.Data))
	assert.Equal(t, []string{"BRIDGE_DRIVER", "BRIDGE_EMPTY", "BRIDGE_LANG"}, res.Used)
}

func TestRenderBytesReportsMissingEnv(t *testing.T) {
	raw := []byte(`a: {{ env "BRIDGE_MISSING_B" }}
b: {{ env "BRIDGE_MISSING_A" }}
`)
	_, err := RenderBytes("config.yaml", raw, Options{LookupEnv: fakeEnv(nil)})
	assert.EqualError(t, err, "missing env vars: BRIDGE_MISSING_A, BRIDGE_MISSING_B")
}

func TestRenderBytesParseError(t *testing.T) {
	_, err := RenderBytes("config.yaml", []byte(`{{ if }}`), Options{})
	assert.ErrorContains(t, err, "parse template")
}

func TestRenderBytesDefaultsToProcessEnv(t *testing.T) {
	t.Setenv("BRIDGE_RENDER_TEST", "from-env")
	res, err := RenderBytes("config.yaml", []byte(`v: {{ env "BRIDGE_RENDER_TEST" }}`), Options{})
	require.NoError(t, err)
	assert.Equal(t, "v: from-env", string(res.Data))
}

func TestRenderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`dir: {{ dataDir }}`), 0o600))

	res, err := RenderFile(path, Options{DataDir: "/data"})
	require.NoError(t, err)
	assert.Equal(t, "dir: /data", string(res.Data))

	_, err = RenderFile(filepath.Join(t.TempDir(), "missing.yaml"), Options{})
	assert.ErrorContains(t, err, "read config")
}
