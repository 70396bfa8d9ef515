package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()
	assert.Equal(t, DefaultWindowURL, c.Window.DefaultURL)
	assert.Equal(t, "__netrelayEmit", c.Capture.Binding)
	assert.True(t, c.Window.OpenDevTools)
	assert.Equal(t, "netrelay_", c.Sqlite.Prefix)
	require.NoError(t, c.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), c)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netrelay.yaml")
	data := `
browser:
  devtoolsUrl: http://localhost:9333
window:
  defaultUrl: https://example.com/
  openDevTools: false
capture:
  skip: [".png", "ipc.localhost"]
log:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9333", c.Browser.DevToolsURL)
	assert.Equal(t, "https://example.com/", c.Window.DefaultURL)
	assert.False(t, c.Window.OpenDevTools)
	assert.Equal(t, []string{".png", "ipc.localhost"}, c.Capture.Skip)
	assert.Equal(t, "warn", c.Log.Level)
	// untouched sections keep their defaults
	assert.Equal(t, 800, c.Browser.Width)
	assert.Equal(t, "__netrelayEmit", c.Capture.Binding)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capture:\n  binding: \"\"\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("browser: [1, 2"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
