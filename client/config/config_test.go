package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Setenv("ADICHAT_SERVER_URL", "")
	t.Setenv("ADICHAT_TOKEN", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.Server.URL)
	assert.Equal(t, 100*time.Millisecond, cfg.RevealInterval())
	assert.Equal(t, 90*time.Second, cfg.Timeout())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
url = "https://chat.example.com"

[auth]
token = "from-file"

[reveal]
interval_ms = 40
`), 0o600))

	t.Setenv("ADICHAT_SERVER_URL", "")
	t.Setenv("ADICHAT_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", cfg.Server.URL)
	assert.Equal(t, "from-env", cfg.Auth.Token)
	assert.Equal(t, 40*time.Millisecond, cfg.RevealInterval())
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nurl="), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("ADICHAT_SERVER_URL", "")
	t.Setenv("ADICHAT_TOKEN", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Auth.Token = "secret"
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", loaded.Auth.Token)
}
