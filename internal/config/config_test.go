package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ORQUESTRA_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 7733, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.TeamPollInterval())
}

func TestLoadJSONCFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orquestra.jsonc")
	content := `{
  // local development settings
  "port": 9000,
  "teamsDir": "/tmp/teams",
  "runner": {"command": "agent-harness", "args": ["--stdio"]},
  "logLevel": "debug"
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ORQUESTRA_CONFIG", path)
	t.Setenv("ORQUESTRA_PORT", "9100")
	t.Setenv("ORQUESTRA_TEAM_POLL_MS", "500")

	cfg, err := Load()
	require.NoError(t, err)
	// Env wins over file, file wins over defaults.
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "/tmp/teams", cfg.TeamsDir)
	assert.Equal(t, "agent-harness", cfg.Runner.Command)
	assert.Equal(t, []string{"--stdio"}, cfg.Runner.Args)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.TeamPollInterval())
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ORQUESTRA_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "orquestra.json")
	cfg := &Config{Host: "0.0.0.0", Port: 8080, DataDir: "/data"}
	require.NoError(t, Save(cfg, path))

	loaded := defaults()
	require.NoError(t, loadFile(path, loaded))
	assert.Equal(t, "0.0.0.0", loaded.Host)
	assert.Equal(t, 8080, loaded.Port)
	assert.Equal(t, "/data", loaded.DataDir)
}

func TestPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")

	p := GetPaths()
	assert.Equal(t, filepath.Join(home, ".local", "share", "orquestra"), p.Data)
	assert.Equal(t, filepath.Join(home, ".config", "orquestra"), p.Config)
	require.NoError(t, p.EnsurePaths())
	assert.DirExists(t, p.Data)
	assert.Equal(t, filepath.Join(p.Data, "storage"), p.StoragePath())
}
