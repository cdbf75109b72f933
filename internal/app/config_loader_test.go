package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/ldm-go/internal/domain"
)

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
download:
  dir: ` + filepath.Join(dir, "downloads") + `
  concurrent_limit: 2
  max_reconnects: -1
  reconnect_delay: 500ms
queue:
  database_path: ` + filepath.Join(dir, "ldm.db") + `
  check_interval: 1s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, filepath.Join(dir, "downloads"), config.Download.Dir)
	assert.Equal(t, 2, config.Download.ConcurrentLimit)
	assert.Equal(t, -1, config.Download.MaxReconnects)
	assert.Equal(t, 500*time.Millisecond, config.Download.ReconnectDelay)
	assert.Equal(t, time.Second, config.Queue.CheckInterval)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, 8192, config.Download.ChunkSize, "unset keys keep defaults")
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644))

	t.Setenv("LDM_SERVER_PORT", "9191")
	t.Setenv("LDM_DOWNLOAD_CONCURRENT_LIMIT", "4")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, config.Server.Port)
	assert.Equal(t, 4, config.Download.ConcurrentLimit)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("download:\n  concurrent_limit: 0\n"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "concurrent limit")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "Downloads"), expandPath("~/Downloads"))
	assert.Equal(t, home+"/.ldm/logs", expandPath("$HOME/.ldm/logs"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")
	assert.Nil(t, config)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	config := domain.DefaultConfig()
	config.Server.Port = 9999
	config.Download.Dir = filepath.Join(dir, "downloads")
	config.Download.ReconnectDelay = 3 * time.Second
	config.Queue.DatabasePath = filepath.Join(dir, "ldm.db")
	config.Logging.LogsDir = filepath.Join(dir, "logs")
	require.NoError(t, SaveConfig(config, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Server.Port)
	assert.Equal(t, config.Download.Dir, loaded.Download.Dir)
	assert.Equal(t, 3*time.Second, loaded.Download.ReconnectDelay)
	assert.Equal(t, config.Download.UserAgent, loaded.Download.UserAgent)
}
