package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "local", cfg.Platform.Mode)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "noop", cfg.Events.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Store.Restore)
	assert.NotEmpty(t, cfg.Scheduler.TickInterval)
}

func TestLoadConfigFromFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Platform.Mode)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
platform:
  mode: eth
  admins:
    - admin-1
    - admin-2
  fee_recipient: treasury-1
blockchain:
  nodes:
    - name: primary
      url: http://localhost:8545
      priority: 1
scheduler:
  tick_interval: 5s
  sweep_interval: 15s
events:
  format: file
  directory: /tmp/events
api:
  port: 9090
store:
  path: /tmp/zerolock.db
  restore: false
logging:
  level: debug
  format: text
  output: stderr
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "eth", cfg.Platform.Mode)
	assert.Equal(t, []string{"admin-1", "admin-2"}, cfg.Platform.Admins)
	assert.Equal(t, "treasury-1", cfg.Platform.FeeRecipient)
	require.Len(t, cfg.Blockchain.Nodes, 1)
	assert.Equal(t, "primary", cfg.Blockchain.Nodes[0].Name)
	assert.Equal(t, "5s", cfg.Scheduler.TickInterval)
	assert.Equal(t, "file", cfg.Events.Format)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.False(t, cfg.Store.Restore)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigFromFile_InvalidYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("platform: [not: valid"), 0644))

	_, err := LoadConfigFromFile(path)
	assert.Error(t, err)
}

func TestSplitNonEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty("a, b"))
	assert.Equal(t, []string{"a"}, splitNonEmpty("a,,"))
	assert.Empty(t, splitNonEmpty(""))
}
