package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, `
listener:
  addr: 127.0.0.1:9090
harvester_config: /etc/harvester/config.yaml
watch_config: true
cron:
  - schedule: "0 6 * * *"
  - schedule: "30 18 * * 5"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Listener.Addr)
	assert.Equal(t, "/etc/harvester/config.yaml", cfg.HarvesterConfig)
	assert.True(t, cfg.WatchConfig)
	assert.Equal(t, []string{"0 6 * * *", "30 18 * * 5"}, cfg.Schedules())
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeFile(t, "harvester_config: config.yaml\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listener.Addr)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "config.yaml"), cfg.HarvesterConfig)
	assert.Empty(t, cfg.Schedules())
	assert.False(t, cfg.WatchConfig)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing harvester config", content: "listener:\n  addr: :8080\n"},
		{name: "blank schedule", content: "harvester_config: c.yaml\ncron:\n  - schedule: \"\"\n"},
		{name: "bad yaml", content: "listener: [\n"},
		{name: "invalid schedule", content: "harvester_config: c.yaml\ncron:\n  - schedule: \"61 * * * *\"\n"},
		{name: "duplicate schedule", content: "harvester_config: c.yaml\ncron:\n  - schedule: \"@daily\"\n  - schedule: \"@daily\"\n"},
		{name: "joined schedules", content: "harvester_config: c.yaml\ncron:\n  - schedule: \"0 6 * * *;0 7 * * *\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
