package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid json config", config: Config{Level: "info", Format: "json", Output: "stdout"}},
		{name: "valid text config", config: Config{Level: "debug", Format: "text", Output: "stderr"}},
		{name: "invalid level", config: Config{Level: "verbose", Format: "json"}, wantErr: true},
		{name: "invalid format", config: Config{Level: "info", Format: "xml"}, wantErr: true},
		{name: "defaults applied", config: Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.NoError(t, logger.Close())
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvester.log")
	logger, err := New(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Component("orchestrator").Info("refresh finished", "new_activities", 3)
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"orchestrator"`)
	assert.Contains(t, string(data), `"new_activities":3`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    slog.Level
		wantErr bool
	}{
		{level: "debug", want: slog.LevelDebug},
		{level: "INFO", want: slog.LevelInfo},
		{level: "warn", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "loud", want: slog.LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := ParseLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetDefaults(t *testing.T) {
	var cfg Config
	cfg.setDefaults()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
}

func TestLogger_SetLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.log")
	logger, err := New(Config{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("hidden")
	require.NoError(t, logger.SetLevel("debug"))
	logger.Debug("shown")
	assert.Error(t, logger.SetLevel("loud"))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNew_RedactsCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redact.log")
	logger, err := New(Config{Format: "text", Output: path})
	require.NoError(t, err)

	logger.Info("session loaded", "cookie", "__ac=secret", "site_cookie", "__ac=other", "user", "ada")
	logger.WithGroup("request").Info("sent", "Authorization", "Bearer abc")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "other")
	assert.NotContains(t, out, "Bearer")
	assert.Contains(t, out, "cookie=[REDACTED]")
	assert.Contains(t, out, "user=ada")
}
