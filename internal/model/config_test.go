package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, "http://localhost:11434/api/generate", cfg.LLM.URL)
	assert.Equal(t, "mistral", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.LLM.TimeoutSec)
	assert.Equal(t, 15*time.Minute, cfg.Notify.ScanInterval())
	assert.Equal(t, time.Hour, cfg.Notify.Cooldown())
	assert.Equal(t, 100, cfg.Notify.HistoryLimit)
	assert.Equal(t, 48, cfg.Notify.LookaheadHours)
	assert.True(t, cfg.Email.TLS)
	assert.Equal(t, ":5000", cfg.API.Addr)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
storage:
  driver: file
  path: /tmp/deadlines
notify:
  scan_interval_min: 5
llm:
  model: llama3
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, StorageFile, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/deadlines", cfg.Storage.Path)
	assert.Equal(t, 5*time.Minute, cfg.Notify.ScanInterval())
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 3600, cfg.Notify.CooldownSec)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("DEADLINED_API_TOKEN", "s3cret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.API.Token)
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: mongo\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	cfg.Notify.ScanIntervalMin = 30
	cfg.API.Token = "abc"

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 30, loaded.Notify.ScanIntervalMin)
	assert.Equal(t, "abc", loaded.API.Token)
}

func TestNormalizeConfidence(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, NormalizeConfidence(" HIGH "))
	assert.Equal(t, ConfidenceLow, NormalizeConfidence("low"))
	assert.Equal(t, ConfidenceMedium, NormalizeConfidence("unsure"))
	assert.Equal(t, ConfidenceMedium, NormalizeConfidence(""))
}
