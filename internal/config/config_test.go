package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "30s", cfg.Pairing.Cooldown)
	assert.Equal(t, "30s", cfg.Pairing.Timeout)
	assert.Equal(t, "10s", cfg.Commands.Timeout)
	assert.Equal(t, 128, cfg.Commands.EventBuffer)
	assert.True(t, cfg.Contacts.Watch)
	assert.Equal(t, 60, cfg.SMS.PreviewLength)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.toml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Pairing.Cooldown, cfg.Pairing.Cooldown)
}

func TestLoadConfig_ParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[pairing]
cooldown = "5s"
timeout = "1m"

[commands]
timeout = "2s"
event_buffer = 32

[contacts]
dir = "/tmp/vcards"
watch = false

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.PairingCooldown())
	assert.Equal(t, time.Minute, cfg.PairingTimeout())
	assert.Equal(t, 2*time.Second, cfg.CommandTimeout())
	assert.Equal(t, 32, cfg.Commands.EventBuffer)
	assert.Equal(t, "/tmp/vcards", cfg.ContactsDir())
	assert.False(t, cfg.Contacts.Watch)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not [valid"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestDurations_FallBackOnGarbage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pairing.Cooldown = "soon"
	cfg.Commands.Timeout = "-3s"

	assert.Equal(t, 30*time.Second, cfg.PairingCooldown())
	assert.Equal(t, 10*time.Second, cfg.CommandTimeout())
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg := DefaultConfig()
	cfg.Log.Level = "warn"
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", loaded.Log.Level)
}
