package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Remote.Enabled)
	assert.Equal(t, "dialogbridge", cfg.Remote.EndpointPrefix)
	assert.Equal(t, 64, cfg.Remote.WriteQueueSize)
	assert.Equal(t, 1<<20, cfg.Remote.MaxMessageBytes)
	assert.True(t, cfg.Remote.ForwardFinished)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, int64(10*1024*1024), cfg.Audit.MaxSizeBytes)
	assert.True(t, cfg.Logging.Redact)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "dialogbridge", cfg.Remote.EndpointPrefix)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"remote": {"endpoint_prefix": "omni", "write_queue_size": 8},
		"logging": {"level": "debug"}
	}`), 0o600))

	t.Setenv("DIALOGBRIDGE_REMOTE_WRITE_QUEUE_SIZE", "16")
	t.Setenv("DIALOGBRIDGE_AUDIT_ENABLED", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "omni", cfg.Remote.EndpointPrefix)
	assert.Equal(t, 16, cfg.Remote.WriteQueueSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Audit.Enabled)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, 1<<20, cfg.Remote.MaxMessageBytes)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"remote":`), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Remote.EndpointPrefix = "a/b"
	cfg.Remote.WriteQueueSize = 0
	cfg.Audit.Enabled = true
	cfg.Audit.Path = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path separators")
	assert.Contains(t, err.Error(), "write_queue_size")
	assert.Contains(t, err.Error(), "audit.path")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Remote.EndpointPrefix = "omni"

	require.NoError(t, SaveConfig(path, cfg))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "omni", loaded.Remote.EndpointPrefix)
}

func TestResolveRuntimePaths(t *testing.T) {
	dir := t.TempDir()

	t.Setenv(EnvBridgeConfig, "")
	t.Setenv(EnvBridgeHome, dir)
	paths := ResolveRuntimePaths()
	assert.Equal(t, filepath.Join(dir, "config.json"), paths.ConfigPath)
	assert.Equal(t, filepath.Join(dir, "dialogs.log"), paths.AuditPath)

	custom := filepath.Join(dir, "other", "bridge.json")
	t.Setenv(EnvBridgeConfig, custom)
	paths = ResolveRuntimePaths()
	assert.Equal(t, custom, paths.ConfigPath)
	assert.Equal(t, filepath.Join(dir, "other"), paths.HomeDir)
}
