package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.JSONLog)
	assert.True(t, cfg.WifiEnabled())
	assert.Empty(t, cfg.NetnsPath)
	assert.Empty(t, cfg.MetricsListen)
}

func TestLoadBytes(t *testing.T) {
	cfg, err := LoadBytes([]byte(`
log_level      = "debug"
json_log       = true
wifi           = false
netns_path     = "/run/netns/lab"
metrics_listen = "127.0.0.1:9477"
`), "test.hcl")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.JSONLog)
	assert.False(t, cfg.WifiEnabled())
	assert.Equal(t, "/run/netns/lab", cfg.NetnsPath)
	assert.Equal(t, "127.0.0.1:9477", cfg.MetricsListen)
}

func TestLoadBytesPartialKeepsDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(`log_level = "warn"`), "test.hcl")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.WifiEnabled())
}

func TestLoadBytesEnvInterpolation(t *testing.T) {
	t.Setenv("NETMIRROR_TEST_NS", "/run/netns/test")
	cfg, err := LoadBytes([]byte(`netns_path = env.NETMIRROR_TEST_NS`), "test.hcl")
	require.NoError(t, err)
	assert.Equal(t, "/run/netns/test", cfg.NetnsPath)
}

func TestLoadBytesRejectsBadHCL(t *testing.T) {
	_, err := LoadBytes([]byte(`log_level = `), "test.hcl")
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netmirror.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`log_level = "error"`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
}
