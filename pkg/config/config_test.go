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
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 128, cfg.MasterpointerBlockBase)
	assert.Equal(t, 32768, cfg.MasterpointerBlockCap)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	content := "dataDir: /var/lib/docstore\nwriteThrottleMaxWaitMillis: 10000\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/docstore", cfg.DataDir)
	assert.Equal(t, 10000, cfg.WriteThrottleMaxWaitMillis)
	assert.Equal(t, 50, cfg.WriteThrottleSleepMillis) // untouched default
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLogLevelFallsBackToInfo(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "bogus"
	assert.Equal(t, "info", string(cfg.LogLevel()))
}
