package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/booster/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rootCmd keeps flag values between Execute calls, so every case sets
// --config explicitly
func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestConfigInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "booster.yaml")

	require.NoError(t, execute(t, "config", "init", path, "--config", ""))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), loaded)
}

func TestFlagOverrides(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, execute(t, "config", "show",
		"--config", "",
		"--backend-url", "http://127.0.0.1:9999",
		"--data-dir", dir,
		"--log-level", "debug",
	))

	assert.Equal(t, "http", cfg.Backend.Kind)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.Backend.URL)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  kind: grpc\n"), 0644))

	assert.Error(t, execute(t, "config", "show", "--config", path))
}

func TestExecuteRequiresOperations(t *testing.T) {
	assert.Error(t, execute(t, "execute", "--config", ""))
}
