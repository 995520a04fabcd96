package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset(t *testing.T) {
	t.Cleanup(func() {
		mu.Lock()
		App = defaults("go-prune")
		initialized = false
		afterInit = nil
		mu.Unlock()
	})
}

func TestDefaults(t *testing.T) {
	reset(t)
	require.NoError(t, Init())
	assert.Equal(t, "go-prune", App.AppName)
	assert.Equal(t, 1, App.MinWidth)
	assert.Equal(t, "info", App.LogLevel)
	assert.Equal(t, filepath.Join(os.TempDir(), "go-prune"), App.TempDir)
}

func TestEnvironment(t *testing.T) {
	reset(t)
	t.Setenv("GO_PRUNE_MIN_WIDTH", "4")
	t.Setenv("GO_PRUNE_LOG_LEVEL", "warn")
	require.NoError(t, Init(DebugMode(true)))
	assert.Equal(t, 4, App.MinWidth)
	assert.Equal(t, "warn", App.LogLevel)
	assert.True(t, App.Debug)
}

func TestConfigFile(t *testing.T) {
	reset(t)
	path := filepath.Join(t.TempDir(), "prune.yml")
	require.NoError(t, os.WriteFile(path, []byte("min_width: 3\ntemp_dir: /tmp/pruning\nverbose: true\n"), 0644))

	require.NoError(t, Init(ConfigFileName(path)))
	assert.Equal(t, 3, App.MinWidth)
	assert.Equal(t, "/tmp/pruning", App.TempDir)
	assert.True(t, App.Verbose)

	assert.Error(t, Init(ConfigFileName(filepath.Join(t.TempDir(), "missing.yml"))))
}

func TestInvalidMinWidth(t *testing.T) {
	reset(t)
	t.Setenv("GO_PRUNE_MIN_WIDTH", "0")
	assert.Error(t, Init())
	assert.Equal(t, 1, App.MinWidth, "a rejected config is not installed")
}

func TestAfterInit(t *testing.T) {
	reset(t)
	calls := 0
	AfterInit(func() { calls++ })
	assert.Equal(t, 0, calls)

	require.NoError(t, Init())
	assert.Equal(t, 1, calls)

	late := 0
	AfterInit(func() { late++ })
	assert.Equal(t, 1, late, "hooks registered after Init run immediately")

	require.NoError(t, Init(AppName("go-prune")))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, late)
}
