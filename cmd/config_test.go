package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/cr/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper
	viper.Reset()
	viper.SetDefault("db_path", filepath.Join(dir, "cr.db"))
	viper.SetDefault("agents_dir", filepath.Join(dir, "agents.d"))
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("review.concurrency", 3)
	viper.SetDefault("review.max_retries", 2)
	viper.SetDefault("review.max_tokens_per_batch", 12000)
	viper.SetDefault("history.enabled", true)

	// Initialize output
	ui = output.New()

	return dir
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cr configuration")
	assert.Contains(t, string(data), "anthropic")
	assert.Contains(t, string(data), "max_tokens_per_batch: 12000")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	t.Cleanup(func() { configForce = false })
	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cr configuration")
}

func TestConfigShow_MasksAPIKey(t *testing.T) {
	testEnv(t)
	viper.Set("anthropic.api_key", "sk-ant-secret")

	buf := &bytes.Buffer{}
	ui.Out = buf

	require.NoError(t, configShowRun())
	assert.NotContains(t, buf.String(), "sk-ant-secret")
	assert.Contains(t, buf.String(), "(set)")
}

func TestDetectSource(t *testing.T) {
	t.Run("env wins", func(t *testing.T) {
		t.Setenv("CR_DB_PATH", "/tmp/x.db")
		got := detectSource("db_path", "CR_DB_PATH", map[string]bool{"db_path": true})
		assert.Contains(t, got, "env")
	})

	t.Run("file next", func(t *testing.T) {
		got := detectSource("db_path", "CR_UNSET_VAR", map[string]bool{"db_path": true})
		assert.Equal(t, "(file)", got)
	})

	t.Run("default otherwise", func(t *testing.T) {
		got := detectSource("db_path", "CR_UNSET_VAR", map[string]bool{})
		assert.Equal(t, "(default)", got)
	})
}

func TestFlattenKeys(t *testing.T) {
	result := make(map[string]bool)
	flattenKeys("", map[string]any{
		"db_path": "/tmp/cr.db",
		"anthropic": map[string]any{
			"model": "x",
		},
	}, result)

	assert.True(t, result["db_path"])
	assert.True(t, result["anthropic.model"])
}
