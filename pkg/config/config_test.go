package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("TEST_BOTAGENT_API_KEY", "sk-test-123")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "llm:\n  provider: anthropic\n  model: claude-3-5-sonnet\n  api_key: ${TEST_BOTAGENT_API_KEY}\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey)
	assert.Equal(t, 20, cfg.Memory.MessageWindow)
	assert.Equal(t, 10, cfg.Memory.MaxIterations)
	assert.Equal(t, 5, cfg.Memory.CharacterMaxIterations)
	assert.Equal(t, "sqlite", cfg.Storage.Relational.Driver)
	assert.Equal(t, "chromem", cfg.Storage.Vector.Driver)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: made-up\n  model: x\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestExpandEnvVarsWithDefault(t *testing.T) {
	got := expandEnvVars("${UNSET_BOTAGENT_VAR:-fallback}")
	assert.Equal(t, "fallback", got)
}
