package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SUPPORTFLOW_DATA_DIR", dir)
	t.Setenv("SUPPORTFLOW_SIGNING_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultServerAddr, cfg.ServerAddr)
	assert.Equal(t, DefaultRetryMaxAttempts, cfg.RetryMaxAttempts)
	assert.Equal(t, filepath.Join(dir, "supportflow.db"), cfg.DBPath())

	// No explicit signing key falls back to a derived one.
	assert.True(t, cfg.UsingDerivedSigningKey())
	assert.Len(t, cfg.SigningKey, 64)
}

func TestLoadExplicitSigningKey(t *testing.T) {
	t.Setenv("SUPPORTFLOW_DATA_DIR", t.TempDir())
	t.Setenv("SUPPORTFLOW_SIGNING_KEY", strings.Repeat("k", 32))

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.UsingDerivedSigningKey())
	assert.Equal(t, strings.Repeat("k", 32), cfg.SigningKey)
}

func TestLoadRejectsShortSigningKey(t *testing.T) {
	t.Setenv("SUPPORTFLOW_DATA_DIR", t.TempDir())
	t.Setenv("SUPPORTFLOW_SIGNING_KEY", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing_key")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("SUPPORTFLOW_DATA_DIR", t.TempDir())
	t.Setenv("SUPPORTFLOW_SIGNING_KEY", "")
	t.Setenv("SUPPORTFLOW_PROVIDER", "cohere")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider must be anthropic or openai")
}

func TestAPIKeyResolution(t *testing.T) {
	cfg := &Config{Provider: "anthropic"}
	_, err := cfg.APIKey()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")

	cfg.AnthropicAPIKey = "sk-ant-test"
	key, err := cfg.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", key)

	cfg = &Config{Provider: "openai", OpenAIAPIKey: "sk-test"}
	key, err = cfg.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)

	cfg = &Config{Provider: "other"}
	_, err = cfg.APIKey()
	require.Error(t, err)
}

func TestDeriveDefaultKeyDeterministic(t *testing.T) {
	a := deriveDefaultKey("/var/lib/supportflow", "audit-signing")
	b := deriveDefaultKey("/var/lib/supportflow", "audit-signing")
	c := deriveDefaultKey("/home/other/.supportflow", "audit-signing")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
