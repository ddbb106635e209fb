package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberworks/ember-go/config"
)

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.yaml")
	content := `
provider: openai
model: gpt-4o
base_url: https://example.com/v1
api_keys:
  - sk-aaaa
  - sk-bbbb
corpus_dir: /srv/corpus
assistant_name: Ada
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, []string{"sk-aaaa", "sk-bbbb"}, cfg.APIKeys)
	assert.Equal(t, "/srv/corpus", cfg.CorpusDir)
	assert.Equal(t, "./data", cfg.DataDir, "unset fields keep defaults")
	assert.Equal(t, "Ada", cfg.AssistantName)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.yaml")
	content := `
provider: anthropic
api_keys: [sk-from-file]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("EMBER_PROVIDER", "openai")
	t.Setenv("EMBER_API_KEYS", "sk-env-1, sk-env-2,,")
	t.Setenv("EMBER_MODEL", "llama-3.3-70b")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderOpenAI, cfg.Provider)
	assert.Equal(t, []string{"sk-env-1", "sk-env-2"}, cfg.APIKeys)
	assert.Equal(t, "llama-3.3-70b", cfg.Model)
}

func TestLoadMissingFileEnvOnly(t *testing.T) {
	t.Setenv("EMBER_API_KEYS", "sk-only")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"sk-only"}, cfg.APIKeys)
	assert.Equal(t, config.ProviderAnthropic, cfg.Provider)
}

func TestLoadRejectsNoKeys(t *testing.T) {
	t.Setenv("EMBER_API_KEYS", "")

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("EMBER_API_KEYS", "sk-x")
	t.Setenv("EMBER_PROVIDER", "cohere")

	_, err := config.Load("")
	assert.Error(t, err)
}
