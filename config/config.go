// Package config loads runtime configuration from an optional YAML file
// with environment variable overrides. Environment wins over file so
// deployments can keep secrets out of config files.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Provider names accepted in configuration.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config is the full runtime configuration.
type Config struct {
	// Provider selects the generation backend: "anthropic" or "openai".
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// BaseURL overrides the provider endpoint, for OpenAI-compatible
	// aggregators.
	BaseURL string `yaml:"base_url"`

	// APIKeys is the rotation pool. Also settable via EMBER_API_KEYS as a
	// comma-separated list.
	APIKeys []string `yaml:"api_keys"`

	// DataDir holds the transcript database. Default: "./data".
	DataDir string `yaml:"data_dir"`

	// CorpusDir holds the .txt knowledge files. Default: "./corpus".
	CorpusDir string `yaml:"corpus_dir"`

	// EmbeddingKey is the key for the embedding endpoint. Falls back to
	// the first pool key when empty.
	EmbeddingKey string `yaml:"embedding_key"`

	// EmbeddingBaseURL overrides the embedding endpoint.
	EmbeddingBaseURL string `yaml:"embedding_base_url"`

	// EmbeddingModel overrides the embedding model.
	EmbeddingModel string `yaml:"embedding_model"`

	// AssistantName and UserName shape the system prompt.
	AssistantName string `yaml:"assistant_name"`
	UserName      string `yaml:"user_name"`
}

func defaults() Config {
	return Config{
		Provider:  ProviderAnthropic,
		DataDir:   "./data",
		CorpusDir: "./corpus",
	}
}

// Load reads the YAML file (skipped when path is empty or missing), applies
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file is fine; env can carry everything.
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.Provider != ProviderAnthropic && cfg.Provider != ProviderOpenAI {
		return Config{}, fmt.Errorf("config: unknown provider %q", cfg.Provider)
	}
	if len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("config: no API keys; set api_keys or EMBER_API_KEYS")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Provider, "EMBER_PROVIDER")
	setString(&cfg.Model, "EMBER_MODEL")
	setString(&cfg.BaseURL, "EMBER_BASE_URL")
	setString(&cfg.DataDir, "EMBER_DATA_DIR")
	setString(&cfg.CorpusDir, "EMBER_CORPUS_DIR")
	setString(&cfg.EmbeddingKey, "EMBER_EMBEDDING_KEY")
	setString(&cfg.EmbeddingBaseURL, "EMBER_EMBEDDING_BASE_URL")
	setString(&cfg.EmbeddingModel, "EMBER_EMBEDDING_MODEL")
	setString(&cfg.AssistantName, "EMBER_ASSISTANT_NAME")
	setString(&cfg.UserName, "EMBER_USER_NAME")

	if v := os.Getenv("EMBER_API_KEYS"); v != "" {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		if len(keys) > 0 {
			cfg.APIKeys = keys
		}
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
