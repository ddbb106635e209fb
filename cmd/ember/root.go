package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/emberworks/ember-go/config"
	"github.com/emberworks/ember-go/corpus"
	"github.com/emberworks/ember-go/credentials"
	"github.com/emberworks/ember-go/embed"
	embedopenai "github.com/emberworks/ember-go/embed/openai"
	"github.com/emberworks/ember-go/gateway"
	gwanthropic "github.com/emberworks/ember-go/gateway/anthropic"
	gwopenai "github.com/emberworks/ember-go/gateway/openai"
	"github.com/emberworks/ember-go/index"
	"github.com/emberworks/ember-go/orchestrator"
	"github.com/emberworks/ember-go/retrieve"
	"github.com/emberworks/ember-go/session"
)

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "ember",
		Short:         "Retrieval-augmented chat with rotating API credentials",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "ember.yaml", "config file path")

	rootCmd.AddCommand(
		newChatCmd(&configPath),
		newRebuildCmd(&configPath),
		newStatusCmd(&configPath),
		newSessionsCmd(&configPath),
	)
	return rootCmd
}

// app is the wired pipeline plus the resources it owns.
type app struct {
	orch  *orchestrator.Orchestrator
	store session.Store
	cache *embed.Cached
	cfg   config.Config
}

func (a *app) Close() {
	a.cache.Close()
	_ = a.store.Close()
}

func wireApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	pool, err := credentials.New(cfg.APIKeys, credentials.Config{})
	if err != nil {
		return nil, err
	}

	embeddingKey := cfg.EmbeddingKey
	if embeddingKey == "" {
		embeddingKey = cfg.APIKeys[0]
	}
	embedder, err := embed.NewCached(embedopenai.New(embedopenai.Config{
		APIKey:  embeddingKey,
		BaseURL: cfg.EmbeddingBaseURL,
		Model:   cfg.EmbeddingModel,
	}), embed.CacheConfig{})
	if err != nil {
		return nil, err
	}

	ix, err := index.New(index.Config{Dimensions: embedder.Dimensions()})
	if err != nil {
		embedder.Close()
		return nil, err
	}

	var provider gateway.Provider
	switch cfg.Provider {
	case config.ProviderOpenAI:
		provider = gwopenai.New(gwopenai.Config{Model: cfg.Model, BaseURL: cfg.BaseURL})
	default:
		provider = gwanthropic.New(gwanthropic.Config{Model: cfg.Model, BaseURL: cfg.BaseURL})
	}

	gw := gateway.New(provider, pool, gateway.Config{
		Prompt: gateway.PromptConfig{
			AssistantName: cfg.AssistantName,
			UserName:      cfg.UserName,
		},
	})

	store, err := session.NewBadgerStore(session.BadgerOptions{
		Dir: filepath.Join(cfg.DataDir, "sessions"),
	})
	if err != nil {
		embedder.Close()
		return nil, err
	}

	engine := retrieve.NewEngine(ix, embedder, retrieve.Config{})
	source := corpus.DirSource{Dir: cfg.CorpusDir}
	orch := orchestrator.New(store, engine, gw, ix, embedder, source, pool, orchestrator.Config{})

	return &app{orch: orch, store: store, cache: embedder, cfg: cfg}, nil
}

// withApp wires the pipeline, rebuilds the index from the corpus, runs fn,
// and tears everything down.
func withApp(configPath string, fn func(*app) error) error {
	a, err := wireApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orch.RebuildIndex(context.Background()); err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	return fn(a)
}
