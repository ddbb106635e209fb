// Package openai implements embed.Embedder over the OpenAI embeddings API.
// It also works against any OpenAI-compatible endpoint by setting BaseURL.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/emberworks/ember-go/embed"
)

// Default model and size. text-embedding-3-small supports custom dimensions;
// 384 keeps vectors interchangeable with the local onnx embedder.
const (
	DefaultModel      = "text-embedding-3-small"
	DefaultDimensions = 384
)

// Config configures the remote embedder.
type Config struct {
	// APIKey authenticates against the endpoint. Required.
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible providers.
	BaseURL string

	// Model is the embedding model id. Default: text-embedding-3-small.
	Model string

	// Dimensions is the requested vector size. Default: 384.
	Dimensions int
}

// Embedder calls the embeddings API.
type Embedder struct {
	client openai.Client
	model  string
	dims   int
}

var _ embed.Embedder = (*Embedder)(nil)

// New creates a remote embedder.
func New(cfg Config) *Embedder {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Embedder{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
	}
}

// Embed returns the embedding for one text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embed.ErrEmptyInput
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          e.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Dimensions:     openai.Int(int64(e.dims)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embed: no embedding returned")
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

// Dimensions returns the configured vector size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
