// Package openai implements the gateway Provider on any OpenAI-compatible
// chat completion endpoint. Pointing BaseURL at a compatible aggregator
// works unchanged; only the model name differs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/emberworks/ember-go/core"
	"github.com/emberworks/ember-go/gateway"
)

const (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 1024
)

// Config selects the endpoint and model.
type Config struct {
	Model     string
	MaxTokens int64

	// BaseURL overrides the API endpoint for compatible providers.
	BaseURL string
}

// Provider calls a chat completion endpoint. The API key is supplied per
// call so the credential pool can rotate keys over one provider instance.
type Provider struct {
	cfg Config
}

var _ gateway.Provider = (*Provider)(nil)

// New creates a provider.
func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Provider{cfg: cfg}
}

// Generate issues one chat completion call.
func (p *Provider) Generate(ctx context.Context, apiKey string, req *gateway.Request) (string, error) {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	messages = append(messages, openai.SystemMessage(req.System))
	for _, turn := range req.History {
		switch turn.Role {
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Content))
		case core.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.UserMessage))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     p.cfg.Model,
		Messages:  messages,
		MaxTokens: openai.Int(p.cfg.MaxTokens),
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps API failures onto the gateway's retry/rotate taxonomy.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", gateway.ErrRateLimited, err)
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
}
