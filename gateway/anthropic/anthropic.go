// Package anthropic implements the gateway Provider on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/emberworks/ember-go/core"
	"github.com/emberworks/ember-go/gateway"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 1024
)

// Config selects the model.
type Config struct {
	Model     string
	MaxTokens int64

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
}

// Provider calls the Anthropic Messages API. The API key is supplied per
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

// Generate issues one Messages API call.
func (p *Provider) Generate(ctx context.Context, apiKey string, req *gateway.Request) (string, error) {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, turn := range req.History {
		switch turn.Role {
		case core.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		case core.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserMessage)))

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		MaxTokens: p.cfg.MaxTokens,
		Messages:  messages,
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
	})
	if err != nil {
		return "", classify(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// classify maps API failures onto the gateway's retry/rotate taxonomy.
func classify(err error) error {
	var apiErr *anthropic.Error
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
	// Transport-level failures (connection reset, DNS) are retryable.
	return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
}
