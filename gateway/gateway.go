// Package gateway dispatches generation calls to an external language model
// through the credential pool, with retry on transient failures and
// rotation on rate limits.
//
// The gateway depends only on the Provider interface; one concrete type per
// upstream lives in the subpackages (anthropic, openai).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/emberworks/ember-go/core"
	"github.com/emberworks/ember-go/credentials"
	"github.com/emberworks/ember-go/retrieve"
)

// Provider-level failure classes. Providers wrap upstream failures so the
// gateway can decide between retrying the same credential and rotating to
// the next one.
var (
	// ErrRateLimited marks an upstream 429. The credential is throttled;
	// the request itself is fine.
	ErrRateLimited = errors.New("gateway: rate limited")

	// ErrUnavailable marks a transient upstream failure (5xx, network) that
	// is worth retrying on the same credential.
	ErrUnavailable = errors.New("gateway: upstream unavailable")
)

// Request is one generation call, already carrying the assembled system
// prompt.
type Request struct {
	System      string
	History     []core.Turn
	UserMessage string
}

// Provider issues one model call with the given key. Implementations wrap
// rate limits in ErrRateLimited and retryable failures in ErrUnavailable.
type Provider interface {
	Generate(ctx context.Context, apiKey string, req *Request) (string, error)
}

// Config tunes the dispatch policy.
type Config struct {
	// CallTimeout bounds each individual model call. Default: 30s.
	CallTimeout time.Duration

	// RetryBudget is how many extra attempts a transient failure gets on
	// the same credential. Default: 2.
	RetryBudget int

	// RetryDelay is the fixed pause between same-credential retries.
	// Default: 500ms.
	RetryDelay time.Duration

	// Prompt configures system prompt assembly.
	Prompt PromptConfig
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.RetryBudget == 0 {
		c.RetryBudget = 2
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	c.Prompt = c.Prompt.withDefaults()
	return c
}

// Gateway rotates generation calls across the credential pool.
type Gateway struct {
	provider Provider
	pool     *credentials.Pool
	cfg      Config
}

// New creates a gateway.
func New(provider Provider, pool *credentials.Pool, cfg Config) *Gateway {
	return &Gateway{provider: provider, pool: pool, cfg: cfg.withDefaults()}
}

// Generate assembles the system prompt from the retrieved context and calls
// the model. Transient failures retry the same credential up to the retry
// budget; rate limits rotate to the next credential without consuming the
// budget. The loop ends with a reply or one of the core taxonomy errors.
func (g *Gateway) Generate(ctx context.Context, userMessage string, history []core.Turn, rctx retrieve.Result) (string, error) {
	req := &Request{
		System:      BuildSystemPrompt(g.cfg.Prompt, rctx, time.Now()),
		History:     history,
		UserMessage: userMessage,
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", mapContextErr(err)
		}

		cred, err := g.pool.Acquire()
		if err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrCredentialsExhausted, err)
		}

		text, err := g.callWithRetries(ctx, cred, req)
		switch {
		case err == nil:
			g.pool.Report(cred, credentials.OutcomeSuccess)
			return text, nil
		case errors.Is(err, ErrRateLimited):
			g.pool.Report(cred, credentials.OutcomeRateLimited)
			log.Printf("[GATEWAY] credential rate limited, rotating")
			continue
		default:
			g.pool.Report(cred, credentials.OutcomeError)
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return "", mapContextErr(err)
			}
			return "", fmt.Errorf("%w: %v", core.ErrGeneration, err)
		}
	}
}

// mapContextErr folds a context failure into the turn taxonomy: a blown
// deadline is a generation timeout, caller cancellation passes through
// untouched so it is not misreported as one.
func mapContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrGenerationTimeout, err)
	}
	return err
}

// callWithRetries runs one credential's attempts: the initial call plus the
// retry budget for transient failures. Rate limits return immediately so
// the caller can rotate.
func (g *Gateway) callWithRetries(ctx context.Context, cred *credentials.Credential, req *Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= g.cfg.RetryBudget; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(g.cfg.RetryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
		text, err := g.provider.Generate(callCtx, cred.Key(), req)
		cancel()

		if err == nil {
			return text, nil
		}
		if errors.Is(err, ErrRateLimited) {
			return "", err
		}
		if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			// Do not retry past the turn deadline.
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			log.Printf("[GATEWAY] transient failure (attempt %d/%d): %v", attempt+1, g.cfg.RetryBudget+1, err)
			continue
		}
		return "", err
	}
	return "", lastErr
}
