// Package credentials manages the rotating pool of API keys used for model
// calls. The upstream provider rate-limits per key, so the pool spreads
// load over all keys (least recently used first) and parks throttled keys
// in a cooldown window that grows exponentially while failures continue.
package credentials

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrExhausted is returned by Acquire when every credential is cooling
// down. The caller decides whether to wait or fail; the pool never blocks.
var ErrExhausted = errors.New("credentials: pool exhausted")

// Outcome is what the caller observed using a credential.
type Outcome int

const (
	// OutcomeSuccess clears the credential's failure streak and cooldown.
	OutcomeSuccess Outcome = iota

	// OutcomeRateLimited parks the credential with exponential backoff.
	OutcomeRateLimited

	// OutcomeError parks the credential for a short fixed window.
	OutcomeError
)

// Credential is one pooled API key. All state mutation happens inside the
// pool; callers only read the key material.
type Credential struct {
	key                 string
	cooldownUntil       time.Time
	consecutiveFailures int
	lastUsedAt          time.Time
}

// Key returns the opaque key material.
func (c *Credential) Key() string {
	return c.key
}

// Status is the observable state of one credential, with the key masked
// down to its last four characters. Full keys never leave the pool.
type Status struct {
	KeySuffix     string    `json:"key_suffix"`
	LastUsedAt    time.Time `json:"last_used_at"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
	Failures      int       `json:"failures"`
	Cooling       bool      `json:"cooling"`
}

// Config tunes the cooldown policy.
type Config struct {
	// BackoffBase is the first rate-limit cooldown. Default: 2s.
	BackoffBase time.Duration

	// BackoffCap bounds the exponential growth. Default: 5m.
	BackoffCap time.Duration

	// ErrorCooldown is the fixed cooldown after a non-rate-limit error.
	// Default: 10s.
	ErrorCooldown time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 5 * time.Minute
	}
	if c.ErrorCooldown <= 0 {
		c.ErrorCooldown = 10 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Pool is safe for concurrent use; Acquire/Report pairs are the unit of
// contention.
type Pool struct {
	mu    sync.Mutex
	creds []*Credential
	cfg   Config
}

// New creates a pool from an ordered set of opaque keys. Empty and
// duplicate keys are dropped; at least one usable key is required.
func New(keys []string, cfg Config) (*Pool, error) {
	seen := make(map[string]struct{}, len(keys))
	var creds []*Credential
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		creds = append(creds, &Credential{key: key})
	}
	if len(creds) == 0 {
		return nil, errors.New("credentials: no keys supplied")
	}
	return &Pool{creds: creds, cfg: cfg.withDefaults()}, nil
}

// Acquire selects the least recently used credential that is not cooling
// down and marks it used. When all credentials are cooling it returns an
// error wrapping ErrExhausted that names the earliest recovery time.
func (p *Pool) Acquire() (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.cfg.Now()
	var pick *Credential
	for _, c := range p.creds {
		if c.cooldownUntil.After(now) {
			continue
		}
		if pick == nil || c.lastUsedAt.Before(pick.lastUsedAt) {
			pick = c
		}
	}
	if pick == nil {
		earliest := p.creds[0].cooldownUntil
		for _, c := range p.creds[1:] {
			if c.cooldownUntil.Before(earliest) {
				earliest = c.cooldownUntil
			}
		}
		return nil, fmt.Errorf("all %d credentials cooling, earliest back at %s: %w",
			len(p.creds), earliest.Format(time.RFC3339), ErrExhausted)
	}
	pick.lastUsedAt = now
	return pick, nil
}

// Report records the outcome of using a credential.
func (p *Pool) Report(c *Credential, outcome Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.cfg.Now()
	switch outcome {
	case OutcomeSuccess:
		c.consecutiveFailures = 0
		c.cooldownUntil = time.Time{}
	case OutcomeRateLimited:
		p.park(c, now.Add(p.backoff(c.consecutiveFailures)))
		c.consecutiveFailures++
	case OutcomeError:
		p.park(c, now.Add(p.cfg.ErrorCooldown))
		c.consecutiveFailures++
	}
}

// park extends the cooldown; it never shortens one already in place, so
// cooldowns are monotonically non-decreasing while failures continue.
func (p *Pool) park(c *Credential, until time.Time) {
	if until.After(c.cooldownUntil) {
		c.cooldownUntil = until
	}
}

// backoff doubles from the base per consecutive failure, capped.
func (p *Pool) backoff(failures int) time.Duration {
	d := p.cfg.BackoffBase
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= p.cfg.BackoffCap {
			return p.cfg.BackoffCap
		}
	}
	return d
}

// Len returns the number of credentials in rotation.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// StatusAll returns the masked state of every credential, in pool order.
func (p *Pool) StatusAll() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.cfg.Now()
	out := make([]Status, len(p.creds))
	for i, c := range p.creds {
		out[i] = Status{
			KeySuffix:     maskKey(c.key),
			LastUsedAt:    c.lastUsedAt,
			CooldownUntil: c.cooldownUntil,
			Failures:      c.consecutiveFailures,
			Cooling:       c.cooldownUntil.After(now),
		}
	}
	return out
}

func maskKey(key string) string {
	if len(key) < 4 {
		return "****"
	}
	return "…" + key[len(key)-4:]
}
