package embed

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cached wraps an Embedder with an in-process ristretto cache keyed by the
// exact input text. Vector cost is counted in bytes so MaxBytes bounds real
// memory, not entry count.
type Cached struct {
	inner Embedder
	cache *ristretto.Cache
}

// CacheConfig sizes the embedding cache.
type CacheConfig struct {
	// MaxBytes is the cache capacity. Default: 32 MiB.
	MaxBytes int64
}

// NewCached wraps inner with a cache.
func NewCached(inner Embedder, cfg CacheConfig) (*Cached, error) {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: create cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, embedding through the inner
// Embedder on a miss. Cached vectors are shared; callers must not mutate
// the returned slice.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if v, ok := c.cache.Get(text); ok {
		return v.([]float32), nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

// Dimensions reports the inner embedder's dimensionality.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// Wait blocks until buffered cache writes are applied. Cache writes are
// asynchronous; without a Wait a Get right after a Set may still miss.
func (c *Cached) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}
