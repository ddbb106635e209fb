// Package mock provides a deterministic embedder for tests and offline
// development. Embeddings are derived from a hash of the text, so equal
// texts always embed identically; there is no semantic similarity.
package mock

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/emberworks/ember-go/embed"
)

// Embedder generates hash-based unit vectors.
type Embedder struct {
	dims int
}

// New creates a mock embedder with 384 dimensions (all-MiniLM-L6-v2 size).
func New() *Embedder {
	return NewWithDimensions(384)
}

// NewWithDimensions creates a mock embedder with a custom vector size.
func NewWithDimensions(dims int) *Embedder {
	return &Embedder{dims: dims}
}

// Embed creates a deterministic embedding from the text hash.
func (m *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embed.ErrEmptyInput
	}
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dims)
	for i := range vec {
		// LCG stepped off the text hash.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dims
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
