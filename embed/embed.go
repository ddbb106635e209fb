// Package embed converts text into fixed-length vectors for similarity
// search.
//
// Embedder is the only thing the rest of the pipeline sees. Implementations:
//   - mock: deterministic hash embeddings for tests and offline development
//   - onnx: local all-MiniLM-L6-v2 inference (build tag "onnx")
//   - openai: remote embeddings over the OpenAI API or any compatible endpoint
//
// Cached wraps any Embedder with a ristretto cache so repeated texts (the
// same query asked twice, rebuilt corpus chunks) are embedded once.
package embed

import (
	"context"
	"errors"
)

// ErrEmptyInput is returned when asked to embed an empty string.
var ErrEmptyInput = errors.New("embed: empty input")

// Embedder converts a single text to an embedding vector. All vectors from
// one Embedder share the dimensionality reported by Dimensions.
//
// Embed may be a network call; implementations must honor ctx.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
