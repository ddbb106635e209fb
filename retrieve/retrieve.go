// Package retrieve merges static-corpus and session-memory hits from the
// embedding index into a single ranked context for the generation call.
//
// Retrieval never fails a turn. Whatever goes wrong (embedding error, index
// unavailable, empty index), the engine degrades to fewer chunks or none at
// all and the pipeline proceeds on conversation history alone.
package retrieve

import (
	"context"
	"log"

	"github.com/emberworks/ember-go/embed"
	"github.com/emberworks/ember-go/index"
)

// Chunk is one retrieved piece of context.
type Chunk struct {
	Text   string
	Score  float32
	Origin index.Origin
}

// Result is the ranked context for one query: memory chunks first (they are
// the most temporally relevant), then corpus chunks, each group in
// descending score order.
type Result struct {
	Chunks []Chunk
}

// Empty reports whether nothing was retrieved.
func (r Result) Empty() bool {
	return len(r.Chunks) == 0
}

// TotalChars returns the combined text length of all chunks.
func (r Result) TotalChars() int {
	n := 0
	for _, c := range r.Chunks {
		n += len(c.Text)
	}
	return n
}

// Config tunes retrieval.
type Config struct {
	// KMemory is the top-K for session-memory hits. Default: 6.
	KMemory int

	// KCorpus is the top-K for corpus hits. Default: 4.
	KCorpus int

	// MaxChars caps the combined chunk text to bound prompt size, dropping
	// the lowest-scoring chunks first. Default: 4000.
	MaxChars int
}

func (c Config) withDefaults() Config {
	if c.KMemory <= 0 {
		c.KMemory = 6
	}
	if c.KCorpus <= 0 {
		c.KCorpus = 4
	}
	if c.MaxChars <= 0 {
		c.MaxChars = 4000
	}
	return c
}

// Engine runs retrieval queries against one index.
type Engine struct {
	index    *index.Index
	embedder embed.Embedder
	cfg      Config
}

// NewEngine creates a retrieval engine.
func NewEngine(ix *index.Index, embedder embed.Embedder, cfg Config) *Engine {
	return &Engine{index: ix, embedder: embedder, cfg: cfg.withDefaults()}
}

// Retrieve embeds the query once and gathers context: memory hits scoped to
// the session, then corpus hits. The result may be empty; it is never an
// error from the caller's point of view.
func (e *Engine) Retrieve(ctx context.Context, query, sessionID string) Result {
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("[RETRIEVE] embed query failed, continuing without context: %v", err)
		return Result{}
	}

	memory := e.query(ctx, vector, e.cfg.KMemory, index.Filter{
		Origin:    index.OriginMemory,
		SessionID: sessionID,
	})
	corpus := e.query(ctx, vector, e.cfg.KCorpus, index.Filter{
		Origin: index.OriginCorpus,
	})

	chunks := make([]Chunk, 0, len(memory)+len(corpus))
	for _, h := range memory {
		chunks = append(chunks, Chunk{Text: h.Text, Score: h.Score, Origin: h.Origin})
	}
	for _, h := range corpus {
		chunks = append(chunks, Chunk{Text: h.Text, Score: h.Score, Origin: h.Origin})
	}

	return Result{Chunks: capChars(chunks, e.cfg.MaxChars)}
}

func (e *Engine) query(ctx context.Context, vector []float32, k int, filter index.Filter) []index.Hit {
	hits, err := e.index.Query(ctx, vector, k, filter)
	if err != nil {
		log.Printf("[RETRIEVE] %s query failed, degrading: %v", filter.Origin, err)
		return nil
	}
	return hits
}

// capChars drops the lowest-scoring chunks until the combined text fits in
// maxChars, keeping the order of the survivors. A lone oversized chunk is
// truncated rather than dropped so the cap never empties a nonempty result.
func capChars(chunks []Chunk, maxChars int) []Chunk {
	total := 0
	for _, c := range chunks {
		total += len(c.Text)
	}
	for total > maxChars && len(chunks) > 1 {
		lowest := 0
		for i, c := range chunks {
			if c.Score <= chunks[lowest].Score {
				lowest = i
			}
		}
		total -= len(chunks[lowest].Text)
		chunks = append(chunks[:lowest], chunks[lowest+1:]...)
	}
	if len(chunks) == 1 && len(chunks[0].Text) > maxChars {
		chunks[0].Text = truncateRunes(chunks[0].Text, maxChars)
	}
	return chunks
}

// truncateRunes cuts s to at most n bytes, backing off to a rune boundary.
func truncateRunes(s string, n int) string {
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
