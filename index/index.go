// Package index provides the embedding index behind retrieval: vector
// representations of static corpus chunks and per-session conversation
// memory, queryable by cosine similarity.
//
// The index wraps chromem-go, an embedded pure-Go vector database. Two kinds
// of writes exist and are serialized against each other:
//   - incremental Insert, used per turn for new memory items
//   - bulk Rebuild, which embeds the whole corpus into a fresh database and
//     swaps it in atomically
//
// Readers never block on a rebuild in progress; they see the old index until
// the pointer swap. An index that has never been built answers queries with
// an empty result set, which callers treat as "no context", not an error.
package index

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

// Origin says where an indexed chunk came from.
type Origin string

const (
	// OriginCorpus marks chunks from the static knowledge corpus.
	OriginCorpus Origin = "corpus"

	// OriginMemory marks chunks distilled from past conversation turns.
	OriginMemory Origin = "memory"
)

// Item is one indexed chunk.
type Item struct {
	ID        string
	Text      string
	Embedding []float32
	Origin    Origin

	// SessionID scopes memory items to their conversation. Empty for corpus.
	SessionID string

	CreatedAt time.Time
}

// Hit is one query result.
type Hit struct {
	ID        string
	Text      string
	Score     float32
	Origin    Origin
	SessionID string
	CreatedAt time.Time
}

// Filter narrows a query to one origin and, for memory, one session.
type Filter struct {
	Origin    Origin
	SessionID string
}

// Status reports index health for observability surfaces.
type Status struct {
	DocCount    int
	LastRebuild time.Time
}

// Config configures the index.
type Config struct {
	// Dimensions is the embedding dimensionality every inserted vector must
	// match. Required.
	Dimensions int

	// MemoryPerSession caps memory items kept per session; inserting past
	// the cap evicts that session's oldest items. Zero means the default
	// of 200; negative disables the cap.
	MemoryPerSession int
}

// DefaultMemoryPerSession bounds per-session memory growth when the caller
// does not choose a cap.
const DefaultMemoryPerSession = 200

const collectionName = "ember"

// Index is safe for concurrent use.
type Index struct {
	dims   int
	memCap int

	// mu guards the collection pointer; Rebuild swaps it under the write
	// lock, queries read it under the read lock.
	mu  sync.RWMutex
	col *chromem.Collection

	// writeMu serializes Insert and Rebuild against each other. Never held
	// while answering queries.
	writeMu     sync.Mutex
	sessionMem  map[string][]string // memory item ids per session, oldest first
	lastRebuild time.Time
}

// New creates an empty index.
func New(cfg Config) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("index: Dimensions is required")
	}
	memCap := cfg.MemoryPerSession
	if memCap == 0 {
		memCap = DefaultMemoryPerSession
	}
	col, err := newCollection()
	if err != nil {
		return nil, err
	}
	return &Index{
		dims:       cfg.Dimensions,
		memCap:     memCap,
		col:        col,
		sessionMem: make(map[string][]string),
	}, nil
}

func newCollection() (*chromem.Collection, error) {
	db := chromem.NewDB()
	// Embeddings are always provided by the caller, so no embedding func
	// and default cosine similarity.
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index: create collection: %w", err)
	}
	return col, nil
}

// Insert adds one item. Re-inserting an existing ID replaces it. Memory
// items count against the per-session cap and may evict that session's
// oldest entries.
func (ix *Index) Insert(ctx context.Context, item Item) error {
	if err := ix.check(item); err != nil {
		return err
	}

	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	ix.mu.RLock()
	col := ix.col
	ix.mu.RUnlock()

	if err := col.AddDocument(ctx, toDocument(item)); err != nil {
		return fmt.Errorf("index: add document: %w", err)
	}

	if item.Origin == OriginMemory && ix.memCap > 0 {
		ids := ix.sessionMem[item.SessionID]
		if !containsID(ids, item.ID) {
			ids = append(ids, item.ID)
		}
		if excess := len(ids) - ix.memCap; excess > 0 {
			evict := ids[:excess]
			ids = ids[excess:]
			if err := col.Delete(ctx, nil, nil, evict...); err != nil {
				log.Printf("[INDEX] evict %d memory items for session %s: %v", len(evict), item.SessionID, err)
			}
		}
		ix.sessionMem[item.SessionID] = ids
	}
	return nil
}

// Query returns up to k hits matching the filter, sorted by descending
// cosine similarity; ties go to the most recently created item. An empty
// index returns (nil, nil).
func (ix *Index) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if len(vector) != ix.dims {
		return nil, fmt.Errorf("index: query vector has %d dimensions, index has %d", len(vector), ix.dims)
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	col := ix.col
	ix.mu.RUnlock()

	where := map[string]string{}
	if filter.Origin != "" {
		where["origin"] = string(filter.Origin)
	}
	if filter.SessionID != "" {
		where["session_id"] = filter.SessionID
	}

	// chromem rejects nResults larger than the number of matching
	// documents, so shrink until the query goes through.
	var results []chromem.Result
	for limit := k; limit >= 1; limit-- {
		var err error
		results, err = col.QueryEmbedding(ctx, vector, limit, where, nil)
		if err == nil {
			break
		}
		if isTooFewDocsError(err) {
			if limit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("index: query: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, toHit(r))
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].CreatedAt.After(hits[j].CreatedAt)
	})
	return hits, nil
}

// Rebuild replaces the whole index with the given items, typically the
// freshly embedded corpus. The new database is assembled off to the side;
// queries keep hitting the old one until the final swap. Memory items not
// included in items are discarded, matching a from-scratch rebuild.
func (ix *Index) Rebuild(ctx context.Context, items []Item) error {
	for _, item := range items {
		if err := ix.check(item); err != nil {
			return err
		}
	}

	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	col, err := newCollection()
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := col.AddDocument(ctx, toDocument(item)); err != nil {
			return fmt.Errorf("index: rebuild add %s: %w", item.ID, err)
		}
	}

	sessionMem := make(map[string][]string)
	for _, item := range items {
		if item.Origin == OriginMemory {
			sessionMem[item.SessionID] = append(sessionMem[item.SessionID], item.ID)
		}
	}

	ix.mu.Lock()
	ix.col = col
	ix.lastRebuild = time.Now()
	ix.mu.Unlock()
	ix.sessionMem = sessionMem

	log.Printf("[INDEX] rebuilt with %d documents", len(items))
	return nil
}

// Status returns document count and last rebuild time.
func (ix *Index) Status() Status {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Status{
		DocCount:    ix.col.Count(),
		LastRebuild: ix.lastRebuild,
	}
}

func (ix *Index) check(item Item) error {
	if item.ID == "" {
		return fmt.Errorf("index: item ID is required")
	}
	if len(item.Embedding) != ix.dims {
		return fmt.Errorf("index: item %s has %d dimensions, index has %d", item.ID, len(item.Embedding), ix.dims)
	}
	if item.Origin != OriginCorpus && item.Origin != OriginMemory {
		return fmt.Errorf("index: item %s has unknown origin %q", item.ID, item.Origin)
	}
	if item.Origin == OriginMemory && item.SessionID == "" {
		return fmt.Errorf("index: memory item %s has no session", item.ID)
	}
	return nil
}

func toDocument(item Item) chromem.Document {
	return chromem.Document{
		ID:        item.ID,
		Content:   item.Text,
		Embedding: item.Embedding,
		Metadata: map[string]string{
			"origin":     string(item.Origin),
			"session_id": item.SessionID,
			"created_at": item.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func toHit(r chromem.Result) Hit {
	createdAt, _ := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])
	return Hit{
		ID:        r.ID,
		Text:      r.Content,
		Score:     r.Similarity,
		Origin:    Origin(r.Metadata["origin"]),
		SessionID: r.Metadata["session_id"],
		CreatedAt: createdAt,
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// isTooFewDocsError matches chromem's complaint when nResults exceeds the
// number of (filtered) documents.
func isTooFewDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
