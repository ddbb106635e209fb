// Package orchestrator runs the turn pipeline: retrieve context, generate a
// reply, persist the exchange, then remember it for future retrieval.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emberworks/ember-go/core"
	"github.com/emberworks/ember-go/corpus"
	"github.com/emberworks/ember-go/credentials"
	"github.com/emberworks/ember-go/embed"
	"github.com/emberworks/ember-go/gateway"
	"github.com/emberworks/ember-go/index"
	"github.com/emberworks/ember-go/retrieve"
	"github.com/emberworks/ember-go/session"
)

// Config tunes the pipeline.
type Config struct {
	// HistoryLimit is how many recent turns accompany each generation
	// call. Default: 20.
	HistoryLimit int

	// TurnTimeout bounds a whole turn when the caller's context has no
	// deadline of its own. Default: 60s.
	TurnTimeout time.Duration

	// OwnerID is recorded on sessions created by this instance.
	// Default: "local".
	OwnerID string
}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 20
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 60 * time.Second
	}
	if c.OwnerID == "" {
		c.OwnerID = "local"
	}
	return c
}

// Status is the combined health view of the pipeline.
type Status struct {
	Index       index.Status         `json:"index"`
	Credentials []credentials.Status `json:"credentials"`
}

// Orchestrator drives turns end to end. Turns in the same session are
// serialized; turns in different sessions run concurrently.
type Orchestrator struct {
	store    session.Store
	engine   *retrieve.Engine
	gateway  *gateway.Gateway
	index    *index.Index
	embedder embed.Embedder
	source   corpus.Source
	splitter corpus.Splitter
	pool     *credentials.Pool
	cfg      Config

	locks sessionLocks
}

// New wires the pipeline together.
func New(store session.Store, engine *retrieve.Engine, gw *gateway.Gateway, ix *index.Index, embedder embed.Embedder, source corpus.Source, pool *credentials.Pool, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:    store,
		engine:   engine,
		gateway:  gw,
		index:    ix,
		embedder: embedder,
		source:   source,
		splitter: corpus.NewSplitter(),
		pool:     pool,
		cfg:      cfg.withDefaults(),
	}
}

// HandleTurn runs one user message through the pipeline and returns the
// assistant's turn. The order is fixed: retrieve, generate, persist,
// remember. Nothing is persisted or remembered unless generation succeeds,
// and nothing is remembered unless persistence succeeds.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, userMessage string) (core.Turn, error) {
	unlock := o.locks.lock(sessionID)
	defer unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.TurnTimeout)
		defer cancel()
	}

	if _, err := o.store.GetOrCreate(ctx, sessionID, o.cfg.OwnerID); err != nil {
		return core.Turn{}, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}

	history, err := o.store.History(ctx, sessionID, o.cfg.HistoryLimit, 0)
	if err != nil {
		return core.Turn{}, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}

	rctx := o.engine.Retrieve(ctx, userMessage, sessionID)

	reply, err := o.gateway.Generate(ctx, userMessage, history, rctx)
	if err != nil {
		return core.Turn{}, err
	}

	now := time.Now().UTC()
	userTurn := core.Turn{Role: core.RoleUser, Content: userMessage, CreatedAt: now}
	assistantTurn := core.Turn{Role: core.RoleAssistant, Content: reply, CreatedAt: now}
	if err := o.store.Append(ctx, sessionID, userTurn, assistantTurn); err != nil {
		return core.Turn{}, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}

	o.remember(ctx, sessionID, userMessage, reply, now)
	return assistantTurn, nil
}

// remember distills the exchange into one memory item and indexes it.
// Failure here degrades future retrieval but never fails the turn that
// already happened.
func (o *Orchestrator) remember(ctx context.Context, sessionID, userMessage, reply string, at time.Time) {
	text := fmt.Sprintf("User said: %s\nAssistant replied: %s", userMessage, reply)
	vector, err := o.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("[ORCH] embed memory failed, exchange not remembered: %v", err)
		return
	}
	err = o.index.Insert(ctx, index.Item{
		ID:        uuid.NewString(),
		Text:      text,
		Embedding: vector,
		Origin:    index.OriginMemory,
		SessionID: sessionID,
		CreatedAt: at,
	})
	if err != nil {
		log.Printf("[ORCH] index memory failed, exchange not remembered: %v", err)
	}
}

// RebuildIndex reloads the corpus, re-chunks and re-embeds it, and swaps the
// index to the fresh state. Session memory accumulated since the last
// rebuild is discarded along with the old index.
func (o *Orchestrator) RebuildIndex(ctx context.Context) error {
	docs, err := o.source.Documents()
	if err != nil {
		return err
	}

	var items []index.Item
	now := time.Now().UTC()
	for _, doc := range docs {
		for _, chunk := range o.splitter.Split(doc.Text) {
			vector, err := o.embedder.Embed(ctx, chunk)
			if err != nil {
				return fmt.Errorf("embed corpus chunk from %s: %w", doc.SourceFile, err)
			}
			items = append(items, index.Item{
				ID:        uuid.NewString(),
				Text:      chunk,
				Embedding: vector,
				Origin:    index.OriginCorpus,
				CreatedAt: now,
			})
		}
	}

	if err := o.index.Rebuild(ctx, items); err != nil {
		return err
	}
	log.Printf("[ORCH] index rebuilt: %d documents, %d chunks", len(docs), len(items))
	return nil
}

// ListSessions summarizes stored sessions, most recently active first.
func (o *Orchestrator) ListSessions(ctx context.Context, limit, offset int) ([]core.SessionSummary, error) {
	return o.store.ListSessions(ctx, limit, offset)
}

// History pages backwards through a session's transcript.
func (o *Orchestrator) History(ctx context.Context, sessionID string, limit, offset int) ([]core.Turn, error) {
	return o.store.History(ctx, sessionID, limit, offset)
}

// Status reports index and credential health.
func (o *Orchestrator) Status() Status {
	return Status{
		Index:       o.index.Status(),
		Credentials: o.pool.StatusAll(),
	}
}

// sessionLocks hands out one mutex per session ID. Entries are never
// reclaimed; session counts are small enough that the map stays bounded by
// lifetime session cardinality.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *sessionLocks) lock(sessionID string) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	sm, ok := l.m[sessionID]
	if !ok {
		sm = &sync.Mutex{}
		l.m[sessionID] = sm
	}
	l.mu.Unlock()

	sm.Lock()
	return sm.Unlock
}
