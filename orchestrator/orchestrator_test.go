package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberworks/ember-go/core"
	"github.com/emberworks/ember-go/corpus"
	"github.com/emberworks/ember-go/credentials"
	"github.com/emberworks/ember-go/embed/mock"
	"github.com/emberworks/ember-go/gateway"
	"github.com/emberworks/ember-go/index"
	"github.com/emberworks/ember-go/orchestrator"
	"github.com/emberworks/ember-go/retrieve"
	"github.com/emberworks/ember-go/session"
)

const dims = 8

// echoProvider replies with a fixed prefix and tracks in-flight calls so
// tests can detect overlapping generation within a session.
type echoProvider struct {
	err      error
	inFlight atomic.Int32
	overlap  atomic.Bool
	calls    atomic.Int32
}

func (p *echoProvider) Generate(_ context.Context, _ string, req *gateway.Request) (string, error) {
	if p.inFlight.Add(1) > 1 {
		p.overlap.Store(true)
	}
	time.Sleep(time.Millisecond)
	p.inFlight.Add(-1)
	p.calls.Add(1)

	if p.err != nil {
		return "", p.err
	}
	return "echo: " + req.UserMessage, nil
}

type fixture struct {
	orch  *orchestrator.Orchestrator
	store *session.MemoryStore
	index *index.Index
}

func newFixture(t *testing.T, provider gateway.Provider, docs corpus.Static) *fixture {
	t.Helper()

	pool, err := credentials.New([]string{"sk-aaaa", "sk-bbbb"}, credentials.Config{})
	require.NoError(t, err)

	embedder := mock.NewWithDimensions(dims)
	ix, err := index.New(index.Config{Dimensions: dims})
	require.NoError(t, err)

	store := session.NewMemoryStore()
	engine := retrieve.NewEngine(ix, embedder, retrieve.Config{})
	gw := gateway.New(provider, pool, gateway.Config{RetryDelay: time.Millisecond})

	orch := orchestrator.New(store, engine, gw, ix, embedder, docs, pool, orchestrator.Config{})
	return &fixture{orch: orch, store: store, index: ix}
}

func memoryItems(t *testing.T, f *fixture, text, sessionID string) []index.Hit {
	t.Helper()
	vec, err := mock.NewWithDimensions(dims).Embed(context.Background(), text)
	require.NoError(t, err)
	hits, err := f.index.Query(context.Background(), vec, 10, index.Filter{
		Origin:    index.OriginMemory,
		SessionID: sessionID,
	})
	require.NoError(t, err)
	return hits
}

func TestHandleTurnHappyPath(t *testing.T) {
	f := newFixture(t, &echoProvider{}, nil)
	ctx := context.Background()

	turn, err := f.orch.HandleTurn(ctx, "sess", "hello there")
	require.NoError(t, err)
	assert.Equal(t, core.RoleAssistant, turn.Role)
	assert.Equal(t, "echo: hello there", turn.Content)

	history, err := f.store.History(ctx, "sess", 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, core.RoleUser, history[0].Role)
	assert.Equal(t, "hello there", history[0].Content)
	assert.Equal(t, core.RoleAssistant, history[1].Role)

	expected := "User said: hello there\nAssistant replied: echo: hello there"
	hits := memoryItems(t, f, expected, "sess")
	require.Len(t, hits, 1)
	assert.Equal(t, expected, hits[0].Text)
}

func TestHandleTurnEmptyIndex(t *testing.T) {
	f := newFixture(t, &echoProvider{}, nil)

	turn, err := f.orch.HandleTurn(context.Background(), "sess", "no context yet")
	require.NoError(t, err)
	assert.Equal(t, "echo: no context yet", turn.Content)
}

func TestHandleTurnGenerationFailure(t *testing.T) {
	f := newFixture(t, &echoProvider{err: errors.New("model rejected input")}, nil)
	ctx := context.Background()

	_, err := f.orch.HandleTurn(ctx, "sess", "doomed message")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrGeneration))

	// A failed turn leaves no trace: no transcript, no memory.
	history, err := f.store.History(ctx, "sess", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, memoryItems(t, f, "doomed message", "sess"))
}

func TestHandleTurnPersistenceFailure(t *testing.T) {
	f := newFixture(t, &echoProvider{}, nil)
	f.store.FailAppend = errors.New("disk full")
	ctx := context.Background()

	_, err := f.orch.HandleTurn(ctx, "sess", "will not persist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPersistence))

	// Memory must not record an exchange the transcript does not have.
	expected := "User said: will not persist\nAssistant replied: echo: will not persist"
	assert.Empty(t, memoryItems(t, f, expected, "sess"))
}

func TestHandleTurnCredentialsExhausted(t *testing.T) {
	f := newFixture(t, &echoProvider{err: gateway.ErrRateLimited}, nil)

	_, err := f.orch.HandleTurn(context.Background(), "sess", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCredentialsExhausted))
}

func TestSameSessionTurnsSerialized(t *testing.T) {
	provider := &echoProvider{}
	f := newFixture(t, provider, nil)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.orch.HandleTurn(ctx, "sess", fmt.Sprintf("message %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.False(t, provider.overlap.Load(), "turns in one session must not overlap")

	history, err := f.store.History(ctx, "sess", 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2*n)
	// User/assistant pairing survives concurrency.
	for i, turn := range history {
		if i%2 == 0 {
			assert.Equal(t, core.RoleUser, turn.Role, "turn %d", i)
		} else {
			assert.Equal(t, core.RoleAssistant, turn.Role, "turn %d", i)
		}
	}
}

func TestDifferentSessionsRunConcurrently(t *testing.T) {
	provider := &echoProvider{}
	f := newFixture(t, provider, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.orch.HandleTurn(ctx, fmt.Sprintf("sess-%d", i), "hello")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(4), provider.calls.Load())
}

func TestRebuildIndexFromCorpus(t *testing.T) {
	docs := corpus.Static{
		{SourceFile: "tea.txt", Text: "tea facts for the knowledge base"},
		{SourceFile: "go.txt", Text: "go has goroutines and channels"},
	}
	f := newFixture(t, &echoProvider{}, docs)
	ctx := context.Background()

	require.NoError(t, f.orch.RebuildIndex(ctx))

	st := f.orch.Status()
	assert.Equal(t, 2, st.Index.DocCount)
	assert.False(t, st.Index.LastRebuild.IsZero())

	vec, err := mock.NewWithDimensions(dims).Embed(ctx, "tea facts for the knowledge base")
	require.NoError(t, err)
	hits, err := f.index.Query(ctx, vec, 1, index.Filter{Origin: index.OriginCorpus})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "tea facts for the knowledge base", hits[0].Text)
}

func TestRebuildDiscardsSessionMemory(t *testing.T) {
	f := newFixture(t, &echoProvider{}, nil)
	ctx := context.Background()

	_, err := f.orch.HandleTurn(ctx, "sess", "remember this")
	require.NoError(t, err)
	expected := "User said: remember this\nAssistant replied: echo: remember this"
	require.Len(t, memoryItems(t, f, expected, "sess"), 1)

	require.NoError(t, f.orch.RebuildIndex(ctx))
	assert.Empty(t, memoryItems(t, f, expected, "sess"))
}

func TestStatusReportsCredentials(t *testing.T) {
	f := newFixture(t, &echoProvider{}, nil)

	st := f.orch.Status()
	require.Len(t, st.Credentials, 2)
	assert.Equal(t, "…aaaa", st.Credentials[0].KeySuffix)
}
