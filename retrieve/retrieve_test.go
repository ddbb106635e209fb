package retrieve_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/emberworks/ember-go/embed/mock"
	"github.com/emberworks/ember-go/index"
	"github.com/emberworks/ember-go/retrieve"
)

const dims = 8

func newIndex(t *testing.T) *index.Index {
	t.Helper()
	ix, err := index.New(index.Config{Dimensions: dims})
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}
	return ix
}

func insert(t *testing.T, ix *index.Index, id, text string, origin index.Origin, sessionID string) {
	t.Helper()
	vec, err := mock.NewWithDimensions(dims).Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}
	err = ix.Insert(context.Background(), index.Item{
		ID:        id,
		Text:      text,
		Embedding: vec,
		Origin:    origin,
		SessionID: sessionID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to insert %s: %v", id, err)
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	engine := retrieve.NewEngine(newIndex(t), mock.NewWithDimensions(dims), retrieve.Config{})

	result := engine.Retrieve(context.Background(), "anything at all", "sess")
	if !result.Empty() {
		t.Errorf("Expected empty result from empty index, got %d chunks", len(result.Chunks))
	}
}

func TestRetrieveMemoryBeforeCorpus(t *testing.T) {
	ix := newIndex(t)
	insert(t, ix, "c1", "corpus fact about tea", index.OriginCorpus, "")
	insert(t, ix, "m1", "user mentioned loving tea", index.OriginMemory, "sess")

	engine := retrieve.NewEngine(ix, mock.NewWithDimensions(dims), retrieve.Config{})
	result := engine.Retrieve(context.Background(), "tea", "sess")

	if len(result.Chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(result.Chunks))
	}
	if result.Chunks[0].Origin != index.OriginMemory {
		t.Errorf("Memory chunks should come before corpus chunks, got %s first", result.Chunks[0].Origin)
	}
	if result.Chunks[1].Origin != index.OriginCorpus {
		t.Errorf("Expected corpus chunk second, got %s", result.Chunks[1].Origin)
	}
}

func TestRetrieveIgnoresOtherSessionsMemory(t *testing.T) {
	ix := newIndex(t)
	insert(t, ix, "m-mine", "my session memory", index.OriginMemory, "mine")
	insert(t, ix, "m-theirs", "someone else entirely", index.OriginMemory, "theirs")

	engine := retrieve.NewEngine(ix, mock.NewWithDimensions(dims), retrieve.Config{})
	result := engine.Retrieve(context.Background(), "my session memory", "mine")

	if len(result.Chunks) != 1 {
		t.Fatalf("Expected only own-session memory, got %d chunks", len(result.Chunks))
	}
	if result.Chunks[0].Text != "my session memory" {
		t.Errorf("Unexpected chunk %q", result.Chunks[0].Text)
	}
}

// failingEmbedder simulates an embedding backend outage.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("backend down")
}

func (failingEmbedder) Dimensions() int { return dims }

func TestRetrieveDegradesOnEmbedFailure(t *testing.T) {
	ix := newIndex(t)
	insert(t, ix, "c1", "some fact", index.OriginCorpus, "")

	engine := retrieve.NewEngine(ix, failingEmbedder{}, retrieve.Config{})
	result := engine.Retrieve(context.Background(), "some fact", "sess")

	if !result.Empty() {
		t.Errorf("Expected empty result when embedding fails, got %d chunks", len(result.Chunks))
	}
}

func TestRetrieveCharCapKeepsRunesWhole(t *testing.T) {
	ix := newIndex(t)
	oversized := strings.Repeat("é", 30)
	insert(t, ix, "only", oversized, index.OriginCorpus, "")

	// An odd byte cap lands mid-rune in the two-byte text.
	engine := retrieve.NewEngine(ix, mock.NewWithDimensions(dims), retrieve.Config{MaxChars: 15})
	result := engine.Retrieve(context.Background(), oversized, "sess")

	if len(result.Chunks) != 1 {
		t.Fatalf("Expected the lone chunk to survive, got %d", len(result.Chunks))
	}
	text := result.Chunks[0].Text
	if len(text) > 15 {
		t.Errorf("Chunk exceeds cap: %d bytes", len(text))
	}
	if !utf8.ValidString(text) {
		t.Errorf("Truncation split a rune: %q", text)
	}
}

func TestRetrieveCharCapDropsLowestScore(t *testing.T) {
	ix := newIndex(t)
	// One exact match (score ~1) and two unrelated corpus docs.
	insert(t, ix, "best", "exact query text here", index.OriginCorpus, "")
	insert(t, ix, "other1", "unrelated filler text one", index.OriginCorpus, "")
	insert(t, ix, "other2", "unrelated filler text two", index.OriginCorpus, "")

	engine := retrieve.NewEngine(ix, mock.NewWithDimensions(dims), retrieve.Config{MaxChars: 25})
	result := engine.Retrieve(context.Background(), "exact query text here", "sess")

	if result.Empty() {
		t.Fatal("Cap should not empty a nonempty result")
	}
	if result.TotalChars() > 25 {
		t.Errorf("Result exceeds char cap: %d chars", result.TotalChars())
	}
	found := false
	for _, c := range result.Chunks {
		if c.Text == "exact query text here" {
			found = true
		}
	}
	if !found {
		t.Error("Highest-scoring chunk should survive the cap")
	}
}
