package corpus_test

import (
	"strings"
	"testing"

	"github.com/emberworks/ember-go/corpus"
)

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := corpus.NewSplitter()
	chunks := s.Split("a short document")
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "a short document" {
		t.Errorf("Short text should pass through unchanged, got %q", chunks[0])
	}
}

func TestSplitEmptyText(t *testing.T) {
	s := corpus.NewSplitter()
	if chunks := s.Split(""); len(chunks) != 0 {
		t.Errorf("Expected no chunks for empty text, got %d", len(chunks))
	}
	if chunks := s.Split("   \n\n  "); len(chunks) != 0 {
		t.Errorf("Expected no chunks for whitespace text, got %d", len(chunks))
	}
}

func TestSplitRespectsChunkSize(t *testing.T) {
	s := corpus.Splitter{ChunkSize: 100, Overlap: 20}

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("some words in a sentence. ")
	}
	chunks := s.Split(b.String())

	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("Chunk %d exceeds size: %d chars", i, len(c))
		}
		if c == "" {
			t.Errorf("Chunk %d is empty", i)
		}
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	para1 := strings.Repeat("first paragraph text. ", 3)
	para2 := strings.Repeat("second paragraph text. ", 3)
	text := strings.TrimSpace(para1) + "\n\n" + strings.TrimSpace(para2)

	s := corpus.Splitter{ChunkSize: 80, Overlap: 0}
	chunks := s.Split(text)

	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks split at the paragraph break, got %d: %q", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0], "first paragraph") {
		t.Errorf("Unexpected first chunk %q", chunks[0])
	}
	if !strings.HasPrefix(chunks[1], "second paragraph") {
		t.Errorf("Unexpected second chunk %q", chunks[1])
	}
}

func TestSplitOverlapCarriesContext(t *testing.T) {
	var words []string
	for i := 0; i < 100; i++ {
		words = append(words, "word")
	}
	text := strings.Join(words, " ")

	s := corpus.Splitter{ChunkSize: 120, Overlap: 40}
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}

	// The tail of each chunk should reappear at the head of the next.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev[len(prev)-10:]
		if !strings.Contains(chunks[i], strings.TrimSpace(tail)) {
			t.Errorf("Chunk %d does not carry overlap from its predecessor", i)
		}
	}
}

func TestSplitNoContentLost(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa"
	s := corpus.Splitter{ChunkSize: 20, Overlap: 5}
	chunks := s.Split(text)

	joined := strings.Join(chunks, " ")
	for _, word := range strings.Fields(text) {
		if !strings.Contains(joined, word) {
			t.Errorf("Word %q missing from chunks %q", word, chunks)
		}
	}
}

func TestSplitHardCutOnUnbreakableText(t *testing.T) {
	text := strings.Repeat("x", 250)
	s := corpus.Splitter{ChunkSize: 100, Overlap: 0}
	chunks := s.Split(text)

	if len(chunks) != 3 {
		t.Fatalf("Expected 3 hard-cut chunks, got %d", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != 250 {
		t.Errorf("Hard cut lost content: %d of 250 chars", total)
	}
}
