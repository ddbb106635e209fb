package corpus

import "strings"

// Default chunking geometry. Tuned for sentence-transformer embeddings:
// chunks around a thousand characters with enough overlap that a fact
// straddling a boundary still lands whole in one chunk.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Splitter cuts document text into overlapping chunks, preferring paragraph
// boundaries, then line boundaries, then word boundaries, before falling
// back to hard cuts.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

// NewSplitter returns a splitter with the default geometry.
func NewSplitter() Splitter {
	return Splitter{ChunkSize: DefaultChunkSize, Overlap: DefaultChunkOverlap}
}

var separators = []string{"\n\n", "\n", " "}

// Split chunks text. Every chunk is at most ChunkSize characters and
// consecutive chunks share up to Overlap characters of trailing context.
func (s Splitter) Split(text string) []string {
	size := s.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := s.Overlap
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}

	units := splitUnits(text, separators, size)
	return mergeUnits(units, size, overlap)
}

// splitUnits breaks text into pieces no longer than size, trying coarser
// separators first and keeping the separators attached so no content is
// lost.
func splitUnits(text string, seps []string, size int) []string {
	if len(text) <= size {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	if len(seps) == 0 {
		return hardCut(text, size)
	}

	parts := strings.SplitAfter(text, seps[0])
	var units []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if len(part) <= size {
			units = append(units, part)
		} else {
			units = append(units, splitUnits(part, seps[1:], size)...)
		}
	}
	return units
}

// hardCut slices text into size-length pieces on rune boundaries.
func hardCut(text string, size int) []string {
	var units []string
	runes := []rune(text)
	for start := 0; start < len(runes); {
		end := start
		length := 0
		for end < len(runes) {
			rl := len(string(runes[end]))
			if length+rl > size && length > 0 {
				break
			}
			length += rl
			end++
		}
		units = append(units, string(runes[start:end]))
		start = end
	}
	return units
}

// mergeUnits packs units into chunks up to size, carrying a tail of up to
// overlap characters into the next chunk.
func mergeUnits(units []string, size, overlap int) []string {
	var chunks []string
	var window []string
	windowLen := 0

	flush := func() {
		chunk := strings.TrimSpace(strings.Join(window, ""))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	for _, unit := range units {
		if windowLen+len(unit) > size && windowLen > 0 {
			flush()
			for windowLen > overlap || (windowLen+len(unit) > size && windowLen > 0) {
				windowLen -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, unit)
		windowLen += len(unit)
	}
	flush()
	return chunks
}
