// Package corpus loads the static knowledge documents that seed the
// embedding index and splits them into overlapping chunks sized for
// embedding.
package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is one source file worth of text.
type Document struct {
	SourceFile string
	Text       string
}

// Source enumerates corpus documents. Loaded at startup and again on an
// explicit rebuild request.
type Source interface {
	Documents() ([]Document, error)
}

// DirSource reads every .txt file in one directory. A missing or empty
// directory yields no documents rather than an error; an empty corpus is a
// legal state.
type DirSource struct {
	Dir string
}

var _ Source = DirSource{}

// Documents returns the directory's .txt files in name order.
func (s DirSource) Documents() ([]Document, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("corpus: read dir %s: %w", s.Dir, err)
	}

	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("corpus: read %s: %w", entry.Name(), err)
		}
		text := string(data)
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, Document{SourceFile: entry.Name(), Text: text})
	}
	return docs, nil
}

// Static is an in-memory Source, mostly for tests.
type Static []Document

var _ Source = Static(nil)

// Documents returns the documents as given.
func (s Static) Documents() ([]Document, error) {
	return []Document(s), nil
}
