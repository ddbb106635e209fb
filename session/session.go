// Package session persists conversation transcripts. Every accepted turn
// pair is written through a Store before it becomes visible anywhere else
// in the pipeline.
package session

import (
	"context"
	"errors"

	"github.com/emberworks/ember-go/core"
)

// ErrNotFound is returned when a session ID is unknown to the store.
var ErrNotFound = errors.New("session: not found")

// PreviewChars is how much of a session's opening message the summary keeps.
const PreviewChars = 80

// Store is the durable transcript backend.
//
// Append is all-or-nothing: either every turn in the call is persisted or
// none are. Callers rely on this to keep the user/assistant pairing intact
// when a write fails mid-turn.
type Store interface {
	// GetOrCreate returns the session, creating it on first use.
	GetOrCreate(ctx context.Context, sessionID, ownerID string) (core.Session, error)

	// Append persists turns at the end of the transcript, creating the
	// session if needed.
	Append(ctx context.Context, sessionID string, turns ...core.Turn) error

	// History pages backwards through the transcript: it skips the offset
	// most recent turns, then returns up to limit turns before those, in
	// chronological order. A non-positive limit means no bound. Unknown
	// sessions yield an empty history, not an error.
	History(ctx context.Context, sessionID string, limit, offset int) ([]core.Turn, error)

	// ListSessions summarizes stored sessions, most recently active first,
	// paged with the same limit/offset convention.
	ListSessions(ctx context.Context, limit, offset int) ([]core.SessionSummary, error)

	Close() error
}

func preview(turns []core.Turn) string {
	for _, t := range turns {
		if t.Role == core.RoleUser && t.Content != "" {
			return clip(t.Content, PreviewChars)
		}
	}
	if len(turns) > 0 {
		return clip(turns[0].Content, PreviewChars)
	}
	return ""
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back off to a rune boundary.
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n] + "…"
}
