package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/emberworks/ember-go/core"
)

// MemoryStore is an in-process Store. It backs tests and ephemeral runs
// where transcripts should not outlive the process.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memSession

	// FailAppend makes the next Append calls fail. Tests use it to
	// exercise persistence-failure paths.
	FailAppend error
}

type memSession struct {
	session core.Session
	turns   []core.Turn
	preview string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memSession)}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, sessionID, ownerID string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(sessionID, ownerID).session, nil
}

func (s *MemoryStore) getOrCreateLocked(sessionID, ownerID string) *memSession {
	if ms, ok := s.sessions[sessionID]; ok {
		return ms
	}
	now := time.Now().UTC()
	ms := &memSession{session: core.Session{
		ID:           sessionID,
		OwnerID:      ownerID,
		CreatedAt:    now,
		LastActiveAt: now,
	}}
	s.sessions[sessionID] = ms
	return ms
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, turns ...core.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend != nil {
		return s.FailAppend
	}
	ms := s.getOrCreateLocked(sessionID, "")
	ms.turns = append(ms.turns, turns...)
	ms.session.LastActiveAt = time.Now().UTC()
	if ms.preview == "" {
		ms.preview = preview(turns)
	}
	return nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string, limit, offset int) ([]core.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	start, end := historyRange(len(ms.turns), limit, offset)
	out := make([]core.Turn, end-start)
	copy(out, ms.turns[start:end])
	return out, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, limit, offset int) ([]core.SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type row struct {
		summary    core.SessionSummary
		lastActive time.Time
	}
	rows := make([]row, 0, len(s.sessions))
	for _, ms := range s.sessions {
		rows = append(rows, row{
			summary: core.SessionSummary{
				SessionID: ms.session.ID,
				TurnCount: len(ms.turns),
				Preview:   ms.preview,
			},
			lastActive: ms.session.LastActiveAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].lastActive.After(rows[j].lastActive)
	})
	rows = page(rows, limit, offset)
	out := make([]core.SessionSummary, len(rows))
	for i, r := range rows {
		out[i] = r.summary
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
