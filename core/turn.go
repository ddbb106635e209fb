// Package core holds the shared types of the turn pipeline: sessions,
// turns, and the typed errors a turn can fail with.
package core

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one persisted message. Turns are immutable once stored; a user
// message and the assistant reply it produced always land together.
type Turn struct {
	Role      Role      `json:"role" msgpack:"role"`
	Content   string    `json:"content" msgpack:"content"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
}

// Session describes one conversation owned by a user. The turn log itself
// lives in the session store and is append-only.
type Session struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// SessionSummary is the listing view of a session: enough to render a
// conversation picker without loading full histories.
type SessionSummary struct {
	SessionID string `json:"session_id"`
	TurnCount int    `json:"turn_count"`
	Preview   string `json:"preview,omitempty"`
}
