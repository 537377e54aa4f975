// Package session keeps short-lived per-session agent state keyed by
// (user, session): the pending confirmation of a mutating plan and the
// record of the previous turn used for follow-up classification.
package session

import (
	"context"
	"time"
)

// State kinds persisted per session.
const (
	KindPendingConfirmation = "pending_confirmation"
	KindTurns               = "turns"
)

// Key identifies one conversation.
type Key struct {
	UserID    string
	SessionID string
}

func (k Key) String() string {
	return k.UserID + "/" + k.SessionID
}

// StateService stores JSON-serializable values per session and kind.
// Implementations must not share mutable state across keys beyond the backing store.
type StateService interface {
	// Put stores value under (key, kind). A non-positive ttl means no expiry.
	Put(ctx context.Context, key Key, kind string, value any, ttl time.Duration) error

	// Get decodes the value stored under (key, kind) into dst.
	// Returns false when nothing (or only an expired value) is stored.
	Get(ctx context.Context, key Key, kind string, dst any) (bool, error)

	// Delete removes the value; deleting a missing value is not an error.
	Delete(ctx context.Context, key Key, kind string) error
}

// Message is one entry of the short conversation tail.
type Message struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

// PriorTurn records how the previous query in a session was handled.
type PriorTurn struct {
	Query         string    `json:"query"`
	IntentType    string    `json:"intent_type"`
	RequiredTools []string  `json:"required_tools,omitempty"`
	Response      string    `json:"response"`
	At            time.Time `json:"at"`
}

// Turns is the persisted turn history of a session.
type Turns struct {
	// Count is the number of completed turns, including ones dropped from Tail.
	Count int        `json:"count"`
	Last  *PriorTurn `json:"last,omitempty"`
	Tail  []Message  `json:"tail"`
}
