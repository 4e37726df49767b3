// Package history persists assistant conversations. GormStore backs the
// server-owned sessions, BoltStore the history kept by the CLI client.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	GreetingMessage = "Hello! I'm your library assistant. How can I help you find books or information today?"
	ClearedMessage  = "The conversation has been cleared. How else can I help you today?"

	previewLen     = 30
	defaultPreview = "New conversation"
)

type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Messages  []Turn    `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Summary struct {
	ID        string    `json:"id"`
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is an append-only log of turns per conversation id.
type Store interface {
	// Append adds a turn, creating the conversation on first use.
	Append(ctx context.Context, id string, turn Turn) error
	// Recent returns up to n of the latest turns in insertion order. An
	// unknown id yields no turns.
	Recent(ctx context.Context, id string, n int) ([]Turn, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	// List returns summaries, most recently updated first.
	List(ctx context.Context) ([]Summary, error)
	// Delete drops a conversation. Unknown ids are ignored.
	Delete(ctx context.Context, id string) error
}

func NewID() string {
	return uuid.New().String()
}

// Preview is the first user turn cut to 30 characters.
func Preview(turns []Turn) string {
	for _, t := range turns {
		if t.Role != "user" {
			continue
		}
		runes := []rune(t.Content)
		if len(runes) > previewLen {
			return string(runes[:previewLen]) + "..."
		}
		return t.Content
	}
	return defaultPreview
}

func lastN(turns []Turn, n int) []Turn {
	if n > 0 && len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}
