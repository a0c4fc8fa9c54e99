// ABOUTME: Thread, ThreadMessage and ThreadSummary data types
// ABOUTME: Summary projection with last-message preview truncation

package threads

import (
	"time"
	"unicode/utf8"
)

// DefaultTitle is used when a thread is created without a title.
const DefaultTitle = "New Conversation"

// RoleUser is the role given to the initial message of a new thread.
const RoleUser = "user"

// Conventional message roles. Other roles are accepted as-is.
const (
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

const (
	previewLimit  = 100
	previewSuffix = "..."
)

// ThreadMessage is one role-tagged, timestamped entry in a thread.
type ThreadMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Thread is a titled, ordered log of messages.
type Thread struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []ThreadMessage `json:"messages"`
}

// ThreadSummary is the list-view projection of a Thread.
type ThreadSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      *string   `json:"preview"`
}

// Summary derives the list-view projection of t.
func (t Thread) Summary() ThreadSummary {
	s := ThreadSummary{
		ID:           t.ID,
		Title:        t.Title,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		MessageCount: len(t.Messages),
	}
	if n := len(t.Messages); n > 0 {
		p := Preview(t.Messages[n-1].Content)
		s.Preview = &p
	}
	return s
}

// Preview truncates content to 100 characters, appending "..." when it was longer.
// Characters are counted as Unicode code points, never splitting a rune.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLimit {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLimit]) + previewSuffix
}

// LastMessage returns the most recent message, if any.
func (t Thread) LastMessage() (ThreadMessage, bool) {
	if len(t.Messages) == 0 {
		return ThreadMessage{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// clone returns a deep copy so callers never share the message slice.
func (t Thread) clone() Thread {
	c := t
	c.Messages = make([]ThreadMessage, len(t.Messages))
	copy(c.Messages, t.Messages)
	return c
}
