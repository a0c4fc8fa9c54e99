// ABOUTME: JSON record encoding for persisted threads
// ABOUTME: Decoding validates the document and reports corrupt records

package threads

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Encode renders a thread as its persisted JSON document.
func Encode(t Thread) ([]byte, error) {
	if t.Messages == nil {
		t.Messages = []ThreadMessage{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("encoding thread %s: %w", t.ID, err)
	}
	return buf.Bytes(), nil
}

// record mirrors Thread with pointer fields so required keys that are absent
// or null can be told apart from empty values.
type record struct {
	ID        string           `json:"id"`
	Title     *string          `json:"title"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Messages  []*messageRecord `json:"messages"`
}

type messageRecord struct {
	Role      *string    `json:"role"`
	Content   *string    `json:"content"`
	Timestamp *time.Time `json:"timestamp"`
}

// Decode parses a persisted document. id is the key the record was stored under;
// a document claiming a different id is corrupt.
// Every failure is a *CorruptRecordError.
func Decode(id string, data []byte) (Thread, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Thread{}, &CorruptRecordError{ID: id, Err: err}
	}
	t, err := rec.thread()
	if err == nil {
		err = t.validate(id)
	}
	if err != nil {
		return Thread{}, &CorruptRecordError{ID: id, Err: err}
	}
	return t, nil
}

func (r record) thread() (Thread, error) {
	if r.Title == nil {
		return Thread{}, errors.New("missing title")
	}
	t := Thread{
		ID:        r.ID,
		Title:     *r.Title,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Messages:  make([]ThreadMessage, 0, len(r.Messages)),
	}
	for i, m := range r.Messages {
		switch {
		case m == nil:
			return Thread{}, fmt.Errorf("message %d is null", i)
		case m.Role == nil:
			return Thread{}, fmt.Errorf("message %d: missing role", i)
		case m.Content == nil:
			return Thread{}, fmt.Errorf("message %d: missing content", i)
		case m.Timestamp == nil || m.Timestamp.IsZero():
			return Thread{}, fmt.Errorf("message %d: missing timestamp", i)
		}
		t.Messages = append(t.Messages, ThreadMessage{
			Role:      *m.Role,
			Content:   *m.Content,
			Timestamp: *m.Timestamp,
		})
	}
	return t, nil
}

func (t Thread) validate(id string) error {
	switch {
	case t.ID == "":
		return errors.New("missing id")
	case id != "" && t.ID != id:
		return fmt.Errorf("id %q does not match record key", t.ID)
	case t.CreatedAt.IsZero():
		return errors.New("missing created_at")
	case t.UpdatedAt.IsZero():
		return errors.New("missing updated_at")
	case t.UpdatedAt.Before(t.CreatedAt):
		return errors.New("updated_at precedes created_at")
	}
	return nil
}
