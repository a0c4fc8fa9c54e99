// ABOUTME: Thread store operations over a pluggable record backend
// ABOUTME: Create, get, title update, append, delete and recency-sorted listing

package threads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-threads/internal/store"
)

// Recorder receives per-operation outcomes. metrics.Metrics implements it.
type Recorder interface {
	ObserveOperation(operation string, err error, duration time.Duration)
	SetThreadCount(n int)
}

// Options configures a Store. Zero values select defaults.
type Options struct {
	Logger   *slog.Logger
	Recorder Recorder

	// Now returns the current instant. Defaults to time.Now.
	Now func() time.Time

	// NewID generates thread identifiers. Defaults to random UUIDs.
	NewID func() string
}

// Store manages threads persisted one record per thread in a backend.
type Store struct {
	backend  store.Backend
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
	newID    func() string
	locks    *keyedMutex
}

// maxIDAttempts bounds regeneration when a generated ID is already taken.
const maxIDAttempts = 3

// New creates a Store over backend. The backend stays owned by the caller.
func New(backend store.Backend, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Store{
		backend:  backend,
		logger:   logger.With("component", "threads"),
		recorder: opts.Recorder,
		now:      now,
		newID:    newID,
		locks:    newKeyedMutex(),
	}
}

// Create persists a new thread. An empty title selects DefaultTitle; a non-empty
// initialMessage becomes the first message with role "user".
func (s *Store) Create(ctx context.Context, title, initialMessage string) (_ Thread, err error) {
	defer s.observe("create", time.Now(), &err)

	id, err := s.allocateID(ctx)
	if err != nil {
		return Thread{}, err
	}

	if title == "" {
		title = DefaultTitle
	}
	now := s.timestamp()
	t := Thread{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []ThreadMessage{},
	}
	if initialMessage != "" {
		t.Messages = append(t.Messages, ThreadMessage{
			Role:      RoleUser,
			Content:   initialMessage,
			Timestamp: now,
		})
	}

	if err := s.save(ctx, t); err != nil {
		return Thread{}, err
	}

	s.logger.Debug("created thread", "id", id, "messages", len(t.Messages))
	return t.clone(), nil
}

// Get returns the thread stored under id.
// Returns ErrNotFound if it doesn't exist; corrupt records also match ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (_ Thread, err error) {
	defer s.observe("get", time.Now(), &err)
	return s.load(ctx, id)
}

// UpdateTitle replaces the title when title is non-nil. updated_at advances
// even when title is nil.
func (s *Store) UpdateTitle(ctx context.Context, id string, title *string) (_ Thread, err error) {
	defer s.observe("update_title", time.Now(), &err)

	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.load(ctx, id)
	if err != nil {
		return Thread{}, err
	}

	if title != nil {
		t.Title = *title
	}
	t.UpdatedAt = s.advance(t)

	if err := s.save(ctx, t); err != nil {
		return Thread{}, err
	}

	s.logger.Debug("updated thread title", "id", id, "title_set", title != nil)
	return t, nil
}

// AppendMessage appends a message stamped with the current instant and moves
// updated_at to that instant. Content is not validated here.
func (s *Store) AppendMessage(ctx context.Context, id, role, content string) (_ Thread, err error) {
	defer s.observe("append_message", time.Now(), &err)

	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.load(ctx, id)
	if err != nil {
		return Thread{}, err
	}

	ts := s.advance(t)
	t.Messages = append(t.Messages, ThreadMessage{
		Role:      role,
		Content:   content,
		Timestamp: ts,
	})
	t.UpdatedAt = ts

	if err := s.save(ctx, t); err != nil {
		return Thread{}, err
	}

	s.logger.Debug("appended message", "id", id, "role", role, "messages", len(t.Messages))
	return t, nil
}

// Delete removes the thread. Returns false if no record existed.
func (s *Store) Delete(ctx context.Context, id string) (_ bool, err error) {
	defer s.observe("delete", time.Now(), &err)

	unlock := s.locks.Lock(id)
	defer unlock()

	removed, err := s.backend.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("deleting thread %s: %w", id, err)
	}
	if removed {
		s.logger.Debug("deleted thread", "id", id)
	}
	return removed, nil
}

// List returns summaries of every readable thread, most recently updated first.
// Records that fail to load or decode are logged and skipped.
func (s *Store) List(ctx context.Context) (_ []ThreadSummary, err error) {
	defer s.observe("list", time.Now(), &err)

	ids, err := s.backend.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing thread records: %w", err)
	}

	summaries := make([]ThreadSummary, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := s.backend.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			// deleted after enumeration
			continue
		}
		if err != nil {
			s.logger.Warn("skipping unreadable thread record", "id", id, "error", err)
			continue
		}

		t, err := Decode(id, data)
		if err != nil {
			s.logger.Warn("skipping corrupt thread record", "id", id, "error", err)
			continue
		}
		summaries = append(summaries, t.Summary())
	}

	sortSummaries(summaries)

	if s.recorder != nil {
		s.recorder.SetThreadCount(len(summaries))
	}
	return summaries, nil
}

// Ping checks that the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// sortSummaries orders by updated_at descending. Ties fall back to created_at
// descending, then id ascending.
func sortSummaries(summaries []ThreadSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (s *Store) load(ctx context.Context, id string) (Thread, error) {
	data, err := s.backend.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Thread{}, ErrNotFound
	}
	if err != nil {
		return Thread{}, fmt.Errorf("loading thread %s: %w", id, err)
	}

	t, err := Decode(id, data)
	if err != nil {
		s.logger.Warn("corrupt thread record", "id", id, "error", err)
		return Thread{}, err
	}
	return t, nil
}

func (s *Store) save(ctx context.Context, t Thread) error {
	data, err := Encode(t)
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, t.ID, data); err != nil {
		return fmt.Errorf("saving thread %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) allocateID(ctx context.Context) (string, error) {
	for range maxIDAttempts {
		id := s.newID()
		_, err := s.backend.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking thread id %s: %w", id, err)
		}
		s.logger.Warn("generated thread id already in use", "id", id)
	}
	return "", fmt.Errorf("allocating thread id: %d attempts collided", maxIDAttempts)
}

// timestamp returns the current UTC instant at microsecond precision.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// advance returns the instant for a mutation of t, never earlier than t.UpdatedAt.
func (s *Store) advance(t Thread) time.Time {
	now := s.timestamp()
	if now.Before(t.UpdatedAt) {
		return t.UpdatedAt
	}
	return now
}

func (s *Store) observe(operation string, start time.Time, err *error) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObserveOperation(operation, *err, time.Since(start))
}
