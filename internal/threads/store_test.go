// ABOUTME: Tests for thread store operations
// ABOUTME: Covers create, get, title updates, appends, deletion, listing and corruption handling

package threads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-threads/internal/store"
)

// fakeClock hands out strictly increasing instants one millisecond apart.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func setupTestStore(t *testing.T) (*Store, store.Backend) {
	t.Helper()

	backend, err := store.NewFileBackend(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	return New(backend, Options{Now: newFakeClock().Now}), backend
}

func strPtr(s string) *string {
	return &s
}

func TestCreate_Defaults(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	thread, err := s.Create(ctx, "", "")
	require.NoError(t, err)

	assert.NotEmpty(t, thread.ID)
	assert.Equal(t, DefaultTitle, thread.Title)
	assert.Empty(t, thread.Messages)
	assert.NotNil(t, thread.Messages)
	assert.True(t, thread.CreatedAt.Equal(thread.UpdatedAt))

	got, err := s.Get(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, thread, got)
}

func TestCreate_WithInitialMessage(t *testing.T) {
	s, _ := setupTestStore(t)

	thread, err := s.Create(context.Background(), "Trip planning", "Where should we go?")
	require.NoError(t, err)

	assert.Equal(t, "Trip planning", thread.Title)
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, RoleUser, thread.Messages[0].Role)
	assert.Equal(t, "Where should we go?", thread.Messages[0].Content)
	assert.True(t, thread.Messages[0].Timestamp.Equal(thread.CreatedAt))
}

func TestCreate_UniqueIDs(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for range 25 {
		thread, err := s.Create(ctx, "", "")
		require.NoError(t, err)
		assert.False(t, seen[thread.ID], "duplicate id %s", thread.ID)
		seen[thread.ID] = true
	}
}

func TestCreate_RegeneratesCollidingID(t *testing.T) {
	backend := store.NewMemoryBackend()
	ids := []string{"taken", "taken", "fresh"}
	var n int
	s := New(backend, Options{NewID: func() string {
		id := ids[n]
		n++
		return id
	}})
	ctx := context.Background()

	first, err := s.Create(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "taken", first.ID)

	second, err := s.Create(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "fresh", second.ID)
}

func TestCreate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	backend := store.NewMemoryBackend()
	s := New(backend, Options{NewID: func() string { return "same" }})
	ctx := context.Background()

	_, err := s.Create(ctx, "", "")
	require.NoError(t, err)

	_, err = s.Create(ctx, "", "")
	assert.Error(t, err)
}

func TestGet_NotFound(t *testing.T) {
	s, _ := setupTestStore(t)

	_, err := s.Get(context.Background(), "3f2c9a1e-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsCorrupt(err))
}

func TestGet_InvalidIDIsNotFound(t *testing.T) {
	s, _ := setupTestStore(t)

	_, err := s.Get(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_CorruptRecord(t *testing.T) {
	s, backend := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "broken", []byte("{not json")))

	_, err := s.Get(ctx, "broken")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsCorrupt(err))

	var ce *CorruptRecordError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "broken", ce.ID)
}

func TestUpdateTitle(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	thread, err := s.Create(ctx, "Old", "")
	require.NoError(t, err)

	updated, err := s.UpdateTitle(ctx, thread.ID, strPtr("New"))
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	assert.True(t, updated.UpdatedAt.After(thread.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(thread.CreatedAt))

	got, err := s.Get(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestUpdateTitle_NilKeepsTitleButTouches(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	thread, err := s.Create(ctx, "Keep me", "")
	require.NoError(t, err)

	updated, err := s.UpdateTitle(ctx, thread.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Keep me", updated.Title)
	assert.True(t, updated.UpdatedAt.After(thread.UpdatedAt))
}

func TestUpdateTitle_EmptyStringIsApplied(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	thread, err := s.Create(ctx, "Something", "")
	require.NoError(t, err)

	updated, err := s.UpdateTitle(ctx, thread.ID, strPtr(""))
	require.NoError(t, err)
	assert.Equal(t, "", updated.Title)
}

func TestUpdateTitle_NotFound(t *testing.T) {
	s, _ := setupTestStore(t)

	_, err := s.UpdateTitle(context.Background(), "missing", strPtr("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendMessage(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	thread, err := s.Create(ctx, "", "hi")
	require.NoError(t, err)

	updated, err := s.AppendMessage(ctx, thread.ID, RoleAssistant, "hello!")
	require.NoError(t, err)

	require.Len(t, updated.Messages, 2)
	last := updated.Messages[1]
	assert.Equal(t, RoleAssistant, last.Role)
	assert.Equal(t, "hello!", last.Content)
	assert.True(t, last.Timestamp.Equal(updated.UpdatedAt))
	assert.True(t, updated.UpdatedAt.After(thread.UpdatedAt))
}

func TestAppendMessage_TimestampsNonDecreasing(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	thread, err := s.Create(ctx, "", "first")
	require.NoError(t, err)

	for i := range 5 {
		thread, err = s.AppendMessage(ctx, thread.ID, RoleUser, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	for i := 1; i < len(thread.Messages); i++ {
		prev, cur := thread.Messages[i-1].Timestamp, thread.Messages[i].Timestamp
		assert.False(t, cur.Before(prev), "message %d precedes message %d", i, i-1)
	}
	assert.True(t, thread.UpdatedAt.Equal(thread.Messages[len(thread.Messages)-1].Timestamp))
}

func TestAppendMessage_ClockStepsBackward(t *testing.T) {
	clock := newFakeClock()
	backend := store.NewMemoryBackend()
	s := New(backend, Options{Now: clock.Now})
	ctx := context.Background()

	thread, err := s.Create(ctx, "", "")
	require.NoError(t, err)

	clock.Set(thread.CreatedAt.Add(-time.Hour))

	updated, err := s.AppendMessage(ctx, thread.ID, RoleUser, "late")
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.Equal(thread.UpdatedAt))
	assert.True(t, updated.Messages[0].Timestamp.Equal(thread.UpdatedAt))
}

func TestAppendMessage_NotFound(t *testing.T) {
	s, _ := setupTestStore(t)

	_, err := s.AppendMessage(context.Background(), "missing", RoleUser, "hello")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendMessage_Concurrent(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	thread, err := s.Create(ctx, "", "")
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendMessage(ctx, thread.ID, RoleUser, fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, thread.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, writers, "no append should be lost")
	assert.Equal(t, 0, s.locks.held())
}

func TestDelete(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	thread, err := s.Create(ctx, "", "")
	require.NoError(t, err)

	removed, err := s.Delete(ctx, thread.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = s.Get(ctx, thread.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err = s.Delete(ctx, thread.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDelete_NeverCreated(t *testing.T) {
	s, _ := setupTestStore(t)

	removed, err := s.Delete(context.Background(), "never-existed")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestList_Empty(t *testing.T) {
	s, _ := setupTestStore(t)

	summaries, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
}

func TestList_OrderedByMostRecentUpdate(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, "A", "")
	require.NoError(t, err)
	b, err := s.Create(ctx, "B", "")
	require.NoError(t, err)
	c, err := s.Create(ctx, "C", "")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, a.ID, RoleUser, "bump")
	require.NoError(t, err)

	summaries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	assert.Equal(t, a.ID, summaries[0].ID)
	assert.Equal(t, c.ID, summaries[1].ID)
	assert.Equal(t, b.ID, summaries[2].ID)
}

func TestList_SummaryFields(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	empty, err := s.Create(ctx, "Empty", "")
	require.NoError(t, err)
	long := strings.Repeat("x", 150)
	busy, err := s.Create(ctx, "Busy", "short")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, busy.ID, RoleAssistant, long)
	require.NoError(t, err)

	summaries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byID := map[string]ThreadSummary{}
	for _, sum := range summaries {
		byID[sum.ID] = sum
	}

	assert.Equal(t, 0, byID[empty.ID].MessageCount)
	assert.Nil(t, byID[empty.ID].Preview)

	assert.Equal(t, 2, byID[busy.ID].MessageCount)
	require.NotNil(t, byID[busy.ID].Preview)
	assert.Equal(t, strings.Repeat("x", 100)+"...", *byID[busy.ID].Preview)
}

func TestList_SkipsCorruptRecords(t *testing.T) {
	s, backend := setupTestStore(t)
	ctx := context.Background()

	good, err := s.Create(ctx, "Good", "")
	require.NoError(t, err)
	require.NoError(t, backend.Put(ctx, "garbage", []byte("not json at all")))
	require.NoError(t, backend.Put(ctx, "mismatch", []byte(`{"id":"other","title":"x","created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:00:00Z","messages":[]}`)))
	require.NoError(t, backend.Put(ctx, "stampless", []byte(`{"id":"stampless","title":"x","created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:00:00Z","messages":[{"role":"user","content":"hi"}]}`)))

	summaries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, good.ID, summaries[0].ID)
}

func TestSortSummaries_TieBreaks(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Second)

	summaries := []ThreadSummary{
		{ID: "b", CreatedAt: t0, UpdatedAt: t1},
		{ID: "a", CreatedAt: t0, UpdatedAt: t1},
		{ID: "c", CreatedAt: t1, UpdatedAt: t1},
		{ID: "d", CreatedAt: t0, UpdatedAt: t0},
	}
	sortSummaries(summaries)

	var ids []string
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids)
}

type recordedOp struct {
	op  string
	err error
}

type fakeRecorder struct {
	mu    sync.Mutex
	ops   []recordedOp
	count int
}

func (r *fakeRecorder) ObserveOperation(op string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{op: op, err: err})
}

func (r *fakeRecorder) SetThreadCount(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count = n
}

func TestStore_ReportsToRecorder(t *testing.T) {
	rec := &fakeRecorder{}
	s := New(store.NewMemoryBackend(), Options{Recorder: rec})
	ctx := context.Background()

	thread, err := s.Create(ctx, "", "")
	require.NoError(t, err)
	_, err = s.Get(ctx, "missing")
	require.Error(t, err)
	_, err = s.List(ctx)
	require.NoError(t, err)

	require.Len(t, rec.ops, 3)
	assert.Equal(t, "create", rec.ops[0].op)
	assert.NoError(t, rec.ops[0].err)
	assert.Equal(t, "get", rec.ops[1].op)
	assert.ErrorIs(t, rec.ops[1].err, ErrNotFound)
	assert.Equal(t, "list", rec.ops[2].op)
	assert.Equal(t, 1, rec.count)
	assert.NotEmpty(t, thread.ID)
}

func TestStore_AcrossBackends(t *testing.T) {
	for _, driver := range store.Drivers {
		t.Run(driver, func(t *testing.T) {
			backend, err := store.Open(driver, t.TempDir(), nil)
			require.NoError(t, err)
			defer backend.Close()

			s := New(backend, Options{})
			ctx := context.Background()

			thread, err := s.Create(ctx, "Portable", "hello")
			require.NoError(t, err)
			_, err = s.AppendMessage(ctx, thread.ID, RoleAssistant, "hi")
			require.NoError(t, err)

			got, err := s.Get(ctx, thread.ID)
			require.NoError(t, err)
			assert.Len(t, got.Messages, 2)

			summaries, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, summaries, 1)
			assert.Equal(t, 2, summaries[0].MessageCount)

			removed, err := s.Delete(ctx, thread.ID)
			require.NoError(t, err)
			assert.True(t, removed)
		})
	}
}
