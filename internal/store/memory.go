// ABOUTME: In-memory Backend implementation for tests and ephemeral servers
// ABOUTME: Stored documents are copied in and out so callers never share buffers

package store

import (
	"context"
	"sync"
)

// MemoryBackend is an in-memory Backend. Contents are lost on Close.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string][]byte),
	}
}

func (m *MemoryBackend) Get(ctx context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(data), nil
}

func (m *MemoryBackend) Put(ctx context.Context, id string, data []byte) error {
	if err := checkID(id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[id] = clone(data)
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func (m *MemoryBackend) IDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string][]byte)
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
