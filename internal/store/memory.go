package store

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. Used by default and in tests.
type MemoryStore struct {
	keyLocks

	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

// NoopStore has no persistence at all: reads are empty and writes vanish.
// It stands in for environments without local storage.
type NoopStore struct{}

func (NoopStore) Get(context.Context, string) ([]byte, error) { return nil, nil }

func (NoopStore) Set(context.Context, string, []byte) error { return nil }
