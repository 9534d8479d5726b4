package quotes

import (
	"context"
	"sync"
)

// MemoryStore keeps quotes in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	quotes []Quote
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) List(_ context.Context) ([]Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Quote(nil), m.quotes...), nil
}

func (m *MemoryStore) Seed(_ context.Context, quotes []Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.quotes) == 0 {
		m.quotes = append(m.quotes, quotes...)
	}
	return nil
}

func (m *MemoryStore) Close(context.Context) error { return nil }
