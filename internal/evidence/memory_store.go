package evidence

import (
	"context"
	"sync"
)

// MemoryStore keeps evidence blobs in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]*File
	blobs map[string][]byte
}

// NewMemoryStore creates a new in-memory evidence store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string]*File),
		blobs: make(map[string][]byte),
	}
}

func (m *MemoryStore) Put(ctx context.Context, f *File, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Content-addressed IDs make duplicate uploads harmless.
	if _, ok := m.files[f.ID]; ok {
		return nil
	}
	cp := *f
	m.files[f.ID] = &cp
	m.blobs[f.ID] = append([]byte(nil), content...)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*File, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	cp := *f
	return &cp, m.blobs[id], nil
}
