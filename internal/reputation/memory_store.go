package reputation

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory strike store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	strikes map[string]*Strike
}

// NewMemoryStore creates a new in-memory strike store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{strikes: make(map[string]*Strike)}
}

func (m *MemoryStore) Append(ctx context.Context, s *Strike) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.strikes[s.ID]; ok {
		return nil
	}
	cp := *s
	m.strikes[s.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Strike, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Strike
	for _, s := range m.strikes {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountByUser(ctx context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range m.strikes {
		if s.UserID == userID {
			count++
		}
	}
	return count, nil
}
