package activity

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory activity store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates a new in-memory activity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Append(ctx context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Redelivery of the same outbox event is a no-op.
	if _, ok := m.records[r.ID]; ok {
		return nil
	}
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByDispute(ctx context.Context, disputeID string, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, r := range m.records {
		if r.DisputeID == disputeID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
