package notifications

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory notification store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	byKey map[string]*Notification // EventID + "|" + UserID
	byID  map[string]*Notification
}

// NewMemoryStore creates a new in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey: make(map[string]*Notification),
		byID:  make(map[string]*Notification),
	}
}

func dedupeKey(eventID, userID string) string {
	return eventID + "|" + userID
}

func (m *MemoryStore) Upsert(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := dedupeKey(n.EventID, n.UserID)
	if _, ok := m.byKey[key]; ok {
		return nil
	}
	cp := *n
	m.byKey[key] = &cp
	m.byID[n.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Notification
	for _, n := range m.byID {
		if n.UserID == userID {
			cp := *n
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

func (m *MemoryStore) MarkRead(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.byID[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	n.Read = true
	return nil
}
