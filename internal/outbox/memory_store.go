package outbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory outbox store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*Event
}

// NewMemoryStore creates a new in-memory outbox store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*Event)}
}

func (m *MemoryStore) Append(ctx context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[e.ID] = copyEvent(e)
	return nil
}

func (m *MemoryStore) ListPending(ctx context.Context, limit int) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []*Event
	for _, e := range m.events {
		if e.DeliveredAt == nil {
			pending = append(pending, copyEvent(e))
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (m *MemoryStore) MarkSinkDelivered(ctx context.Context, id, sink string, complete bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return ErrEventNotFound
	}
	if !e.Delivered(sink) {
		e.DeliveredSinks = append(e.DeliveredSinks, sink)
	}
	if complete {
		t := at
		e.DeliveredAt = &t
		e.LastError = ""
	}
	return nil
}

func (m *MemoryStore) MarkAttempt(ctx context.Context, id string, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return ErrEventNotFound
	}
	e.Attempts++
	e.LastError = lastErr
	return nil
}

func copyEvent(e *Event) *Event {
	cp := *e
	cp.DeliveredSinks = append([]string(nil), e.DeliveredSinks...)
	if e.Payload != nil {
		cp.Payload = make(map[string]interface{}, len(e.Payload))
		for k, v := range e.Payload {
			cp.Payload[k] = v
		}
	}
	if e.DeliveredAt != nil {
		t := *e.DeliveredAt
		cp.DeliveredAt = &t
	}
	return &cp
}
