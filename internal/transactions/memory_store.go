package transactions

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory transaction store for development and tests.
type MemoryStore struct {
	mu  sync.RWMutex
	txs map[string]*Transaction
}

// NewMemoryStore creates a new in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{txs: make(map[string]*Transaction)}
}

func (m *MemoryStore) Upsert(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *tx
	if existing, ok := m.txs[tx.Ref]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	m.txs[tx.Ref] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, ref string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.txs[ref]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MemoryStore) SetStatus(ctx context.Context, ref, status string, at time.Time) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[ref]
	if !ok {
		return nil, ErrNotFound
	}
	if tx.Status != status {
		tx.Status = status
		tx.LastStatusChangeAt = at
	}
	tx.UpdatedAt = at
	cp := *tx
	return &cp, nil
}
