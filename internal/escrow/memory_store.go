package escrow

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory escrow store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account // keyed by transaction ref
	releases map[string]*Release // keyed by release key
}

// NewMemoryStore creates a new in-memory escrow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		releases: make(map[string]*Release),
	}
}

func (m *MemoryStore) CreateAccount(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.accounts[a.TransactionRef]; ok {
		// Concurrent first deposits fold into one account.
		existing.BalanceCents += a.BalanceCents
		existing.UpdatedAt = a.UpdatedAt
		return nil
	}
	cp := *a
	m.accounts[a.TransactionRef] = &cp
	return nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, transactionRef string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[transactionRef]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) Deposit(ctx context.Context, transactionRef string, amountCents int64) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[transactionRef]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if a.Released {
		return nil, ErrAlreadyReleased
	}
	a.BalanceCents += amountCents
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) Release(ctx context.Context, transactionRef, key string, allocations []Allocation) (*Release, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotency replay: a known key returns the recorded release.
	if prior, ok := m.releases[key]; ok {
		cp := copyRelease(prior)
		return cp, false, nil
	}

	a, ok := m.accounts[transactionRef]
	if !ok {
		return nil, false, ErrAccountNotFound
	}
	if a.Released {
		return nil, false, ErrAlreadyReleased
	}
	if err := validateAllocations(a.BalanceCents, allocations); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	a.BalanceCents = 0
	a.Released = true
	a.UpdatedAt = now

	rel := &Release{
		Key:            key,
		TransactionRef: transactionRef,
		Allocations:    append([]Allocation(nil), allocations...),
		ReleasedAt:     now,
	}
	m.releases[key] = rel
	return copyRelease(rel), true, nil
}

func (m *MemoryStore) GetRelease(ctx context.Context, key string) (*Release, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rel, ok := m.releases[key]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyRelease(rel), nil
}

func (m *MemoryStore) SumBalances(ctx context.Context, transactionRefs []string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum int64
	for _, ref := range transactionRefs {
		if a, ok := m.accounts[ref]; ok {
			sum += a.BalanceCents
		}
	}
	return sum, nil
}

func copyRelease(r *Release) *Release {
	cp := *r
	cp.Allocations = append([]Allocation(nil), r.Allocations...)
	return &cp
}
