package dispute

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory dispute store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	disputes map[string]*Dispute // keyed by dispute ID
	openByTx map[string]string   // transaction ref -> open dispute ID
}

// NewMemoryStore creates a new in-memory dispute store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		disputes: make(map[string]*Dispute),
		openByTx: make(map[string]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.openByTx[d.Ref.Ref()]; ok {
		return ErrOpenDisputeExists
	}
	m.disputes[d.ID] = copyDispute(d)
	m.openByTx[d.Ref.Ref()] = d.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.disputes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDispute(d), nil
}

func (m *MemoryStore) Update(ctx context.Context, d *Dispute, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.disputes[d.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Version != expectedVersion {
		return ErrVersionConflict
	}

	d.Version = expectedVersion + 1
	m.disputes[d.ID] = copyDispute(d)
	if d.Status == StatusClosed {
		delete(m.openByTx, d.Ref.Ref())
	}
	return nil
}

func (m *MemoryStore) FindOpenByTransaction(ctx context.Context, transactionRef string) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.openByTx[transactionRef]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDispute(m.disputes[id]), nil
}

func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*Dispute, 0)
	for _, d := range m.disputes {
		if !matches(d, filter) {
			continue
		}
		matched = append(matched, copyDispute(d))
	}

	// Newest first; ID breaks creation-time ties so cursors are stable.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if filter.CursorCreatedAt != nil {
		cut := 0
		for cut < len(matched) && !before(matched[cut], *filter.CursorCreatedAt, filter.CursorID) {
			cut++
		}
		matched = matched[cut:]
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(matched) > limit+1 {
		matched = matched[:limit+1]
	}
	return matched, nil
}

func (m *MemoryStore) ListOverdue(ctx context.Context, before time.Time, limit int) ([]*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	overdue := make([]*Dispute, 0)
	for _, d := range m.disputes {
		if d.Stage == StageNegotiation && before.After(d.NegotiationDeadline) {
			overdue = append(overdue, copyDispute(d))
			if limit > 0 && len(overdue) >= limit {
				break
			}
		}
	}
	return overdue, nil
}

func (m *MemoryStore) OpenTransactionRefs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := make([]string, 0, len(m.openByTx))
	for ref := range m.openByTx {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs, nil
}

func matches(d *Dispute, f ListFilter) bool {
	if f.FiledBy != "" && d.FiledBy != f.FiledBy {
		return false
	}
	if f.Party != "" && !d.IsParty(f.Party) {
		return false
	}
	if f.Stage != "" && d.Stage != f.Stage {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	return true
}

func before(d *Dispute, cursorCreatedAt time.Time, cursorID string) bool {
	if !d.CreatedAt.Equal(cursorCreatedAt) {
		return d.CreatedAt.Before(cursorCreatedAt)
	}
	return d.ID < cursorID
}

func copyDispute(d *Dispute) *Dispute {
	cp := *d
	cp.EvidenceImages = append([]string(nil), d.EvidenceImages...)
	if d.Offer != nil {
		offer := *d.Offer
		cp.Offer = &offer
	}
	if d.Resolution != nil {
		res := *d.Resolution
		cp.Resolution = &res
	}
	return &cp
}
