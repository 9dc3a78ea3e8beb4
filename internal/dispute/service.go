package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atelierhq/atelier/internal/escrow"
	"github.com/atelierhq/atelier/internal/idgen"
	"github.com/atelierhq/atelier/internal/logging"
	"github.com/atelierhq/atelier/internal/metrics"
	"github.com/atelierhq/atelier/internal/pagination"
)

// Ledger is the slice of the escrow service the engine needs.
type Ledger interface {
	Balance(ctx context.Context, transactionRef string) (int64, error)
	Release(ctx context.Context, transactionRef, key string, allocations []escrow.Allocation) (*escrow.Release, error)
	PriorRelease(ctx context.Context, key string) (*escrow.Release, bool, error)
}

// EventEmitter appends lifecycle events to the durable outbox.
type EventEmitter interface {
	Emit(ctx context.Context, eventType, disputeID string, payload map[string]interface{}) error
}

// Service implements the dispute engine.
type Service struct {
	store  Store
	gate   *Gate
	ledger Ledger
	events EventEmitter
	now    func() time.Time
}

// NewService creates a dispute service.
func NewService(store Store, gate *Gate, ledger Ledger, events EventEmitter) *Service {
	return &Service{
		store:  store,
		gate:   gate,
		ledger: ledger,
		events: events,
		now:    time.Now,
	}
}

// WithClock overrides the service clock. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.gate.WithClock(now)
	return s
}

// File opens a new dispute on a transaction.
//
// Only the transaction's customer may file. The eligibility gate checks
// the transaction status, the 5-day filing window, and the
// one-open-dispute rule; validation checks everything else.
func (s *Service) File(ctx context.Context, filedBy string, req FileRequest) (*Dispute, error) {
	ref, err := req.validate()
	if err != nil {
		return nil, err
	}

	elig, err := s.gate.Check(ctx, ref)
	if err != nil {
		return nil, err
	}

	if filedBy != elig.Transaction.CustomerID {
		return nil, ErrNotParty
	}

	now := s.now().UTC()
	d := &Dispute{
		ID:                  idgen.WithPrefix("dsp_"),
		Ref:                 ref,
		Category:            req.Category,
		Description:         req.Description,
		EvidenceImages:      req.EvidenceImages,
		EvidenceVideo:       req.video(),
		FiledBy:             filedBy,
		Against:             elig.Transaction.CounterpartyID,
		Stage:               StageNegotiation,
		Status:              StatusOpen,
		NegotiationDeadline: now.Add(NegotiationWindow),
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}

	metrics.DisputesFiledTotal.WithLabelValues(string(d.Category)).Inc()
	s.emit(ctx, eventFiled(d))

	return d, nil
}

// Get returns a dispute, first committing the lazy deadline advance.
func (s *Service) Get(ctx context.Context, id string) (*Dispute, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ensureCurrent(ctx, d)
}

// List returns disputes matching the filter with a next-page cursor.
// Overdue disputes in the page are advanced before being returned.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Dispute, string, bool, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}

	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, "", false, err
	}

	for i, d := range items {
		current, err := s.ensureCurrent(ctx, d)
		if err != nil {
			return nil, "", false, err
		}
		items[i] = current
	}

	items, next, hasMore := pagination.ComputePage(items, filter.Limit, func(d *Dispute) (time.Time, string) {
		return d.CreatedAt, d.ID
	})
	return items, next, hasMore, nil
}

// Withdraw closes a dispute at the filer's request. Funds stay in
// escrow; the normal fulfillment flow settles them later.
func (s *Service) Withdraw(ctx context.Context, id, callerID string) (*Dispute, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !d.IsParty(callerID) {
		return nil, ErrNotParty
	}
	if callerID != d.FiledBy {
		return nil, ErrNotFiler
	}
	if d.IsTerminal() {
		return nil, ErrAlreadyResolved
	}

	expected := d.Version
	d.resolve(Resolution{
		Outcome:    OutcomeWithdrawn,
		Reason:     "withdrawn by the filing party",
		ResolvedAt: s.now().UTC(),
	})
	if err := s.store.Update(ctx, d, expected); err != nil {
		return nil, err
	}

	metrics.DisputesResolvedTotal.WithLabelValues(string(OutcomeWithdrawn)).Inc()
	s.emit(ctx, eventWithdrawn(d))

	return d, nil
}

// Stats summarizes open disputes for the admin dashboard and refreshes
// the at-risk escrow gauge.
func (s *Service) Stats(ctx context.Context) (map[string]interface{}, error) {
	refs, err := s.store.OpenTransactionRefs(ctx)
	if err != nil {
		return nil, err
	}

	var atRisk int64
	for _, ref := range refs {
		balance, err := s.ledger.Balance(ctx, ref)
		if err != nil {
			if errors.Is(err, escrow.ErrAccountNotFound) {
				continue
			}
			return nil, err
		}
		atRisk += balance
	}
	metrics.EscrowAtRisk.Set(float64(atRisk))

	return map[string]interface{}{
		"openDisputes":       len(refs),
		"escrowAtRiskCents":  atRisk,
		"openTransactionIds": refs,
	}, nil
}

// ensureCurrent commits the lazy deadline advance: a negotiation-stage
// dispute past its deadline moves to admin review before anything else
// happens. Losing the version race means someone else advanced it, so
// the fresh copy is returned.
func (s *Service) ensureCurrent(ctx context.Context, d *Dispute) (*Dispute, error) {
	now := s.now().UTC()
	if !d.Overdue(now) {
		return d, nil
	}

	expected := d.Version
	d.escalate(now)
	err := s.store.Update(ctx, d, expected)
	if errors.Is(err, ErrVersionConflict) {
		return s.store.Get(ctx, d.ID)
	}
	if err != nil {
		return nil, err
	}

	metrics.DisputesEscalatedTotal.WithLabelValues("lazy").Inc()
	s.emit(ctx, eventEscalated(d))

	return d, nil
}

// emit appends an outbox event, logging rather than failing the caller:
// the state change has already been persisted, and the outbox is the
// durable side; an append failure here is an operational error.
func (s *Service) emit(ctx context.Context, ev event) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, ev.eventType, ev.disputeID, ev.payload); err != nil {
		logging.L(ctx).Error("outbox emit failed",
			"event", ev.eventType, "dispute", ev.disputeID, "error", err)
	}
}

// refundAllocations splits a balance between the filer and the
// counterparty. A zero remainder collapses to a single allocation.
func refundAllocations(d *Dispute, balance, toFiler int64) ([]escrow.Allocation, error) {
	if toFiler <= 0 {
		return nil, escrow.ErrInvalidAmount
	}
	if toFiler > balance {
		return nil, escrow.ErrInsufficientBalance
	}
	allocs := []escrow.Allocation{{Party: d.FiledBy, AmountCents: toFiler}}
	if rest := balance - toFiler; rest > 0 {
		allocs = append(allocs, escrow.Allocation{Party: d.Against, AmountCents: rest})
	}
	return allocs, nil
}

// release wraps the ledger call with error translation.
func (s *Service) release(ctx context.Context, d *Dispute, allocs []escrow.Allocation) error {
	_, err := s.ledger.Release(ctx, d.Ref.Ref(), d.ID, allocs)
	return translateLedgerErr(err)
}

// alreadyReleased reports whether this dispute's funds already left
// escrow under its release key. True means an earlier attempt paid out
// but failed to persist the resolution; the retry must skip the ledger
// phase, since the drained account would fail amount validation before
// the store's key replay is reached.
func (s *Service) alreadyReleased(ctx context.Context, d *Dispute) (bool, error) {
	_, found, err := s.ledger.PriorRelease(ctx, d.ID)
	if err != nil {
		return false, translateLedgerErr(err)
	}
	return found, nil
}

// translateLedgerErr turns infrastructure failures into the retryable
// ErrLedgerUnavailable while letting validation errors through untouched.
func translateLedgerErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, escrow.ErrAccountNotFound),
		errors.Is(err, escrow.ErrInsufficientBalance),
		errors.Is(err, escrow.ErrAllocationMismatch),
		errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrAlreadyReleased):
		return err
	}
	return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
}
