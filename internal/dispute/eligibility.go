package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atelierhq/atelier/internal/transactions"
)

// qualifyingStatuses are the transaction states during which a dispute
// may be filed. Before these the buyer hasn't received anything to
// dispute; after them the transaction is settled.
var qualifyingStatuses = map[transactions.Kind]map[string]bool{
	transactions.KindOrder: {
		transactions.OrderShipped:   true,
		transactions.OrderDelivered: true,
	},
	transactions.KindCustomization: {
		transactions.CustomizationInProgress:       true,
		transactions.CustomizationAwaitingApproval: true,
	},
}

// Eligibility is the gate's verdict.
type Eligibility struct {
	CanFile bool   `json:"canFile"`
	Reason  string `json:"reason,omitempty"`
	// Transaction carries the looked-up status so the caller doesn't
	// hit the registry twice.
	Transaction *transactions.StatusInfo `json:"-"`
}

// Gate decides whether a transaction can carry a new dispute.
// Checks are side-effect free.
type Gate struct {
	statuses transactions.StatusProvider
	store    Store
	now      func() time.Time
}

// NewGate creates an eligibility gate.
func NewGate(statuses transactions.StatusProvider, store Store) *Gate {
	return &Gate{statuses: statuses, store: store, now: time.Now}
}

// WithClock overrides the gate clock. Used in tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Check evaluates all filing preconditions for a transaction ref:
// the transaction exists, its status qualifies, the 5-day window since
// the last qualifying status change is still open (the boundary counts),
// and no other dispute is currently open on it.
func (g *Gate) Check(ctx context.Context, ref TransactionRef) (*Eligibility, error) {
	info, err := g.statuses.GetStatus(ctx, ref.Ref())
	if err != nil {
		if errors.Is(err, transactions.ErrNotFound) {
			return &Eligibility{Reason: "transaction not found"}, ErrNotEligible
		}
		return nil, err
	}

	wantKind := transactions.KindCustomization
	if ref.IsOrder() {
		wantKind = transactions.KindOrder
	}
	if info.Kind != wantKind {
		return &Eligibility{Reason: "reference does not match the transaction type", Transaction: info}, ErrNotEligible
	}

	if !qualifyingStatuses[info.Kind][info.Status] {
		return &Eligibility{
			Reason:      fmt.Sprintf("status %q does not allow disputes", info.Status),
			Transaction: info,
		}, ErrStatusNotQualifying
	}

	if g.now().Sub(info.LastStatusChangeAt) > FilingWindow {
		return &Eligibility{
			Reason:      "the 5-day filing window has closed",
			Transaction: info,
		}, ErrFilingWindowClosed
	}

	if _, err := g.store.FindOpenByTransaction(ctx, ref.Ref()); err == nil {
		return &Eligibility{
			Reason:      "transaction already has an open dispute",
			Transaction: info,
		}, ErrOpenDisputeExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return &Eligibility{CanFile: true, Transaction: info}, nil
}
