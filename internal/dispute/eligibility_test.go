package dispute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atelierhq/atelier/internal/transactions"
)

func TestGateQualifyingStatuses(t *testing.T) {
	cases := []struct {
		kind    transactions.Kind
		status  string
		wantErr error
	}{
		{transactions.KindOrder, transactions.OrderPending, ErrStatusNotQualifying},
		{transactions.KindOrder, transactions.OrderPaid, ErrStatusNotQualifying},
		{transactions.KindOrder, transactions.OrderShipped, nil},
		{transactions.KindOrder, transactions.OrderDelivered, nil},
		{transactions.KindOrder, transactions.OrderCompleted, ErrStatusNotQualifying},
		{transactions.KindOrder, transactions.OrderCancelled, ErrStatusNotQualifying},
		{transactions.KindCustomization, transactions.CustomizationRequested, ErrStatusNotQualifying},
		{transactions.KindCustomization, transactions.CustomizationInProgress, nil},
		{transactions.KindCustomization, transactions.CustomizationAwaitingApproval, nil},
		{transactions.KindCustomization, transactions.CustomizationApproved, ErrStatusNotQualifying},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind)+"/"+tc.status, func(t *testing.T) {
			e := newEngine()
			e.txs["tx_1"] = &transactions.StatusInfo{
				Ref:                "tx_1",
				Kind:               tc.kind,
				CustomerID:         "user_cust",
				CounterpartyID:     "user_maker",
				Status:             tc.status,
				LastStatusChangeAt: e.clock.Now(),
			}

			ref := TransactionRef{CustomizationRequestID: "tx_1"}
			if tc.kind == transactions.KindOrder {
				ref = TransactionRef{OrderID: "tx_1"}
			}

			elig, err := e.svc.gate.Check(context.Background(), ref)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.wantErr == nil && !elig.CanFile {
				t.Errorf("expected CanFile")
			}
		})
	}
}

func TestGateFilingWindowBoundary(t *testing.T) {
	e := newEngine()
	e.seedOrder("order_1", 1000)

	// Exactly 120 hours after the status change still counts.
	e.clock.Advance(120 * time.Hour)
	elig, err := e.svc.gate.Check(context.Background(), TransactionRef{OrderID: "order_1"})
	if err != nil {
		t.Fatalf("expected the window boundary to be inclusive, got %v", err)
	}
	if !elig.CanFile {
		t.Errorf("expected CanFile at the boundary")
	}

	e.clock.Advance(time.Second)
	_, err = e.svc.gate.Check(context.Background(), TransactionRef{OrderID: "order_1"})
	if !errors.Is(err, ErrFilingWindowClosed) {
		t.Errorf("expected ErrFilingWindowClosed past the boundary, got %v", err)
	}
}

func TestGateWindowResetsOnStatusChange(t *testing.T) {
	e := newEngine()
	e.seedOrder("order_1", 1000)

	e.clock.Advance(121 * time.Hour)
	_, err := e.svc.gate.Check(context.Background(), TransactionRef{OrderID: "order_1"})
	if !errors.Is(err, ErrFilingWindowClosed) {
		t.Fatalf("expected closed window, got %v", err)
	}

	// A shipped -> delivered transition reopens the window.
	e.txs["order_1"].Status = transactions.OrderDelivered
	e.txs["order_1"].LastStatusChangeAt = e.clock.Now()

	elig, err := e.svc.gate.Check(context.Background(), TransactionRef{OrderID: "order_1"})
	if err != nil {
		t.Fatalf("expected reopened window, got %v", err)
	}
	if !elig.CanFile {
		t.Errorf("expected CanFile after status change")
	}
}

func TestGateKindMismatch(t *testing.T) {
	e := newEngine()
	e.seedOrder("order_1", 1000)

	_, err := e.svc.gate.Check(context.Background(), TransactionRef{CustomizationRequestID: "order_1"})
	if !errors.Is(err, ErrNotEligible) {
		t.Errorf("expected ErrNotEligible for kind mismatch, got %v", err)
	}
}

func TestGateUnknownTransaction(t *testing.T) {
	e := newEngine()

	_, err := e.svc.gate.Check(context.Background(), TransactionRef{OrderID: "order_missing"})
	if !errors.Is(err, ErrNotEligible) {
		t.Errorf("expected ErrNotEligible for unknown transaction, got %v", err)
	}
}

func TestGateOneOpenDispute(t *testing.T) {
	e := newEngine()
	e.seedOrder("order_1", 1000)
	e.file(t, "order_1")

	_, err := e.svc.gate.Check(context.Background(), TransactionRef{OrderID: "order_1"})
	if !errors.Is(err, ErrOpenDisputeExists) {
		t.Errorf("expected ErrOpenDisputeExists, got %v", err)
	}
}
