package dispute

import (
	"context"
	"errors"
	"testing"
	"time"
)

func storedDispute(ref string) *Dispute {
	now := baseTime
	return &Dispute{
		ID:                  "dsp_" + ref,
		Ref:                 TransactionRef{OrderID: ref},
		Category:            CategoryShippingDamaged,
		Description:         "The package arrived crushed and the contents are broken.",
		FiledBy:             "user_cust",
		Against:             "user_shop",
		Stage:               StageNegotiation,
		Status:              StatusOpen,
		NegotiationDeadline: now.Add(NegotiationWindow),
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func TestMemoryStoreVersionConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	d := storedDispute("order_1")
	if err := store.Create(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}

	a, _ := store.Get(ctx, d.ID)
	b, _ := store.Get(ctx, d.ID)

	a.Stage = StageAdminReview
	if err := store.Update(ctx, a, 1); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if a.Version != 2 {
		t.Errorf("expected version 2 after update, got %d", a.Version)
	}

	b.Stage = StageAdminReview
	if err := store.Update(ctx, b, 1); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict for stale writer, got %v", err)
	}
}

func TestMemoryStoreOneOpenPerTransaction(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	d := storedDispute("order_1")
	if err := store.Create(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := storedDispute("order_1")
	dup.ID = "dsp_other"
	if err := store.Create(ctx, dup); !errors.Is(err, ErrOpenDisputeExists) {
		t.Errorf("expected ErrOpenDisputeExists, got %v", err)
	}

	// Closing frees the transaction for a new dispute.
	d.Status = StatusClosed
	d.Stage = StageResolved
	if err := store.Update(ctx, d, 1); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := store.FindOpenByTransaction(ctx, "order_1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected no open dispute after close, got %v", err)
	}
	if err := store.Create(ctx, dup); err != nil {
		t.Errorf("expected new dispute after close, got %v", err)
	}
}

func TestMemoryStoreListOverdue(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	early := storedDispute("order_early")
	if err := store.Create(ctx, early); err != nil {
		t.Fatalf("create: %v", err)
	}
	late := storedDispute("order_late")
	late.ID = "dsp_late"
	late.NegotiationDeadline = baseTime.Add(NegotiationWindow + time.Hour)
	if err := store.Create(ctx, late); err != nil {
		t.Fatalf("create: %v", err)
	}

	overdue, err := store.ListOverdue(ctx, baseTime.Add(NegotiationWindow+time.Minute), 10)
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ID != early.ID {
		t.Fatalf("expected only the early dispute, got %d", len(overdue))
	}

	// The deadline instant itself is not overdue.
	overdue, err = store.ListOverdue(ctx, baseTime.Add(NegotiationWindow), 10)
	if err != nil {
		t.Fatalf("list overdue at boundary: %v", err)
	}
	if len(overdue) != 0 {
		t.Errorf("expected none at the deadline instant, got %d", len(overdue))
	}
}

func TestMemoryStoreCopiesOnRead(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	d := storedDispute("order_1")
	if err := store.Create(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := store.Get(ctx, d.ID)
	got.Stage = StageResolved
	got.Description = "mutated"

	again, _ := store.Get(ctx, d.ID)
	if again.Stage != StageNegotiation || again.Description == "mutated" {
		t.Errorf("store leaked internal state to callers")
	}
}
