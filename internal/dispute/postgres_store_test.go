package dispute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atelierhq/atelier/internal/testutil"
)

func TestPostgresStoreLifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	d := storedDispute("order_pg_1")
	d.EvidenceImages = []string{"ev_a", "ev_b"}
	if err := store.Create(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Ref.OrderID != "order_pg_1" || got.Version != 1 {
		t.Errorf("unexpected dispute: %+v", got)
	}
	if len(got.EvidenceImages) != 2 {
		t.Errorf("expected 2 evidence images, got %d", len(got.EvidenceImages))
	}

	// The partial unique index rejects a second open dispute.
	dup := storedDispute("order_pg_1")
	dup.ID = "dsp_pg_dup"
	if err := store.Create(ctx, dup); !errors.Is(err, ErrOpenDisputeExists) {
		t.Errorf("expected ErrOpenDisputeExists, got %v", err)
	}

	// Offer survives a round trip.
	now := baseTime.Add(time.Hour)
	got.Offer = &Offer{ProposedBy: "user_shop", AmountCents: 3000, Status: OfferPending, ProposedAt: now}
	got.UpdatedAt = now
	if err := store.Update(ctx, got, 1); err != nil {
		t.Fatalf("update: %v", err)
	}

	again, err := store.Get(ctx, got.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if again.Version != 2 || again.Offer == nil || again.Offer.AmountCents != 3000 {
		t.Errorf("offer did not round trip: version=%d offer=%+v", again.Version, again.Offer)
	}

	// Stale writers lose.
	stale := *again
	stale.Stage = StageAdminReview
	if err := store.Update(ctx, &stale, 1); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}

	// Closing frees the transaction ref.
	again.Status = StatusClosed
	again.Stage = StageResolved
	again.Resolution = &Resolution{Outcome: OutcomeDismissed, Reason: "insufficient evidence", ResolvedAt: now}
	if err := store.Update(ctx, again, 2); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := store.FindOpenByTransaction(ctx, "order_pg_1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected no open dispute after close, got %v", err)
	}
	if err := store.Create(ctx, dup); err != nil {
		t.Errorf("expected a new dispute after close, got %v", err)
	}

	final, err := store.Get(ctx, again.ID)
	if err != nil {
		t.Fatalf("get final: %v", err)
	}
	if final.Resolution == nil || final.Resolution.Outcome != OutcomeDismissed {
		t.Errorf("resolution did not round trip: %+v", final.Resolution)
	}
}

func TestPostgresStoreListAndOverdue(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	for i, ref := range []string{"order_pg_a", "order_pg_b", "order_pg_c"} {
		d := storedDispute(ref)
		d.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		d.NegotiationDeadline = d.CreatedAt.Add(NegotiationWindow)
		if err := store.Create(ctx, d); err != nil {
			t.Fatalf("create %s: %v", ref, err)
		}
	}

	page, err := store.List(ctx, ListFilter{Party: "user_cust", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// limit+1 rows so the service can compute the cursor.
	if len(page) != 3 {
		t.Fatalf("expected 3 rows for limit 2, got %d", len(page))
	}
	if page[0].Ref.Ref() != "order_pg_c" {
		t.Errorf("expected newest first, got %s", page[0].Ref.Ref())
	}

	cursor := page[1]
	next, err := store.List(ctx, ListFilter{
		Party:           "user_cust",
		Limit:           2,
		CursorCreatedAt: &cursor.CreatedAt,
		CursorID:        cursor.ID,
	})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(next) != 1 || next[0].Ref.Ref() != "order_pg_a" {
		t.Fatalf("expected only order_pg_a after the cursor, got %d rows", len(next))
	}

	overdue, err := store.ListOverdue(ctx, baseTime.Add(NegotiationWindow+30*time.Second), 10)
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].Ref.Ref() != "order_pg_a" {
		t.Fatalf("expected only order_pg_a overdue, got %d", len(overdue))
	}

	refs, err := store.OpenTransactionRefs(ctx)
	if err != nil {
		t.Fatalf("open refs: %v", err)
	}
	if len(refs) != 3 {
		t.Errorf("expected 3 open refs, got %d", len(refs))
	}
}
