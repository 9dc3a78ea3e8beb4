package reputation

import (
	"context"
	"testing"
	"time"

	"github.com/atelierhq/atelier/internal/outbox"
)

func TestRecorderPersistsStrikeEvents(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)
	ctx := context.Background()

	event := &outbox.Event{
		ID:        "evt_1",
		Type:      outbox.EventReputationStrike,
		DisputeID: "dsp_1",
		Payload: map[string]interface{}{
			"userId": "user_shop",
			"reason": "counterfeit item",
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := rec.Deliver(ctx, event); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	// Redelivery is a no-op.
	if err := rec.Deliver(ctx, event); err != nil {
		t.Fatalf("redeliver: %v", err)
	}

	svc := NewService(store)
	count, err := svc.CountByUser(ctx, "user_shop")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 strike, got %d", count)
	}

	strikes, _ := svc.ListByUser(ctx, "user_shop", 0)
	if len(strikes) != 1 || strikes[0].Reason != "counterfeit item" {
		t.Errorf("unexpected strikes: %+v", strikes)
	}
}

func TestRecorderIgnoresOtherEvents(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)
	ctx := context.Background()

	event := &outbox.Event{
		ID:        "evt_2",
		Type:      outbox.EventDisputeResolved,
		DisputeID: "dsp_1",
		Payload:   map[string]interface{}{"userId": "user_shop"},
		CreatedAt: time.Now().UTC(),
	}
	if err := rec.Deliver(ctx, event); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	count, _ := NewService(store).CountByUser(ctx, "user_shop")
	if count != 0 {
		t.Errorf("non-strike event recorded a strike")
	}
}
