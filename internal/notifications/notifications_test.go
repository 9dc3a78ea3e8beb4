package notifications

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/atelierhq/atelier/internal/outbox"
)

type fakeHub struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeHub) Broadcast(eventType string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func TestNotifierFansOutToRecipients(t *testing.T) {
	store := NewMemoryStore()
	hub := &fakeHub{}
	sink := NewNotifier(store, hub)
	ctx := context.Background()

	event := &outbox.Event{
		ID:        "evt_1",
		Type:      outbox.EventDisputeResolved,
		DisputeID: "dsp_1",
		Payload: map[string]interface{}{
			"notify":  []interface{}{"user_a", "user_b"},
			"message": "Your dispute has been resolved.",
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := sink.Deliver(ctx, event); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	svc := NewService(store)
	for _, user := range []string{"user_a", "user_b"} {
		items, err := svc.ListByUser(ctx, user, 0)
		if err != nil {
			t.Fatalf("list for %s: %v", user, err)
		}
		if len(items) != 1 {
			t.Errorf("expected 1 notification for %s, got %d", user, len(items))
			continue
		}
		if items[0].Message != "Your dispute has been resolved." {
			t.Errorf("unexpected message for %s: %q", user, items[0].Message)
		}
	}

	if len(hub.events) != 1 || hub.events[0] != outbox.EventDisputeResolved {
		t.Errorf("expected one realtime broadcast, got %v", hub.events)
	}
}

func TestNotifierRedeliveryDoesNotDuplicate(t *testing.T) {
	store := NewMemoryStore()
	sink := NewNotifier(store, nil)
	ctx := context.Background()

	event := &outbox.Event{
		ID:        "evt_1",
		Type:      outbox.EventOfferProposed,
		DisputeID: "dsp_1",
		Payload: map[string]interface{}{
			"notify":  []string{"user_a"},
			"message": "A partial refund was offered.",
		},
		CreatedAt: time.Now().UTC(),
	}

	_ = sink.Deliver(ctx, event)
	_ = sink.Deliver(ctx, event)

	items, err := NewService(store).ListByUser(ctx, "user_a", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 notification after redelivery, got %d", len(items))
	}
}

func TestNotifierSkipsEventsWithoutRecipients(t *testing.T) {
	store := NewMemoryStore()
	sink := NewNotifier(store, nil)

	event := &outbox.Event{
		ID:        "evt_1",
		Type:      outbox.EventDisputeEscalated,
		DisputeID: "dsp_1",
		Payload:   map[string]interface{}{},
		CreatedAt: time.Now().UTC(),
	}
	if err := sink.Deliver(context.Background(), event); err != nil {
		t.Fatalf("deliver: %v", err)
	}
}

func TestMarkReadRequiresOwnership(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)
	ctx := context.Background()

	_ = store.Upsert(ctx, &Notification{
		ID: "ntf_1", EventID: "evt_1", UserID: "user_a",
		DisputeID: "dsp_1", EventType: outbox.EventDisputeFiled,
		CreatedAt: time.Now().UTC(),
	})

	if err := svc.MarkRead(ctx, "user_b", "ntf_1"); err == nil {
		t.Errorf("expected error marking another user's notification")
	}
	if err := svc.MarkRead(ctx, "user_a", "ntf_1"); err != nil {
		t.Errorf("mark read: %v", err)
	}

	items, _ := svc.ListByUser(ctx, "user_a", 0)
	if len(items) != 1 || !items[0].Read {
		t.Errorf("notification not marked read")
	}
}
