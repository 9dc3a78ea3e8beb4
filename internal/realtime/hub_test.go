package realtime

import (
	"log/slog"
	"testing"
	"time"
)

func TestShouldSendAllEvents(t *testing.T) {
	h := NewHub(testLogger())
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: "dispute.filed", Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Errorf("all-events subscription should receive every event")
	}
}

func TestShouldSendEventTypeFilter(t *testing.T) {
	h := NewHub(testLogger())
	client := &Client{sub: Subscription{EventTypes: []string{"dispute.resolved"}}}

	if h.shouldSend(client, &Event{Type: "dispute.filed"}) {
		t.Errorf("filtered-out event type was sent")
	}
	if !h.shouldSend(client, &Event{Type: "dispute.resolved"}) {
		t.Errorf("matching event type was not sent")
	}
}

func TestShouldSendDisputeFilter(t *testing.T) {
	h := NewHub(testLogger())
	client := &Client{sub: Subscription{DisputeIDs: []string{"dsp_1"}}}

	match := &Event{
		Type: "dispute.offer_proposed",
		Data: map[string]interface{}{"disputeId": "dsp_1"},
	}
	other := &Event{
		Type: "dispute.offer_proposed",
		Data: map[string]interface{}{"disputeId": "dsp_2"},
	}

	if !h.shouldSend(client, match) {
		t.Errorf("watched dispute event was not sent")
	}
	if h.shouldSend(client, other) {
		t.Errorf("unwatched dispute event was sent")
	}
}

func testLogger() *slog.Logger { return slog.Default() }
