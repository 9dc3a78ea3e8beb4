// Package outbox durably records dispute lifecycle events and delivers
// them to downstream consumers.
//
// Transitions append events in the same logical step as the state
// change; a background worker drains pending events to registered sinks
// with retries. Delivery is tracked per sink so one slow consumer never
// blocks or duplicates another. Events are never silently dropped: a
// failing event stays pending with its error recorded.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/atelierhq/atelier/internal/idgen"
	"github.com/atelierhq/atelier/internal/metrics"
)

var ErrEventNotFound = errors.New("outbox event not found")

// Event types emitted by the dispute engine.
const (
	EventDisputeFiled     = "dispute.filed"
	EventOfferProposed    = "dispute.offer_proposed"
	EventOfferAccepted    = "dispute.offer_accepted"
	EventOfferRejected    = "dispute.offer_rejected"
	EventDisputeEscalated = "dispute.escalated"
	EventDisputeWithdrawn = "dispute.withdrawn"
	EventDisputeResolved  = "dispute.resolved"
	EventReputationStrike = "reputation.strike"
)

// Event is one durable outbox record.
type Event struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	DisputeID      string                 `json:"disputeId"`
	Payload        map[string]interface{} `json:"payload"`
	CreatedAt      time.Time              `json:"createdAt"`
	Attempts       int                    `json:"attempts"`
	DeliveredSinks []string               `json:"deliveredSinks"`
	DeliveredAt    *time.Time             `json:"deliveredAt,omitempty"`
	LastError      string                 `json:"lastError,omitempty"`
}

// Delivered reports whether the named sink already received this event.
func (e *Event) Delivered(sink string) bool {
	for _, s := range e.DeliveredSinks {
		if s == sink {
			return true
		}
	}
	return false
}

// Store persists outbox events.
type Store interface {
	Append(ctx context.Context, e *Event) error
	// ListPending returns events not yet delivered to every sink,
	// oldest first.
	ListPending(ctx context.Context, limit int) ([]*Event, error)
	// MarkSinkDelivered records a successful delivery to one sink and,
	// when complete is true, stamps the event fully delivered.
	MarkSinkDelivered(ctx context.Context, id, sink string, complete bool, at time.Time) error
	MarkAttempt(ctx context.Context, id string, lastErr string) error
}

// Sink consumes delivered events. Implementations must be idempotent
// per event ID; the worker may redeliver after a partial failure.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e *Event) error
}

// Emitter appends events to the outbox.
type Emitter struct {
	store Store
	now   func() time.Time
}

// NewEmitter creates an outbox emitter.
func NewEmitter(store Store) *Emitter {
	return &Emitter{store: store, now: time.Now}
}

// Emit durably records an event for later delivery.
func (e *Emitter) Emit(ctx context.Context, eventType, disputeID string, payload map[string]interface{}) error {
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		DisputeID: disputeID,
		Payload:   payload,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.Append(ctx, event); err != nil {
		return err
	}
	metrics.OutboxEventsTotal.WithLabelValues(eventType).Inc()
	return nil
}
