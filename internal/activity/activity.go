// Package activity keeps the durable audit trail of dispute lifecycle
// events. Records are written by an outbox sink, so every transition
// that reaches the outbox eventually lands here exactly once.
package activity

import (
	"context"
	"errors"
	"time"

	"github.com/atelierhq/atelier/internal/outbox"
)

var ErrNotFound = errors.New("activity record not found")

// Record is one audit trail entry for a dispute.
type Record struct {
	ID        string                 `json:"id"` // outbox event ID, which makes writes idempotent
	DisputeID string                 `json:"disputeId"`
	EventType string                 `json:"eventType"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Store persists activity records.
type Store interface {
	Append(ctx context.Context, r *Record) error
	ListByDispute(ctx context.Context, disputeID string, limit int) ([]*Record, error)
}

// Recorder is the outbox sink that writes dispute events into the log.
type Recorder struct {
	store Store
}

var _ outbox.Sink = (*Recorder)(nil)

// NewRecorder creates the activity outbox sink.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Name() string { return "activity" }

func (r *Recorder) Deliver(ctx context.Context, e *outbox.Event) error {
	// Strikes are tracked by the reputation sink, not the dispute trail.
	if e.Type == outbox.EventReputationStrike {
		return nil
	}
	return r.store.Append(ctx, &Record{
		ID:        e.ID,
		DisputeID: e.DisputeID,
		EventType: e.Type,
		Detail:    e.Payload,
		CreatedAt: e.CreatedAt,
	})
}

// Service answers activity queries.
type Service struct {
	store Store
}

// NewService creates the activity query service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListByDispute returns a dispute's audit trail, oldest first.
func (s *Service) ListByDispute(ctx context.Context, disputeID string, limit int) ([]*Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	return s.store.ListByDispute(ctx, disputeID, limit)
}
