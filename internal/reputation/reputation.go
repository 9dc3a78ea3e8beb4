// Package reputation records strikes issued against marketplace parties.
//
// A strike is the reputational consequence of losing a dispute when the
// admin decides the behavior warrants one. Strikes arrive through the
// outbox, so a resolution that fails mid-flight still produces its
// strike once the outbox drains.
package reputation

import (
	"context"
	"errors"
	"time"

	"github.com/atelierhq/atelier/internal/outbox"
)

var ErrNotFound = errors.New("strike not found")

// Strike is one recorded strike against a user.
type Strike struct {
	ID        string    `json:"id"` // outbox event ID, which makes writes idempotent
	UserID    string    `json:"userId"`
	DisputeID string    `json:"disputeId"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists strikes.
type Store interface {
	Append(ctx context.Context, s *Strike) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Strike, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

// Recorder is the outbox sink that persists strike events.
type Recorder struct {
	store Store
}

var _ outbox.Sink = (*Recorder)(nil)

// NewRecorder creates the reputation outbox sink.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Name() string { return "reputation" }

func (r *Recorder) Deliver(ctx context.Context, e *outbox.Event) error {
	if e.Type != outbox.EventReputationStrike {
		return nil
	}
	userID, _ := e.Payload["userId"].(string)
	reason, _ := e.Payload["reason"].(string)
	if userID == "" {
		return nil
	}
	return r.store.Append(ctx, &Strike{
		ID:        e.ID,
		UserID:    userID,
		DisputeID: e.DisputeID,
		Reason:    reason,
		CreatedAt: e.CreatedAt,
	})
}

// Service answers strike queries.
type Service struct {
	store Store
}

// NewService creates the reputation query service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListByUser returns a user's strikes, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Strike, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// CountByUser returns how many strikes a user has.
func (s *Service) CountByUser(ctx context.Context, userID string) (int, error) {
	return s.store.CountByUser(ctx, userID)
}
