// Package notifications delivers per-user notifications for dispute
// lifecycle events. It is fed by an outbox sink and also pushes each
// event to the realtime hub for connected clients.
package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/atelierhq/atelier/internal/idgen"
	"github.com/atelierhq/atelier/internal/outbox"
)

var ErrNotFound = errors.New("notification not found")

// Notification is one user-facing message.
type Notification struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	DisputeID string    `json:"disputeId"`
	EventType string    `json:"eventType"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists notifications. Upsert must be idempotent on
// (EventID, UserID) so outbox redelivery never duplicates a message.
type Store interface {
	Upsert(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

// Broadcaster pushes events to connected realtime clients.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Notifier is the outbox sink that fans events out to users.
//
// It reads the recipients and message from the event payload:
// "notify" is the list of user IDs, "message" the rendered text.
// Events without a notify list are skipped.
type Notifier struct {
	store Store
	hub   Broadcaster
}

var _ outbox.Sink = (*Notifier)(nil)

// NewNotifier creates the notification outbox sink. hub may be nil.
func NewNotifier(store Store, hub Broadcaster) *Notifier {
	return &Notifier{store: store, hub: hub}
}

func (n *Notifier) Name() string { return "notifier" }

func (n *Notifier) Deliver(ctx context.Context, e *outbox.Event) error {
	recipients := stringSlice(e.Payload["notify"])
	message, _ := e.Payload["message"].(string)

	for _, userID := range recipients {
		if err := n.store.Upsert(ctx, &Notification{
			ID:        idgen.WithPrefix("ntf_"),
			EventID:   e.ID,
			UserID:    userID,
			DisputeID: e.DisputeID,
			EventType: e.Type,
			Message:   message,
			CreatedAt: e.CreatedAt,
		}); err != nil {
			return err
		}
	}

	if n.hub != nil {
		n.hub.Broadcast(e.Type, map[string]interface{}{
			"disputeId": e.DisputeID,
			"payload":   e.Payload,
		})
	}
	return nil
}

// stringSlice tolerates both []string and the []interface{} that
// JSON round-tripping produces.
func stringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Service answers notification queries.
type Service struct {
	store Store
}

// NewService creates the notification query service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListByUser returns a user's notifications, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// MarkRead marks one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.store.MarkRead(ctx, userID, id)
}
