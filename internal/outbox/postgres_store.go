package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists outbox events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed outbox store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Append(ctx context.Context, e *Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO outbox_events (id, event_type, dispute_id, payload, created_at, attempts, delivered_sinks, delivered_at, last_error)
		VALUES ($1, $2, $3, $4, $5, 0, '{}', NULL, '')`,
		e.ID, e.Type, e.DisputeID, payload, e.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListPending(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, event_type, dispute_id, payload, created_at, attempts, delivered_sinks, delivered_at, last_error
		FROM outbox_events
		WHERE delivered_at IS NULL
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var payload []byte
		var deliveredAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.Type, &e.DisputeID, &payload, &e.CreatedAt,
			&e.Attempts, pq.Array(&e.DeliveredSinks), &deliveredAt, &e.LastError); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, err
			}
		}
		if deliveredAt.Valid {
			e.DeliveredAt = &deliveredAt.Time
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (p *PostgresStore) MarkSinkDelivered(ctx context.Context, id, sink string, complete bool, at time.Time) error {
	var deliveredAt interface{}
	if complete {
		deliveredAt = at
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET delivered_sinks = CASE WHEN $2 = ANY(delivered_sinks) THEN delivered_sinks
		                           ELSE array_append(delivered_sinks, $2) END,
		    delivered_at = COALESCE($3, delivered_at),
		    last_error = CASE WHEN $3 IS NOT NULL THEN '' ELSE last_error END
		WHERE id = $1`, id, sink, deliveredAt)
	if err != nil {
		return err
	}
	return checkFound(res)
}

func (p *PostgresStore) MarkAttempt(ctx context.Context, id string, lastErr string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE outbox_events SET attempts = attempts + 1, last_error = $2
		WHERE id = $1`, id, lastErr)
	if err != nil {
		return err
	}
	return checkFound(res)
}

func checkFound(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrEventNotFound
	}
	return nil
}
