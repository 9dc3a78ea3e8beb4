package activity

import (
	"context"
	"database/sql"
	"encoding/json"
)

// PostgresStore persists activity records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed activity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Append(ctx context.Context, r *Record) error {
	detail, err := json.Marshal(r.Detail)
	if err != nil {
		return err
	}
	// ON CONFLICT makes outbox redelivery a no-op.
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, dispute_id, event_type, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.DisputeID, r.EventType, detail, r.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListByDispute(ctx context.Context, disputeID string, limit int) ([]*Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, dispute_id, event_type, detail, created_at
		FROM activity_log
		WHERE dispute_id = $1
		ORDER BY created_at, id
		LIMIT $2`, disputeID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		r := &Record{}
		var detail []byte
		if err := rows.Scan(&r.ID, &r.DisputeID, &r.EventType, &detail, &r.CreatedAt); err != nil {
			return nil, err
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &r.Detail); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
