package reputation

import (
	"context"
	"database/sql"
)

// PostgresStore persists strikes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed strike store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Append(ctx context.Context, s *Strike) error {
	// ON CONFLICT makes outbox redelivery a no-op.
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO strikes (id, user_id, dispute_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		s.ID, s.UserID, s.DisputeID, s.Reason, s.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Strike, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, dispute_id, reason, created_at
		FROM strikes
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Strike
	for rows.Next() {
		s := &Strike{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.DisputeID, &s.Reason, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM strikes WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}
