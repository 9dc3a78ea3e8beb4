package transactions

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore persists transaction records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Upsert(ctx context.Context, tx *Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transactions (ref, kind, customer_id, counterparty_id, status, last_status_change_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ref) DO UPDATE SET
			kind = EXCLUDED.kind,
			customer_id = EXCLUDED.customer_id,
			counterparty_id = EXCLUDED.counterparty_id,
			status = EXCLUDED.status,
			last_status_change_at = EXCLUDED.last_status_change_at,
			updated_at = EXCLUDED.updated_at`,
		tx.Ref, string(tx.Kind), tx.CustomerID, tx.CounterpartyID,
		tx.Status, tx.LastStatusChangeAt, tx.CreatedAt, tx.UpdatedAt,
	)
	return err
}

const txColumns = `ref, kind, customer_id, counterparty_id, status, last_status_change_at, created_at, updated_at`

func (p *PostgresStore) Get(ctx context.Context, ref string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE ref = $1`, ref)
	return scanTransaction(row)
}

func (p *PostgresStore) SetStatus(ctx context.Context, ref, status string, at time.Time) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE transactions SET
			status = $2,
			last_status_change_at = CASE WHEN status <> $2 THEN $3 ELSE last_status_change_at END,
			updated_at = $3
		WHERE ref = $1
		RETURNING `+txColumns, ref, status, at)
	return scanTransaction(row)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s scanner) (*Transaction, error) {
	tx := &Transaction{}
	var kind string
	err := s.Scan(&tx.Ref, &kind, &tx.CustomerID, &tx.CounterpartyID,
		&tx.Status, &tx.LastStatusChangeAt, &tx.CreatedAt, &tx.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tx.Kind = Kind(kind)
	return tx, nil
}
