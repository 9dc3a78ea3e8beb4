package escrow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists escrow data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed escrow store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateAccount(ctx context.Context, a *Account) error {
	// Concurrent first deposits fold into one account.
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO escrow_accounts (transaction_ref, balance_cents, released, created_at, updated_at)
		VALUES ($1, $2, FALSE, $3, $4)
		ON CONFLICT (transaction_ref)
		DO UPDATE SET balance_cents = escrow_accounts.balance_cents + EXCLUDED.balance_cents,
		              updated_at = EXCLUDED.updated_at`,
		a.TransactionRef, a.BalanceCents, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetAccount(ctx context.Context, transactionRef string) (*Account, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT transaction_ref, balance_cents, released, created_at, updated_at
		FROM escrow_accounts WHERE transaction_ref = $1`, transactionRef)

	a := &Account{}
	err := row.Scan(&a.TransactionRef, &a.BalanceCents, &a.Released, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	return a, err
}

func (p *PostgresStore) Deposit(ctx context.Context, transactionRef string, amountCents int64) (*Account, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE escrow_accounts
		SET balance_cents = balance_cents + $2, updated_at = NOW()
		WHERE transaction_ref = $1 AND released = FALSE
		RETURNING transaction_ref, balance_cents, released, created_at, updated_at`,
		transactionRef, amountCents)

	a := &Account{}
	err := row.Scan(&a.TransactionRef, &a.BalanceCents, &a.Released, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Either no account or already released; disambiguate.
		existing, gerr := p.GetAccount(ctx, transactionRef)
		if gerr != nil {
			return nil, gerr
		}
		if existing.Released {
			return nil, ErrAlreadyReleased
		}
		return nil, ErrAccountNotFound
	}
	return a, err
}

func (p *PostgresStore) Release(ctx context.Context, transactionRef, key string, allocations []Allocation) (*Release, bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	// Idempotency replay first, under the same transaction.
	if prior, err := p.getReleaseTx(ctx, tx, key); err == nil {
		return prior, false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	var balance int64
	var released bool
	err = tx.QueryRowContext(ctx, `
		SELECT balance_cents, released FROM escrow_accounts
		WHERE transaction_ref = $1 FOR UPDATE`, transactionRef).Scan(&balance, &released)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrAccountNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if released {
		return nil, false, ErrAlreadyReleased
	}
	if err := validateAllocations(balance, allocations); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE escrow_accounts SET balance_cents = 0, released = TRUE, updated_at = $2
		WHERE transaction_ref = $1`, transactionRef, now); err != nil {
		return nil, false, err
	}

	allocJSON, err := json.Marshal(allocations)
	if err != nil {
		return nil, false, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO escrow_releases (release_key, transaction_ref, allocations, released_at)
		VALUES ($1, $2, $3, $4)`, key, transactionRef, allocJSON, now); err != nil {
		// A concurrent release with the same key beat us to the insert.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, false, fmt.Errorf("concurrent release with key %s: %w", key, err)
		}
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	return &Release{
		Key:            key,
		TransactionRef: transactionRef,
		Allocations:    append([]Allocation(nil), allocations...),
		ReleasedAt:     now,
	}, true, nil
}

func (p *PostgresStore) GetRelease(ctx context.Context, key string) (*Release, error) {
	rel, err := p.getRelease(ctx, p.db, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	return rel, err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (p *PostgresStore) getRelease(ctx context.Context, q querier, key string) (*Release, error) {
	row := q.QueryRowContext(ctx, `
		SELECT release_key, transaction_ref, allocations, released_at
		FROM escrow_releases WHERE release_key = $1`, key)

	rel := &Release{}
	var allocJSON []byte
	if err := row.Scan(&rel.Key, &rel.TransactionRef, &allocJSON, &rel.ReleasedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(allocJSON, &rel.Allocations); err != nil {
		return nil, err
	}
	return rel, nil
}

func (p *PostgresStore) getReleaseTx(ctx context.Context, tx *sql.Tx, key string) (*Release, error) {
	return p.getRelease(ctx, tx, key)
}

func (p *PostgresStore) SumBalances(ctx context.Context, transactionRefs []string) (int64, error) {
	var sum sql.NullInt64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(balance_cents), 0) FROM escrow_accounts
		WHERE transaction_ref = ANY($1)`, pq.Array(transactionRefs)).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return sum.Int64, nil
}
