package dispute

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists disputes in PostgreSQL.
//
// A partial unique index on (transaction_ref) WHERE status = 'open'
// enforces the one-open-dispute rule at the storage layer; version
// checks in UPDATE statements enforce optimistic concurrency.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed dispute store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const disputeColumns = `id, order_id, customization_request_id, transaction_ref,
	category, description, evidence_images, evidence_video,
	filed_by, against, stage, status, negotiation_deadline,
	offer, resolution, version, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	offerJSON, resJSON, err := marshalDocs(d)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO disputes (`+disputeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		d.ID, nullStr(d.Ref.OrderID), nullStr(d.Ref.CustomizationRequestID), d.Ref.Ref(),
		d.Category, d.Description, pq.Array(d.EvidenceImages), nullStr(d.EvidenceVideo),
		d.FiledBy, d.Against, d.Stage, d.Status, d.NegotiationDeadline,
		offerJSON, resJSON, d.Version, d.CreatedAt, d.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrOpenDisputeExists
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	d, err := scanDispute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (p *PostgresStore) Update(ctx context.Context, d *Dispute, expectedVersion int) error {
	offerJSON, resJSON, err := marshalDocs(d)
	if err != nil {
		return err
	}

	res, err := p.db.ExecContext(ctx, `
		UPDATE disputes
		SET stage = $3, status = $4, offer = $5, resolution = $6,
		    version = version + 1, updated_at = $7
		WHERE id = $1 AND version = $2`,
		d.ID, expectedVersion, d.Stage, d.Status, offerJSON, resJSON, d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Disambiguate a missing row from a stale version.
		if _, err := p.Get(ctx, d.ID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	d.Version = expectedVersion + 1
	return nil
}

func (p *PostgresStore) FindOpenByTransaction(ctx context.Context, transactionRef string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE transaction_ref = $1 AND status = 'open'`, transactionRef)
	d, err := scanDispute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (p *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE 1=1`
	args := []interface{}{}
	n := 0

	add := func(clause string, value interface{}) {
		n++
		query += fmt.Sprintf(" AND "+clause, n)
		args = append(args, value)
	}

	if filter.FiledBy != "" {
		add("filed_by = $%d", filter.FiledBy)
	}
	if filter.Party != "" {
		n++
		query += fmt.Sprintf(" AND (filed_by = $%d OR against = $%d)", n, n)
		args = append(args, filter.Party)
	}
	if filter.Stage != "" {
		add("stage = $%d", string(filter.Stage))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.CursorCreatedAt != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", n+1, n+2)
		args = append(args, *filter.CursorCreatedAt, filter.CursorID)
		n += 2
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", n+1)
	args = append(args, limit+1)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDisputes(rows)
}

func (p *PostgresStore) ListOverdue(ctx context.Context, before time.Time, limit int) ([]*Dispute, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE stage = 'negotiation' AND negotiation_deadline < $1
		ORDER BY negotiation_deadline ASC LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDisputes(rows)
}

func (p *PostgresStore) OpenTransactionRefs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT transaction_ref FROM disputes WHERE status = 'open' ORDER BY transaction_ref`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDispute(s scanner) (*Dispute, error) {
	d := &Dispute{}
	var orderID, custID, video sql.NullString
	var txRef string
	var offerJSON, resJSON []byte

	err := s.Scan(
		&d.ID, &orderID, &custID, &txRef,
		&d.Category, &d.Description, pq.Array(&d.EvidenceImages), &video,
		&d.FiledBy, &d.Against, &d.Stage, &d.Status, &d.NegotiationDeadline,
		&offerJSON, &resJSON, &d.Version, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Ref = TransactionRef{OrderID: orderID.String, CustomizationRequestID: custID.String}
	d.EvidenceVideo = video.String
	if len(offerJSON) > 0 {
		d.Offer = &Offer{}
		if err := json.Unmarshal(offerJSON, d.Offer); err != nil {
			return nil, err
		}
	}
	if len(resJSON) > 0 {
		d.Resolution = &Resolution{}
		if err := json.Unmarshal(resJSON, d.Resolution); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func scanDisputes(rows *sql.Rows) ([]*Dispute, error) {
	var out []*Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func marshalDocs(d *Dispute) (offerJSON, resJSON interface{}, err error) {
	offerJSON, resJSON = nil, nil
	if d.Offer != nil {
		b, err := json.Marshal(d.Offer)
		if err != nil {
			return nil, nil, err
		}
		offerJSON = b
	}
	if d.Resolution != nil {
		b, err := json.Marshal(d.Resolution)
		if err != nil {
			return nil, nil, err
		}
		resJSON = b
	}
	return offerJSON, resJSON, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
