package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campbase/server/internal/domain/payments"
)

type PaymentRepository struct {
	pool *pgxpool.Pool
}

const paymentColumns = `
id, registrant_id, name, phone, proof_blob_key, proof_mime, proof_size,
status, note, uploaded_at`

func (r *PaymentRepository) Create(ctx context.Context, params payments.CreateParams) (*payments.Payment, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO payments (id, registrant_id, name, phone, proof_blob_key, proof_mime, proof_size, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+paymentColumns,
		params.ID, params.RegistrantID, params.Name, params.Phone,
		params.ProofBlobKey, params.ProofMime, params.ProofSize,
		string(payments.StatusPending),
	)

	payment, err := scanPayment(row)
	if err != nil {
		// The unique index on registrant_id is what actually closes the
		// concurrent double-submit window; the workflow's pre-check only
		// covers the common case.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, payments.ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return payment, nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payments.Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	payment, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payments.ErrNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return payment, nil
}

func (r *PaymentRepository) GetByRegistrantID(ctx context.Context, registrantID string) (*payments.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE registrant_id = $1`, registrantID)
	payment, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payments.ErrNotFound
		}
		return nil, fmt.Errorf("get payment by registrant: %w", err)
	}
	return payment, nil
}

func (r *PaymentRepository) List(ctx context.Context) ([]payments.Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []payments.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, *payment)
	}
	return out, rows.Err()
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status payments.Status, note string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payments SET status = $2, note = $3 WHERE id = $1`, id, string(status), note)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return payments.ErrNotFound
	}
	return nil
}

func (r *PaymentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return payments.ErrNotFound
	}
	return nil
}

func (r *PaymentRepository) DeleteByRegistrant(ctx context.Context, registrantID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM payments WHERE registrant_id = $1`, registrantID); err != nil {
		return fmt.Errorf("delete payments by registrant: %w", err)
	}
	return nil
}

func scanPayment(row pgx.Row) (*payments.Payment, error) {
	var data struct {
		ID           string
		RegistrantID string
		Name         string
		Phone        string
		ProofBlobKey string
		ProofMime    string
		ProofSize    int64
		Status       string
		Note         string
		UploadedAt   time.Time
	}
	if err := row.Scan(
		&data.ID,
		&data.RegistrantID,
		&data.Name,
		&data.Phone,
		&data.ProofBlobKey,
		&data.ProofMime,
		&data.ProofSize,
		&data.Status,
		&data.Note,
		&data.UploadedAt,
	); err != nil {
		return nil, err
	}
	return &payments.Payment{
		ID:           data.ID,
		RegistrantID: data.RegistrantID,
		Name:         data.Name,
		Phone:        data.Phone,
		ProofBlobKey: data.ProofBlobKey,
		ProofMime:    data.ProofMime,
		ProofSize:    data.ProofSize,
		Status:       payments.Status(data.Status),
		Note:         data.Note,
		UploadedAt:   data.UploadedAt,
	}, nil
}
