package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campbase/server/internal/domain/registrants"
)

type RegistrantRepository struct {
	pool *pgxpool.Pool
}

const registrantColumns = `
id, first_name, last_name, phone, email, status,
cert_filename, cert_blob_key, cert_mime_type, cert_size, cert_release_date, cert_uploaded_at,
created_at, updated_at`

func (r *RegistrantRepository) Create(ctx context.Context, params registrants.CreateParams) (*registrants.Registrant, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO registrants (id, first_name, last_name, phone, email, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+registrantColumns,
		params.ID, params.FirstName, params.LastName, params.Phone, params.Email,
		string(registrants.StatusPending),
	)

	registrant, err := scanRegistrant(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, registrants.ErrEmailTaken
		}
		return nil, fmt.Errorf("create registrant: %w", err)
	}
	return registrant, nil
}

func (r *RegistrantRepository) GetByID(ctx context.Context, id string) (*registrants.Registrant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+registrantColumns+` FROM registrants WHERE id = $1`, id)
	registrant, err := scanRegistrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, registrants.ErrNotFound
		}
		return nil, fmt.Errorf("get registrant: %w", err)
	}
	return registrant, nil
}

func (r *RegistrantRepository) List(ctx context.Context) ([]registrants.Registrant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+registrantColumns+` FROM registrants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list registrants: %w", err)
	}
	defer rows.Close()

	var out []registrants.Registrant
	for rows.Next() {
		registrant, err := scanRegistrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registrant: %w", err)
		}
		out = append(out, *registrant)
	}
	return out, rows.Err()
}

func (r *RegistrantRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM registrants`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count registrants: %w", err)
	}
	return count, nil
}

func (r *RegistrantRepository) FindByPhone(ctx context.Context, phone string) ([]registrants.Registrant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+registrantColumns+` FROM registrants WHERE phone = $1 ORDER BY created_at`, phone)
	if err != nil {
		return nil, fmt.Errorf("find registrants by phone: %w", err)
	}
	defer rows.Close()

	var out []registrants.Registrant
	for rows.Next() {
		registrant, err := scanRegistrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registrant: %w", err)
		}
		out = append(out, *registrant)
	}
	return out, rows.Err()
}

func (r *RegistrantRepository) UpdateStatus(ctx context.Context, id string, status registrants.Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE registrants SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update registrant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registrants.ErrNotFound
	}
	return nil
}

func (r *RegistrantRepository) SetCertificate(ctx context.Context, id string, cert registrants.Certificate) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE registrants
   SET cert_filename = $2,
       cert_blob_key = $3,
       cert_mime_type = $4,
       cert_size = $5,
       cert_release_date = $6,
       cert_uploaded_at = $7,
       updated_at = now()
 WHERE id = $1`,
		id, cert.Filename, cert.BlobKey, cert.MimeType, cert.Size, cert.ReleaseDate, cert.UploadedAt)
	if err != nil {
		return fmt.Errorf("set registrant certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registrants.ErrNotFound
	}
	return nil
}

func (r *RegistrantRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM registrants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registrant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registrants.ErrNotFound
	}
	return nil
}

func scanRegistrant(row pgx.Row) (*registrants.Registrant, error) {
	var data struct {
		ID              string
		FirstName       string
		LastName        string
		Phone           string
		Email           string
		Status          string
		CertFilename    *string
		CertBlobKey     *string
		CertMimeType    *string
		CertSize        *int64
		CertReleaseDate *time.Time
		CertUploadedAt  *time.Time
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}
	if err := row.Scan(
		&data.ID,
		&data.FirstName,
		&data.LastName,
		&data.Phone,
		&data.Email,
		&data.Status,
		&data.CertFilename,
		&data.CertBlobKey,
		&data.CertMimeType,
		&data.CertSize,
		&data.CertReleaseDate,
		&data.CertUploadedAt,
		&data.CreatedAt,
		&data.UpdatedAt,
	); err != nil {
		return nil, err
	}

	registrant := &registrants.Registrant{
		ID:        data.ID,
		FirstName: data.FirstName,
		LastName:  data.LastName,
		Phone:     data.Phone,
		Email:     data.Email,
		Status:    registrants.Status(data.Status),
		CreatedAt: data.CreatedAt,
		UpdatedAt: data.UpdatedAt,
	}
	if data.CertBlobKey != nil {
		cert := &registrants.Certificate{
			BlobKey:     *data.CertBlobKey,
			ReleaseDate: data.CertReleaseDate,
		}
		if data.CertFilename != nil {
			cert.Filename = *data.CertFilename
		}
		if data.CertMimeType != nil {
			cert.MimeType = *data.CertMimeType
		}
		if data.CertSize != nil {
			cert.Size = *data.CertSize
		}
		if data.CertUploadedAt != nil {
			cert.UploadedAt = *data.CertUploadedAt
		}
		registrant.Certificate = cert
	}
	return registrant, nil
}
