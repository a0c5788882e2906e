package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campbase/server/internal/domain/settings"
)

// SettingsRepository persists the singleton settings row. The table's CHECK
// (id = 1) constraint keeps it a singleton at the store level.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

func (r *SettingsRepository) Get(ctx context.Context) (settings.Settings, error) {
	row := r.pool.QueryRow(ctx, `
SELECT is_registration_open, max_capacity, certificate_download_date, updated_at
  FROM settings
 WHERE id = 1`)

	var data struct {
		IsRegistrationOpen      bool
		MaxCapacity             int
		CertificateDownloadDate *time.Time
		UpdatedAt               time.Time
	}
	if err := row.Scan(
		&data.IsRegistrationOpen,
		&data.MaxCapacity,
		&data.CertificateDownloadDate,
		&data.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return settings.Settings{}, settings.ErrNotFound
		}
		return settings.Settings{}, fmt.Errorf("get settings: %w", err)
	}

	return settings.Settings{
		IsRegistrationOpen:      data.IsRegistrationOpen,
		MaxCapacity:             data.MaxCapacity,
		CertificateDownloadDate: data.CertificateDownloadDate,
		UpdatedAt:               data.UpdatedAt,
	}, nil
}

func (r *SettingsRepository) Create(ctx context.Context, current settings.Settings) error {
	// ON CONFLICT DO NOTHING keeps concurrent lazy initialization idempotent.
	_, err := r.pool.Exec(ctx, `
INSERT INTO settings (id, is_registration_open, max_capacity, certificate_download_date)
VALUES (1, $1, $2, $3)
ON CONFLICT (id) DO NOTHING`,
		current.IsRegistrationOpen, current.MaxCapacity, current.CertificateDownloadDate)
	if err != nil {
		return fmt.Errorf("create settings: %w", err)
	}
	return nil
}

func (r *SettingsRepository) Update(ctx context.Context, current settings.Settings) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE settings
   SET is_registration_open = $1,
       max_capacity = $2,
       certificate_download_date = $3,
       updated_at = now()
 WHERE id = 1`,
		current.IsRegistrationOpen, current.MaxCapacity, current.CertificateDownloadDate)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return settings.ErrNotFound
	}
	return nil
}
