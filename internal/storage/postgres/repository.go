package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campbase/server/internal/auth"
	"github.com/campbase/server/internal/domain/payments"
	"github.com/campbase/server/internal/domain/registrants"
	"github.com/campbase/server/internal/domain/settings"
)

// Repository groups the per-domain repositories over one shared pool.
type Repository struct {
	pool *pgxpool.Pool

	registrants *RegistrantRepository
	payments    *PaymentRepository
	settings    *SettingsRepository
	users       *UserRepository
}

func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Repository{
		pool:        pool,
		registrants: &RegistrantRepository{pool: pool},
		payments:    &PaymentRepository{pool: pool},
		settings:    &SettingsRepository{pool: pool},
		users:       &UserRepository{pool: pool},
	}, nil
}

func (r *Repository) Registrants() registrants.Repository { return r.registrants }

func (r *Repository) Payments() payments.Repository { return r.payments }

func (r *Repository) Settings() settings.Repository { return r.settings }

func (r *Repository) Users() auth.UserRepository { return r.users }
