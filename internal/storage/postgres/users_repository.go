package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/campbase/server/internal/auth"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, username, password_hash, role, created_at
  FROM users
 WHERE username = $1`, username)

	var data struct {
		ID           string
		Username     string
		PasswordHash string
		Role         string
		CreatedAt    time.Time
	}
	if err := row.Scan(&data.ID, &data.Username, &data.PasswordHash, &data.Role, &data.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &auth.User{
		ID:           data.ID,
		Username:     data.Username,
		PasswordHash: data.PasswordHash,
		Role:         data.Role,
		CreatedAt:    data.CreatedAt,
	}, nil
}

func (r *UserRepository) Create(ctx context.Context, user auth.User) error {
	if user.ID == "" {
		user.ID = ulid.Make().String()
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO users (id, username, password_hash, role)
VALUES ($1, $2, $3, $4)`,
		user.ID, user.Username, user.PasswordHash, user.Role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return auth.ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
