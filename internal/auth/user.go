package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")

	// ErrInvalidCredentials covers both unknown usernames and wrong passwords
	// so login responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const RoleAdmin = "admin"

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, user User) error
}

// Service authenticates admin users and issues their session tokens.
type Service struct {
	users UserRepository
	jwt   *JWTManager
}

func NewService(users UserRepository, jwt *JWTManager) *Service {
	return &Service{users: users, jwt: jwt}
}

// Login verifies the password and returns a signed token. Both failure modes
// collapse into ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if !VerifyPassword(user.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}
	return s.jwt.Generate(user.Username, user.Role)
}

// Bootstrap creates the initial admin account if the username is free.
// Existing accounts are left untouched so a redeploy cannot reset a changed
// password.
func (s *Service) Bootstrap(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return errors.New("bootstrap requires username and password")
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	err = s.users.Create(ctx, User{
		Username:     username,
		PasswordHash: hash,
		Role:         RoleAdmin,
	})
	if errors.Is(err, ErrUserExists) {
		return nil
	}
	return err
}
