package settings

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is only visible between the repository and the service; callers
// of the service never see it because the singleton is lazily created.
var ErrNotFound = errors.New("settings not found")

// Settings is the process-wide singleton consulted by the certificate gate and
// the registration capacity check. Exactly one row exists at all times.
type Settings struct {
	IsRegistrationOpen      bool
	MaxCapacity             int
	CertificateDownloadDate *time.Time
	UpdatedAt               time.Time
}

// Defaults returns the row lazily inserted on first read.
func Defaults() Settings {
	return Settings{
		IsRegistrationOpen: true,
		MaxCapacity:        0, // unlimited
	}
}

type Repository interface {
	Get(ctx context.Context) (Settings, error)
	Create(ctx context.Context, s Settings) error
	Update(ctx context.Context, s Settings) error
}
