package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "settings").Logger(),
	}
}

// Get reads the singleton, creating it with defaults on first access. The
// create races harmlessly with concurrent first reads: the row has a fixed
// primary key, so the loser of the race just re-reads.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	current, err := s.repo.Get(ctx)
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Settings{}, err
	}

	if err := s.repo.Create(ctx, Defaults()); err != nil {
		s.logger.Debug().Err(err).Msg("settings create raced, re-reading")
	}
	return s.repo.Get(ctx)
}

// UpdateParams is a partial update; nil fields are left untouched.
// ClearCertificateDate removes the release gate entirely and wins over
// CertificateDownloadDate if both are set.
type UpdateParams struct {
	IsRegistrationOpen      *bool
	MaxCapacity             *int
	CertificateDownloadDate *time.Time
	ClearCertificateDate    bool
}

func (s *Service) Update(ctx context.Context, params UpdateParams) (Settings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return Settings{}, err
	}

	if params.IsRegistrationOpen != nil {
		current.IsRegistrationOpen = *params.IsRegistrationOpen
	}
	if params.MaxCapacity != nil {
		if *params.MaxCapacity < 0 {
			return Settings{}, fmt.Errorf("max capacity must not be negative")
		}
		current.MaxCapacity = *params.MaxCapacity
	}
	if params.ClearCertificateDate {
		current.CertificateDownloadDate = nil
	} else if params.CertificateDownloadDate != nil {
		value := params.CertificateDownloadDate.UTC()
		current.CertificateDownloadDate = &value
	}

	if err := s.repo.Update(ctx, current); err != nil {
		return Settings{}, err
	}

	s.logger.Info().
		Bool("registration_open", current.IsRegistrationOpen).
		Int("max_capacity", current.MaxCapacity).
		Msg("settings updated")
	return current, nil
}
