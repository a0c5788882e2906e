package registrants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/campbase/server/internal/domain/settings"
	"github.com/campbase/server/internal/sanitize"
)

var (
	ErrRegistrationClosed = errors.New("registration is closed")
	ErrCapacityReached    = errors.New("registration capacity reached")
	ErrInvalidInput       = errors.New("invalid registrant input")
)

// SettingsReader exposes the settings singleton to the registration path.
type SettingsReader interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// PaymentRemover deletes any payment linked to a registrant. Registrant
// deletion cascades through it so no payment is left pointing at a missing
// registrant.
type PaymentRemover interface {
	DeleteByRegistrant(ctx context.Context, registrantID string) error
}

type Service struct {
	repo     Repository
	settings SettingsReader
	payments PaymentRemover
	logger   zerolog.Logger
}

func NewService(repo Repository, settingsReader SettingsReader, payments PaymentRemover, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		settings: settingsReader,
		payments: payments,
		logger:   logger.With().Str("component", "registrants").Logger(),
	}
}

type RegisterParams struct {
	FirstName string
	LastName  string
	Phone     string
	Email     string
}

// Register creates a registrant in state pending, subject to the open/capacity
// settings. Names are stripped of markup and the phone is normalized before
// storage so the matcher sees canonical values.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*Registrant, error) {
	params.FirstName = strings.TrimSpace(sanitize.Text(params.FirstName))
	params.LastName = strings.TrimSpace(sanitize.Text(params.LastName))
	params.Phone = NormalizePhone(params.Phone)
	params.Email = strings.TrimSpace(strings.ToLower(params.Email))

	if params.FirstName == "" || params.LastName == "" || params.Phone == "" || params.Email == "" {
		return nil, ErrInvalidInput
	}

	current, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if !current.IsRegistrationOpen {
		return nil, ErrRegistrationClosed
	}
	if current.MaxCapacity > 0 {
		count, err := s.repo.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count registrants: %w", err)
		}
		if count >= current.MaxCapacity {
			return nil, ErrCapacityReached
		}
	}

	created, err := s.repo.Create(ctx, CreateParams{
		ID:        ulid.Make().String(),
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Phone:     params.Phone,
		Email:     params.Email,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("registrant_id", created.ID).Msg("registrant created")
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Registrant, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Registrant, error) {
	return s.repo.List(ctx)
}

// Delete removes a registrant and cascades to any linked payment. The payment
// goes first so a partial failure cannot leave a payment referencing a missing
// registrant.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}

	if err := s.payments.DeleteByRegistrant(ctx, id); err != nil {
		return fmt.Errorf("cascade payment delete: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Str("registrant_id", id).Msg("registrant deleted")
	return nil
}

// AttachCertificate stores certificate metadata on the registrant. The payload
// must already be in the blob store; cert.BlobKey references it. The release
// date is stamped from the settings singleton at upload time.
func (s *Service) AttachCertificate(ctx context.Context, id string, cert Certificate) error {
	if cert.BlobKey == "" || cert.Filename == "" {
		return ErrInvalidInput
	}

	current, err := s.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	cert.Filename = sanitize.Text(cert.Filename)
	cert.UploadedAt = time.Now().UTC()
	cert.ReleaseDate = current.CertificateDownloadDate

	if err := s.repo.SetCertificate(ctx, id, cert); err != nil {
		return err
	}

	s.logger.Info().
		Str("registrant_id", id).
		Str("blob_key", cert.BlobKey).
		Msg("certificate attached")
	return nil
}
