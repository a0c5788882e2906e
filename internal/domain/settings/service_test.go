package settings

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	stored  *Settings
	getErr  error
	creates int
}

func (f *fakeRepo) Get(ctx context.Context) (Settings, error) {
	if f.getErr != nil {
		return Settings{}, f.getErr
	}
	if f.stored == nil {
		return Settings{}, ErrNotFound
	}
	return *f.stored, nil
}

func (f *fakeRepo) Create(ctx context.Context, s Settings) error {
	f.creates++
	if f.stored == nil {
		copied := s
		f.stored = &copied
	}
	return nil
}

func (f *fakeRepo) Update(ctx context.Context, s Settings) error {
	copied := s
	f.stored = &copied
	return nil
}

func newTestService(repo *fakeRepo) *Service {
	return NewService(repo, zerolog.Nop())
}

func TestGetLazilyCreatesSingleton(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo)

	got, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, repo.creates)
	require.True(t, got.IsRegistrationOpen)
	require.Nil(t, got.CertificateDownloadDate)

	// Second read must not create again.
	_, err = svc.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, repo.creates)
}

func TestUpdatePartial(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo)

	open := false
	updated, err := svc.Update(context.Background(), UpdateParams{IsRegistrationOpen: &open})
	require.NoError(t, err)
	require.False(t, updated.IsRegistrationOpen)
	require.Equal(t, 0, updated.MaxCapacity)

	capacity := 150
	updated, err = svc.Update(context.Background(), UpdateParams{MaxCapacity: &capacity})
	require.NoError(t, err)
	require.Equal(t, 150, updated.MaxCapacity)
	require.False(t, updated.IsRegistrationOpen, "untouched field must survive")
}

func TestUpdateRejectsNegativeCapacity(t *testing.T) {
	svc := newTestService(&fakeRepo{})

	negative := -1
	_, err := svc.Update(context.Background(), UpdateParams{MaxCapacity: &negative})
	require.Error(t, err)
}

func TestUpdateCertificateDate(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo)

	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	updated, err := svc.Update(context.Background(), UpdateParams{CertificateDownloadDate: &date})
	require.NoError(t, err)
	require.NotNil(t, updated.CertificateDownloadDate)
	require.Equal(t, date, *updated.CertificateDownloadDate)

	updated, err = svc.Update(context.Background(), UpdateParams{ClearCertificateDate: true})
	require.NoError(t, err)
	require.Nil(t, updated.CertificateDownloadDate)
}
