package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/campbase/server/internal/domain/payments"
	"github.com/campbase/server/internal/domain/registrants"
	"github.com/campbase/server/internal/domain/settings"
	"github.com/campbase/server/internal/storage/blob"
)

// In-memory fakes shared by the handler tests. They mirror the repository
// contracts, including the unique constraints the real store enforces.

type memRegistrantRepo struct {
	mu   sync.Mutex
	rows map[string]*registrants.Registrant
}

func newMemRegistrantRepo() *memRegistrantRepo {
	return &memRegistrantRepo{rows: make(map[string]*registrants.Registrant)}
}

func (m *memRegistrantRepo) Create(_ context.Context, params registrants.CreateParams) (*registrants.Registrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Email == params.Email {
			return nil, registrants.ErrEmailTaken
		}
	}
	row := &registrants.Registrant{
		ID:        params.ID,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Phone:     params.Phone,
		Email:     params.Email,
		Status:    registrants.StatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	m.rows[row.ID] = row
	copied := *row
	return &copied, nil
}

func (m *memRegistrantRepo) GetByID(_ context.Context, id string) (*registrants.Registrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, registrants.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (m *memRegistrantRepo) List(_ context.Context) ([]registrants.Registrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]registrants.Registrant, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, *row)
	}
	return out, nil
}

func (m *memRegistrantRepo) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *memRegistrantRepo) FindByPhone(_ context.Context, phone string) ([]registrants.Registrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []registrants.Registrant
	for _, row := range m.rows {
		if row.Phone == phone {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memRegistrantRepo) UpdateStatus(_ context.Context, id string, status registrants.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return registrants.ErrNotFound
	}
	row.Status = status
	return nil
}

func (m *memRegistrantRepo) SetCertificate(_ context.Context, id string, cert registrants.Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return registrants.ErrNotFound
	}
	row.Certificate = &cert
	return nil
}

func (m *memRegistrantRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return registrants.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type memPaymentRepo struct {
	mu   sync.Mutex
	rows map[string]*payments.Payment
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{rows: make(map[string]*payments.Payment)}
}

func (m *memPaymentRepo) Create(_ context.Context, params payments.CreateParams) (*payments.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.RegistrantID == params.RegistrantID {
			return nil, payments.ErrAlreadySubmitted
		}
	}
	row := &payments.Payment{
		ID:           params.ID,
		RegistrantID: params.RegistrantID,
		Name:         params.Name,
		Phone:        params.Phone,
		ProofBlobKey: params.ProofBlobKey,
		ProofMime:    params.ProofMime,
		ProofSize:    params.ProofSize,
		Status:       payments.StatusPending,
		UploadedAt:   time.Now().UTC(),
	}
	m.rows[row.ID] = row
	copied := *row
	return &copied, nil
}

func (m *memPaymentRepo) GetByID(_ context.Context, id string) (*payments.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, payments.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (m *memPaymentRepo) GetByRegistrantID(_ context.Context, registrantID string) (*payments.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.RegistrantID == registrantID {
			copied := *row
			return &copied, nil
		}
	}
	return nil, payments.ErrNotFound
}

func (m *memPaymentRepo) List(_ context.Context) ([]payments.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]payments.Payment, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, *row)
	}
	return out, nil
}

func (m *memPaymentRepo) UpdateStatus(_ context.Context, id string, status payments.Status, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return payments.ErrNotFound
	}
	row.Status = status
	row.Note = note
	return nil
}

func (m *memPaymentRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return payments.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memPaymentRepo) DeleteByRegistrant(_ context.Context, registrantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, row := range m.rows {
		if row.RegistrantID == registrantID {
			delete(m.rows, id)
		}
	}
	return nil
}

type memSettingsRepo struct {
	mu     sync.Mutex
	exists bool
	row    settings.Settings
}

func (m *memSettingsRepo) Get(_ context.Context) (settings.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return settings.Settings{}, settings.ErrNotFound
	}
	return m.row, nil
}

func (m *memSettingsRepo) Create(_ context.Context, s settings.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		m.row = s
		m.exists = true
	}
	return nil
}

func (m *memSettingsRepo) Update(_ context.Context, s settings.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return settings.ErrNotFound
	}
	m.row = s
	return nil
}

// memBlobStore satisfies payments.ProofStore, CertificateStore, and
// CertificateOpener.
type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (m *memBlobStore) Put(_ context.Context, r io.Reader) (blob.Ref, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return blob.Ref{}, err
	}
	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])
	m.mu.Lock()
	m.blobs[key] = data
	m.mu.Unlock()
	return blob.Ref{Key: key, Size: int64(len(data))}, nil
}

func (m *memBlobStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	data, ok := m.blobs[key]
	m.mu.Unlock()
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	return nil
}

// testEnv bundles the fakes with the concrete services the handlers take.
type testEnv struct {
	registrantRepo *memRegistrantRepo
	paymentRepo    *memPaymentRepo
	settingsRepo   *memSettingsRepo
	blobs          *memBlobStore

	matcher        *registrants.Matcher
	settingsSvc    *settings.Service
	registrantsSvc *registrants.Service
	workflow       *payments.Workflow
}

func newTestEnv() *testEnv {
	env := &testEnv{
		registrantRepo: newMemRegistrantRepo(),
		paymentRepo:    newMemPaymentRepo(),
		settingsRepo:   &memSettingsRepo{},
		blobs:          newMemBlobStore(),
	}
	logger := zerolog.Nop()
	env.matcher = registrants.NewMatcher(env.registrantRepo)
	env.settingsSvc = settings.NewService(env.settingsRepo, logger)
	env.registrantsSvc = registrants.NewService(env.registrantRepo, env.settingsSvc, env.paymentRepo, logger)
	env.workflow = payments.NewWorkflow(env.paymentRepo, env.registrantRepo, env.matcher, env.blobs, nil, logger)
	return env
}

// seedRegistrant inserts a registrant directly into the fake repo.
func (e *testEnv) seedRegistrant(first, last, phone, email string) *registrants.Registrant {
	row, err := e.registrantRepo.Create(context.Background(), registrants.CreateParams{
		ID:        ulid.Make().String(),
		FirstName: first,
		LastName:  last,
		Phone:     phone,
		Email:     email,
	})
	if err != nil {
		panic(err)
	}
	return row
}
