package registrants

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("registrant not found")

var ErrEmailTaken = errors.New("email already registered")

// Status is the registrant's admission state. It is mutated only by the
// payment workflow, in lockstep with the payment's own status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusDeclined Status = "declined"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusDeclined:
		return true
	default:
		return false
	}
}

// Certificate is the completion artifact attached to a registrant by an admin
// upload. The payload lives in the blob store; only the reference and metadata
// are embedded here.
type Certificate struct {
	Filename    string
	BlobKey     string
	MimeType    string
	Size        int64
	ReleaseDate *time.Time
	UploadedAt  time.Time
}

type Registrant struct {
	ID          string
	FirstName   string
	LastName    string
	Phone       string
	Email       string
	Status      Status
	Certificate *Certificate
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateParams struct {
	ID        string
	FirstName string
	LastName  string
	Phone     string
	Email     string
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Registrant, error)
	GetByID(ctx context.Context, id string) (*Registrant, error)
	List(ctx context.Context) ([]Registrant, error)
	Count(ctx context.Context) (int, error)

	// FindByPhone returns all registrants whose stored phone exactly matches
	// the normalized number, in the store's natural order. The matcher applies
	// its name tiers on top of this candidate set.
	FindByPhone(ctx context.Context, phone string) ([]Registrant, error)

	UpdateStatus(ctx context.Context, id string, status Status) error
	SetCertificate(ctx context.Context, id string, cert Certificate) error
	Delete(ctx context.Context, id string) error
}
