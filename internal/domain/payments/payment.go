package payments

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("payment not found")

	// ErrAlreadySubmitted is the duplicate-submission conflict: at most one
	// payment may exist per registrant. The repository must also return it
	// when the unique constraint on registrant_id fires, so the guarantee
	// holds even when two submissions race past the pre-insert check.
	ErrAlreadySubmitted = errors.New("payment already submitted for registrant")
)

// Status is the admin decision state of a submitted proof.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Payment links a registrant to their submitted proof of payment. Name and
// phone are denormalized at submission time; the proof image lives in the blob
// store.
type Payment struct {
	ID           string
	RegistrantID string
	Name         string
	Phone        string
	ProofBlobKey string
	ProofMime    string
	ProofSize    int64
	Status       Status
	Note         string
	UploadedAt   time.Time
}

type CreateParams struct {
	ID           string
	RegistrantID string
	Name         string
	Phone        string
	ProofBlobKey string
	ProofMime    string
	ProofSize    int64
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Payment, error)
	GetByID(ctx context.Context, id string) (*Payment, error)
	GetByRegistrantID(ctx context.Context, registrantID string) (*Payment, error)
	List(ctx context.Context) ([]Payment, error)
	UpdateStatus(ctx context.Context, id string, status Status, note string) error
	Delete(ctx context.Context, id string) error
	DeleteByRegistrant(ctx context.Context, registrantID string) error
}
