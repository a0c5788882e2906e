package payments

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/campbase/server/internal/domain/registrants"
	"github.com/campbase/server/internal/sanitize"
	"github.com/campbase/server/internal/storage/blob"
)

// registrantStatusFor is the single source of the payment→registrant status
// pairing. No code path may set one side without the other.
var registrantStatusFor = map[Status]registrants.Status{
	StatusPending:  registrants.StatusPending,
	StatusApproved: registrants.StatusSuccess,
	StatusRejected: registrants.StatusDeclined,
}

// ProofStore persists proof images outside the record store. The store is
// content-addressed: identical slips from different registrants share one
// blob, so the workflow never deletes by key. Unreferenced blobs are
// reclaimed by the periodic sweep worker, which checks references first.
type ProofStore interface {
	Put(ctx context.Context, r io.Reader) (blob.Ref, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Notifier is told about admin decisions so registrants can be informed.
// Implementations must be fire-and-forget; the workflow logs and continues on
// failure.
type Notifier interface {
	PaymentDecided(ctx context.Context, registrantID string, status Status, note string) error
}

// Workflow is the admission state machine: it accepts proof submissions,
// enforces the one-payment-per-registrant invariant, and propagates admin
// decisions onto the registrant's status.
type Workflow struct {
	payments    Repository
	registrants registrants.Repository
	matcher     *registrants.Matcher
	proofs      ProofStore
	notifier    Notifier
	logger      zerolog.Logger
}

func NewWorkflow(
	paymentRepo Repository,
	registrantRepo registrants.Repository,
	matcher *registrants.Matcher,
	proofs ProofStore,
	notifier Notifier,
	logger zerolog.Logger,
) *Workflow {
	return &Workflow{
		payments:    paymentRepo,
		registrants: registrantRepo,
		matcher:     matcher,
		proofs:      proofs,
		notifier:    notifier,
		logger:      logger.With().Str("component", "payments").Logger(),
	}
}

// CheckResult reports what a public status check may learn: whether the
// name/phone pair is registered, and whether a proof was already submitted.
type CheckResult struct {
	Registered bool
	Submitted  bool
	Status     Status
}

// Check is read-only and side-effect-free. It is an enumeration oracle for
// the registrant list, which is why its route carries the tightest rate
// budget in the router.
func (w *Workflow) Check(ctx context.Context, name, phone string) (CheckResult, error) {
	registrant, err := w.matcher.Resolve(ctx, name, phone)
	if err != nil {
		if errors.Is(err, registrants.ErrNotFound) {
			return CheckResult{}, nil
		}
		return CheckResult{}, err
	}

	payment, err := w.payments.GetByRegistrantID(ctx, registrant.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CheckResult{Registered: true}, nil
		}
		return CheckResult{}, err
	}
	return CheckResult{Registered: true, Submitted: true, Status: payment.Status}, nil
}

type SubmitParams struct {
	Name      string
	Phone     string
	Proof     io.Reader
	ProofMime string
}

// Submit resolves the registrant and creates their pending payment. The
// payment echoes the registrant's canonical name rather than whatever the
// caller typed. The pre-insert duplicate check fails fast; the repository's
// unique constraint on registrant_id closes the remaining race window.
func (w *Workflow) Submit(ctx context.Context, params SubmitParams) (*Payment, error) {
	registrant, err := w.matcher.Resolve(ctx, params.Name, params.Phone)
	if err != nil {
		return nil, err
	}

	if _, err := w.payments.GetByRegistrantID(ctx, registrant.ID); err == nil {
		return nil, ErrAlreadySubmitted
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	ref, err := w.proofs.Put(ctx, params.Proof)
	if err != nil {
		return nil, fmt.Errorf("store proof: %w", err)
	}

	created, err := w.payments.Create(ctx, CreateParams{
		ID:           ulid.Make().String(),
		RegistrantID: registrant.ID,
		Name:         registrant.FirstName + " " + registrant.LastName,
		Phone:        registrant.Phone,
		ProofBlobKey: ref.Key,
		ProofMime:    params.ProofMime,
		ProofSize:    ref.Size,
	})
	if err != nil {
		// The blob stays: its key may already back another payment's
		// identical slip. The sweep reclaims it if nothing references it.
		return nil, err
	}

	w.logger.Info().
		Str("payment_id", created.ID).
		Str("registrant_id", registrant.ID).
		Msg("payment submitted")
	return created, nil
}

func (w *Workflow) List(ctx context.Context) ([]Payment, error) {
	return w.payments.List(ctx)
}

func (w *Workflow) Get(ctx context.Context, id string) (*Payment, error) {
	return w.payments.GetByID(ctx, id)
}

// OpenProof streams a payment's proof image for admin review. The caller
// closes the reader.
func (w *Workflow) OpenProof(ctx context.Context, id string) (io.ReadCloser, *Payment, error) {
	payment, err := w.payments.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := w.proofs.Open(ctx, payment.ProofBlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open proof: %w", err)
	}
	return rc, payment, nil
}

// DecideResult reports a decision outcome. RegistrantUpdated is false when the
// payment update succeeded but the linked registrant could not be found; the
// decision is authoritative and is never rolled back for that.
type DecideResult struct {
	Payment           *Payment
	RegistrantUpdated bool
}

// Decide applies an admin decision. The payment status and the registrant
// status move together per the fixed mapping; "pending" re-opens a previously
// decided payment.
func (w *Workflow) Decide(ctx context.Context, id string, status Status, note, decidedBy string) (DecideResult, error) {
	if !status.Valid() {
		return DecideResult{}, fmt.Errorf("invalid payment status %q", status)
	}

	payment, err := w.payments.GetByID(ctx, id)
	if err != nil {
		return DecideResult{}, err
	}

	note = sanitize.Text(note)
	if err := w.payments.UpdateStatus(ctx, id, status, note); err != nil {
		return DecideResult{}, err
	}
	payment.Status = status
	payment.Note = note

	result := DecideResult{Payment: payment, RegistrantUpdated: true}
	if err := w.registrants.UpdateStatus(ctx, payment.RegistrantID, registrantStatusFor[status]); err != nil {
		// The payment decision stands. Report the partial success instead of
		// silently losing it.
		result.RegistrantUpdated = false
		w.logger.Error().
			Err(err).
			Str("payment_id", id).
			Str("registrant_id", payment.RegistrantID).
			Msg("payment decided but registrant status update failed")
	}

	w.logger.Info().
		Str("payment_id", id).
		Str("status", string(status)).
		Str("decided_by", decidedBy).
		Msg("payment decided")

	if w.notifier != nil && status != StatusPending {
		if err := w.notifier.PaymentDecided(ctx, payment.RegistrantID, status, note); err != nil {
			w.logger.Warn().Err(err).Str("payment_id", id).Msg("decision notification failed")
		}
	}
	return result, nil
}

// DeleteResult reports the two-step delete. RegistrantRemoved only matters
// when a cascade was requested.
type DeleteResult struct {
	RegistrantRemoved bool
}

// Delete removes the payment first, unconditionally; only then does it attempt
// the optional registrant cascade. A cascade failure is not an overall failure
// since the primary target is already gone. This ordering means no orphaned
// payment can survive a partial delete.
func (w *Workflow) Delete(ctx context.Context, id string, cascadeRegistrant bool) (DeleteResult, error) {
	payment, err := w.payments.GetByID(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}

	// The proof blob is not deleted here: a copied slip means another payment
	// can share the same content-addressed key, and that is exactly the case
	// where an admin needs both proofs. The sweep worker reclaims the blob
	// once nothing references it.
	if err := w.payments.Delete(ctx, id); err != nil {
		return DeleteResult{}, err
	}

	result := DeleteResult{}
	if cascadeRegistrant {
		if err := w.registrants.Delete(ctx, payment.RegistrantID); err != nil {
			w.logger.Warn().
				Err(err).
				Str("payment_id", id).
				Str("registrant_id", payment.RegistrantID).
				Msg("payment deleted but registrant cascade failed")
		} else {
			result.RegistrantRemoved = true
		}
	}

	w.logger.Info().Str("payment_id", id).Bool("cascade", cascadeRegistrant).Msg("payment deleted")
	return result, nil
}
