package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"

	"github.com/campbase/server/internal/domain/registrants"
	"github.com/campbase/server/internal/email"
	"github.com/campbase/server/internal/storage/blob"
)

// DecisionNotifyArgs carries a payment decision to the notification worker.
type DecisionNotifyArgs struct {
	RegistrantID string `json:"registrant_id"`
	Approved     bool   `json:"approved"`
	Note         string `json:"note"`
}

func (DecisionNotifyArgs) Kind() string { return JobKindDecisionNotify }

// DecisionNotifyWorker emails the registrant about their payment decision.
type DecisionNotifyWorker struct {
	river.WorkerDefaults[DecisionNotifyArgs]
	Registrants registrants.Repository
	Email       *email.Service
}

func (DecisionNotifyWorker) Kind() string { return JobKindDecisionNotify }

func (w DecisionNotifyWorker) Work(ctx context.Context, job *river.Job[DecisionNotifyArgs]) error {
	if w.Registrants == nil || w.Email == nil {
		return fmt.Errorf("decision notify worker not configured")
	}

	registrant, err := w.Registrants.GetByID(ctx, job.Args.RegistrantID)
	if err != nil {
		if errors.Is(err, registrants.ErrNotFound) {
			// Deleted between decision and delivery; nothing to notify.
			return nil
		}
		return fmt.Errorf("load registrant: %w", err)
	}

	return w.Email.SendPaymentDecision(ctx, registrant.Email, registrant.FirstName, job.Args.Approved, job.Args.Note)
}

// BlobSweepArgs defines the periodic sweep of unreferenced proof blobs.
type BlobSweepArgs struct{}

func (BlobSweepArgs) Kind() string { return JobKindBlobSweep }

// BlobSweepWorker deletes blobs no payment or certificate references anymore.
// Blobs younger than the grace period are kept: an upload may exist before its
// payment row does.
type BlobSweepWorker struct {
	river.WorkerDefaults[BlobSweepArgs]
	Pool   *pgxpool.Pool
	Blobs  *blob.Store
	Logger *slog.Logger

	GracePeriod time.Duration
}

func (BlobSweepWorker) Kind() string { return JobKindBlobSweep }

func (w BlobSweepWorker) Work(ctx context.Context, job *river.Job[BlobSweepArgs]) error {
	if w.Pool == nil || w.Blobs == nil {
		return fmt.Errorf("blob sweep worker not configured")
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := w.GracePeriod
	if grace <= 0 {
		grace = 24 * time.Hour
	}

	referenced, err := w.referencedKeys(ctx)
	if err != nil {
		return fmt.Errorf("load referenced blob keys: %w", err)
	}

	cutoff := time.Now().Add(-grace)
	var deleted int
	err = w.Blobs.Walk(ctx, func(key string, modTime time.Time) error {
		if modTime.After(cutoff) {
			return nil
		}
		if _, ok := referenced[key]; ok {
			return nil
		}
		if err := w.Blobs.Delete(ctx, key); err != nil {
			return err
		}
		deleted++
		return nil
	})
	if err != nil {
		return fmt.Errorf("sweep blobs: %w", err)
	}

	logger.Info("blob sweep complete", "deleted", deleted, "attempt", job.Attempt)
	return nil
}

func (w BlobSweepWorker) referencedKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := w.Pool.Query(ctx, `
SELECT proof_blob_key FROM payments
UNION
SELECT cert_blob_key FROM registrants WHERE cert_blob_key IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// NewWorkers registers every worker the server runs.
func NewWorkers(notify DecisionNotifyWorker, sweep BlobSweepWorker) (*river.Workers, error) {
	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, notify); err != nil {
		return nil, fmt.Errorf("register decision notify worker: %w", err)
	}
	if err := river.AddWorkerSafely(workers, sweep); err != nil {
		return nil, fmt.Errorf("register blob sweep worker: %w", err)
	}
	return workers, nil
}
