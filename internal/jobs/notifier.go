package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/campbase/server/internal/domain/payments"
)

// Notifier queues decision notifications instead of sending them inline, so a
// slow or failing mail provider never blocks the admin's decision request.
type Notifier struct {
	client *river.Client[pgx.Tx]
}

func NewNotifier(client *river.Client[pgx.Tx]) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) PaymentDecided(ctx context.Context, registrantID string, status payments.Status, note string) error {
	if n == nil || n.client == nil {
		return nil
	}

	opts := InsertOptsForKind(JobKindDecisionNotify)
	_, err := n.client.Insert(ctx, DecisionNotifyArgs{
		RegistrantID: registrantID,
		Approved:     status == payments.StatusApproved,
		Note:         note,
	}, &opts)
	if err != nil {
		return fmt.Errorf("queue decision notification: %w", err)
	}
	return nil
}
