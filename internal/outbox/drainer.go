package outbox

import (
	"context"

	"reachflow/platform/apperr"
	"reachflow/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// drainConcurrency caps how many leads drain in parallel. Mutations within
// one lead always replay sequentially.
const drainConcurrency = 4

// Applier replays a single queued mutation against the server. A return of
// kind ConflictReconciled means the mutation was superseded by server state:
// the drainer discards it and continues the lane. Any other error stops the
// lane, leaving the mutation queued for the next drain.
type Applier interface {
	Apply(ctx context.Context, m PendingMutation) error
}

// Drainer replays queued mutations after connectivity returns: strictly FIFO
// per lead, leads independent and concurrent.
type Drainer struct {
	queue *Queue
	apply Applier
	log   *logger.Logger
}

// NewDrainer creates a drainer over the queue.
func NewDrainer(queue *Queue, apply Applier, log *logger.Logger) *Drainer {
	return &Drainer{queue: queue, apply: apply, log: log}
}

// Drain replays all queued mutations. Lane failures are isolated: one lead's
// network error does not stop other leads from draining.
func (d *Drainer) Drain(ctx context.Context) error {
	leads, err := d.queue.PendingLeads(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(drainConcurrency)

	for _, leadID := range leads {
		leadID := leadID
		g.Go(func() error {
			d.drainLead(ctx, leadID)
			return nil
		})
	}

	return g.Wait()
}

func (d *Drainer) drainLead(ctx context.Context, leadID uuid.UUID) {
	for {
		if ctx.Err() != nil {
			return
		}

		m, err := d.queue.NextForLead(ctx, leadID)
		if err != nil {
			d.log.Error("outbox: failed to read lane head", "lead_id", leadID, "error", err)
			return
		}
		if m == nil {
			return
		}

		if err := d.queue.IncrementAttempts(ctx, m.ID); err != nil {
			d.log.Error("outbox: failed to bump attempts", "mutation_id", m.ID, "error", err)
		}

		err = d.apply.Apply(ctx, *m)
		switch {
		case err == nil:
			if delErr := d.queue.Delete(ctx, m.ID); delErr != nil {
				d.log.Error("outbox: failed to delete applied mutation", "mutation_id", m.ID, "error", delErr)
				return
			}
		case apperr.Is(err, apperr.KindConflictReconciled):
			// Server state wins; the local intent is discarded and the lane
			// continues so later mutations get re-validated too.
			if delErr := d.queue.Delete(ctx, m.ID); delErr != nil {
				d.log.Error("outbox: failed to delete reconciled mutation", "mutation_id", m.ID, "error", delErr)
				return
			}
		default:
			// Transient failure (likely still offline). Keep the mutation at
			// the lane head for the next drain.
			d.log.Warn("outbox: replay failed, lane parked", "lead_id", leadID, "mutation_id", m.ID, "error", err)
			return
		}
	}
}
