package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"

	"reachflow/platform/apperr"
	"reachflow/platform/logger"

	"github.com/google/uuid"
)

// scriptedApplier returns a scripted result per mutation id and records the
// order mutations were applied in.
type scriptedApplier struct {
	mu      sync.Mutex
	results map[uuid.UUID]error
	applied []uuid.UUID
}

func (a *scriptedApplier) Apply(ctx context.Context, m PendingMutation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, m.ID)
	return a.results[m.ID]
}

func (a *scriptedApplier) appliedIDs() []uuid.UUID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uuid.UUID(nil), a.applied...)
}

func TestDrainAppliesAndDeletes(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	leadID := uuid.New()

	first := mutation(leadID, KindStatusTransition)
	second := mutation(leadID, KindInteractionLog)
	for _, m := range []PendingMutation{first, second} {
		if err := q.Append(ctx, m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	applier := &scriptedApplier{results: map[uuid.UUID]error{}}
	d := NewDrainer(q, applier, logger.New("test"))

	if err := d.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	applied := applier.appliedIDs()
	if len(applied) != 2 || applied[0] != first.ID || applied[1] != second.ID {
		t.Fatalf("applied order = %v, want [%s %s]", applied, first.ID, second.ID)
	}

	count, err := q.CountForLead(ctx, leadID)
	if err != nil {
		t.Fatalf("CountForLead: %v", err)
	}
	if count != 0 {
		t.Fatalf("queue not emptied, %d left", count)
	}
}

func TestDrainDiscardsReconciledAndContinuesLane(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	leadID := uuid.New()

	superseded := mutation(leadID, KindStatusTransition)
	follower := mutation(leadID, KindInteractionLog)
	for _, m := range []PendingMutation{superseded, follower} {
		if err := q.Append(ctx, m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	applier := &scriptedApplier{results: map[uuid.UUID]error{
		superseded.ID: apperr.ConflictReconciled("server moved first"),
	}}
	d := NewDrainer(q, applier, logger.New("test"))

	if err := d.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	// Both mutations consumed: one reconciled away, one applied.
	if applied := applier.appliedIDs(); len(applied) != 2 {
		t.Fatalf("applied = %v, want both mutations attempted", applied)
	}
	count, err := q.CountForLead(ctx, leadID)
	if err != nil {
		t.Fatalf("CountForLead: %v", err)
	}
	if count != 0 {
		t.Fatalf("queue not emptied, %d left", count)
	}
}

func TestDrainParksLaneOnTransientError(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	stuckLead := uuid.New()
	healthyLead := uuid.New()

	stuck := mutation(stuckLead, KindStatusTransition)
	blocked := mutation(stuckLead, KindInteractionLog)
	healthy := mutation(healthyLead, KindStatusTransition)
	for _, m := range []PendingMutation{stuck, blocked, healthy} {
		if err := q.Append(ctx, m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	applier := &scriptedApplier{results: map[uuid.UUID]error{
		stuck.ID: errors.New("connection reset"),
	}}
	d := NewDrainer(q, applier, logger.New("test"))

	if err := d.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	// The stuck lane keeps both its mutations, head unchanged.
	head, err := q.NextForLead(ctx, stuckLead)
	if err != nil {
		t.Fatalf("NextForLead: %v", err)
	}
	if head == nil || head.ID != stuck.ID {
		t.Fatalf("stuck lane head = %+v, want %s", head, stuck.ID)
	}
	count, err := q.CountForLead(ctx, stuckLead)
	if err != nil {
		t.Fatalf("CountForLead: %v", err)
	}
	if count != 2 {
		t.Fatalf("stuck lane count = %d, want 2", count)
	}

	// The blocked follower was never attempted.
	for _, id := range applier.appliedIDs() {
		if id == blocked.ID {
			t.Fatal("mutation behind a parked head must not be applied")
		}
	}

	// The healthy lead drained independently.
	count, err = q.CountForLead(ctx, healthyLead)
	if err != nil {
		t.Fatalf("CountForLead: %v", err)
	}
	if count != 0 {
		t.Fatalf("healthy lane count = %d, want 0", count)
	}
}
