// Package outcomes captures human-reported results of outreach attempts and
// feeds them back to the reach workflow as transition triggers.
package outcomes

import (
	"context"
	"fmt"
	"time"

	"reachflow/internal/events"
	"reachflow/internal/reach/domain"
	"reachflow/internal/reach/repository"
	"reachflow/platform/apperr"
	"reachflow/platform/logger"

	"github.com/google/uuid"
)

// InteractionStore is the narrow persistence surface the recorder needs.
type InteractionStore interface {
	UpsertInteraction(ctx context.Context, interaction repository.Interaction) error
	TouchLastContacted(ctx context.Context, leadID uuid.UUID, at time.Time) error
}

// Recorder validates and persists interaction outcomes. Recording is
// idempotent per interaction id: re-submitting the same interaction's
// outcome overwrites rather than duplicates.
type Recorder struct {
	store InteractionStore
	bus   events.Bus
	log   *logger.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(store InteractionStore, bus events.Bus, log *logger.Logger) *Recorder {
	return &Recorder{store: store, bus: bus, log: log}
}

// Choices returns the outcome vocabulary valid for the channel, so the UI
// can present exactly the legal options.
func (r *Recorder) Choices(channel domain.Channel) ([]domain.Outcome, error) {
	if !domain.IsKnownChannel(channel) {
		return nil, apperr.Validation(fmt.Sprintf("unknown channel %q", channel))
	}
	return domain.OutcomesForChannel(channel), nil
}

// Record persists the outcome and updates last-contacted bookkeeping. The
// returned interaction drives the caller's state-machine transition.
func (r *Recorder) Record(ctx context.Context, leadID, interactionID uuid.UUID, channel domain.Channel, outcome domain.Outcome, note *string) (*repository.Interaction, error) {
	if leadID == uuid.Nil || interactionID == uuid.Nil {
		return nil, apperr.Validation("leadId and interactionId are required")
	}
	if !domain.IsKnownChannel(channel) {
		return nil, apperr.Validation(fmt.Sprintf("unknown channel %q", channel))
	}
	if !domain.IsValidOutcome(channel, outcome) {
		return nil, apperr.Validation(fmt.Sprintf("outcome %q is not valid for channel %q", outcome, channel))
	}

	now := time.Now().UTC()
	interaction := repository.Interaction{
		ID:         interactionID,
		LeadID:     leadID,
		Channel:    channel,
		Outcome:    outcome,
		Note:       note,
		OccurredAt: now,
	}

	if err := r.store.UpsertInteraction(ctx, interaction); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to persist interaction", err)
	}

	if err := r.store.TouchLastContacted(ctx, leadID, now); err != nil {
		r.log.DatabaseError("touch last contacted", err)
	}

	if r.bus != nil {
		r.bus.Publish(ctx, events.InteractionRecorded{
			BaseEvent:     events.NewBaseEvent(),
			LeadID:        leadID,
			InteractionID: interactionID,
			Channel:       string(channel),
			Outcome:       string(outcome),
		})
	}

	return &interaction, nil
}
