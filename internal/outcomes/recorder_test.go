package outcomes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reachflow/internal/events"
	"reachflow/internal/reach/domain"
	"reachflow/internal/reach/repository"
	"reachflow/platform/apperr"
	"reachflow/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu           sync.Mutex
	interactions map[uuid.UUID]repository.Interaction
	touched      []time.Time
	touchErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{interactions: make(map[uuid.UUID]repository.Interaction)}
}

func (s *fakeStore) UpsertInteraction(ctx context.Context, interaction repository.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[interaction.ID] = interaction
	return nil
}

func (s *fakeStore) TouchLastContacted(ctx context.Context, leadID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touchErr != nil {
		return s.touchErr
	}
	s.touched = append(s.touched, at)
	return nil
}

func TestRecordPersistsInteraction(t *testing.T) {
	store := newFakeStore()
	bus := events.NewInMemoryBus(logger.New("test"))
	r := NewRecorder(store, bus, logger.New("test"))

	leadID := uuid.New()
	interactionID := uuid.New()
	note := "left message with spouse"

	interaction, err := r.Record(context.Background(), leadID, interactionID, domain.ChannelCall, domain.OutcomeVoicemail, &note)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if interaction.ID != interactionID || interaction.LeadID != leadID {
		t.Fatalf("unexpected interaction: %+v", interaction)
	}

	stored, ok := store.interactions[interactionID]
	if !ok {
		t.Fatal("interaction not persisted")
	}
	if stored.Outcome != domain.OutcomeVoicemail || stored.Note == nil || *stored.Note != note {
		t.Fatalf("stored interaction = %+v", stored)
	}
	if len(store.touched) != 1 {
		t.Fatalf("last contacted touched %d times, want 1", len(store.touched))
	}
}

func TestRecordIsIdempotentPerInteraction(t *testing.T) {
	store := newFakeStore()
	r := NewRecorder(store, events.NewInMemoryBus(logger.New("test")), logger.New("test"))

	leadID := uuid.New()
	interactionID := uuid.New()

	if _, err := r.Record(context.Background(), leadID, interactionID, domain.ChannelCall, domain.OutcomeNoAnswer, nil); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	// Correcting the outcome re-submits the same interaction id.
	if _, err := r.Record(context.Background(), leadID, interactionID, domain.ChannelCall, domain.OutcomeVoicemail, nil); err != nil {
		t.Fatalf("second Record: %v", err)
	}

	if len(store.interactions) != 1 {
		t.Fatalf("interaction count = %d, want 1", len(store.interactions))
	}
	if got := store.interactions[interactionID].Outcome; got != domain.OutcomeVoicemail {
		t.Fatalf("outcome = %s, want overwrite to voicemail", got)
	}
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	r := NewRecorder(newFakeStore(), events.NewInMemoryBus(logger.New("test")), logger.New("test"))
	ctx := context.Background()

	if _, err := r.Record(ctx, uuid.Nil, uuid.New(), domain.ChannelCall, domain.OutcomeVoicemail, nil); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("nil lead id: expected validation error, got %v", err)
	}
	if _, err := r.Record(ctx, uuid.New(), uuid.New(), domain.Channel("fax"), domain.OutcomeVoicemail, nil); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("unknown channel: expected validation error, got %v", err)
	}
	// Outcome must belong to the channel's vocabulary.
	if _, err := r.Record(ctx, uuid.New(), uuid.New(), domain.ChannelEmail, domain.OutcomeVoicemail, nil); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("cross-channel outcome: expected validation error, got %v", err)
	}
}

func TestRecordToleratesTouchFailure(t *testing.T) {
	store := newFakeStore()
	store.touchErr = errors.New("deadlock detected")
	r := NewRecorder(store, events.NewInMemoryBus(logger.New("test")), logger.New("test"))

	if _, err := r.Record(context.Background(), uuid.New(), uuid.New(), domain.ChannelText, domain.OutcomeDelivered, nil); err != nil {
		t.Fatalf("touch failure must not fail the record: %v", err)
	}
}

func TestChoices(t *testing.T) {
	r := NewRecorder(newFakeStore(), events.NewInMemoryBus(logger.New("test")), logger.New("test"))

	choices, err := r.Choices(domain.ChannelEmail)
	if err != nil {
		t.Fatalf("Choices: %v", err)
	}
	if len(choices) == 0 {
		t.Fatal("email channel must have outcomes")
	}

	if _, err := r.Choices(domain.Channel("pager")); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
