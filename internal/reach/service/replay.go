package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reachflow/internal/events"
	"reachflow/internal/jobs"
	"reachflow/internal/outbox"
	"reachflow/internal/reach/domain"
	"reachflow/internal/reach/repository"
	"reachflow/platform/apperr"

	"github.com/google/uuid"
)

// mutationPayload is the serialized body of a queued mutation. LocalStatus
// records the optimistic status applied at queue time so a later
// reconciliation can report what was discarded.
type mutationPayload struct {
	Action        string          `json:"action,omitempty"`
	Input         json.RawMessage `json:"input,omitempty"`
	InteractionID uuid.UUID       `json:"interactionId,omitempty"`
	Channel       string          `json:"channel,omitempty"`
	Outcome       string          `json:"outcome,omitempty"`
	Note          *string         `json:"note,omitempty"`
	LocalStatus   string          `json:"localStatus"`
}

// queueTransition records a transition intent in the offline queue and
// applies the optimistic status to the local cache. The mutation id becomes
// the idempotency token on replay.
func (s *Service) queueTransition(ctx context.Context, rec *repository.LeadReachRecord, action domain.Action, input TransitionInput) (*TransitionResult, error) {
	optimistic := domain.StatusContacted
	if pending, ok := domain.PendingStatus(action); ok {
		optimistic = pending
	}

	payload, err := json.Marshal(mutationPayload{
		Action:      string(action),
		Input:       input.Payload,
		LocalStatus: string(optimistic),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "marshal queued transition", err)
	}

	m := outbox.PendingMutation{
		ID:        uuid.New(),
		LeadID:    rec.ID,
		Kind:      outbox.KindStatusTransition,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.queue.Append(ctx, m); err != nil {
		return nil, err
	}

	s.cacheSetStatus(rec.ID, optimistic)
	s.publishStatus(ctx, rec.ID, rec.Status, optimistic, "offline")
	s.bus.Publish(ctx, events.ReachMutationQueued{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     rec.ID,
		MutationID: m.ID,
		Kind:       string(m.Kind),
	})

	return &TransitionResult{LeadID: rec.ID, Status: optimistic, Queued: true, MutationID: &m.ID}, nil
}

// queueOutcome records an interaction outcome intent offline. The outcome's
// status mapping is applied to the cache optimistically.
func (s *Service) queueOutcome(ctx context.Context, rec *repository.LeadReachRecord, interactionID uuid.UUID, channel domain.Channel, outcome domain.Outcome, note *string) (*TransitionResult, error) {
	optimistic := rec.Status
	if next, ok := domain.NextForOutcome(rec.Status, outcome); ok {
		optimistic = next
	}

	payload, err := json.Marshal(mutationPayload{
		InteractionID: interactionID,
		Channel:       string(channel),
		Outcome:       string(outcome),
		Note:          note,
		LocalStatus:   string(optimistic),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "marshal queued outcome", err)
	}

	m := outbox.PendingMutation{
		ID:        uuid.New(),
		LeadID:    rec.ID,
		Kind:      outbox.KindInteractionLog,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.queue.Append(ctx, m); err != nil {
		return nil, err
	}

	if optimistic != rec.Status {
		s.cacheSetStatus(rec.ID, optimistic)
		s.publishStatus(ctx, rec.ID, rec.Status, optimistic, "offline")
	}
	s.bus.Publish(ctx, events.ReachMutationQueued{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     rec.ID,
		MutationID: m.ID,
		Kind:       string(m.Kind),
	})

	return &TransitionResult{LeadID: rec.ID, Status: optimistic, Queued: true, MutationID: &m.ID}, nil
}

// Apply replays one queued mutation against the server. It is the drainer's
// Applier. Returning nil consumes the mutation; a KindConflictReconciled
// error consumes it as superseded; any other error parks the lead's lane
// until the next drain.
//
// Replays are idempotent: the mutation id is the submission token, and
// interactions upsert by id. Conflicts resolve server-wins.
func (s *Service) Apply(ctx context.Context, m outbox.PendingMutation) error {
	var p mutationPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		// A payload we wrote and cannot read back is unrecoverable; log and
		// consume rather than wedging the lane forever.
		s.log.Error("dropping unreadable queued mutation", "mutation_id", m.ID.String(), "error", err.Error())
		return nil
	}

	// Replays share the per-lead sequencing slot with user calls: a lead
	// mid-transition parks its lane, and a lead mid-replay rejects the user
	// call, so transitions stay strictly sequential either way.
	action := domain.Action(p.Action)
	if m.Kind == outbox.KindInteractionLog {
		action = domain.ActionRecordOutcome
	}
	if !s.markRunning(m.LeadID, action) {
		return apperr.Conflict("transition in flight for lead, replay deferred")
	}
	defer s.markComplete(m.LeadID)

	server, err := s.repo.GetByID(ctx, m.LeadID)
	if err != nil {
		return err
	}

	switch m.Kind {
	case outbox.KindStatusTransition:
		err = s.replayTransition(ctx, m, p, server)
	case outbox.KindInteractionLog:
		err = s.replayOutcome(ctx, m, p, server)
	default:
		s.log.Error("dropping queued mutation of unknown kind", "mutation_id", m.ID.String(), "kind", string(m.Kind))
		return nil
	}

	// A CAS miss during replay means the server moved again mid-apply.
	// Server wins there too.
	if apperr.Is(err, apperr.KindConflict) {
		return s.reconcile(ctx, m, p, server)
	}
	return err
}

func (s *Service) replayTransition(ctx context.Context, m outbox.PendingMutation, p mutationPayload, server *repository.LeadReachRecord) error {
	action := domain.Action(p.Action)

	switch action {
	case domain.ActionSubmitEnrichment, domain.ActionSubmitSkipTrace:
		return s.replaySubmit(ctx, m, p, server, action)

	case domain.ActionBeginOutreach:
		if domain.CanTransition(server.Status, action) {
			if err := s.setStatus(ctx, server.ID, server.Status, domain.StatusContacted, "reconcile"); err != nil {
				return err
			}
			if err := s.repo.TouchLastContacted(ctx, server.ID, m.CreatedAt); err != nil {
				s.log.DatabaseError("touch last contacted", err)
			}
			return nil
		}
		// Already contacted, possibly by a prior partial replay or another
		// device. The intent is satisfied; consume quietly.
		if server.Status == domain.StatusContacted || server.Status == domain.StatusNurturing {
			s.cachePut(server)
			return nil
		}
		return s.reconcile(ctx, m, p, server)

	default:
		s.log.Error("dropping queued transition with unknown action", "mutation_id", m.ID.String(), "action", p.Action)
		return nil
	}
}

// replaySubmit replays a queued enrichment or skip-trace submission. The
// mutation id is the idempotency token, so a submission that reached the
// server before the connectivity drop resolves to the same job.
func (s *Service) replaySubmit(ctx context.Context, m outbox.PendingMutation, p mutationPayload, server *repository.LeadReachRecord, action domain.Action) error {
	kind := jobs.KindEnrichment
	if action == domain.ActionSubmitSkipTrace {
		kind = jobs.KindSkipTrace
	}
	pending, _ := domain.PendingStatus(action)

	from := server.Status
	switch {
	case domain.CanTransition(server.Status, action):
		// Server still where the intent expects it.
	case server.Status == pending:
		// Partially applied before the drop: the job exists and the status
		// already moved. Resume from the pending state.
	default:
		return s.reconcile(ctx, m, p, server)
	}

	job, err := s.guard.Submit(ctx, kind, server.ID, m.ID.String(), p.Input)
	if err != nil {
		return err
	}

	if from != pending {
		if err := s.setStatus(ctx, server.ID, from, pending, "reconcile"); err != nil {
			return err
		}
	}

	final := job
	if !job.Status.IsTerminal() {
		final, err = s.poller.Wait(ctx, job.ID)
		if err != nil {
			return err
		}
	}
	if final == nil || !final.Status.IsTerminal() {
		// Submitted but still running after the poll budget. The intent is
		// consumed; the lead stays on pending until the job is observed
		// again.
		s.cacheSetStatus(server.ID, pending)
		return nil
	}

	_, err = s.applyJobResult(ctx, server.ID, pending, action, final, "reconcile")
	return err
}

func (s *Service) replayOutcome(ctx context.Context, m outbox.PendingMutation, p mutationPayload, server *repository.LeadReachRecord) error {
	channel := domain.Channel(p.Channel)
	outcome := domain.Outcome(p.Outcome)

	// The interaction happened regardless of where the status has moved;
	// record it first, idempotently by id.
	if _, err := s.recorder.Record(ctx, m.LeadID, p.InteractionID, channel, outcome, p.Note); err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			s.log.Error("dropping queued outcome with invalid payload", "mutation_id", m.ID.String(), "error", err.Error())
			return nil
		}
		return err
	}

	if !domain.CanTransition(server.Status, domain.ActionRecordOutcome) {
		// Interaction persisted but the optimistic transition is superseded.
		return s.reconcile(ctx, m, p, server)
	}

	next, ok := domain.NextForOutcome(server.Status, outcome)
	if !ok || next == server.Status {
		s.cachePut(server)
		return nil
	}
	return s.setStatus(ctx, server.ID, server.Status, next, "reconcile")
}

// reconcile resolves a superseded mutation server-wins: the local cache is
// replaced with the server record, the discard is logged and published, and
// the drainer is told to drop the mutation and continue the lane.
func (s *Service) reconcile(ctx context.Context, m outbox.PendingMutation, p mutationPayload, server *repository.LeadReachRecord) error {
	local := p.LocalStatus
	if cached := s.cacheGet(m.LeadID); cached != nil {
		local = string(cached.Status)
	}

	s.cachePut(server)
	s.log.ConflictReconciled(m.LeadID.String(), m.ID.String(), local, string(server.Status))
	s.bus.Publish(ctx, events.ReachConflictReconciled{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       m.LeadID,
		MutationID:   m.ID,
		LocalStatus:  local,
		ServerStatus: string(server.Status),
	})
	if local != string(server.Status) {
		s.publishStatus(ctx, m.LeadID, domain.Status(local), server.Status, "reconcile")
	}

	return apperr.ConflictReconciled(
		fmt.Sprintf("queued mutation superseded by server status %q", server.Status),
	)
}
