// Package service implements the lead reach workflow: the authoritative
// status state machine, online submit-and-poll transitions, the offline
// optimistic path through the mutation queue, and outcome recording.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"reachflow/internal/events"
	"reachflow/internal/jobs"
	"reachflow/internal/outbox"
	"reachflow/internal/outcomes"
	"reachflow/internal/reach/domain"
	"reachflow/internal/reach/repository"
	"reachflow/platform/apperr"
	"reachflow/platform/logger"
	"reachflow/platform/phone"

	"github.com/google/uuid"
)

// TransitionInput carries the optional per-action arguments of a transition
// request. Payload is forwarded verbatim to the remote job for the submit
// actions.
type TransitionInput struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TransitionResult describes what a transition request did. Exactly one of
// the shapes applies: queued offline, parked pending after the poll budget,
// or settled at Status.
type TransitionResult struct {
	LeadID     uuid.UUID     `json:"leadId"`
	Status     domain.Status `json:"status"`
	Queued     bool          `json:"queued,omitempty"`
	MutationID *uuid.UUID    `json:"mutationId,omitempty"`
	JobID      *uuid.UUID    `json:"jobId,omitempty"`
	JobPending bool          `json:"jobPending,omitempty"`
	Failure    *string       `json:"failure,omitempty"`
}

// enrichmentResult is the payload a completed enrichment job carries.
type enrichmentResult struct {
	OwnerName     string `json:"ownerName"`
	AbsenteeOwner bool   `json:"absenteeOwner"`
}

// skipTraceResult is the payload a completed skip-trace job carries.
type skipTraceResult struct {
	Phones []string `json:"phones"`
	Emails []string `json:"emails"`
}

// Service drives every reach status change. All writes to a lead's reach
// record flow through here so the precondition table is enforced in one
// place.
type Service struct {
	repo     repository.ReachRepository
	gateway  jobs.Gateway
	guard    *jobs.Guard
	poller   *jobs.Poller
	queue    *outbox.Queue
	recorder *outcomes.Recorder
	conn     *Connectivity
	bus      events.Bus
	log      *logger.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]domain.Action
	cache    map[uuid.UUID]*repository.LeadReachRecord
}

func NewService(
	repo repository.ReachRepository,
	gateway jobs.Gateway,
	guard *jobs.Guard,
	poller *jobs.Poller,
	queue *outbox.Queue,
	recorder *outcomes.Recorder,
	conn *Connectivity,
	bus events.Bus,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:     repo,
		gateway:  gateway,
		guard:    guard,
		poller:   poller,
		queue:    queue,
		recorder: recorder,
		conn:     conn,
		bus:      bus,
		log:      log,
		inflight: make(map[uuid.UUID]domain.Action),
		cache:    make(map[uuid.UUID]*repository.LeadReachRecord),
	}
}

// CreateLead registers a lead with the workflow in status "new". Called when
// a lead enters the system from sourcing.
func (s *Service) CreateLead(ctx context.Context, leadID uuid.UUID) (*repository.LeadReachRecord, error) {
	rec, err := s.repo.Create(ctx, leadID)
	if err != nil {
		return nil, err
	}
	s.cachePut(rec)
	return rec, nil
}

// GetRecord returns the lead's reach record: the server copy when online,
// the cached local copy when offline.
func (s *Service) GetRecord(ctx context.Context, leadID uuid.UUID) (*repository.LeadReachRecord, error) {
	return s.loadRecord(ctx, leadID)
}

// GetCurrentStatus returns the lead's current reach status.
func (s *Service) GetCurrentStatus(ctx context.Context, leadID uuid.UUID) (domain.Status, error) {
	rec, err := s.loadRecord(ctx, leadID)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// CanTransition reports whether the action is legal from the lead's current
// status. Used by handlers to enable or disable controls without attempting
// the transition.
func (s *Service) CanTransition(ctx context.Context, leadID uuid.UUID, action domain.Action) (bool, error) {
	if !domain.IsKnownAction(action) {
		return false, apperr.Validation(fmt.Sprintf("unknown action %q", action))
	}
	rec, err := s.loadRecord(ctx, leadID)
	if err != nil {
		return false, err
	}
	return domain.CanTransition(rec.Status, action), nil
}

// ListInteractions returns the lead's recorded outreach attempts.
func (s *Service) ListInteractions(ctx context.Context, leadID uuid.UUID) ([]repository.Interaction, error) {
	return s.repo.ListInteractions(ctx, leadID)
}

// PendingMutationCount reports how many queued offline mutations a lead has.
func (s *Service) PendingMutationCount(ctx context.Context, leadID uuid.UUID) (int, error) {
	return s.queue.CountForLead(ctx, leadID)
}

// OutcomeChoices returns the outcome vocabulary for a channel.
func (s *Service) OutcomeChoices(channel domain.Channel) ([]domain.Outcome, error) {
	return s.recorder.Choices(channel)
}

// RequestTransition applies an action to a lead. Online, the submit actions
// run through the idempotent gateway and the poller before the status
// settles; begin_outreach is a plain authoritative write. Offline, the
// intent is queued and the cached status updated optimistically.
//
// Cancelling ctx while a submit action is polling stops the poll without
// touching the lead: the job keeps running remotely and the status stays on
// the pending value.
func (s *Service) RequestTransition(ctx context.Context, leadID uuid.UUID, action domain.Action, input TransitionInput) (*TransitionResult, error) {
	if !domain.IsKnownAction(action) {
		return nil, apperr.Validation(fmt.Sprintf("unknown action %q", action))
	}
	if action == domain.ActionRecordOutcome {
		return nil, apperr.Validation("record_outcome requires an interaction; use the outcome endpoint")
	}

	rec, err := s.loadRecord(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(rec.Status, action) {
		return nil, s.preconditionError(rec.Status, action)
	}

	if !s.markRunning(leadID, action) {
		return nil, apperr.Conflict("another transition is already in flight for this lead")
	}
	defer s.markComplete(leadID)

	if !s.conn.Online() {
		return s.queueTransition(ctx, rec, action, input)
	}

	switch action {
	case domain.ActionSubmitEnrichment:
		return s.submitAndPoll(ctx, rec, action, jobs.KindEnrichment, uuid.NewString(), input.Payload)
	case domain.ActionSubmitSkipTrace:
		return s.submitAndPoll(ctx, rec, action, jobs.KindSkipTrace, uuid.NewString(), input.Payload)
	case domain.ActionBeginOutreach:
		return s.beginOutreach(ctx, rec)
	default:
		return nil, apperr.Validation(fmt.Sprintf("unsupported action %q", action))
	}
}

// RecordOutcome persists an outreach outcome and applies the resulting
// status transition when the outcome maps to one. Offline, the interaction
// and its transition are queued as a single mutation.
func (s *Service) RecordOutcome(ctx context.Context, leadID, interactionID uuid.UUID, channel domain.Channel, outcome domain.Outcome, note *string) (*TransitionResult, error) {
	if !domain.IsValidOutcome(channel, outcome) {
		return nil, apperr.Validation(fmt.Sprintf("outcome %q is not valid for channel %q", outcome, channel))
	}

	rec, err := s.loadRecord(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(rec.Status, domain.ActionRecordOutcome) {
		return nil, s.preconditionError(rec.Status, domain.ActionRecordOutcome)
	}

	if !s.markRunning(leadID, domain.ActionRecordOutcome) {
		return nil, apperr.Conflict("another transition is already in flight for this lead")
	}
	defer s.markComplete(leadID)

	if !s.conn.Online() {
		return s.queueOutcome(ctx, rec, interactionID, channel, outcome, note)
	}

	if _, err := s.recorder.Record(ctx, leadID, interactionID, channel, outcome, note); err != nil {
		return nil, err
	}

	result := &TransitionResult{LeadID: leadID, Status: rec.Status}
	next, ok := domain.NextForOutcome(rec.Status, outcome)
	if ok && next != rec.Status {
		if err := s.setStatus(ctx, leadID, rec.Status, next, "online"); err != nil {
			return nil, err
		}
		result.Status = next
	}
	return result, nil
}

// submitAndPoll runs the online path for the two submit actions: guarded
// idempotent submission, status moved to the pending value, then a bounded
// poll for the terminal job state.
func (s *Service) submitAndPoll(ctx context.Context, rec *repository.LeadReachRecord, action domain.Action, kind jobs.Kind, token string, payload json.RawMessage) (*TransitionResult, error) {
	pending, _ := domain.PendingStatus(action)

	// A lead already on the pending status is a re-check: an earlier poll
	// ran out of budget and the job kept running. Adopt whatever the server
	// has instead of submitting again.
	if rec.Status == pending {
		result, err := s.resumePending(ctx, rec.ID, action, kind, pending)
		if result != nil || err != nil {
			return result, err
		}
		// No job on record despite the pending status. The original
		// submission never landed; fall through to a fresh one.
	}

	job, err := s.guard.Submit(ctx, kind, rec.ID, token, payload)
	if err != nil {
		// Submission outcome unknown or the gateway rejected; the status is
		// untouched so the user can retry. The guard re-checks the server on
		// the next attempt.
		return nil, err
	}

	if rec.Status != pending {
		if err := s.setStatus(ctx, rec.ID, rec.Status, pending, "online"); err != nil {
			return nil, err
		}
	}

	result := &TransitionResult{LeadID: rec.ID, Status: pending, JobID: &job.ID}

	final := job
	if !job.Status.IsTerminal() {
		final, err = s.poller.Wait(ctx, job.ID)
		if err != nil {
			// Poll cancelled. The job runs on; the lead sleeps on pending.
			result.JobPending = true
			return result, nil
		}
	}
	if final == nil || !final.Status.IsTerminal() {
		// Poll budget exhausted. Same deal: pending until someone looks again.
		result.JobPending = true
		return result, nil
	}

	return s.applyJobResult(ctx, rec.ID, pending, action, final, "online")
}

// resumePending re-checks a lead parked on a submit pending status. The
// remote job may have finished while nobody was polling; adopting it applies
// the result without creating (and paying for) a second job. Returns
// (nil, nil) when no job exists for the lead, which means the original
// submission never reached the server.
func (s *Service) resumePending(ctx context.Context, leadID uuid.UUID, action domain.Action, kind jobs.Kind, pending domain.Status) (*TransitionResult, error) {
	job, err := s.gateway.GetLatest(ctx, kind, leadID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	if !job.Status.IsTerminal() {
		final, err := s.poller.Wait(ctx, job.ID)
		if err != nil || final == nil || !final.Status.IsTerminal() {
			// Still running. The lead stays pending; the next re-check
			// picks it up again.
			return &TransitionResult{LeadID: leadID, Status: pending, JobID: &job.ID, JobPending: true}, nil
		}
		job = final
	}

	return s.applyJobResult(ctx, leadID, pending, action, job, "online")
}

// applyJobResult maps a terminal job onto the lead: persists the job's
// payload fields and moves the status off the pending value. A failed job is
// a workflow outcome, not an API error; the status lands on the matching
// *_failed value with the reason recorded.
func (s *Service) applyJobResult(ctx context.Context, leadID uuid.UUID, from domain.Status, action domain.Action, job *jobs.Job, source string) (*TransitionResult, error) {
	result := &TransitionResult{LeadID: leadID, JobID: &job.ID}

	failed := job.Status == jobs.StatusFailed
	reason := "job failed"
	if job.Error != nil {
		reason = *job.Error
	}

	switch action {
	case domain.ActionSubmitEnrichment:
		if failed {
			if err := s.repo.SetStageError(ctx, leadID, repository.StageEnrichment, reason); err != nil {
				return nil, err
			}
			result.Failure = &reason
			result.Status = domain.AfterEnrichment(false)
			break
		}
		var payload enrichmentResult
		if err := json.Unmarshal(job.Result, &payload); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "malformed enrichment result", err)
		}
		if err := s.repo.SetOwnerIdentity(ctx, leadID, payload.OwnerName, payload.AbsenteeOwner); err != nil {
			return nil, err
		}
		if err := s.repo.ClearStageError(ctx, leadID, repository.StageEnrichment); err != nil {
			return nil, err
		}
		result.Status = domain.AfterEnrichment(true)

	case domain.ActionSubmitSkipTrace:
		if failed {
			if err := s.repo.SetStageError(ctx, leadID, repository.StageSkipTrace, reason); err != nil {
				return nil, err
			}
			result.Failure = &reason
			result.Status = domain.AfterSkipTrace(false, 0)
			break
		}
		var payload skipTraceResult
		if err := json.Unmarshal(job.Result, &payload); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "malformed skip-trace result", err)
		}
		points := contactPointsFrom(leadID, payload)
		if err := s.repo.ReplaceContactPoints(ctx, leadID, points); err != nil {
			return nil, err
		}
		if err := s.repo.ClearStageError(ctx, leadID, repository.StageSkipTrace); err != nil {
			return nil, err
		}
		result.Status = domain.AfterSkipTrace(true, len(points))

	default:
		return nil, apperr.Internal(fmt.Sprintf("action %q does not produce a job", action))
	}

	if err := s.setStatus(ctx, leadID, from, result.Status, source); err != nil {
		return nil, err
	}
	return result, nil
}

// beginOutreach moves an outreach-ready lead to contacted. No remote job is
// involved; the write is authoritative immediately.
func (s *Service) beginOutreach(ctx context.Context, rec *repository.LeadReachRecord) (*TransitionResult, error) {
	if err := s.setStatus(ctx, rec.ID, rec.Status, domain.StatusContacted, "online"); err != nil {
		return nil, err
	}
	if err := s.repo.TouchLastContacted(ctx, rec.ID, time.Now().UTC()); err != nil {
		s.log.DatabaseError("touch last contacted", err)
	}
	return &TransitionResult{LeadID: rec.ID, Status: domain.StatusContacted}, nil
}

// contactPointsFrom normalizes the skip-trace payload into contact points.
// Phone numbers that fail E.164 normalization are dropped rather than stored
// raw.
func contactPointsFrom(leadID uuid.UUID, payload skipTraceResult) []repository.ContactPoint {
	points := make([]repository.ContactPoint, 0, len(payload.Phones)+len(payload.Emails))
	for _, raw := range payload.Phones {
		normalized, err := phone.NormalizeE164(raw)
		if err != nil {
			continue
		}
		points = append(points, repository.ContactPoint{
			ID:     uuid.New(),
			LeadID: leadID,
			Kind:   "phone",
			Value:  normalized,
		})
	}
	for _, email := range payload.Emails {
		if email == "" {
			continue
		}
		points = append(points, repository.ContactPoint{
			ID:     uuid.New(),
			LeadID: leadID,
			Kind:   "email",
			Value:  email,
		})
	}
	return points
}

// setStatus performs the compare-and-set write, refreshes the cache, and
// publishes the change. A CAS miss means another device moved the lead
// first; the local view is refreshed and the caller gets a conflict.
func (s *Service) setStatus(ctx context.Context, leadID uuid.UUID, from, to domain.Status, source string) error {
	ok, err := s.repo.UpdateStatus(ctx, leadID, from, to)
	if err != nil {
		return err
	}
	if !ok {
		fresh, ferr := s.repo.GetByID(ctx, leadID)
		if ferr == nil {
			s.cachePut(fresh)
		}
		return apperr.Conflict("lead status changed concurrently")
	}
	s.cacheSetStatus(leadID, to)
	s.publishStatus(ctx, leadID, from, to, source)
	return nil
}

func (s *Service) publishStatus(ctx context.Context, leadID uuid.UUID, from, to domain.Status, source string) {
	s.bus.Publish(ctx, events.ReachStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		OldStatus: string(from),
		NewStatus: string(to),
		Source:    source,
	})
}

func (s *Service) preconditionError(current domain.Status, action domain.Action) error {
	return apperr.PreconditionFailed(
		fmt.Sprintf("action %q is not allowed from status %q", action, current),
	).WithDetails(map[string]any{
		"currentStatus":    current,
		"action":           action,
		"requiredStatuses": domain.Preconditions(action),
	})
}

// loadRecord fetches the record from the server when online and falls back
// to the local cache. Offline, only the cache serves.
func (s *Service) loadRecord(ctx context.Context, leadID uuid.UUID) (*repository.LeadReachRecord, error) {
	if s.conn.Online() {
		rec, err := s.repo.GetByID(ctx, leadID)
		if err == nil {
			s.cachePut(rec)
			return rec, nil
		}
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
		if cached := s.cacheGet(leadID); cached != nil {
			s.log.Warn("serving cached record after fetch error", "lead_id", leadID.String(), "error", err.Error())
			return cached, nil
		}
		return nil, err
	}
	if cached := s.cacheGet(leadID); cached != nil {
		return cached, nil
	}
	return nil, apperr.NotFound("lead not available offline")
}

func (s *Service) markRunning(leadID uuid.UUID, action domain.Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[leadID]; busy {
		return false
	}
	s.inflight[leadID] = action
	return true
}

func (s *Service) markComplete(leadID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, leadID)
}

func (s *Service) cachePut(rec *repository.LeadReachRecord) {
	clone := *rec
	clone.ContactPoints = append([]repository.ContactPoint(nil), rec.ContactPoints...)
	s.mu.Lock()
	s.cache[rec.ID] = &clone
	s.mu.Unlock()
}

func (s *Service) cacheGet(leadID uuid.UUID) *repository.LeadReachRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.cache[leadID]
	if !ok {
		return nil
	}
	clone := *rec
	clone.ContactPoints = append([]repository.ContactPoint(nil), rec.ContactPoints...)
	return &clone
}

func (s *Service) cacheSetStatus(leadID uuid.UUID, status domain.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.cache[leadID]; ok {
		rec.Status = status
		rec.UpdatedAt = time.Now().UTC()
	}
}
