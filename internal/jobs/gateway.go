// Package jobs provides the remote job gateway boundary: submitting
// enrichment, skip-trace, and AI jobs, observing their status, and the
// polling and idempotency primitives built on top of it.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind is the category of remote work a job performs.
type Kind string

const (
	KindEnrichment Kind = "enrichment"
	KindSkipTrace  Kind = "skip_trace"
	KindAITask     Kind = "ai_task"
)

// Status is a job's processing state as reported by the gateway.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is an in-flight or completed remote operation. Jobs are owned by the
// gateway; callers observe them and never mutate them directly.
type Job struct {
	ID        uuid.UUID
	SubjectID uuid.UUID
	Kind      Kind
	Status    Status
	Input     json.RawMessage
	Result    json.RawMessage
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Gateway abstracts the remote job service. Submit must be safe to call with
// a caller-chosen idempotency token: if a job of the same kind is already
// active for the subject, the existing job is returned instead of creating a
// second one. At-most-once creation is the gateway's responsibility, not the
// client's.
type Gateway interface {
	Submit(ctx context.Context, kind Kind, subjectID uuid.UUID, token string, input json.RawMessage) (*Job, error)
	GetStatus(ctx context.Context, jobID uuid.UUID) (*Job, error)
	GetActive(ctx context.Context, kind Kind, subjectID uuid.UUID) (*Job, error)

	// GetLatest returns the most recent job of the kind for the subject
	// regardless of status, or nil when none exists. Callers re-checking a
	// parked submission use it to adopt work that finished while nobody was
	// polling.
	GetLatest(ctx context.Context, kind Kind, subjectID uuid.UUID) (*Job, error)
}

// StatusFetcher is the read-only subset of Gateway the poller needs.
type StatusFetcher interface {
	GetStatus(ctx context.Context, jobID uuid.UUID) (*Job, error)
}
