// Package repository provides persistence for lead reach records and
// interaction outcomes against the hosted lead store.
package repository

import (
	"context"
	"time"

	"reachflow/internal/reach/domain"

	"github.com/google/uuid"
)

// Stage identifies which workflow stage an error field belongs to. Error
// fields are only set on the matching *_failed status and cleared on a
// successful retry.
type Stage string

const (
	StageEnrichment Stage = "enrichment"
	StageSkipTrace  Stage = "skiptrace"
)

// ContactPoint is a phone number or email address produced by skip-trace.
type ContactPoint struct {
	ID     uuid.UUID `json:"id"`
	LeadID uuid.UUID `json:"leadId"`
	Kind   string    `json:"kind"` // "phone" | "email"
	Value  string    `json:"value"`
}

// LeadReachRecord is the workflow's view of a lead: the authoritative status
// plus the fields the workflow reads and writes.
type LeadReachRecord struct {
	ID              uuid.UUID      `json:"id"`
	Status          domain.Status  `json:"status"`
	OwnerName       *string        `json:"ownerName,omitempty"`
	OwnerAbsentee   *bool          `json:"ownerAbsentee,omitempty"`
	EnrichmentError *string        `json:"enrichmentError,omitempty"`
	SkipTraceError  *string        `json:"skipTraceError,omitempty"`
	ContactPoints   []ContactPoint `json:"contactPoints"`
	LastContactedAt *time.Time     `json:"lastContactedAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Interaction is the persisted record of one outreach attempt and its
// human-reported outcome. Re-recording the same interaction id overwrites.
type Interaction struct {
	ID         uuid.UUID      `json:"id"`
	LeadID     uuid.UUID      `json:"leadId"`
	Channel    domain.Channel `json:"channel"`
	Outcome    domain.Outcome `json:"outcome"`
	Note       *string        `json:"note,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// ReachRepository is the persistence boundary for the reach workflow. The
// LeadReachRecord is mutated only through the reach service; other components
// never reach into its fields directly.
type ReachRepository interface {
	Create(ctx context.Context, leadID uuid.UUID) (*LeadReachRecord, error)
	GetByID(ctx context.Context, leadID uuid.UUID) (*LeadReachRecord, error)

	// UpdateStatus performs a compare-and-set from the expected status.
	// Returns false when the stored status no longer matches, which signals
	// a concurrent modification (e.g., another device).
	UpdateStatus(ctx context.Context, leadID uuid.UUID, from, to domain.Status) (bool, error)

	SetOwnerIdentity(ctx context.Context, leadID uuid.UUID, name string, absentee bool) error
	ReplaceContactPoints(ctx context.Context, leadID uuid.UUID, points []ContactPoint) error
	SetStageError(ctx context.Context, leadID uuid.UUID, stage Stage, reason string) error
	ClearStageError(ctx context.Context, leadID uuid.UUID, stage Stage) error
	TouchLastContacted(ctx context.Context, leadID uuid.UUID, at time.Time) error

	UpsertInteraction(ctx context.Context, interaction Interaction) error
	GetInteraction(ctx context.Context, id uuid.UUID) (*Interaction, error)
	ListInteractions(ctx context.Context, leadID uuid.UUID) ([]Interaction, error)
}
