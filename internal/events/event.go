// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"reachflow/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Reach Workflow Events
// =============================================================================

// ReachStatusChanged is published whenever a lead's reach status moves,
// whether from a confirmed server write, an optimistic offline update, or a
// reconciliation.
type ReachStatusChanged struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	Source    string    `json:"source"` // "online", "offline", "reconcile"
}

func (e ReachStatusChanged) EventName() string { return "reach.status.changed" }

// ReachMutationQueued is published when an intent is appended to the offline
// mutation queue instead of being applied directly.
type ReachMutationQueued struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	MutationID uuid.UUID `json:"mutationId"`
	Kind       string    `json:"kind"`
}

func (e ReachMutationQueued) EventName() string { return "reach.mutation.queued" }

// ReachConflictReconciled is published when an offline mutation was
// superseded by server state and discarded during the drain.
type ReachConflictReconciled struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	MutationID   uuid.UUID `json:"mutationId"`
	LocalStatus  string    `json:"localStatus"`
	ServerStatus string    `json:"serverStatus"`
}

func (e ReachConflictReconciled) EventName() string { return "reach.conflict.reconciled" }

// InteractionRecorded is published when an outreach outcome is persisted.
type InteractionRecorded struct {
	BaseEvent
	LeadID        uuid.UUID `json:"leadId"`
	InteractionID uuid.UUID `json:"interactionId"`
	Channel       string    `json:"channel"`
	Outcome       string    `json:"outcome"`
}

func (e InteractionRecorded) EventName() string { return "reach.interaction.recorded" }
