// Package transport defines the request and response shapes of the reach
// workflow HTTP API.
package transport

import (
	"encoding/json"

	"reachflow/internal/reach/repository"
)

// TransitionRequest asks for one workflow action on a lead. Payload is
// passed through to the remote job for the submit actions and ignored
// otherwise.
type TransitionRequest struct {
	Action  string          `json:"action" validate:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutcomeRequest reports the human-observed result of one outreach attempt.
type OutcomeRequest struct {
	Channel string  `json:"channel" validate:"required,oneof=call text email"`
	Outcome string  `json:"outcome" validate:"required"`
	Note    *string `json:"note,omitempty" validate:"omitempty,max=2000"`
}

// ConnectivityRequest toggles the caller-signaled connectivity flag.
type ConnectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}

type CanTransitionResponse struct {
	Action  string `json:"action"`
	Allowed bool   `json:"allowed"`
}

type StatusResponse struct {
	LeadID string `json:"leadId"`
	Status string `json:"status"`
}

type OutcomeChoicesResponse struct {
	Channel  string   `json:"channel"`
	Outcomes []string `json:"outcomes"`
}

type ConnectivityResponse struct {
	Online bool `json:"online"`
}

type PendingMutationsResponse struct {
	LeadID  string `json:"leadId"`
	Pending int    `json:"pending"`
}

type InteractionListResponse struct {
	Interactions []repository.Interaction `json:"interactions"`
	Total        int                      `json:"total"`
}
