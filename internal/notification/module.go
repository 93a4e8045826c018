// Package notification fans workflow events out to connected clients over
// Server-Sent Events. It subscribes to the domain event bus and owns the
// /reach/events stream endpoint.
package notification

import (
	"context"

	"reachflow/internal/events"
	apphttp "reachflow/internal/http"
	"reachflow/internal/notification/sse"
	"reachflow/platform/httpkit"
	"reachflow/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Module owns the SSE service and its event subscriptions.
type Module struct {
	sse *sse.Service
	log *logger.Logger
}

func New(log *logger.Logger) *Module {
	return &Module{
		sse: sse.New(log),
		log: log,
	}
}

// SSE returns the underlying service for modules that push directly.
func (m *Module) SSE() *sse.Service {
	return m.sse
}

// RegisterHandlers subscribes the module to the workflow events it streams.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ReachStatusChanged{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.ReachStatusChanged)
		if !ok {
			return nil
		}
		m.sse.Publish(sse.Event{
			Type:   sse.EventStatusChanged,
			LeadID: e.LeadID,
			Data: map[string]interface{}{
				"oldStatus": e.OldStatus,
				"newStatus": e.NewStatus,
				"source":    e.Source,
			},
		})
		return nil
	}))

	bus.Subscribe(events.ReachMutationQueued{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.ReachMutationQueued)
		if !ok {
			return nil
		}
		m.sse.Publish(sse.Event{
			Type:   sse.EventMutationQueued,
			LeadID: e.LeadID,
			Data: map[string]interface{}{
				"mutationId": e.MutationID,
				"kind":       e.Kind,
			},
		})
		return nil
	}))

	bus.Subscribe(events.ReachConflictReconciled{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.ReachConflictReconciled)
		if !ok {
			return nil
		}
		m.sse.Publish(sse.Event{
			Type:    sse.EventConflictReconciled,
			LeadID:  e.LeadID,
			Message: "queued change was superseded by the server",
			Data: map[string]interface{}{
				"mutationId":   e.MutationID,
				"localStatus":  e.LocalStatus,
				"serverStatus": e.ServerStatus,
			},
		})
		return nil
	}))

	bus.Subscribe(events.InteractionRecorded{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.InteractionRecorded)
		if !ok {
			return nil
		}
		m.sse.Publish(sse.Event{
			Type:   sse.EventInteractionRecorded,
			LeadID: e.LeadID,
			Data: map[string]interface{}{
				"interactionId": e.InteractionID,
				"channel":       e.Channel,
				"outcome":       e.Outcome,
			},
		})
		return nil
	}))
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// RegisterRoutes mounts the SSE stream endpoint.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/reach/events", m.sse.Handler(func(c *gin.Context) (uuid.UUID, bool) {
		value, ok := c.Get(httpkit.ContextUserIDKey)
		if !ok {
			return uuid.Nil, false
		}
		userID, ok := value.(uuid.UUID)
		return userID, ok
	}))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
