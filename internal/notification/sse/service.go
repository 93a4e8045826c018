// Package sse provides Server-Sent Events support for real-time workflow
// updates. Clients subscribe per user and optionally filter to a single
// lead; status changes, queued mutations, and reconciliations are pushed as
// they happen.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"

	"reachflow/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventStatusChanged       EventType = "status_changed"
	EventMutationQueued      EventType = "mutation_queued"
	EventConflictReconciled  EventType = "conflict_reconciled"
	EventInteractionRecorded EventType = "interaction_recorded"
)

// Event represents an SSE event payload
type Event struct {
	Type    EventType   `json:"type"`
	LeadID  uuid.UUID   `json:"leadId,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// client represents a connected SSE client. A nil leadID receives every
// event; otherwise only events for that lead.
type client struct {
	userID uuid.UUID
	leadID uuid.UUID
	events chan Event
}

// Service manages SSE connections and event broadcasting
type Service struct {
	log *logger.Logger

	mu      sync.RWMutex
	clients []*client
}

// New creates a new SSE service
func New(log *logger.Logger) *Service {
	return &Service{log: log}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = append(s.clients, c)
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, cl := range s.clients {
		if cl == c {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			break
		}
	}
	close(c.events)
}

// Publish sends an event to every client watching the event's lead.
func (s *Service) Publish(event Event) {
	s.mu.RLock()
	clients := append([]*client(nil), s.clients...)
	s.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if c.leadID != uuid.Nil && c.leadID != event.LeadID {
			continue
		}
		select {
		case c.events <- event:
			delivered++
		default:
			s.log.Warn("sse event buffer full, dropping", "user_id", c.userID.String(), "event", string(event.Type))
		}
	}

	s.log.Debug("sse event published", "event", string(event.Type), "lead_id", event.LeadID.String(), "clients", delivered)
}

// Handler returns a Gin handler for SSE connections. An optional leadId
// query parameter narrows the stream to one lead.
func (s *Service) Handler(getUserID func(*gin.Context) (uuid.UUID, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var leadID uuid.UUID
		if raw := c.Query("leadId"); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid leadId"})
				return
			}
			leadID = parsed
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{
			userID: userID,
			leadID: leadID,
			events: make(chan Event, 32),
		}
		s.addClient(cl)
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"userId": userID})
		c.Writer.Flush()

		s.log.Debug("sse client connected", "user_id", userID.String())

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				s.log.Debug("sse client disconnected", "user_id", userID.String())
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close shuts down the SSE service
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		close(c.events)
	}
	s.clients = nil
}
