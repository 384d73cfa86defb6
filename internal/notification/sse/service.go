// Package sse provides Server-Sent Events support for real-time deal updates.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"

	"salesflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventDealUpserted      EventType = "deal_upserted"
	EventDealDeleted       EventType = "deal_deleted"
	EventStageChanged      EventType = "stage_changed"
	EventQuotationDetected EventType = "quotation_detected"
)

// Event represents an SSE event payload
type Event struct {
	Type    EventType   `json:"type"`
	DealID  string      `json:"dealId,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// client represents a connected SSE client. An empty dealID receives
// every event.
type client struct {
	id     uuid.UUID
	dealID string
	events chan Event
}

// Service manages SSE connections and event broadcasting
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	closed  bool
	log     *logger.Logger
}

// New creates a new SSE service
func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[uuid.UUID]*client),
		log:     log,
	}
}

// addClient registers a new client connection
func (s *Service) addClient(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c.id] = c
	return true
}

// removeClient unregisters a client connection
func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; !ok {
		return
	}
	delete(s.clients, c.id)
	close(c.events)
}

// ClientCount returns the number of connected clients.
func (s *Service) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Publish sends an event to every client watching all deals or the
// event's deal. Slow clients drop events rather than block the sender.
func (s *Service) Publish(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := 0
	for _, c := range s.clients {
		if c.dealID != "" && c.dealID != event.DealID {
			continue
		}
		select {
		case c.events <- event:
			delivered++
		default:
			s.log.Warn("sse buffer full, dropping event", "client_id", c.id, "event", event.Type)
		}
	}
	s.log.Debug("sse event published", "event", event.Type, "deal_id", event.DealID, "clients", delivered)
}

// Handler returns a Gin handler for SSE connections. The optional dealId
// query parameter narrows the stream to one deal.
func (s *Service) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cl := &client{
			id:     uuid.New(),
			dealID: c.Query("dealId"),
			events: make(chan Event, 32),
		}
		if !s.addClient(cl) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
			return
		}
		defer s.removeClient(cl)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		c.SSEvent("connected", gin.H{"clientId": cl.id, "dealId": cl.dealID})
		c.Writer.Flush()

		s.log.Debug("sse client connected", "client_id", cl.id, "deal_id", cl.dealID)

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				s.log.Debug("sse client disconnected", "client_id", cl.id)
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

// Close disconnects every client and rejects new ones.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, c := range s.clients {
		close(c.events)
		delete(s.clients, id)
	}
}
