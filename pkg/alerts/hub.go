package alerts

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/wicaksono/opsagent/pkg/workflow"
)

// Conn is the duplex connection surface the hub writes to.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one subscriber connection with its filter
type Client struct {
	ID     string
	conn   Conn
	filter Filter
}

// Hub maintains the set of subscriber connections and their filters
// and fans alert events out to the connections whose filter matches.
// A single mutex guards the connection set and the filters together,
// since their join must be atomic.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client

	defaultSeverities []string
	logger            zerolog.Logger
}

// NewHub creates an alert hub. New subscribers start with a filter for
// defaultSeverities (high and critical when empty).
func NewHub(defaultSeverities []string, logger zerolog.Logger) *Hub {
	if len(defaultSeverities) == 0 {
		defaultSeverities = []string{SeverityHigh, SeverityCritical}
	}
	return &Hub{
		clients:           make(map[string]*Client),
		defaultSeverities: defaultSeverities,
		logger:            logger,
	}
}

// Register adds a connection with the default subscription filter
func (h *Hub) Register(conn Conn) *Client {
	id, err := gonanoid.New()
	if err != nil {
		id = uuid.NewString()
	}

	client := &Client{
		ID:     id,
		conn:   conn,
		filter: Filter{Severities: append([]string{}, h.defaultSeverities...)},
	}

	h.mu.Lock()
	h.clients[id] = client
	h.mu.Unlock()

	h.logger.Debug().Str("client_id", id).Msg("Alert subscriber registered")

	return client
}

// Subscribe merges the given filter into the client's existing filter
func (h *Hub) Subscribe(clientID string, filter Filter) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return false
	}
	client.filter.merge(filter)
	return true
}

// FilterOf returns a copy of the client's current filter
func (h *Hub) FilterOf(clientID string) (Filter, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return Filter{}, false
	}
	return client.filter, true
}

// Unregister removes a connection; its filter is destroyed with it
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, clientID)
}

// Count returns the number of connected subscribers
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Broadcast delivers an event to every connection whose filter matches.
// A send failure removes that connection without affecting delivery to
// the others. Writes happen under the hub mutex, so per-connection
// delivery order follows broadcast call order.
func (h *Hub) Broadcast(evt Event) {
	if evt.Type == "" {
		evt.Type = "alert"
	}
	if evt.AlertID == "" {
		evt.AlertID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error().Err(err).Str("alert_type", evt.AlertType).Msg("Failed to marshal alert")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for id, client := range h.clients {
		if !client.filter.matches(evt) {
			continue
		}
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn().
				Err(err).
				Str("client_id", id).
				Msg("Removing alert subscriber after failed send")
			client.conn.Close()
			delete(h.clients, id)
			continue
		}
		delivered++
	}

	h.logger.Debug().
		Str("alert_type", evt.AlertType).
		Str("severity", evt.Severity).
		Int("delivered", delivered).
		Msg("Alert broadcast complete")
}

// WorkflowNotifier bridges workflow state changes into alert events
func (h *Hub) WorkflowNotifier() workflow.Notifier {
	return func(evt workflow.Event) {
		severity := SeverityInfo
		switch evt.Type {
		case workflow.EventFailed:
			severity = SeverityHigh
		case workflow.EventExpired:
			severity = SeverityMedium
		case workflow.EventProposed:
			severity = SeverityLow
		}

		h.Broadcast(Event{
			AlertID:     evt.Request.ID,
			Severity:    severity,
			AlertType:   string(evt.Type),
			Source:      evt.Request.Action,
			Title:       string(evt.Type) + ": " + evt.Request.Action,
			Description: evt.Request.Error,
			Status:      string(evt.Request.Status),
		})
	}
}
