// Package realtime fans stored interaction logs out to live subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/semihsipahi/climblearn-api/internal/domain"
)

// EventNewInteraction is the event type sent for every stored interaction log.
const EventNewInteraction = "new_interaction"

const (
	clientBuffer = 32
	writeTimeout = 5 * time.Second
)

// Event is the JSON envelope written to dashboard subscribers.
type Event struct {
	Type string                `json:"type"`
	Data domain.InteractionLog `json:"data"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the admin dashboard websocket connections and broadcasts
// interaction events to them. A subscriber whose buffer is full misses the
// event; producers never wait on a slow reader.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	originPatterns []string
	logger         *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a Hub. originPatterns is passed to websocket.Accept; an
// empty list allows only same-origin upgrades.
func NewHub(originPatterns []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:        make(map[string]*client),
		originPatterns: originPatterns,
		logger:         logger,
		done:           make(chan struct{}),
	}
}

// Publish broadcasts entry as a new_interaction event.
func (h *Hub) Publish(ctx context.Context, entry domain.InteractionLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := json.Marshal(Event{Type: EventNewInteraction, Data: entry})
	if err != nil {
		return fmt.Errorf("marshal interaction event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping interaction event for slow subscriber", "client_id", c.id, "log_id", entry.ID)
		}
	}
	return nil
}

// Subscribers returns the number of connected dashboard clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	h.logger.Info("Dashboard subscriber registered", "client_id", c.id, "subscribers", len(h.clients))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		h.logger.Info("Dashboard subscriber unregistered", "client_id", c.id, "subscribers", len(h.clients))
	}
}

// ServeHTTP upgrades the request to a websocket and streams events until the
// client goes away or the hub is closed. Messages from the client are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}
	h.register(c)
	defer h.unregister(c)

	// CloseRead discards incoming frames and cancels ctx once the peer closes.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-h.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case msg := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				h.logger.Debug("WebSocket write error", "client_id", c.id, "error", err)
				return
			}
		}
	}
}

// Close disconnects every subscriber. Safe to call more than once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}
