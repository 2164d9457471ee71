package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types pushed to WebSocket subscribers
const (
	EventPipeCreated = "pipe.created"
	EventPipeUpdated = "pipe.updated"
	EventPipeDeleted = "pipe.deleted"
)

// Event describes a change to a stored pipe
type Event struct {
	Type      string `json:"type"`
	PipeID    string `json:"pipe_id"`
	Version   int64  `json:"version,omitempty"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

const writeTimeout = 10 * time.Second

// Hub fans pipe change events out to connected WebSocket clients
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
	closed  bool
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API carries no credentials and events are not sensitive
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// HandleUpgrade upgrades an HTTP request to a WebSocket subscription
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "clients", count)

	// Drain the read side to detect disconnects; subscribers never send
	// application data.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends an event to all connected clients. Clients that fail to
// accept the write are dropped.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal failed", "error", err)
		return
	}

	h.mu.Lock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, writeMu := range h.clients {
		conns[conn] = writeMu
	}
	h.mu.Unlock()

	for conn, writeMu := range conns {
		writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteMessage(websocket.TextMessage, data)
		writeMu.Unlock()

		if err != nil {
			h.logger.Debug("websocket write failed, dropping client", "error", err)
			h.remove(conn)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients and rejects new subscriptions
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()

	if ok {
		conn.Close()
	}
}
