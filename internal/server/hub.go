package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/vaultwiz/internal/controller"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// StateSource is the part of the controller the hub streams from.
type StateSource interface {
	State() controller.State
	Subscribe(fn func()) (unsubscribe func())
}

// Hub pushes a JSON state snapshot to every connected websocket client
// whenever the controller notifies. Bursts of notifications are coalesced:
// a slow client only ever sees the latest state.
type Hub struct {
	source   StateSource
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	clients     map[*wsClient]struct{}
	closed      bool
	unsubscribe func()
}

type wsClient struct {
	conn    *websocket.Conn
	changes chan struct{}
}

// NewHub subscribes to source and returns a hub ready to serve /ws.
func NewHub(source StateSource, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		source:  source,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			// The server listens on localhost for a local browser client.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	h.unsubscribe = source.Subscribe(h.broadcast)
	return h
}

// broadcast marks every client as stale without blocking the notifier.
func (h *Hub) broadcast() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.changes <- struct{}{}:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams state until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &wsClient{conn: conn, changes: make(chan struct{}, 1)}
	if !h.register(c) {
		return
	}
	defer h.unregister(c)
	h.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	// Incoming messages are ignored; the read loop only notices disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.send(c); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case _, ok := <-c.changes:
			if !ok {
				return
			}
			if err := h.send(c); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (h *Hub) send(c *wsClient) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(h.source.State())
}

func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.changes)
	}
}

// Close stops listening to the controller and disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.changes)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
	}
	h.mu.Unlock()
	h.unsubscribe()
}
