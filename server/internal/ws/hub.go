package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/senseease/senseease/server/internal/alerts"
	"github.com/senseease/senseease/server/internal/api"
	"github.com/senseease/senseease/server/internal/metrics"
	"github.com/senseease/senseease/server/internal/store"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients on every tick.
type Message struct {
	Event string             `json:"event"`
	Data  api.StressResponse `json:"data"`
}

// Hub manages WebSocket clients and pushes each one its session's stress
// view every interval.
type Hub struct {
	store    *store.Store
	alerts   *alerts.Engine
	metrics  *metrics.Metrics
	interval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	session string
	conn    *websocket.Conn
	send    chan []byte
}

// New creates a Hub that evaluates sessions from st against eng every interval.
// m may be nil.
func New(st *store.Store, eng *alerts.Engine, m *metrics.Metrics, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		alerts:   eng,
		metrics:  m,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
}

// Run starts the broadcast ticker loop. Run blocks until ctx is cancelled,
// then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast(ctx)
		}
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// The session query parameter is required. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"session query parameter is required"}`)) //nolint:errcheck
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		session: session,
		conn:    conn,
		send:    make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.unregister(c)

	// Send the current view immediately so the client can render right away.
	if data, err := h.buildMessage(r.Context(), session); err == nil {
		h.mu.RLock()
		if _, ok := h.clients[c]; ok {
			select {
			case c.send <- data:
			default:
			}
		}
		h.mu.RUnlock()
	}

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.StreamClients.Inc()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok && h.metrics != nil {
		h.metrics.StreamClients.Dec()
	}
}

func (h *Hub) broadcast(ctx context.Context) {
	h.mu.RLock()
	bySession := make(map[string][]*client)
	for c := range h.clients {
		bySession[c.session] = append(bySession[c.session], c)
	}
	h.mu.RUnlock()

	// One evaluation per session, however many tabs are watching it.
	for session, targets := range bySession {
		data, err := h.buildMessage(ctx, session)
		if err != nil {
			slog.Warn("ws: evaluate session failed", "session", session, "err", err)
			continue
		}
		var slow []*client
		h.mu.RLock()
		for _, c := range targets {
			if _, ok := h.clients[c]; !ok {
				continue // disconnected since the snapshot; send is closed
			}
			select {
			case c.send <- data:
			default:
				slow = append(slow, c)
			}
		}
		h.mu.RUnlock()
		// Clients whose outgoing buffer is full are disconnected.
		for _, c := range slow {
			h.unregister(c)
		}
	}
}

func (h *Hub) buildMessage(ctx context.Context, session string) ([]byte, error) {
	view, err := api.EvaluateStress(ctx, h.store, h.alerts, h.metrics, session)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: "stress", Data: view})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	n := len(h.clients)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.StreamClients.Sub(float64(n))
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages (pong,
// close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
