// Package websocket streams gateway events to operator dashboards.
package websocket

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/raaihank/pii-gateway/internal/config"
	"github.com/raaihank/pii-gateway/internal/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer
	maxMessageSize = 512
	// Events buffered per client before it is dropped as too slow
	clientBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HubConfig contains configuration for the WebSocket hub
type HubConfig struct {
	BroadcastRedactions    bool
	BroadcastAuditFailures bool
	BroadcastSystem        bool
	BroadcastConnections   bool
	// Username enables HTTP basic auth on the upgrade when non-empty.
	Username string
	Password string
}

// HubConfigFrom maps the websocket configuration section.
func HubConfigFrom(cfg config.WebSocketConfig) HubConfig {
	return HubConfig{
		BroadcastRedactions:    cfg.Events.BroadcastRedactions,
		BroadcastAuditFailures: cfg.Events.BroadcastAuditFailures,
		BroadcastSystem:        cfg.Events.BroadcastSystem,
		BroadcastConnections:   cfg.Events.BroadcastConnections,
		Username:               cfg.Username,
		Password:               cfg.Password,
	}
}

// Client is one connected dashboard.
type Client struct {
	ID          string
	IP          string
	UserAgent   string
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan Event

	mu     sync.RWMutex
	events map[EventType]bool // nil means every type
}

func (c *Client) wants(t EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events == nil || c.events[t]
}

func (c *Client) subscribe(types []EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(types) == 0 {
		c.events = nil
		return
	}
	c.events = make(map[EventType]bool, len(types))
	for _, t := range types {
		c.events[t] = true
	}
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections  int64     `json:"total_connections"`
	ActiveConnections int64     `json:"active_connections"`
	TotalMessages     int64     `json:"total_messages"`
	TotalBroadcasts   int64     `json:"total_broadcasts"`
	DroppedEvents     int64     `json:"dropped_events"`
	LastBroadcastTime time.Time `json:"last_broadcast_time"`
}

type envelope struct {
	event   Event
	exclude *Client
	only    *Client
}

// Hub fans events out to connected clients. Only the Run goroutine touches
// the client set.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	config HubConfig
	logger *logger.Logger

	mu    sync.RWMutex
	stats HubStats
}

// NewHub creates a new WebSocket hub
func NewHub(cfg HubConfig, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     cfg,
		logger:     log.WithComponent("websocket"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket hub")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.clients[client] = true
			h.updateStats(func(s *HubStats) {
				s.TotalConnections++
				s.ActiveConnections = int64(len(h.clients))
			})
			h.logger.Info("Client connected",
				zap.String("client_id", client.ID),
				zap.String("client_ip", client.IP),
				zap.Int("active_connections", len(h.clients)),
			)
			h.enqueue(h.connectionEvent("connected", client), client)

		case client := <-h.unregister:
			if !h.clients[client] {
				continue
			}
			h.drop(client)
			h.logger.Info("Client disconnected",
				zap.String("client_id", client.ID),
				zap.Int("active_connections", len(h.clients)),
			)
			h.enqueue(h.connectionEvent("disconnected", client), nil)

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.updateStats(func(s *HubStats) { s.ActiveConnections = int64(len(h.clients)) })
}

func (h *Hub) deliver(env envelope) {
	if env.only != nil {
		if h.clients[env.only] {
			select {
			case env.only.send <- env.event:
			default:
			}
		}
		return
	}

	sent := int64(0)
	for client := range h.clients {
		if client == env.exclude || !client.wants(env.event.Type) {
			continue
		}
		select {
		case client.send <- env.event:
			sent++
		default:
			h.logger.Warn("Client send buffer full, closing connection", zap.String("client_id", client.ID))
			h.drop(client)
		}
	}
	h.updateStats(func(s *HubStats) {
		s.TotalBroadcasts++
		s.TotalMessages += sent
		s.LastBroadcastTime = time.Now()
	})
}

func (h *Hub) connectionEvent(action string, client *Client) Event {
	return Event{
		Type:      EventTypeConnection,
		Timestamp: time.Now(),
		Data: ConnectionEvent{
			Action:    action,
			ClientID:  client.ID,
			ClientIP:  client.IP,
			UserAgent: client.UserAgent,
			Message:   fmt.Sprintf("Client %s %s", client.ID, action),
		},
	}
}

// BroadcastEvent sends an event to all connected clients if its type is
// enabled. It never blocks; events are dropped when the hub is behind.
func (h *Hub) BroadcastEvent(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	h.enqueue(event, nil)
}

func (h *Hub) enqueue(event Event, exclude *Client) {
	if !h.shouldBroadcastEvent(event.Type) {
		return
	}
	select {
	case h.broadcast <- envelope{event: event, exclude: exclude}:
	default:
		h.updateStats(func(s *HubStats) { s.DroppedEvents++ })
		h.logger.Warn("Broadcast channel full, dropping event", zap.String("event_type", string(event.Type)))
	}
}

// shouldBroadcastEvent checks if an event type should be broadcast based on configuration
func (h *Hub) shouldBroadcastEvent(eventType EventType) bool {
	switch eventType {
	case EventTypeRedaction:
		return h.config.BroadcastRedactions
	case EventTypeAuditFailure:
		return h.config.BroadcastAuditFailures
	case EventTypeSystemStatus:
		return h.config.BroadcastSystem
	case EventTypeConnection:
		return h.config.BroadcastConnections
	default:
		return false
	}
}

// HandleWebSocket upgrades the request and attaches the client. Run must be
// serving.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.config.Username != "" && !h.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="pii-gateway"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		IP:          clientIP(r),
		UserAgent:   r.UserAgent(),
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan Event, clientBuffer),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) authorized(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.config.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.config.Password)) == 1
	return userOK && passOK
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				h.logger.Debug("Failed to write WebSocket message",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket read error", zap.String("client_id", client.ID), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			client.subscribe(msg.Events)
			h.logger.Debug("Client subscription updated",
				zap.String("client_id", client.ID),
				zap.Int("event_types", len(msg.Events)),
			)
		case "ping":
			pong := Event{Type: EventTypePong, Timestamp: time.Now(), Data: map[string]string{"message": "pong"}}
			select {
			case h.broadcast <- envelope{event: pong, only: client}:
			default:
			}
		}
	}
}

func (h *Hub) updateStats(fn func(*HubStats)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.stats)
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
