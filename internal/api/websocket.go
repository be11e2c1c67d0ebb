package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gregor-bridge/internal/auth"
	"github.com/nerrad567/gregor-bridge/internal/infrastructure/config"
	"github.com/nerrad567/gregor-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/gregor-bridge/internal/registry"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	// wsSendBufferSize is the per-client outbound queue length.
	wsSendBufferSize = 256

	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30 * time.Second
	defaultWSPongTimeout    = 10 * time.Second
)

// ChannelAll subscribes to every channel.
const ChannelAll = "*"

// Event channels, one per registry event type.
var (
	ChannelSensor = ChannelFor(registry.EventSensor)
	ChannelEntity = ChannelFor(registry.EventEntity)
	ChannelCover  = ChannelFor(registry.EventCover)
	ChannelMode   = ChannelFor(registry.EventMode)
)

// ChannelFor names the channel registry events of type t are sent on.
func ChannelFor(t registry.EventType) string {
	return string(t) + ".changed"
}

// WSMessage is a frame sent to a client, or sent by one.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is the inbound view of WSMessage; the payload is decoded per type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// wsTimings holds the connection limits derived from config.
type wsTimings struct {
	maxMessageSize int64
	pingInterval   time.Duration
	pongWait       time.Duration
}

// readDeadline is how long a connection may stay silent.
func (t wsTimings) readDeadline() time.Time {
	return time.Now().Add(t.pingInterval + t.pongWait)
}

func newWSTimings(cfg config.WebSocketConfig) wsTimings {
	t := wsTimings{
		maxMessageSize: int64(cfg.MaxMessageSize),
		pingInterval:   time.Duration(cfg.PingInterval) * time.Second,
		pongWait:       time.Duration(cfg.PongTimeout) * time.Second,
	}
	if t.maxMessageSize <= 0 {
		t.maxMessageSize = defaultWSMaxMessageSize
	}
	if t.pingInterval <= 0 {
		t.pingInterval = defaultWSPingInterval
	}
	if t.pongWait <= 0 {
		t.pongWait = defaultWSPongTimeout
	}
	return t
}

// Hub fans registry events out to connected WebSocket clients.
//
// A client that cannot keep up loses events rather than slowing the hub;
// losses are counted and reported by /metrics.
type Hub struct {
	timings wsTimings
	logger  *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	dropped atomic.Uint64
}

// NewHub creates a hub. Zero config values take defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		timings: newWSTimings(cfg),
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled and then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "subject", client.subject, "clients", n)
}

// Unregister removes a client and closes its queue. Safe to call after
// closeAll has already removed it.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		client.closeQueue()
		h.logger.Debug("websocket client disconnected", "subject", client.subject, "clients", n)
	}
}

// Broadcast sends payload as an event on channel to every subscribed client.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("failed to encode websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	recipients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.subscribed(channel) {
			recipients = append(recipients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range recipients {
		if !c.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.closeQueue()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// encodeFrame stamps msg with the current time and marshals it.
func encodeFrame(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}

// upgrader accepts any origin; browsers are already filtered by CORS and
// every connection must present a ticket or token.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// relayEvent is the registry handler feeding the hub. A sensor poll that
// repeated the stored value is not relayed.
func (s *Server) relayEvent(ev registry.Event) {
	if ev.Type == registry.EventSensor && !ev.Changed {
		return
	}
	s.hub.Broadcast(ChannelFor(ev.Type), ev)
}

// handleWebSocket upgrades the connection after checking the caller's
// ticket or bearer token.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.authenticateWebSocket(r)
	if !ok {
		writeUnauthorized(w, "valid ticket or bearer token required")
		return
	}
	if !auth.HasPermission(entry.role, auth.PermDeviceRead) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "insufficient permissions")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, entry)
	s.hub.Register(client)

	go client.writeLoop()
	go client.readLoop()
}

// WSClient is one connected WebSocket peer.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn

	subject string
	role    auth.Role

	mu       sync.Mutex
	queue    chan []byte
	closed   bool
	channels map[string]struct{}
}

func newWSClient(hub *Hub, conn *websocket.Conn, entry ticketEntry) *WSClient {
	return &WSClient{
		hub:      hub,
		conn:     conn,
		subject:  entry.subject,
		role:     entry.role,
		queue:    make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
	}
}

// enqueue queues data without blocking. It reports false when the client
// is gone or its queue is full.
func (c *WSClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.queue <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) closeQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, all := c.channels[ChannelAll]; all {
		return true
	}
	_, ok := c.channels[channel]
	return ok
}

func (c *WSClient) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	t := c.hub.timings
	c.conn.SetReadLimit(t.maxMessageSize)
	//nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetReadDeadline(t.readDeadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}

		// Application frames count as liveness too; some browsers never
		// answer protocol pings while a tab is in the background.
		//nolint:errcheck // a failed deadline surfaces as a read error
		c.conn.SetReadDeadline(t.readDeadline())
		c.dispatch(data)
	}
}

func (c *WSClient) writeLoop() {
	t := c.hub.timings
	ticker := time.NewTicker(t.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.queue:
			if !ok {
				//nolint:errcheck // peer may already be gone
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // a failed deadline surfaces as a write error
			c.conn.SetWriteDeadline(time.Now().Add(t.pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // a failed deadline surfaces as a write error
			c.conn.SetWriteDeadline(time.Now().Add(t.pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch handles one inbound frame.
func (c *WSClient) dispatch(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &sub) != nil {
			c.reply(req.ID, WSTypeError, map[string]string{"message": "invalid " + req.Type + " payload"})
			return
		}
		c.reply(req.ID, WSTypeResponse, c.updateChannels(req.Type, sub.Channels))
	default:
		c.reply(req.ID, WSTypeError, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

// updateChannels applies a subscribe or unsubscribe and returns the
// response payload.
func (c *WSClient) updateChannels(op string, channels []string) map[string]any {
	c.mu.Lock()
	for _, ch := range channels {
		if op == WSTypeSubscribe {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	if op == WSTypeSubscribe {
		c.hub.logger.Info("websocket client subscribed", "subject", c.subject, "channels", channels)
		return map[string]any{"subscribed": channels}
	}
	return map[string]any{"unsubscribed": channels}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := encodeFrame(WSMessage{Type: msgType, ID: id, Payload: payload})
	if err != nil {
		return
	}
	c.enqueue(data)
}
