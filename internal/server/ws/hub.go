// Package ws bridges the Redis signal bus to WebSocket clients so frontends
// can follow resolution events live.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openquorum/resolved/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// topicChannelPrefix is the pub/sub namespace the resolution service
// publishes events on, one channel per topic.
const topicChannelPrefix = "resolution:topic:"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS middleware in front of /ws.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one WebSocket connection with its topic subscription set.
// An empty set means the client follows every topic.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	topics map[string]bool
}

// subscribeMsg is the JSON frame a client sends to narrow or widen its
// topic set. An empty topic list with action "subscribe" resets to all
// topics.
type subscribeMsg struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// envelope is the frame format delivered to clients.
type envelope struct {
	Type    string          `json:"type"`
	TopicID string          `json:"topic_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans resolution events from the signal bus out to connected clients.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	inbound    chan event
	register   chan *client
	unregister chan *client

	mode      string
	startedAt time.Time
}

// event is one resolution event tagged with its topic.
type event struct {
	topicID string
	data    []byte
}

// Config captures runtime metadata for the status frame sent on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// NewHub creates a hub reading from the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &Hub{
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws")),
		clients:    make(map[*client]bool),
		inbound:    make(chan event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		mode:       mode,
		startedAt:  startedAt,
	}
}

// Run consumes the topic event channels and dispatches to clients until the
// context is cancelled. Call in a goroutine.
func (h *Hub) Run(ctx context.Context) error {
	go h.consumeBus(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("clients", n))

		case ev := <-h.inbound:
			h.dispatch(ev)
		}
	}
}

// consumeBus subscribes to the topic channel pattern and feeds events into
// the hub loop, tagged with the topic ID parsed from the channel name.
func (h *Hub) consumeBus(ctx context.Context) {
	msgs, err := h.bus.Subscribe(ctx, topicChannelPrefix+"*")
	if err != nil {
		h.logger.Error("bus subscribe failed", slog.String("error", err.Error()))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("bus subscription closed")
				return
			}
			h.inbound <- event{topicID: topicIDOf(data), data: data}
		}
	}
}

// topicIDOf pulls the topic ID out of an event payload. Events always carry
// topic_id; a payload that does not parse is broadcast to everyone.
func topicIDOf(data []byte) string {
	var probe struct {
		TopicID string `json:"topic_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.TopicID
}

// dispatch wraps the event in an envelope and sends it to every client
// following the topic. Slow clients drop frames rather than stall the loop.
func (h *Hub) dispatch(ev event) {
	frame, err := json.Marshal(envelope{
		Type:    "resolution_event",
		TopicID: ev.topicID,
		Payload: ev.data,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.follows(ev.topicID) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping frame for slow client", slog.String("topic_id", ev.topicID))
		}
	}
}

// HandleWS upgrades the request and registers the connection.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: make(map[string]bool),
	}

	h.register <- c
	c.sendStatus()

	go c.writePump()
	go c.readPump()
}

// readPump consumes subscription frames until the connection drops.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.apply(sub)
		}
	}
}

// apply updates the client's topic set from a subscription frame.
func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		if len(msg.Topics) == 0 {
			c.topics = make(map[string]bool)
			return
		}
		for _, id := range msg.Topics {
			c.topics[id] = true
		}
	case "unsubscribe":
		for _, id := range msg.Topics {
			delete(c.topics, id)
		}
	}
}

// follows reports whether the client should receive events for topicID.
func (c *client) follows(topicID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.topics) == 0 || topicID == "" {
		return true
	}
	return c.topics[topicID]
}

// sendStatus pushes a status frame so clients can mark the connection
// healthy before any resolution event flows.
func (c *client) sendStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	payload, err := json.Marshal(map[string]any{
		"mode":           c.hub.mode,
		"uptime_seconds": uptime,
	})
	if err != nil {
		return
	}
	frame, err := json.Marshal(envelope{Type: "service_status", Payload: payload})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// writePump writes frames and keepalive pings until the connection drops.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
