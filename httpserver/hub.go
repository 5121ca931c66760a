package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket message types.
const (
	MessageSession       = "session"
	MessageBinding       = "binding"
	MessageNotifications = "notifications"
	MessageCatalog       = "catalog"
	MessageNavigate      = "navigate"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 54 * time.Second
	maxMessageQueue = 256
)

// ErrClientBufferFull is logged when a slow client misses a message.
var ErrClientBufferFull = errors.New("client buffer is full")

// Message is one frame of the /ws stream.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Navigation is the payload of a navigate message.
type Navigation struct {
	Route  string            `json:"route"`
	Params map[string]string `json:"params"`
}

// Hub fans publications out to WebSocket clients.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[*wsClient]struct{}
	snapshot func() []Message
	closed   bool
}

// NewHub creates a hub. snapshot, if set, produces the messages every new
// client receives first.
func NewHub(log *slog.Logger, snapshot func() []Message) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:  make(map[*wsClient]struct{}),
		snapshot: snapshot,
	}
}

// SetSnapshot replaces the snapshot function.
func (h *Hub) SetSnapshot(snapshot func() []Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = snapshot
}

// Forward returns a listener broadcasting every value it receives as msgType.
func Forward[T any](h *Hub, msgType string) func(T) {
	return func(v T) {
		h.Broadcast(msgType, v)
	}
}

// Navigate broadcasts a navigation request; the hub is the client's Navigator.
func (h *Hub) Navigate(route string, params map[string]string) {
	h.Broadcast(MessageNavigate, Navigation{Route: route, Params: params})
}

// Broadcast sends a message to every connected client. Clients whose queue
// is full miss the message.
func (h *Hub) Broadcast(msgType string, data interface{}) {
	encoded, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		h.log.Error("Failed to encode message", slog.String("type", msgType), "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if err := c.enqueue(encoded); err != nil {
			h.log.Warn("Dropping message for slow client", slog.String("type", msgType), "err", err)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams messages until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "err", err)
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, maxMessageQueue)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	// the snapshot is queued before the client can receive broadcasts
	if h.snapshot != nil {
		for _, msg := range h.snapshot() {
			encoded, err := json.Marshal(msg)
			if err != nil {
				h.log.Error("Failed to encode snapshot", slog.String("type", msg.Type), "err", err)
				continue
			}
			if err := c.enqueue(encoded); err != nil {
				h.log.Warn("Dropping snapshot message", slog.String("type", msg.Type), "err", err)
			}
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Debug("WebSocket client connected", slog.String("remote", r.RemoteAddr))

	go c.writePump()
	c.readPump()
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// enqueue must be called with the hub lock held so close cannot race it.
func (c *wsClient) enqueue(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return ErrClientBufferFull
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		c.hub.remove(c)
		close(c.send)
	})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Debug("WebSocket write failed", "err", err)
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readPump discards client messages; it exists to process control frames
// and notice disconnects.
func (c *wsClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("Unexpected WebSocket close", "err", err)
			}
			return
		}
	}
}
