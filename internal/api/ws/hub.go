package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/scenetrack/internal/models"
	"github.com/your-org/scenetrack/internal/observability"
	"github.com/your-org/scenetrack/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Client represents a connected WebSocket client.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	sessionID string // optional filter
}

type message struct {
	sessionID string
	data      []byte
}

// Hub maintains active WebSocket clients, broadcasts live frames and events,
// and remembers the latest frame of every session.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	framesMu sync.RWMutex
	frames   map[string]models.ObjectFrame
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		frames:     make(map[string]models.ObjectFrame),
	}
}

// Run starts the hub event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "filter", client.sessionID)

		case client := <-h.unregister:
			h.drop(client)
			slog.Debug("ws client disconnected")

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for client := range h.clients {
				if client.sessionID != "" && client.sessionID != msg.sessionID {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			// Client buffer full: disconnect
			for _, client := range slow {
				h.drop(client)
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		observability.WSConnections.Dec()
	}
}

// Broadcast queues msg for every client subscribed to its session. Live
// frames are dropped rather than blocking when the hub is backed up.
func (h *Hub) Broadcast(msg *dto.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal ws message", "error", err)
		return
	}
	m := message{sessionID: msg.SessionID, data: data}
	if msg.Type != dto.WSTypeObjects {
		h.broadcast <- m
		return
	}
	select {
	case h.broadcast <- m:
	default:
		slog.Debug("ws hub backed up, dropping frame", "session", msg.SessionID)
	}
}

// PublishFrame records the latest frame for its session and pushes it to clients.
func (h *Hub) PublishFrame(frame models.ObjectFrame) {
	h.framesMu.Lock()
	h.frames[frame.SessionID] = frame
	h.framesMu.Unlock()

	h.Broadcast(&dto.WSMessage{Type: dto.WSTypeObjects, SessionID: frame.SessionID, Frame: &frame})
}

// Latest returns the most recent frame of a session.
func (h *Hub) Latest(sessionID string) (models.ObjectFrame, bool) {
	h.framesMu.RLock()
	defer h.framesMu.RUnlock()
	f, ok := h.frames[sessionID]
	return f, ok
}

// Frames returns the latest frame of every session seen, sorted by session id.
func (h *Hub) Frames() []models.ObjectFrame {
	h.framesMu.RLock()
	out := make([]models.ObjectFrame, 0, len(h.frames))
	for _, f := range h.frames {
		out = append(out, f)
	}
	h.framesMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// ClientCount is the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Forget drops the cached frame of a session.
func (h *Hub) Forget(sessionID string) {
	h.framesMu.Lock()
	delete(h.frames, sessionID)
	h.framesMu.Unlock()
}

// HandleWS handles WebSocket upgrade requests.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:      conn,
		send:      make(chan []byte, 64),
		sessionID: c.Query("session_id"),
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	for {
		// Incoming messages are ignored; reading detects disconnection.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
