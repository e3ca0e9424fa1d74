package api

import (
	"encoding/json"
	"sync"
	"time"

	"hilo/internal/room"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Hub tracks WebSocket clients per room and fans room events out to them.
// It implements room.Publisher.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]bool
	logger  *zap.Logger
	stopped bool
}

// Client is one WebSocket connection, bound to a single player in a single
// room for its whole life.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	roomID   string
	username string
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[string]map[*Client]bool),
		logger: logger,
	}
}

func newClient(h *Hub, conn *websocket.Conn, roomID, username string) *Client {
	return &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		roomID:   roomID,
		username: username,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		close(c.send)
		return
	}
	clients, ok := h.rooms[c.roomID]
	if !ok {
		clients = make(map[*Client]bool)
		h.rooms[c.roomID] = clients
	}
	clients[c] = true
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[c.roomID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.rooms, c.roomID)
	}
}

// Publish sends ev to every client subscribed to roomID. Slow clients whose
// buffer is full miss the event.
func (h *Hub) Publish(roomID string, ev room.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping event for slow client",
				zap.String("room_id", roomID),
				zap.String("username", c.username),
				zap.String("type", ev.Type))
		}
	}
}

// Subscribers returns how many clients are connected to roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Stop disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for roomID, clients := range h.rooms {
		for c := range clients {
			close(c.send)
		}
		delete(h.rooms, roomID)
	}
}

// Send queues ev for this client only.
func (c *Client) Send(ev room.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.rooms[c.roomID][c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) WritePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// ReadPump hands every inbound message to handle until the connection
// closes.
func (c *Client) ReadPump(handle func(c *Client, message []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket closed",
					zap.String("room_id", c.roomID),
					zap.String("username", c.username),
					zap.Error(err))
			}
			return
		}
		handle(c, message)
	}
}
