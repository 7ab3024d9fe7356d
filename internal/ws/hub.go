// README: WebSocket hub. Clients identify themselves with a register message
// and join per-ride rooms; services push events through EmitToRide/EmitToUser.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"leaflift/internal/types"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 8192
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins once the client domains are settled.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one WebSocket connection. UserID and the ride room are set by the
// client's own register/join messages.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID types.ID
	rideID types.ID
}

type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	rooms      map[types.ID]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[types.ID]map[*Client]bool),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		log:        log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				h.leaveRoomLocked(c)
				close(c.send)
			}
			h.mu.Unlock()
		}
	}
}

// EmitToRide pushes an event to every client in the ride's room. Events are
// best effort; a client with a full send buffer is dropped.
func (h *Hub) EmitToRide(rideID types.ID, event string, payload any) {
	msg, err := marshalEvent(event, payload)
	if err != nil {
		h.log.Error("websocket event marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[rideID] {
		h.deliverLocked(c, msg)
	}
}

// EmitToUser pushes an event to every connection registered for the user.
func (h *Hub) EmitToUser(userID types.ID, event string, payload any) {
	msg, err := marshalEvent(event, payload)
	if err != nil {
		h.log.Error("websocket event marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.userID == userID {
			h.deliverLocked(c, msg)
		}
	}
}

func (h *Hub) deliverLocked(c *Client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		h.leaveRoomLocked(c)
		close(c.send)
		h.log.Warn("websocket client dropped, send buffer full", zap.String("user_id", string(c.userID)))
	}
}

func (h *Hub) leaveRoomLocked(c *Client) {
	if c.rideID == "" {
		return
	}
	if room, ok := h.rooms[c.rideID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.rideID)
		}
	}
	c.rideID = ""
}

func marshalEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(map[string]any{"event": event, "data": payload})
}

// ServeWS upgrades the request and starts the connection's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register <- c
	go c.writePump()
	go c.readPump()
}

type clientMessage struct {
	Type   string   `json:"type"`
	UserID types.ID `json:"userId,omitempty"`
	RideID types.ID `json:"rideId,omitempty"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.log.Warn("websocket message parse failed", zap.Error(err))
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg clientMessage) {
	h := c.hub
	switch msg.Type {
	case "register":
		if msg.UserID == "" {
			return
		}
		h.mu.Lock()
		c.userID = msg.UserID
		h.mu.Unlock()
	case "join:ride":
		if msg.RideID == "" {
			return
		}
		h.mu.Lock()
		h.leaveRoomLocked(c)
		room, ok := h.rooms[msg.RideID]
		if !ok {
			room = make(map[*Client]bool)
			h.rooms[msg.RideID] = room
		}
		room[c] = true
		c.rideID = msg.RideID
		h.mu.Unlock()
	case "leave:ride":
		h.mu.Lock()
		h.leaveRoomLocked(c)
		h.mu.Unlock()
	default:
		h.log.Debug("websocket message ignored", zap.String("type", msg.Type))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
