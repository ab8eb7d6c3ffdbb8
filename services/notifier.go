package services

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"

	"pvp-room-system/utils/logger"
)

// Publisher is the push channel the room engine talks to. The engine only
// needs fire-and-forget fan-out; delivery guarantees belong to the transport.
type Publisher interface {
	// Broadcast sends an event to every connected client (lobby lists).
	Broadcast(event string, payload interface{})
	// ToRoom sends an event to clients subscribed to a room code.
	ToRoom(roomID, event string, payload interface{})
	// ToUser sends an event to one user's sockets and reports how many
	// connections received it.
	ToUser(userID, event string, payload interface{}) int
}

type wsEnvelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// wsClient is one connected socket with its own buffered send queue.
type wsClient struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	rooms  map[string]bool
	once   sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Errorf("[ws] write to user %s: %v", c.userID, err)
			return
		}
	}
}

// Hub fans room events out to connected websocket clients. One instance per
// process; clients register on upgrade and subscribe to room channels with
// {"action":"subscribe","roomId":...} messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	byUser  map[string][]*wsClient
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*wsClient]bool),
		byUser:  make(map[string][]*wsClient),
	}
}

// Serve is the websocket handler body: it owns the connection until close.
func (h *Hub) Serve(conn *websocket.Conn, userID string) {
	client := &wsClient{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, 32),
		rooms:  make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.byUser[userID] = append(h.byUser[userID], client)
	h.mu.Unlock()

	go client.writePump()
	logger.Infof("[ws] user %s connected", userID)

	defer h.remove(client)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("[ws] read from user %s: %v", userID, err)
			}
			return
		}

		var data struct {
			Action string `json:"action"`
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(message, &data); err != nil {
			continue
		}
		switch data.Action {
		case "subscribe":
			h.mu.Lock()
			client.rooms[data.RoomID] = true
			h.mu.Unlock()
		case "unsubscribe":
			h.mu.Lock()
			delete(client.rooms, data.RoomID)
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	delete(h.clients, client)
	conns := h.byUser[client.userID]
	for i, c := range conns {
		if c == client {
			h.byUser[client.userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.byUser[client.userID]) == 0 {
		delete(h.byUser, client.userID)
	}
	h.mu.Unlock()
	client.close()
}

func encode(event string, payload interface{}) []byte {
	buf, err := json.Marshal(wsEnvelope{Event: event, Payload: payload})
	if err != nil {
		logger.Errorf("[ws] encode %s: %v", event, err)
		return nil
	}
	return buf
}

func deliver(c *wsClient, msg []byte) {
	select {
	case c.send <- msg:
	default:
		// Slow consumer: drop rather than block the engine.
	}
}

func (h *Hub) Broadcast(event string, payload interface{}) {
	msg := encode(event, payload)
	if msg == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		deliver(c, msg)
	}
}

func (h *Hub) ToRoom(roomID, event string, payload interface{}) {
	msg := encode(event, payload)
	if msg == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.rooms[roomID] {
			deliver(c, msg)
		}
	}
}

func (h *Hub) ToUser(userID, event string, payload interface{}) int {
	msg := encode(event, payload)
	if msg == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.byUser[userID] {
		deliver(c, msg)
	}
	return len(h.byUser[userID])
}
