package handlers

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/breathe-dev/breathe/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// allRooms is the hub key for clients that did not ask for a room.
const allRooms = ""

// wsClient owns one connection. Only writePump writes to conn.
type wsClient struct {
	conn *websocket.Conn
	send chan any
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn, send: make(chan any, sendBuffer)}
}

// enqueue never blocks; false means the client fell too far behind.
func (c *wsClient) enqueue(v any) bool {
	select {
	case c.send <- v:
		return true
	default:
		return false
	}
}

// writePump drains send and keeps the connection alive with pings until
// done is closed or a write fails.
func (c *wsClient) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type readingMessage struct {
	Type string `json:"type"`
	services.Reading
}

// Hub fans recorded readings out to websocket clients, keyed by room.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*wsClient]bool
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))

	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return &Hub{
		clients: make(map[string]map[*wsClient]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
		logger: logger,
	}
}

// BroadcastReading queues the reading for its room's clients and for every
// client watching all rooms. It never waits on a socket; a client whose
// queue is full is disconnected.
func (hub *Hub) BroadcastReading(reading services.Reading) {
	keys := []string{allRooms}

	if reading.RoomID != nil {
		keys = append(keys, roomKey(*reading.RoomID))
	}

	msg := readingMessage{Type: "reading", Reading: reading}

	for _, key := range keys {
		for _, client := range hub.snapshot(key) {
			if !client.enqueue(msg) {
				hub.logger.Debug("dropping slow websocket client", zap.String("room", key))
				hub.remove(key, client)
			}
		}
	}
}

// ClientCount is the number of connected clients for a room key.
func (hub *Hub) ClientCount(key string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	return len(hub.clients[key])
}

func (hub *Hub) snapshot(key string) []*wsClient {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	clients := make([]*wsClient, 0, len(hub.clients[key]))

	for client := range hub.clients[key] {
		clients = append(clients, client)
	}

	return clients
}

func (hub *Hub) add(key string, client *wsClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.clients[key] == nil {
		hub.clients[key] = make(map[*wsClient]bool)
	}

	hub.clients[key][client] = true
}

func (hub *Hub) remove(key string, client *wsClient) {
	hub.mu.Lock()

	if clients, ok := hub.clients[key]; ok && clients[client] {
		delete(clients, client)

		if len(clients) == 0 {
			delete(hub.clients, key)
		}
	}

	hub.mu.Unlock()

	_ = client.conn.Close()
}

func roomKey(roomID uint) string {
	return strconv.FormatUint(uint64(roomID), 10)
}

// Serve upgrades the request and keeps the connection registered until the
// client goes away. ?room_id narrows the feed to one room.
func (hub *Hub) Serve(ctx *gin.Context) {
	key := allRooms

	if raw := ctx.Query("room_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)

		if err != nil || id == 0 {
			respondMessage(ctx, http.StatusBadRequest, "room_id must be a positive integer")
			return
		}

		key = roomKey(uint(id))
	}

	conn, err := hub.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)

	if err != nil {
		hub.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newWSClient(conn)

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	client.enqueue(gin.H{"type": "connected", "room_id": key})

	hub.add(key, client)
	defer hub.remove(key, client)

	done := make(chan struct{})
	defer close(done)

	go client.writePump(done)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}

		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.logger.Debug("websocket closed", zap.String("room", key), zap.Error(err))
			}
			return
		}
	}
}
