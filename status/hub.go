package status

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"orbot/interfaces"
	"orbot/logging"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

// Hub fans session events out to connected WebSocket clients.
type Hub struct {
	logger    logging.LoggerInterface
	upgrader  websocket.Upgrader
	broadcast chan Message
	initial   func() interface{}

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

var _ interfaces.EventSink = (*Hub)(nil)

// NewHub creates a hub. initial, when set, is sent to each client on connect.
func NewHub(logger logging.LoggerInterface, initial func() interface{}) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		broadcast: make(chan Message, 64),
		initial:   initial,
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Publish queues an event. It never blocks; when the queue is full the event
// is dropped.
func (h *Hub) Publish(kind string, data interface{}) {
	select {
	case h.broadcast <- Message{Type: kind, Time: time.Now(), Data: data}:
	default:
		h.logger.Debug("Broadcast channel is full, dropping %s event", kind)
	}
}

// Run delivers queued events until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.Close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case msg := <-h.broadcast:
			h.send(msg)
		}
	}
}

func (h *Hub) send(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteJSON(msg); err != nil {
			h.logger.Warning("WebSocket write error: %v", err)
			delete(h.clients, client)
			client.Close()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects. Client messages are read and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warning("WebSocket upgrade error: %v", err)
		return
	}

	h.mu.Lock()
	if h.initial != nil {
		conn.WriteJSON(Message{Type: "status", Time: time.Now(), Data: h.initial()})
	}
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
