// Package ws pushes bus events to websocket observers.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kilianp07/bloodlift/core/events"
	"github.com/kilianp07/bloodlift/infra/logger"
	"github.com/kilianp07/bloodlift/internal/eventbus"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Message is the frame sent to observers.
type Message struct {
	Type string       `json:"type"`
	Data events.Event `json:"data"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the connected observers and the last frame of each event type so
// a new observer immediately sees the current status and queue.
type Hub struct {
	upgrader websocket.Upgrader
	log      logger.Logger

	mu      sync.Mutex
	clients map[string]*client
	last    map[string][]byte
}

// NewHub creates a hub. allowedOrigins empty accepts any origin.
func NewHub(allowedOrigins []string, log logger.Logger) *Hub {
	if log == nil {
		log = logger.NopLogger{}
	}
	h := &Hub{
		log:     log,
		clients: make(map[string]*client),
		last:    make(map[string][]byte),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Run broadcasts events from bus until ctx is done or the bus is closed.
func (h *Hub) Run(ctx context.Context, bus *eventbus.TypedBus[events.Event]) {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			h.Broadcast(ev)
		}
	}
}

// Broadcast sends ev to every observer. A slow observer whose buffer is full
// is disconnected.
func (h *Hub) Broadcast(ev events.Event) {
	data, err := json.Marshal(Message{Type: ev.Type(), Data: ev})
	if err != nil {
		h.log.Errorf("ws encode %s: %v", ev.Type(), err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[ev.Type()] = data
	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warnf("ws observer %s too slow, dropping", id)
			delete(h.clients, id)
			close(c.send)
		}
	}
}

// Clients returns the number of connected observers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the observer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("ws upgrade: %v", err)
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	for _, typ := range []string{events.StatusSnapshot{}.Type(), events.QueueSnapshot{}.Type()} {
		if data, ok := h.last[typ]; ok {
			c.send <- data
		}
	}
	h.clients[c.id] = c
	h.mu.Unlock()
	h.log.Debugf("ws observer %s connected from %s", c.id, r.RemoteAddr)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

// readPump discards inbound frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warnf("ws observer %s: %v", c.id, err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Warnf("ws write %s: %v", c.id, err)
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
