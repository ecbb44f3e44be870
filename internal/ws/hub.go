package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/heartline/matchqueue/pkg/types"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

type delivery struct {
	userID string // empty means every client
	ev     types.Event
}

// Hub fans events out to connected clients, keyed by user.
type Hub struct {
	log      *zap.Logger
	upgrade  websocket.Upgrader
	outbound chan delivery

	mu      sync.RWMutex
	clients map[*websocket.Conn]string
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:      log,
		clients:  map[*websocket.Conn]string{},
		outbound: make(chan delivery, 256),
		upgrade:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Run writes queued events until ctx is cancelled. It is the only writer on
// client connections.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case d := <-h.outbound:
			for _, c := range h.targets(d.userID) {
				_ = c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteJSON(d.ev); err != nil {
					h.log.Warn("ws write failed", zap.String("user_id", h.userOf(c)), zap.Error(err))
					h.remove(c)
				}
			}
		}
	}
}

// Notify queues ev for every connection of userID.
func (h *Hub) Notify(userID string, ev types.Event) { h.enqueue(delivery{userID: userID, ev: ev}) }

func (h *Hub) Broadcast(ev types.Event) { h.enqueue(delivery{ev: ev}) }

func (h *Hub) enqueue(d delivery) {
	select {
	case h.outbound <- d:
	default:
		h.log.Warn("ws outbound full, dropping event", zap.String("type", d.ev.Type), zap.String("user_id", d.userID))
	}
}

// Clients returns the number of open connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) targets(userID string) []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*websocket.Conn
	for c, uid := range h.clients {
		if userID == "" || uid == userID {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) userOf(c *websocket.Conn) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[c]
}

func (h *Hub) add(c *websocket.Conn, userID string) {
	h.mu.Lock()
	h.clients[c] = userID
	h.mu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
		delete(h.clients, c)
	}
}

// ServeWS upgrades the request and registers the connection for userID. The
// read loop only drains control frames and detects disconnects.
func ServeWS(h *Hub, userID string, w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrade.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	h.add(c, userID)
	h.log.Debug("ws client connected", zap.String("user_id", userID))

	go func() {
		defer h.remove(c)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
