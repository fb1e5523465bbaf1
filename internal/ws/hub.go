package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go-pos-sync/internal/model"
	"go-pos-sync/pkg/logger"
	"go-pos-sync/pkg/metrics"

	"github.com/gofiber/contrib/websocket"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is a feed connection and the issue time of the session that opened it.
type Client struct {
	Conn     Conn
	IssuedAt time.Time
}

const broadcastBuffer = 256

type Hub struct {
	Clients    map[Conn]time.Time
	Register   chan Client
	Unregister chan Conn
	Broadcast  chan []byte
	mutex      sync.Mutex
	done       chan struct{}

	logg    *logger.Logger
	metrics *metrics.SalesMetrics
}

func NewHub(logg *logger.Logger, m *metrics.SalesMetrics) *Hub {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Hub{
		Clients:    make(map[Conn]time.Time),
		Register:   make(chan Client),
		Unregister: make(chan Conn),
		Broadcast:  make(chan []byte, broadcastBuffer),
		done:       make(chan struct{}),
		logg:       logg,
		metrics:    m,
	}
}

// Run owns the client set until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for conn := range h.Clients {
				_ = conn.Close()
				delete(h.Clients, conn)
			}
			h.mutex.Unlock()
			h.metrics.SetFeedClients(0)
			return

		case client := <-h.Register:
			h.mutex.Lock()
			h.Clients[client.Conn] = client.IssuedAt
			n := len(h.Clients)
			h.mutex.Unlock()
			h.metrics.SetFeedClients(n)
			h.logg.Debug(ctx, "feed client connected")

		case conn := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.Clients[conn]; ok {
				delete(h.Clients, conn)
				_ = conn.Close()
			}
			n := len(h.Clients)
			h.mutex.Unlock()
			h.metrics.SetFeedClients(n)

		case message := <-h.Broadcast:
			marker, logout := logoutMarker(message)
			revoked := 0
			h.mutex.Lock()
			for conn, issuedAt := range h.Clients {
				// A revoked session still receives the logout frame before it is dropped.
				err := conn.WriteMessage(websocket.TextMessage, message)
				revoke := logout && marker.Revokes(issuedAt)
				if revoke {
					revoked++
				}
				if err != nil || revoke {
					_ = conn.Close()
					delete(h.Clients, conn)
				}
			}
			n := len(h.Clients)
			h.mutex.Unlock()
			h.metrics.SetFeedClients(n)
			if revoked > 0 {
				h.logg.Info(h.logg.WithField(ctx, "revoked", revoked), "closed feed clients signed out by global logout")
			}
		}
	}
}

// Add registers a client for a session issued at issuedAt unless the hub has stopped.
func (h *Hub) Add(conn Conn, issuedAt time.Time) bool {
	select {
	case h.Register <- Client{Conn: conn, IssuedAt: issuedAt}:
		return true
	case <-h.done:
		return false
	}
}

// Remove unregisters a client. It never blocks after the hub has stopped.
func (h *Hub) Remove(conn Conn) {
	select {
	case h.Unregister <- conn:
	case <-h.done:
	}
}

// Publish queues an event for broadcast. When the queue is full the event is
// dropped; clients recover it on their next resync.
func (h *Hub) Publish(ctx context.Context, evt Event) {
	msg, err := json.Marshal(evt)
	if err != nil {
		h.logg.Error(ctx, "encode feed event", err)
		return
	}
	h.BroadcastRaw(ctx, msg)
}

// BroadcastRaw queues an already encoded frame.
func (h *Hub) BroadcastRaw(ctx context.Context, msg []byte) {
	select {
	case h.Broadcast <- msg:
	default:
		h.logg.Warn(h.logg.WithField(ctx, "table", "feed"), "feed broadcast queue full, dropping event")
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.Clients)
}

// logoutMarker extracts the marker from a global logout frame.
func logoutMarker(message []byte) (model.LogoutMarker, bool) {
	var evt Event
	if err := json.Unmarshal(message, &evt); err != nil {
		return model.LogoutMarker{}, false
	}
	if evt.Table != TableAppConfig || evt.RecordID != model.ConfigLastGlobalLogoutAt {
		return model.LogoutMarker{}, false
	}
	var marker model.LogoutMarker
	if err := json.Unmarshal(evt.Record, &marker); err != nil || marker.At.IsZero() {
		return model.LogoutMarker{}, false
	}
	return marker, true
}
