package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/waterlab-lims-server/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from a different origin behind the same
	// gateway that resolves actors.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventHub broadcasts audit events to connected dashboard clients. It
// implements the domain audit sink, so it can be fanned into alongside
// the persistent stores. Slow clients are disconnected rather than
// allowed to block the broadcast.
type EventHub struct {
	log *logrus.Logger

	mu      sync.RWMutex
	clients map[*eventClient]struct{}
}

type eventClient struct {
	hub  *EventHub
	conn *websocket.Conn
	send chan []byte
}

// NewEventHub creates an empty hub.
func NewEventHub(logger *logrus.Logger) *EventHub {
	return &EventHub{
		log:     logger,
		clients: make(map[*eventClient]struct{}),
	}
}

// Record implements domain.AuditSink. Broadcast failures never fail the
// originating operation.
func (h *EventHub) Record(ctx context.Context, event *domain.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Warn("Failed to encode audit event for broadcast")
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.log.WithField("remote", client.conn.RemoteAddr().String()).
				Warn("Dropping slow event stream client")
			go client.close()
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the client.
func (h *EventHub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := &eventClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientSendSize),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go client.writePump()
	go client.readPump()
}

// Close disconnects every client.
func (h *EventHub) Close() {
	h.mu.Lock()
	clients := make([]*eventClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}

func (c *eventClient) close() {
	c.hub.mu.Lock()
	if _, ok := c.hub.clients[c]; ok {
		delete(c.hub.clients, c)
		close(c.send)
	}
	c.hub.mu.Unlock()
	c.conn.Close()
}

// readPump discards inbound messages; the stream is one-way. Reading
// is still required to process control frames and detect closes.
func (c *eventClient) readPump() {
	defer c.close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *eventClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
