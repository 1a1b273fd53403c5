// Package ws is the WebSocket Transport implementation, adapted from the
// teacher's ui/transports/websocket/websocket.go upgrader-plus-client-
// registry pattern: generalized from one-way chat events to the
// bidirectional signaling Request/response traffic this core dispatches.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gatewayrtc/core/pkg/logger"
	"github.com/gatewayrtc/core/pkg/signaling"
)

const Name signaling.TransportName = "websocket"

// Transport implements signaling.Transport over gorilla/websocket
// connections; each connection is one TransportInstance.
type Transport struct {
	callbacks signaling.TransportCallbacks
	log       logger.Logger
	upgrader  websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// New constructs a Transport wired to the core's callback surface.
func New(callbacks signaling.TransportCallbacks, log logger.Logger) *Transport {
	if log == nil {
		log = logger.NoOp()
	}
	return &Transport{
		callbacks: callbacks,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (t *Transport) Name() signaling.TransportName { return Name }

type client struct {
	conn   *websocket.Conn
	send   chan json.RawMessage
	admin  bool
	closed bool
	mu     sync.Mutex
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// Handler upgrades HTTP connections for the regular signaling API.
func (t *Transport) Handler() http.Handler { return t.handler(false) }

// AdminHandler upgrades HTTP connections for the admin API.
func (t *Transport) AdminHandler() http.Handler { return t.handler(true) }

func (t *Transport) handler(admin bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := t.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
			return
		}
		c := &client{conn: conn, send: make(chan json.RawMessage, 256), admin: admin}

		t.mu.Lock()
		t.clients[c] = struct{}{}
		t.mu.Unlock()

		go t.writePump(c)
		go t.readPump(c)
	})
}

func (t *Transport) readPump(c *client) {
	defer t.dropClient(c)
	c.conn.SetReadLimit(1 << 20)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		t.callbacks.IncomingRequest(Name, c, c, c.admin, json.RawMessage(payload))
	}
}

func (t *Transport) writePump(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (t *Transport) dropClient(c *client) {
	t.mu.Lock()
	delete(t.clients, c)
	t.mu.Unlock()
	c.close()
	t.callbacks.TransportGone(Name, c)
}

// SendMessage implements signaling.Transport. The reply token is unused:
// every client connection already addresses a single TransportInstance, so
// the instance itself is sufficient to route the response.
func (t *Transport) SendMessage(ctx context.Context, instance signaling.TransportInstance, reply signaling.ReplyToken, admin bool, body json.RawMessage) error {
	c, ok := instance.(*client)
	if !ok {
		return signaling.ErrInvalidRequestPath
	}
	select {
	case c.send <- body:
		return nil
	default:
		t.log.Warn("websocket client send buffer full, dropping message")
		return nil
	}
}

func (t *Transport) SessionCreated(ctx context.Context, instance signaling.TransportInstance, sessionID uint64) error {
	t.log.Debug("session created", "session_id", sessionID)
	return nil
}

func (t *Transport) SessionOver(ctx context.Context, instance signaling.TransportInstance, sessionID uint64, timeout bool) error {
	t.log.Debug("session over", "session_id", sessionID, "timeout", timeout)
	return nil
}
