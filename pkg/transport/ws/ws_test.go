package ws_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewayrtc/core/pkg/logger"
	"github.com/gatewayrtc/core/pkg/signaling"
	"github.com/gatewayrtc/core/pkg/transport/ws"
)

type recordingCallbacks struct {
	incoming chan json.RawMessage
	gone     chan struct{}

	mu       sync.Mutex
	instance signaling.TransportInstance
	admin    bool
}

func (c *recordingCallbacks) IncomingRequest(transport signaling.TransportName, instance signaling.TransportInstance, reply signaling.ReplyToken, admin bool, payload json.RawMessage) {
	c.mu.Lock()
	c.instance = instance
	c.admin = admin
	c.mu.Unlock()
	c.incoming <- payload
}
func (c *recordingCallbacks) TransportGone(signaling.TransportName, signaling.TransportInstance) {
	close(c.gone)
}
func (c *recordingCallbacks) IsAPISecretNeeded() bool                    { return false }
func (c *recordingCallbacks) IsAPISecretValid(string) bool               { return true }
func (c *recordingCallbacks) IsAuthTokenNeeded() bool                    { return false }
func (c *recordingCallbacks) IsAuthTokenValid(string) bool               { return true }
func (c *recordingCallbacks) NotifyEvent(string, map[string]interface{}) {}
func (c *recordingCallbacks) EventsEnabled() bool                        { return false }

func (c *recordingCallbacks) lastInstance() signaling.TransportInstance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instance
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestWebSocketRoundTrip(t *testing.T) {
	cb := &recordingCallbacks{incoming: make(chan json.RawMessage, 1), gone: make(chan struct{})}
	transport := ws.New(cb, logger.NoOp())

	srv := httptest.NewServer(transport.Handler())
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"janus":"keepalive"}`)))

	select {
	case payload := <-cb.incoming:
		assert.JSONEq(t, `{"janus":"keepalive"}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for IncomingRequest")
	}
}

func TestWebSocketSendMessageDeliversToClient(t *testing.T) {
	cb := &recordingCallbacks{incoming: make(chan json.RawMessage, 1), gone: make(chan struct{})}
	transport := ws.New(cb, logger.NoOp())

	srv := httptest.NewServer(transport.Handler())
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"janus":"keepalive"}`)))
	<-cb.incoming
	inst := cb.lastInstance()
	require.NotNil(t, inst)

	require.NoError(t, transport.SendMessage(context.Background(), inst, nil, false, json.RawMessage(`{"janus":"ack"}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"janus":"ack"}`, string(msg))
}

func TestWebSocketTransportGoneOnClientClose(t *testing.T) {
	cb := &recordingCallbacks{incoming: make(chan json.RawMessage, 1), gone: make(chan struct{})}
	transport := ws.New(cb, logger.NoOp())

	srv := httptest.NewServer(transport.Handler())
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"janus":"keepalive"}`)))
	<-cb.incoming
	require.NoError(t, conn.Close())

	select {
	case <-cb.gone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for TransportGone")
	}
}
