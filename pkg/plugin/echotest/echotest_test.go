package echotest_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewayrtc/core/pkg/plugin/echotest"
	"github.com/gatewayrtc/core/pkg/signaling"
)

type recordingCallbacks struct {
	mu     sync.Mutex
	pushed []json.RawMessage
	jsep   *signaling.JSEPEnvelope
}

func (c *recordingCallbacks) PushEvent(ctx context.Context, ref signaling.PluginSessionRef, transaction string, message json.RawMessage, jsep *signaling.JSEPEnvelope) signaling.Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushed = append(c.pushed, message)
	c.jsep = jsep
	return signaling.CodeOK
}

func (c *recordingCallbacks) RelayRTP(signaling.PluginSessionRef, bool, []byte)  {}
func (c *recordingCallbacks) RelayRTCP(signaling.PluginSessionRef, bool, []byte) {}
func (c *recordingCallbacks) RelayData(signaling.PluginSessionRef, []byte)       {}
func (c *recordingCallbacks) ClosePC(signaling.PluginSessionRef)                 {}
func (c *recordingCallbacks) EndSession(signaling.PluginSessionRef)              {}
func (c *recordingCallbacks) NotifyEvent(string, signaling.PluginSessionRef, map[string]interface{}) {
}

func (c *recordingCallbacks) snapshot() ([]json.RawMessage, *signaling.JSEPEnvelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushed, c.jsep
}

func TestPackageAndName(t *testing.T) {
	cb := &recordingCallbacks{}
	p := echotest.New(cb)
	assert.Equal(t, echotest.Package, p.Package())
	assert.Equal(t, "plugin.echotest", p.Package())
	assert.NotEmpty(t, p.Name())
	assert.NotEmpty(t, p.Version())
}

func TestHandleMessageRepliesOkWaitThenPushesEcho(t *testing.T) {
	cb := &recordingCallbacks{}
	p := echotest.New(cb)

	ref, err := p.CreateSession(context.Background(), nil)
	require.NoError(t, err)

	body := json.RawMessage(`{"hello":"world"}`)
	result := p.HandleMessage(context.Background(), ref, "tx1", body, &signaling.JSEPEnvelope{Type: "offer", SDP: "v=0\r\n"})
	assert.Equal(t, signaling.PluginResultOKWait, result.Kind)

	require.Eventually(t, func() bool {
		pushed, _ := cb.snapshot()
		return len(pushed) == 1
	}, time.Second, 5*time.Millisecond)

	pushed, jsep := cb.snapshot()
	assert.Contains(t, string(pushed[0]), "hello")
	require.NotNil(t, jsep)
	assert.Equal(t, "answer", jsep.Type)
	assert.Equal(t, "v=0\r\n", jsep.SDP)
}

func TestHandleMessageWithoutJSEPPushesNoAnswer(t *testing.T) {
	cb := &recordingCallbacks{}
	p := echotest.New(cb)
	ref, err := p.CreateSession(context.Background(), nil)
	require.NoError(t, err)

	p.HandleMessage(context.Background(), ref, "tx1", json.RawMessage(`{}`), nil)

	require.Eventually(t, func() bool {
		pushed, _ := cb.snapshot()
		return len(pushed) == 1
	}, time.Second, 5*time.Millisecond)

	_, jsep := cb.snapshot()
	assert.Nil(t, jsep)
}

func TestQuerySessionReportsState(t *testing.T) {
	p := echotest.New(&recordingCallbacks{})
	raw, err := p.QuerySession(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "echo")
}
