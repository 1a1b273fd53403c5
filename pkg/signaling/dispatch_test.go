package signaling_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewayrtc/core/internal/testfakes"
	"github.com/gatewayrtc/core/pkg/signaling"
)

func newTestRuntime(t *testing.T) (*signaling.Runtime, *testfakes.FakeTransport) {
	t.Helper()
	rt := signaling.NewRuntime(signaling.RuntimeOptions{
		Info:    signaling.ServerInfo{Name: "test", Version: "0.0.0"},
		Workers: 2,
	})
	t.Cleanup(rt.Stop)

	transport := testfakes.NewFakeTransport("fake")
	rt.RegisterTransport(transport)
	return rt, transport
}

// waitForSent polls transport.SentCount until at least count messages have
// arrived or the deadline elapses, mirroring the teacher's own plain
// time.Sleep-based waits for asynchronous dispatch in its concurrency tests.
func waitForSent(t *testing.T, transport *testfakes.FakeTransport, count int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if transport.SentCount() >= count {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.FailNow(t, "timed out waiting for sent messages")
}

func TestCreateSessionRoundTrip(t *testing.T) {
	rt, transport := newTestRuntime(t)

	rt.IncomingRequest("fake", "conn-1", "conn-1", false, []byte(`{"janus":"create","transaction":"t1"}`))

	waitForSent(t, transport, 1)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(transport.LastSent(), &resp))
	assert.Equal(t, "success", resp["janus"])
	assert.Equal(t, "t1", resp["transaction"])
	assert.NotNil(t, resp["data"])
}

func TestAttachAndMessageRoundTrip(t *testing.T) {
	rt, transport := newTestRuntime(t)

	plugin := testfakes.NewFakePlugin("plugin.test")
	rt.RegisterPlugin(plugin)

	rt.IncomingRequest("fake", "conn-1", "conn-1", false, []byte(`{"janus":"create","transaction":"t1"}`))
	waitForSent(t, transport, 1)

	var createResp struct {
		Data struct {
			ID uint64 `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(transport.LastSent(), &createResp))
	sessionID := createResp.Data.ID
	require.NotZero(t, sessionID)

	attachBody, _ := json.Marshal(map[string]interface{}{
		"janus":       "attach",
		"transaction": "t2",
		"session_id":  sessionID,
		"plugin":      "plugin.test",
	})
	rt.IncomingRequest("fake", "conn-1", "conn-1", false, attachBody)
	waitForSent(t, transport, 2)

	var attachResp struct {
		Data struct {
			ID uint64 `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(transport.LastSent(), &attachResp))
	handleID := attachResp.Data.ID
	require.NotZero(t, handleID)
	assert.Equal(t, 1, plugin.Created)

	msgBody, _ := json.Marshal(map[string]interface{}{
		"janus":       "message",
		"transaction": "t3",
		"session_id":  sessionID,
		"handle_id":   handleID,
		"body":        map[string]interface{}{"ping": true},
	})
	rt.IncomingRequest("fake", "conn-1", "conn-1", false, msgBody)
	waitForSent(t, transport, 3)

	var msgResp map[string]interface{}
	require.NoError(t, json.Unmarshal(transport.LastSent(), &msgResp))
	assert.Equal(t, "success", msgResp["janus"])
}

func TestUnauthorizedRequestIsRejected(t *testing.T) {
	rt := signaling.NewRuntime(signaling.RuntimeOptions{
		Info: signaling.ServerInfo{Name: "test"},
		Auth: signaling.NewAuth("supersecret", "", false, nil),
	})
	t.Cleanup(rt.Stop)
	transport := testfakes.NewFakeTransport("fake")
	rt.RegisterTransport(transport)

	rt.IncomingRequest("fake", "conn-1", "conn-1", false, []byte(`{"janus":"create","transaction":"t1"}`))
	waitForSent(t, transport, 1)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(transport.LastSent(), &resp))
	assert.Equal(t, "error", resp["janus"])
}

func TestUnknownVerbIsRejected(t *testing.T) {
	rt, transport := newTestRuntime(t)

	rt.IncomingRequest("fake", "conn-1", "conn-1", false, []byte(`{"janus":"bogus","transaction":"t1","session_id":1}`))
	waitForSent(t, transport, 1)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(transport.LastSent(), &resp))
	assert.Equal(t, "error", resp["janus"])
}
