package signaling

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminBody(t *testing.T, janus string, extra map[string]interface{}) *requestBody {
	t.Helper()
	m := map[string]interface{}{"janus": janus, "transaction": "tx"}
	for k, v := range extra {
		m[k] = v
	}
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	var body requestBody
	require.NoError(t, json.Unmarshal(raw, &body))
	body.Raw = raw
	return &body
}

func newAdminRuntime(adminSecret string) *Runtime {
	return NewRuntime(RuntimeOptions{
		Info: ServerInfo{Name: "test"},
		Auth: NewAuth("", adminSecret, false, nil),
	})
}

func TestRouteAdminRejectsSecretGatedVerbsWithoutSecret(t *testing.T) {
	rt := newAdminRuntime("topsecret")
	defer rt.Stop()

	body := adminBody(t, "get_status", nil)
	_, err := rt.routeAdmin(context.Background(), sentinelRequest, body)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeUnauthorized, apiErr.Code)
}

func TestRouteAdminInfoAndListSessionsNeedNoSecret(t *testing.T) {
	rt := newAdminRuntime("topsecret")
	defer rt.Stop()

	_, err := rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "info", nil))
	require.NoError(t, err)

	_, err = rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "list_sessions", nil))
	require.NoError(t, err)
}

func TestRouteAdminGetStatusReflectsSessionTimeout(t *testing.T) {
	rt := newAdminRuntime("")
	defer rt.Stop()
	rt.SetSessionTimeout(45 * time.Second)

	raw, err := rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "get_status", nil))
	require.NoError(t, err)

	var resp struct {
		Data struct {
			SessionTimeout int64 `json:"session_timeout"`
		} `json:"plugindata_unused,omitempty"`
	}
	_ = resp
	// Unwrap the generic envelope to check the nested data field directly.
	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &generic))
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(generic["data"], &data))
	assert.Equal(t, float64(45), data["session_timeout"])
}

func TestRouteAdminSetSessionTimeout(t *testing.T) {
	rt := newAdminRuntime("")
	defer rt.Stop()

	_, err := rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "set_session_timeout", map[string]interface{}{"timeout": 30}))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, rt.SessionTimeout())
}

func TestRouteAdminSetLogLevelRequiresLevel(t *testing.T) {
	rt := newAdminRuntime("")
	defer rt.Stop()

	_, err := rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "set_log_level", nil))
	assert.ErrorIs(t, err, ErrMissingMandatory)

	_, err = rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "set_log_level", map[string]interface{}{"level": "debug"}))
	require.NoError(t, err)
}

func TestRouteAdminSetMaxNackQueueRejectsMidRange(t *testing.T) {
	rt := newAdminRuntime("")
	defer rt.Stop()

	_, err := rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "set_max_nack_queue", map[string]interface{}{"nack_queue_ms": 50}))
	assert.ErrorIs(t, err, ErrInvalidElementType)

	_, err = rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "set_max_nack_queue", map[string]interface{}{"nack_queue_ms": 0}))
	require.NoError(t, err)

	_, err = rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "set_max_nack_queue", map[string]interface{}{"nack_queue_ms": 500}))
	require.NoError(t, err)
}

func TestRouteAdminTokenLifecycle(t *testing.T) {
	rt := newAdminRuntime("")
	defer rt.Stop()

	_, err := rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "add_token", map[string]interface{}{
		"token":   "tok-1",
		"plugins": []string{"plugin.echotest"},
	}))
	require.NoError(t, err)
	assert.True(t, rt.Auth.Tokens.Exists("tok-1"))

	_, err = rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "disallow_token", map[string]interface{}{
		"token":   "tok-1",
		"plugins": []string{"plugin.echotest"},
	}))
	require.NoError(t, err)
	assert.False(t, rt.Auth.Tokens.CanAccess("tok-1", "plugin.echotest"))

	_, err = rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "remove_token", map[string]interface{}{"token": "tok-1"}))
	require.NoError(t, err)
	assert.False(t, rt.Auth.Tokens.Exists("tok-1"))

	_, err = rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "remove_token", nil))
	assert.ErrorIs(t, err, ErrMissingMandatory)
}

func TestRouteAdminUnknownVerb(t *testing.T) {
	rt := newAdminRuntime("")
	defer rt.Stop()

	_, err := rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "bogus_verb", nil))
	assert.ErrorIs(t, err, ErrUnknownRequest)
}

func TestRouteAdminHandleInfoAndListHandles(t *testing.T) {
	rt := newAdminRuntime("")
	defer rt.Stop()

	s, err := rt.Registry.Create(0, TransportOrigin{Transport: "fake", Instance: "c1"})
	require.NoError(t, err)
	h := newHandle(1, "", s)
	s.addHandle(h)

	raw, err := rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "list_handles", map[string]interface{}{"session_id": s.ID}))
	require.NoError(t, err)
	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &generic))
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(generic["data"], &data))
	assert.Len(t, data["handles"], 1)

	_, err = rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "handle_info", map[string]interface{}{"session_id": s.ID, "handle_id": uint64(1)}))
	require.NoError(t, err)

	_, err = rt.routeAdmin(context.Background(), sentinelRequest, adminBody(t, "handle_info", map[string]interface{}{"session_id": s.ID, "handle_id": uint64(999)}))
	assert.ErrorIs(t, err, ErrHandleNotFound)
}
