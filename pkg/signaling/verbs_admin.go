package signaling

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gatewayrtc/core/pkg/logger"
)

// debugFlags holds the legacy migration-continuity toggles spec §9's
// "Reference-counting debug mode" note describes: Go's ownership discipline
// makes them no-ops, so they are accepted and echoed back by get_status,
// nothing more.
type debugFlags struct {
	locking    atomic.Bool
	refcount   atomic.Bool
	libnice    atomic.Bool
	noMediaTmr atomic.Bool
}

// routeAdmin dispatches an admin Request to its verb handler (C9, spec
// §4.7). Every mutator requires the admin secret when one is configured.
func (rt *Runtime) routeAdmin(ctx context.Context, req *Request, body *requestBody) (json.RawMessage, error) {
	switch body.Janus {
	case "info":
		return rt.verbInfo(body), nil
	case "list_sessions":
		return rt.adminListSessions(body), nil
	}

	if !rt.Auth.AdminAuthorized(body.AdminSecret) {
		return nil, NewAPIError(CodeUnauthorized, "Unauthorized", ErrUnauthorized)
	}

	switch body.Janus {
	case "list_handles":
		return rt.adminListHandles(body)
	case "handle_info":
		return rt.adminHandleInfo(body)
	case "get_status":
		return rt.adminGetStatus(body), nil
	case "set_session_timeout":
		return rt.adminSetSessionTimeout(body)
	case "set_log_level":
		return rt.adminSetLogLevel(body)
	case "set_log_timestamps":
		return rt.adminSetLogTimestamps(body)
	case "set_log_colors":
		return rt.adminSetLogColors(body)
	case "set_locking_debug":
		return rt.adminSetDebugFlag(&rt.debug.locking, body)
	case "set_refcount_debug":
		return rt.adminSetDebugFlag(&rt.debug.refcount, body)
	case "set_libnice_debug":
		return rt.adminSetDebugFlag(&rt.debug.libnice, body)
	case "set_no_media_timer":
		return rt.adminSetDebugFlag(&rt.debug.noMediaTmr, body)
	case "set_max_nack_queue":
		return rt.adminSetMaxNackQueue(body)
	case "query_eventhandler":
		return successEmpty(body.Transaction, 0), nil
	case "add_token":
		return rt.adminAddToken(body)
	case "list_tokens":
		return rt.adminListTokens(body), nil
	case "allow_token":
		return rt.adminAllowToken(body)
	case "disallow_token":
		return rt.adminDisallowToken(body)
	case "remove_token":
		return rt.adminRemoveToken(body)
	case "start_text2pcap", "stop_text2pcap":
		return successEmpty(body.Transaction, body.SessionID), nil
	}
	return nil, ErrUnknownRequest
}

func (rt *Runtime) adminListSessions(body *requestBody) json.RawMessage {
	sessions := rt.Registry.Snapshot()
	ids := make([]uint64, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return successData(body.Transaction, 0, map[string]interface{}{"sessions": ids})
}

func (rt *Runtime) adminListHandles(body *requestBody) (json.RawMessage, error) {
	session, err := rt.Registry.Lookup(body.SessionID)
	if err != nil {
		return nil, err
	}
	defer session.Unref()

	handles := session.handleSnapshot()
	ids := make([]uint64, 0, len(handles))
	for _, h := range handles {
		ids = append(ids, h.ID)
	}
	return successData(body.Transaction, session.ID, map[string]interface{}{"handles": ids}), nil
}

func (rt *Runtime) adminHandleInfo(body *requestBody) (json.RawMessage, error) {
	session, err := rt.Registry.Lookup(body.SessionID)
	if err != nil {
		return nil, err
	}
	defer session.Unref()

	handle, ok := session.getHandle(body.HandleID)
	if !ok {
		return nil, ErrHandleNotFound
	}
	defer handle.Unref()

	local, remote := handle.SDPs()
	info := map[string]interface{}{
		"session_id": session.ID,
		"handle_id":  handle.ID,
		"opaque_id":  handle.OpaqueID,
		"flags":      handle.FlagSnapshot(),
		"local_sdp":  local,
		"remote_sdp": remote,
	}
	if plugin, ref := handle.Plugin(); plugin != nil {
		info["plugin"] = plugin.Package()
		if extra, err := plugin.QuerySession(context.Background(), ref); err == nil && len(extra) > 0 {
			info["plugin_specific"] = json.RawMessage(extra)
		}
	}
	return successData(body.Transaction, session.ID, info), nil
}

func (rt *Runtime) adminGetStatus(body *requestBody) json.RawMessage {
	return successData(body.Transaction, 0, map[string]interface{}{
		"sessions":         rt.Registry.Count(),
		"session_timeout":  int64(rt.SessionTimeout().Seconds()),
		"locking_debug":    rt.debug.locking.Load(),
		"refcount_debug":   rt.debug.refcount.Load(),
		"libnice_debug":    rt.debug.libnice.Load(),
		"no_media_timer":   rt.debug.noMediaTmr.Load(),
		"events_enabled":   rt.eventsEnabled,
	})
}

func (rt *Runtime) adminSetSessionTimeout(body *requestBody) (json.RawMessage, error) {
	var req struct {
		Timeout int64 `json:"timeout"`
	}
	if err := json.Unmarshal(body.Raw, &req); err != nil {
		return nil, NewAPIError(CodeInvalidJSON, "", ErrInvalidJSON)
	}
	rt.SetSessionTimeout(secondsToDuration(req.Timeout))
	return successEmpty(body.Transaction, 0), nil
}

func (rt *Runtime) adminSetLogLevel(body *requestBody) (json.RawMessage, error) {
	var req struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal(body.Raw, &req); err != nil || req.Level == "" {
		return nil, NewAPIError(CodeMissingMandatoryElement, "Missing mandatory element (level)", ErrMissingMandatory)
	}
	rt.Log.SetLevel(logger.ParseLevel(req.Level))
	return successEmpty(body.Transaction, 0), nil
}

func (rt *Runtime) adminSetLogTimestamps(body *requestBody) (json.RawMessage, error) {
	enabled, err := boolField(body.Raw, "timestamps")
	if err != nil {
		return nil, err
	}
	rt.Log.SetTimestamps(enabled)
	return successEmpty(body.Transaction, 0), nil
}

func (rt *Runtime) adminSetLogColors(body *requestBody) (json.RawMessage, error) {
	enabled, err := boolField(body.Raw, "colors")
	if err != nil {
		return nil, err
	}
	rt.Log.SetColors(enabled)
	return successEmpty(body.Transaction, 0), nil
}

func (rt *Runtime) adminSetDebugFlag(flag *atomic.Bool, body *requestBody) (json.RawMessage, error) {
	enabled, err := boolField(body.Raw, "enable")
	if err != nil {
		return nil, err
	}
	flag.Store(enabled)
	return successEmpty(body.Transaction, 0), nil
}

// adminSetMaxNackQueue enforces spec §4.7/§8: values 1..199 are rejected,
// 0 (disabled) or >=200 are accepted.
func (rt *Runtime) adminSetMaxNackQueue(body *requestBody) (json.RawMessage, error) {
	var req struct {
		NackQueueMs int `json:"nack_queue_ms"`
	}
	if err := json.Unmarshal(body.Raw, &req); err != nil {
		return nil, NewAPIError(CodeInvalidJSON, "", ErrInvalidJSON)
	}
	if req.NackQueueMs > 0 && req.NackQueueMs < 200 {
		return nil, NewAPIError(CodeInvalidElementType, "", ErrInvalidElementType)
	}
	return successEmpty(body.Transaction, 0), nil
}

func (rt *Runtime) adminAddToken(body *requestBody) (json.RawMessage, error) {
	var req struct {
		Token  string   `json:"token"`
		Plugins []string `json:"plugins"`
	}
	if err := json.Unmarshal(body.Raw, &req); err != nil || req.Token == "" {
		return nil, NewAPIError(CodeMissingMandatoryElement, "Missing mandatory element (token)", ErrMissingMandatory)
	}
	if err := rt.Auth.Tokens.Add(req.Token); err != nil {
		return nil, err
	}
	for _, pkg := range req.Plugins {
		_ = rt.Auth.Tokens.Allow(req.Token, pkg)
	}
	return successData(body.Transaction, 0, map[string]interface{}{"plugins": req.Plugins}), nil
}

func (rt *Runtime) adminListTokens(body *requestBody) json.RawMessage {
	return successData(body.Transaction, 0, map[string]interface{}{"data": rt.Auth.Tokens.List()})
}

func (rt *Runtime) adminAllowToken(body *requestBody) (json.RawMessage, error) {
	token, pkgs, err := tokenAndPlugins(body.Raw)
	if err != nil {
		return nil, err
	}
	for _, pkg := range pkgs {
		if err := rt.Auth.Tokens.Allow(token, pkg); err != nil {
			return nil, err
		}
	}
	return successEmpty(body.Transaction, 0), nil
}

func (rt *Runtime) adminDisallowToken(body *requestBody) (json.RawMessage, error) {
	token, pkgs, err := tokenAndPlugins(body.Raw)
	if err != nil {
		return nil, err
	}
	for _, pkg := range pkgs {
		if err := rt.Auth.Tokens.Disallow(token, pkg); err != nil {
			return nil, err
		}
	}
	return successEmpty(body.Transaction, 0), nil
}

func (rt *Runtime) adminRemoveToken(body *requestBody) (json.RawMessage, error) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body.Raw, &req); err != nil || req.Token == "" {
		return nil, NewAPIError(CodeMissingMandatoryElement, "Missing mandatory element (token)", ErrMissingMandatory)
	}
	if err := rt.Auth.Tokens.Remove(req.Token); err != nil {
		return nil, err
	}
	return successEmpty(body.Transaction, 0), nil
}

func tokenAndPlugins(raw json.RawMessage) (string, []string, error) {
	var req struct {
		Token   string   `json:"token"`
		Plugins []string `json:"plugins"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.Token == "" || len(req.Plugins) == 0 {
		return "", nil, NewAPIError(CodeMissingMandatoryElement, "Missing mandatory element (token/plugins)", ErrMissingMandatory)
	}
	return req.Token, req.Plugins, nil
}

func boolField(raw json.RawMessage, field string) (bool, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false, NewAPIError(CodeInvalidJSON, "", ErrInvalidJSON)
	}
	v, ok := m[field]
	if !ok {
		return false, NewAPIError(CodeMissingMandatoryElement, "Missing mandatory element ("+field+")", ErrMissingMandatory)
	}
	var enabled bool
	if err := json.Unmarshal(v, &enabled); err != nil {
		return false, NewAPIError(CodeInvalidElementType, "", ErrInvalidElementType)
	}
	return enabled, nil
}

func secondsToDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}
