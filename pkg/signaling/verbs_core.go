package signaling

import (
	"context"
	"encoding/json"
)

// routeCore dispatches a non-admin Request to its Janus-API verb handler
// (C8, spec §4.3), validating that the verb is legal for the addressing
// (no session / session-only / session+handle) the request carries.
func (rt *Runtime) routeCore(ctx context.Context, req *Request, body *requestBody) (json.RawMessage, error) {
	hasSession := body.SessionID != 0
	hasHandle := body.HandleID != 0

	switch body.Janus {
	case "info":
		return rt.verbInfo(body), nil
	case "ping":
		return pongResponse(body.Transaction), nil
	case "create":
		if hasSession {
			return nil, ErrInvalidRequestPath
		}
		return rt.verbCreate(ctx, req, body)
	}

	if !rt.Auth.Authorized(body.APISecret, body.Token) {
		return nil, NewAPIError(CodeUnauthorized, "Unauthorized", ErrUnauthorized)
	}

	switch body.Janus {
	case "keepalive", "attach", "destroy":
		if !hasSession || hasHandle {
			return nil, ErrInvalidRequestPath
		}
	case "detach", "hangup", "message", "trickle":
		if !hasSession || !hasHandle {
			return nil, ErrInvalidRequestPath
		}
	default:
		return nil, ErrUnknownRequest
	}

	session, err := rt.Registry.Lookup(body.SessionID)
	if err != nil {
		return nil, err
	}
	defer session.Unref()
	session.touch()

	switch body.Janus {
	case "keepalive":
		return ackResponse(body.Transaction, session.ID, 0, ""), nil
	case "attach":
		return rt.verbAttach(ctx, session, body)
	case "destroy":
		return rt.verbDestroy(ctx, session, body)
	}

	handle, ok := session.getHandle(body.HandleID)
	if !ok {
		return nil, ErrHandleNotFound
	}
	defer handle.Unref()

	switch body.Janus {
	case "detach":
		return rt.verbDetach(ctx, session, handle, body)
	case "hangup":
		return rt.verbHangup(ctx, handle, body)
	case "message":
		return rt.verbMessage(ctx, handle, body)
	case "trickle":
		return rt.verbTrickle(ctx, handle, body)
	}
	return nil, ErrUnknownRequest
}

func (rt *Runtime) verbInfo(body *requestBody) json.RawMessage {
	return serverInfoResponse(body.Transaction, map[string]interface{}{
		"name":       rt.Info.Name,
		"version":    rt.Info.Version,
		"transports": rt.transportNames(),
		"plugins":    rt.pluginPackages(),
	})
}

func (rt *Runtime) verbCreate(ctx context.Context, req *Request, body *requestBody) (json.RawMessage, error) {
	if !rt.Auth.Authorized(body.APISecret, body.Token) {
		return nil, NewAPIError(CodeUnauthorized, "Unauthorized", ErrUnauthorized)
	}

	session, err := rt.Registry.Create(body.SessionID, req.Origin)
	if err != nil {
		return nil, err
	}

	if t, ok := rt.lookupTransport(req.Origin.Transport); ok {
		if err := t.SessionCreated(ctx, req.Origin.Instance, session.ID); err != nil {
			rt.Log.Warn("session_created notify failed", "session", session.ID, "err", err)
		}
	}
	if rt.eventsEnabled {
		rt.NotifyEvent("session-created", map[string]interface{}{"session_id": session.ID})
	}

	return successData(body.Transaction, session.ID, map[string]interface{}{"id": session.ID}), nil
}

func (rt *Runtime) verbAttach(ctx context.Context, session *Session, body *requestBody) (json.RawMessage, error) {
	var req struct {
		Plugin string `json:"plugin"`
		OpaqueID string `json:"opaque_id"`
	}
	if err := json.Unmarshal(body.Raw, &req); err != nil || req.Plugin == "" {
		return nil, NewAPIError(CodeMissingMandatoryElement, "Missing mandatory element (plugin)", ErrMissingMandatory)
	}

	plugin, ok := rt.lookupPlugin(req.Plugin)
	if !ok {
		return nil, ErrPluginNotFound
	}
	if !rt.Auth.PluginAllowed(body.Token, req.Plugin) {
		return nil, NewAPIError(CodeUnauthorizedPlugin, "Unauthorized access to plugin", ErrUnauthorizedPlugin)
	}

	id := randomID()
	handle := newHandle(id, req.OpaqueID, session)

	ref, err := plugin.CreateSession(ctx, handle)
	if err != nil {
		return nil, NewAPIError(CodePluginAttach, "", err)
	}
	handle.attachPlugin(plugin, ref)
	session.addHandle(handle)

	return successData(body.Transaction, session.ID, map[string]interface{}{"id": handle.ID}), nil
}

func (rt *Runtime) verbDestroy(ctx context.Context, session *Session, body *requestBody) (json.RawMessage, error) {
	rt.destroySession(ctx, session, false)
	return successEmpty(body.Transaction, session.ID), nil
}

func (rt *Runtime) verbDetach(ctx context.Context, session *Session, handle *Handle, body *requestBody) (json.RawMessage, error) {
	if _, ok := session.removeHandle(handle.ID); !ok {
		return nil, ErrHandleNotFound
	}
	rt.destroyHandle(ctx, handle)
	return successEmpty(body.Transaction, session.ID), nil
}

func (rt *Runtime) verbHangup(ctx context.Context, handle *Handle, body *requestBody) (json.RawMessage, error) {
	plugin, ref := handle.Plugin()
	if plugin != nil {
		if err := plugin.HangupMedia(ctx, ref); err != nil {
			rt.Log.Warn("hangup_media failed", "handle", handle.ID, "err", err)
		}
	}
	handle.setFlag(FlagStop)
	return successEmpty(body.Transaction, handle.Session().ID), nil
}
