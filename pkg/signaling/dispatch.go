package signaling

import (
	"context"
	"encoding/json"
)

// dispatchLoop is C7: the single consumer draining the request queue.
// Admin requests and every non-"message" verb are processed inline to keep
// the control plane strictly ordered; "message" verbs are handed off to the
// bounded worker pool so a slow plugin cannot head-of-line block everything
// else (spec §4.1).
func (rt *Runtime) dispatchLoop() {
	defer rt.wg.Done()

	for {
		req, ok := rt.queue.pop()
		if !ok || isSentinel(req) {
			return
		}

		body, err := req.parse()
		if err != nil {
			rt.reply(req, 0, AsAPIError(err))
			continue
		}

		if !req.Admin && body.Janus == "message" {
			r := req
			if err := rt.pool.Submit(context.Background(), func() {
				rt.process(r)
			}); err != nil {
				rt.reply(r, body.SessionID, AsAPIError(err))
			}
			continue
		}

		rt.process(req)
	}
}

// process runs one Request's verb handler to completion and sends its
// response back over the originating transport.
func (rt *Runtime) process(req *Request) {
	ctx, span := rt.Telemetry.StartSpan(context.Background(), "signaling.dispatch")
	defer span.End()

	body, err := req.parse()
	if err != nil {
		span.RecordError(err)
		rt.reply(req, 0, AsAPIError(err))
		return
	}

	var payload json.RawMessage
	var handleErr error
	if req.Admin {
		payload, handleErr = rt.routeAdmin(ctx, req, body)
	} else {
		payload, handleErr = rt.routeCore(ctx, req, body)
	}

	if handleErr != nil {
		span.RecordError(handleErr)
		rt.reply(req, body.SessionID, AsAPIError(handleErr))
		return
	}

	if err := rt.sendRaw(ctx, req, payload); err != nil {
		rt.Log.Warn("send_message failed", "transaction", body.Transaction, "err", err)
	}
}

func (rt *Runtime) reply(req *Request, sessionID uint64, apiErr *APIError) {
	transaction := ""
	if b, err := req.parse(); err == nil {
		transaction = b.Transaction
	}
	payload := errorResponse(transaction, sessionID, apiErr)
	if err := rt.sendRaw(context.Background(), req, payload); err != nil {
		rt.Log.Warn("send_message failed for error reply", "err", err)
	}
}

func (rt *Runtime) sendRaw(ctx context.Context, req *Request, payload json.RawMessage) error {
	t, ok := rt.lookupTransport(req.Origin.Transport)
	if !ok {
		return ErrInvalidRequestPath
	}
	return t.SendMessage(ctx, req.Origin.Instance, req.ReplyToken, req.Admin, payload)
}
