package signaling

import (
	"context"
	"encoding/json"
	"time"
)

type messageRequest struct {
	Body json.RawMessage `json:"body"`
	Jsep *rawJSEP        `json:"jsep,omitempty"`
}

// verbMessage implements the `message` verb (spec §4.3, §4.4): it runs the
// inbound JSEP state machine when a jsep envelope is present, serializes
// per-handle via msgMu (SPEC_FULL.md's decided per-handle concurrency
// answer), and maps the plugin's Result to a response (step 7).
func (rt *Runtime) verbMessage(ctx context.Context, handle *Handle, body *requestBody) (json.RawMessage, error) {
	var req messageRequest
	if err := json.Unmarshal(body.Raw, &req); err != nil || len(req.Body) == 0 {
		return nil, NewAPIError(CodeMissingMandatoryElement, "Missing mandatory element (body)", ErrMissingMandatory)
	}

	handle.msgMu.Lock()
	defer handle.msgMu.Unlock()

	var envelope *JSEPEnvelope
	if req.Jsep != nil {
		e, err := rt.processInboundJSEP(ctx, handle, *req.Jsep)
		if err != nil {
			return nil, err
		}
		envelope = e
	}

	plugin, ref := handle.Plugin()
	if plugin == nil {
		return nil, ErrPluginNotFound
	}

	result := plugin.HandleMessage(ctx, ref, body.Transaction, req.Body, envelope)
	switch result.Kind {
	case PluginResultOK:
		return successData(body.Transaction, handle.Session().ID, map[string]interface{}{"plugindata": json.RawMessage(result.Data)}), nil
	case PluginResultOKWait:
		return ackResponse(body.Transaction, handle.Session().ID, handle.ID, result.Hint), nil
	default:
		if result.Err != nil {
			return nil, NewAPIError(CodePluginMessage, "", result.Err)
		}
		return nil, NewAPIError(CodePluginMessage, "Plugin returned an error", ErrPluginMessage)
	}
}

type trickleRequest struct {
	Candidate  json.RawMessage `json:"candidate,omitempty"`
	Candidates json.RawMessage `json:"candidates,omitempty"`
}

// verbTrickle implements the `trickle` verb (spec §4.5): exactly one of
// candidate/candidates must be present; the candidate is buffered or fed
// straight to ICE depending on the handle's current signaling state.
func (rt *Runtime) verbTrickle(ctx context.Context, handle *Handle, body *requestBody) (json.RawMessage, error) {
	var req trickleRequest
	if err := json.Unmarshal(body.Raw, &req); err != nil {
		return nil, NewAPIError(CodeInvalidJSON, "", ErrInvalidJSON)
	}

	hasCandidate := len(req.Candidate) > 0
	hasCandidates := len(req.Candidates) > 0
	if hasCandidate == hasCandidates {
		return nil, NewAPIError(CodeInvalidJSON, "Exactly one of candidate/candidates required", ErrInvalidJSON)
	}

	payload := req.Candidate
	if hasCandidates {
		payload = req.Candidates
	}

	pending := PendingTrickle{TransactionID: body.Transaction, CandidateOrArray: payload, ReceivedAt: time.Now()}

	streamReady := handle.hasFlag(FlagReady)
	if handle.needsBuffering(streamReady) {
		handle.bufferTrickle(pending)
		return ackResponse(body.Transaction, handle.Session().ID, handle.ID, ""), nil
	}

	agent := handle.getAgent()
	if agent != nil {
		if err := rt.ICE.FeedTrickle(ctx, agent, payload); err != nil {
			rt.NotifyEvent("trickle-error", map[string]interface{}{
				"handle_id": handle.ID,
				"error":     err.Error(),
			})
		}
	}
	return ackResponse(body.Transaction, handle.Session().ID, handle.ID, ""), nil
}
