package signaling

import (
	"context"
	"encoding/json"
	"time"
)

// handleBearer is the convention a Plugin's PluginSessionRef follows so the
// core can recover the owning Handle from an opaque ref passed back into
// PushEvent/RelayRTP/etc: wrap the *Handle the ref was created for. The
// reference implementation in pkg/plugin/echotest follows it.
type handleBearer interface {
	signalingHandle() *Handle
}

// pluginCallbacks implements PluginCallbacks on behalf of a Runtime. It is a
// distinct type (rather than a method set on *Runtime itself) because
// PluginCallbacks.NotifyEvent and TransportCallbacks.NotifyEvent have
// different signatures and Go does not allow overloading by signature on
// one receiver.
type pluginCallbacks struct{ rt *Runtime }

// Callbacks returns the PluginCallbacks surface plugins are constructed
// with (spec §6, C11).
func (rt *Runtime) Callbacks() PluginCallbacks { return pluginCallbacks{rt} }

func refHandle(ref PluginSessionRef) (*Handle, bool) {
	b, ok := ref.(handleBearer)
	if !ok {
		return nil, false
	}
	h := b.signalingHandle()
	return h, h != nil
}

// PushEvent implements the outbound half of the JSEP state machine (spec
// §4.4 "Outbound JSEP").
func (pc pluginCallbacks) PushEvent(ctx context.Context, ref PluginSessionRef, transaction string, message json.RawMessage, jsep *JSEPEnvelope) Code {
	handle, ok := refHandle(ref)
	if !ok {
		return CodeHandleNotFound
	}
	session := handle.Session()
	session.touch()

	var jsepOut json.RawMessage
	if jsep != nil {
		sdp, err := pc.rt.processOutboundJSEP(ctx, handle, jsep)
		if err != nil {
			pc.rt.Log.Warn("outbound jsep failed", "handle", handle.ID, "err", err)
			return CodeWebRTCState
		}
		jsepOut, _ = json.Marshal(map[string]string{"type": jsep.Type, "sdp": sdp})
	}

	if t, ok := pc.rt.lookupTransport(session.Origin.Transport); ok {
		payload := eventResponse(transaction, session.ID, handle.ID, message, jsepOut)
		if err := t.SendMessage(ctx, session.Origin.Instance, nil, false, payload); err != nil {
			pc.rt.Log.Warn("push_event send failed", "handle", handle.ID, "err", err)
		}
	}
	return CodeOK
}

// processOutboundJSEP merges the plugin's SDP with local ICE/DTLS/media
// attributes, handles restart/full-trickle resend, and stores the result as
// local_sdp (spec §4.4).
func (rt *Runtime) processOutboundJSEP(ctx context.Context, handle *Handle, jsep *JSEPEnvelope) (string, error) {
	offer := jsep.Type == "offer"
	ready := handle.hasFlag(FlagReady) && !handle.hasFlag(FlagAlert)

	if offer && handle.getAgent() == nil {
		agent, err := rt.ICE.SetupLocal(ctx, handle, false, MediaCounts{}, jsep.trickleRequested())
		if err != nil {
			return "", err
		}
		handle.setAgent(agent)
		rt.awaitGatheringComplete(ctx, handle, agent)
	}

	if jsep.Restart {
		if agent := handle.getAgent(); agent != nil {
			if err := rt.ICE.Restart(ctx, agent); err != nil {
				rt.Log.Warn("ice restart failed", "handle", handle.ID, "err", err)
			}
		}
	}

	merged, err := rt.SDP.Merge(ctx, handle, jsep.SDP, offer)
	if err != nil {
		return "", err
	}
	handle.setLocalSDP(merged)

	// Client-offers-plugin-answers flow (spec §8 scenario 3): the plugin's
	// answer reaches "answer received and processed" here just as surely
	// as an inbound answer does in processInboundJSEP, so pending trickles
	// buffered before this point must drain here too, not only when the
	// answer arrives over the wire.
	if !offer && !ready {
		rt.onAnswerProcessed(ctx, handle, jsep.trickleRequested())
	}

	if handle.hasFlag(FlagResendTrickles) {
		handle.clearFlag(FlagResendTrickles)
		rt.NotifyEvent("resend-trickles", map[string]interface{}{"handle_id": handle.ID})
	}

	return merged, nil
}

// awaitGatheringComplete blocks until ICE candidate gathering finishes,
// polling at 100ms as spec §4.4 directs, aborting early on STOP|ALERT or a
// negative completion result.
func (rt *Runtime) awaitGatheringComplete(ctx context.Context, handle *Handle, agent ICEAgentRef) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if handle.hasFlag(FlagStop) || handle.hasFlag(FlagAlert) {
			return
		}
		done, ok := rt.ICE.GatheringComplete(agent)
		if done || !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// iceCallbacks implements ICECallbacks on behalf of a Runtime, the
// media-side counterpart to pluginCallbacks.
type iceCallbacks struct{ rt *Runtime }

// ICECallbacks returns the callback surface the ICE collaborator is
// constructed with (spec §6, C11-equivalent for the media stack).
func (rt *Runtime) ICECallbacks() ICECallbacks { return iceCallbacks{rt} }

// Connected implements ICECallbacks. Reaching READY here is what makes the
// "no prior media session" test in the JSEP state machine flip from true to
// false in production (spec §4.4 step 4), unlocking the renegotiation/
// ICE-restart branch, and it is the webrtcup trigger for the plugin's
// setup_media hook (spec §6).
func (ic iceCallbacks) Connected(ctx context.Context, h *Handle) {
	h.setFlag(FlagReady)
	h.clearFlag(FlagStart)

	plugin, ref := h.Plugin()
	if plugin == nil {
		return
	}
	if err := plugin.SetupMedia(ctx, ref); err != nil {
		ic.rt.Log.Warn("setup_media failed", "handle", h.ID, "err", err)
	}
}

// AllCandidatesReceived implements ICECallbacks (spec §4.5): once every
// trickle candidate has arrived, connectivity checks begin right away
// rather than waiting on anything further.
func (ic iceCallbacks) AllCandidatesReceived(h *Handle) {
	h.setFlag(FlagAllTrickles)
	h.setFlag(FlagStart)
}

func (pc pluginCallbacks) RelayRTP(ref PluginSessionRef, video bool, packet []byte) {
	// RTP relay is the out-of-scope media stack's job; the core only
	// routes control-plane calls (spec §1).
}

func (pc pluginCallbacks) RelayRTCP(ref PluginSessionRef, video bool, packet []byte) {}

func (pc pluginCallbacks) RelayData(ref PluginSessionRef, data []byte) {}

// ClosePC and EndSession are always deferred onto the timer loop so the
// plugin's calling goroutine never runs teardown synchronously (spec §5).
func (pc pluginCallbacks) ClosePC(ref PluginSessionRef) {
	handle, ok := refHandle(ref)
	if !ok {
		return
	}
	pc.rt.deferOnTimer(func() {
		pc.rt.destroyHandle(context.Background(), handle)
	})
}

func (pc pluginCallbacks) EndSession(ref PluginSessionRef) {
	handle, ok := refHandle(ref)
	if !ok {
		return
	}
	pc.rt.deferOnTimer(func() {
		pc.rt.destroySession(context.Background(), handle.Session(), false)
	})
}

func (pc pluginCallbacks) NotifyEvent(kind string, ref PluginSessionRef, data map[string]interface{}) {
	pc.rt.NotifyEvent(kind, data)
}
