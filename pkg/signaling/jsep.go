package signaling

import "context"

// rawJSEP is the wire shape of an inbound jsep object (spec §4.4).
type rawJSEP struct {
	Type    string `json:"type"`
	SDP     string `json:"sdp"`
	Trickle *bool  `json:"trickle,omitempty"`
	Update  bool   `json:"update,omitempty"`
}

// processInboundJSEP runs the signaling state machine of spec §4.4 steps
// 1-6 and returns the enriched envelope to hand the plugin. Step 7 (mapping
// the plugin's Result to a response) is the caller's job.
func (rt *Runtime) processInboundJSEP(ctx context.Context, handle *Handle, raw rawJSEP) (*JSEPEnvelope, error) {
	if handle.hasFlag(FlagCleaning) {
		if !handle.awaitCleaningClear(ctx) {
			return nil, NewAPIError(CodeWebRTCState, "", ErrWebRTCState)
		}
	}

	if raw.Type != "offer" && raw.Type != "answer" {
		return nil, NewAPIError(CodeJSEPUnknownType, "", ErrJSEPUnknownType)
	}

	counts, err := rt.SDP.Preparse(raw.SDP)
	if err != nil {
		return nil, NewAPIError(CodeJSEPInvalidSDP, "", ErrJSEPInvalidSDP)
	}

	offer := raw.Type == "offer"
	if offer {
		handle.setFlag(FlagProcessingOffer)
		handle.setFlag(FlagGotOffer)
		handle.clearFlag(FlagGotAnswer)
	} else {
		handle.setFlag(FlagGotAnswer)
	}

	ready := handle.hasFlag(FlagReady) && !handle.hasFlag(FlagAlert)
	doTrickle := raw.Trickle == nil || *raw.Trickle

	if !ready {
		if offer {
			agent, err := rt.ICE.SetupLocal(ctx, handle, true, counts, doTrickle)
			if err != nil {
				return nil, NewAPIError(CodeWebRTCState, "", err)
			}
			handle.setAgent(agent)
		} else if handle.getAgent() == nil {
			return nil, NewAPIError(CodeUnexpectedAnswer, "", ErrUnexpectedAnswer)
		}

		if _, err := rt.SDP.Process(ctx, handle, raw.SDP, offer, false); err != nil {
			return nil, NewAPIError(CodeJSEPInvalidSDP, "", err)
		}

		if !offer {
			rt.onAnswerProcessed(ctx, handle, doTrickle)
		}
	} else {
		iceRestart, err := rt.SDP.Process(ctx, handle, raw.SDP, offer, true)
		if err != nil {
			return nil, NewAPIError(CodeJSEPInvalidSDP, "", err)
		}
		if iceRestart {
			handle.setFlag(FlagICERestart)
		}
		if handle.hasFlag(FlagICERestart) {
			if offer {
				if agent := handle.getAgent(); agent != nil {
					if err := rt.ICE.Restart(ctx, agent); err != nil {
						rt.Log.Warn("ice restart failed", "handle", handle.ID, "err", err)
					}
				}
				if rt.FullTrickle && handle.hasFlag(FlagTrickle) {
					handle.setFlag(FlagResendTrickles)
				}
			} else {
				handle.clearFlag(FlagICERestart)
			}
		}
		if handle.hasFlag(FlagDataChannels) {
			if agent := handle.getAgent(); agent != nil {
				if err := rt.ICE.CreateDataChannelAssociation(ctx, agent); err != nil {
					rt.Log.Warn("data channel association failed", "handle", handle.ID, "err", err)
				}
			}
		}
	}

	handle.setRemoteSDP(raw.SDP)
	handle.clearFlag(FlagProcessingOffer)

	anonymized := rt.SDP.Anonymize(raw.SDP)
	return &JSEPEnvelope{Type: raw.Type, SDP: anonymized, Update: raw.Update}, nil
}

// onAnswerProcessed runs once an offer/answer exchange completes in either
// direction — "answer received and processed" (spec §4.5, §8 scenario 3) —
// whether the answer arrived inbound over the wire or outbound from a
// plugin's push_event. It replays any trickle candidates buffered before
// the SDP arrived, and decides whether the handle should keep waiting for
// out-of-band candidates (TRICKLE) or has none to wait for and can begin
// connectivity checks immediately (START).
func (rt *Runtime) onAnswerProcessed(ctx context.Context, handle *Handle, doTrickle bool) {
	rt.drainHandleTrickles(ctx, handle)
	if doTrickle {
		handle.setFlag(FlagTrickle)
	} else {
		handle.setFlag(FlagStart)
	}
}

// drainHandleTrickles replays buffered trickle candidates once the handle
// reaches "answer received and processed" (spec §4.5).
func (rt *Runtime) drainHandleTrickles(ctx context.Context, handle *Handle) {
	agent := handle.getAgent()
	if agent == nil {
		return
	}
	for _, t := range handle.drainTrickles() {
		if err := rt.ICE.FeedTrickle(ctx, agent, t.CandidateOrArray); err != nil {
			rt.NotifyEvent("trickle-error", map[string]interface{}{
				"handle_id": handle.ID,
				"error":     err.Error(),
			})
		}
	}
}
