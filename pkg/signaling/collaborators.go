package signaling

import "context"

// The ICE/DTLS/SRTP media stack and SDP parser are out of scope (spec §1);
// the core only invokes them by contract. These interfaces are that
// contract — concrete implementations live in a separate, unspecified
// package.

// MediaCounts summarizes the per-media streams found while pre-parsing an
// SDP body (spec §4.4 step 2).
type MediaCounts struct {
	Audio int
	Video int
	Data  int
}

// SimulcastInfo carries the up-to-three SSRCs the spec's enriched JSEP
// envelope exposes to plugins (spec §4.4 step 6).
type SimulcastInfo struct {
	SSRC [3]uint32
}

// ICEAgentRef is an opaque reference to an ICE agent instance owned by the
// out-of-scope ICE subsystem; the Handle only stores it (spec §3).
type ICEAgentRef interface{}

// ICE is the `ice.*` collaborator contract (spec §4.4).
type ICE interface {
	// SetupLocal creates a new ICE agent for the handle. offer is true when
	// the agent is set up for a remote peer's inbound offer, and false when
	// it is set up for a plugin's outbound offer.
	SetupLocal(ctx context.Context, h *Handle, offer bool, counts MediaCounts, doTrickle bool) (ICEAgentRef, error)

	// Restart forces fresh ICE credentials and connectivity checks on an
	// existing agent (spec §4.4 step 5, GLOSSARY "ICE restart").
	Restart(ctx context.Context, agent ICEAgentRef) error

	// GatheringComplete reports whether local candidate gathering has
	// finished; used by the outbound-JSEP blocking wait (spec §4.4).
	GatheringComplete(agent ICEAgentRef) (done bool, ok bool)

	// FeedTrickle hands one buffered or live candidate to the agent.
	FeedTrickle(ctx context.Context, agent ICEAgentRef, candidateOrArray []byte) error

	// CreateDataChannelAssociation provisions the SCTP association at the
	// DTLS layer (spec §4.4 step 5).
	CreateDataChannelAssociation(ctx context.Context, agent ICEAgentRef) error
}

// SDP is the `sdp.*` collaborator contract (spec §4.4, §6).
type SDP interface {
	// Preparse validates an SDP body and extracts its media counts,
	// returning ErrJSEPInvalidSDP on parse failure (spec §4.4 step 2).
	Preparse(sdp string) (MediaCounts, error)

	// Process merges a remote JSEP body into the handle's negotiated
	// state; update distinguishes initial negotiation from renegotiation
	// (spec §4.4 steps 4-5). It reports whether ICE-restart credentials
	// were detected during renegotiation.
	Process(ctx context.Context, h *Handle, sdp string, offer bool, update bool) (iceRestart bool, err error)

	// Merge combines a plugin-supplied SDP body with the core's local
	// ICE/DTLS/media attributes, returning the SDP to store as local_sdp
	// (spec §4.4 "Outbound JSEP").
	Merge(ctx context.Context, h *Handle, pluginSDP string, offer bool) (string, error)

	// Anonymize strips attributes that should not reach the plugin from
	// the negotiated SDP (spec §4.4 step 6).
	Anonymize(sdp string) string
}

// ICECallbacks is the contract the out-of-scope ICE subsystem invokes back
// on the core for connectivity events it observes asynchronously on its own
// threads (spec §6; the media-side counterpart to PluginCallbacks/
// TransportCallbacks). A Runtime implements this interface and the concrete
// ICE collaborator is constructed with a reference to it.
type ICECallbacks interface {
	// Connected reports that h's PeerConnection reached full connectivity
	// ("webrtcup"): the core sets READY and invokes the plugin's
	// setup_media hook (spec §6, §8 scenario 5).
	Connected(ctx context.Context, h *Handle)

	// AllCandidatesReceived reports that the peer's end-of-candidates
	// marker has been parsed: the core sets ALL_TRICKLES and begins
	// connectivity checks (spec §4.5).
	AllCandidatesReceived(h *Handle)
}

// JSEPEnvelope is the `{type, sdp}` offer/answer description (spec
// GLOSSARY), extended with the optional fields the enriched plugin-facing
// envelope carries.
type JSEPEnvelope struct {
	Type      string // "offer" or "answer"
	SDP       string
	Trickle   *bool // optional, default true
	Update    bool
	Restart   bool // plugin-declared ICE restart on an outbound offer
	Simulcast *SimulcastInfo
}

func (j *JSEPEnvelope) trickleRequested() bool {
	if j == nil || j.Trickle == nil {
		return true
	}
	return *j.Trickle
}
