package signaling

import (
	"context"
	"encoding/json"
)

// TransportName identifies a registered Transport ("http", "websocket",
// "amqp", ...).
type TransportName string

// TransportInstance is an opaque reference to one connection/channel within
// a Transport (e.g. one long-poll client, one websocket connection).
type TransportInstance interface{}

// ReplyToken is the opaque reply-id a Transport hands back to the core so a
// later send_message call can be routed to the right inbound request (e.g.
// an HTTP long-poll response channel, a WebSocket connection ID).
type ReplyToken interface{}

// Transport is the contract the core invokes on transports (spec §6,
// "Transport (core -> transport)"). Out of scope for this repository are
// the concrete transport implementations; only this interface is core.
type Transport interface {
	Name() TransportName

	// SendMessage delivers a JSON response/event back to the given
	// instance via the given reply token.
	SendMessage(ctx context.Context, instance TransportInstance, reply ReplyToken, admin bool, body json.RawMessage) error

	// SessionCreated and SessionOver notify the transport of session
	// lifecycle events tied to one of its instances.
	SessionCreated(ctx context.Context, instance TransportInstance, sessionID uint64) error
	SessionOver(ctx context.Context, instance TransportInstance, sessionID uint64, timeout bool) error
}

// TransportCallbacks is the contract transports invoke on the core (spec
// §6, "Transport callbacks (transport -> core)"). A Runtime implements
// this interface and transports are constructed with a reference to it.
type TransportCallbacks interface {
	// IncomingRequest is the single entry point transports call to push a
	// Request onto the dispatch queue (spec §4.1).
	IncomingRequest(transport TransportName, instance TransportInstance, reply ReplyToken, admin bool, payload json.RawMessage)

	// TransportGone tells the core a transport instance has vanished;
	// every Session whose origin equals that instance is destroyed
	// within the same call (spec §8 scenario 6).
	TransportGone(transport TransportName, instance TransportInstance)

	IsAPISecretNeeded() bool
	IsAPISecretValid(secret string) bool
	IsAuthTokenNeeded() bool
	IsAuthTokenValid(token string) bool

	NotifyEvent(kind string, data map[string]interface{})
	EventsEnabled() bool
}

// PluginResultKind is the three-way outcome a Plugin's HandleMessage
// returns (spec §4.3 message verb / §4.4 step 7).
type PluginResultKind int

const (
	PluginResultOK PluginResultKind = iota
	PluginResultOKWait
	PluginResultErr
)

// PluginResult is returned by Plugin.HandleMessage.
type PluginResult struct {
	Kind PluginResultKind
	Data json.RawMessage // for PluginResultOK: plugindata payload
	Hint string          // for PluginResultOKWait: optional hint string
	Err  error           // for PluginResultErr
}

// PluginSessionRef is the opaque per-handle reference a Plugin keeps,
// returned from CreateSession and passed back on every subsequent call.
type PluginSessionRef interface{}

// Plugin is the contract the core invokes on application plugins (spec §6,
// "Plugin (core -> plugin)"). Concrete plugins (videoroom, SIP, echotest,
// ...) are opaque beyond this interface.
type Plugin interface {
	Init(ctx context.Context) error
	Destroy(ctx context.Context)

	Name() string
	Package() string
	Version() string

	// CreateSession is invoked on attach; the returned PluginSessionRef is
	// stored on the Handle and passed to every later call.
	CreateSession(ctx context.Context, handle *Handle) (PluginSessionRef, error)
	DestroySession(ctx context.Context, ref PluginSessionRef) error

	// HandleMessage processes a message verb's body (and optional JSEP
	// envelope produced by the signaling state machine, spec §4.4 step 6).
	HandleMessage(ctx context.Context, ref PluginSessionRef, transaction string, body json.RawMessage, jsep *JSEPEnvelope) PluginResult

	SetupMedia(ctx context.Context, ref PluginSessionRef) error
	HangupMedia(ctx context.Context, ref PluginSessionRef) error

	// QuerySession returns plugin-specific introspection data for the
	// admin handle_info verb. Required on every plugin — SPEC_FULL.md
	// decides the spec's open question against the source's legacy nil
	// check (see DESIGN.md).
	QuerySession(ctx context.Context, ref PluginSessionRef) (json.RawMessage, error)
}

// PluginCallbacks is the outbound interface the core exposes to plugins
// (spec §6, C11). A Runtime implements this and plugins are constructed
// with a reference to it.
type PluginCallbacks interface {
	// PushEvent delivers an asynchronous plugin-originated event to the
	// handle's client, optionally carrying a JSEP answer/offer (spec
	// §4.4 "Outbound JSEP"). Returns a Code describing acceptance.
	PushEvent(ctx context.Context, ref PluginSessionRef, transaction string, message json.RawMessage, jsep *JSEPEnvelope) Code

	RelayRTP(ref PluginSessionRef, video bool, packet []byte)
	RelayRTCP(ref PluginSessionRef, video bool, packet []byte)
	RelayData(ref PluginSessionRef, data []byte)

	// ClosePC and EndSession are always deferred onto the timer loop so
	// the plugin's caller thread never runs session teardown synchronously
	// (spec §5 "Suspension points").
	ClosePC(ref PluginSessionRef)
	EndSession(ref PluginSessionRef)

	NotifyEvent(kind string, ref PluginSessionRef, data map[string]interface{})
}
