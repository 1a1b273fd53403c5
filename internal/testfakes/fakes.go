// Package testfakes provides in-memory stand-ins for the collaborator
// interfaces signaling.Runtime depends on (ICE, SDP, Transport, Plugin),
// so package tests can drive the dispatch pipeline end to end without a
// real media stack, mirroring the teacher's pattern of small hand-rolled
// fakes alongside its core package tests rather than a generated-mock
// library.
package testfakes

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gatewayrtc/core/pkg/signaling"
)

// FakeICE is a deterministic ICE collaborator: every agent it hands out
// reports gathering-complete immediately and accepts any trickle payload.
type FakeICE struct {
	mu          sync.Mutex
	nextAgentID int
	Restarted   []signaling.ICEAgentRef
	Fed         []string
}

type fakeAgent struct{ id int }

func NewFakeICE() *FakeICE { return &FakeICE{} }

func (f *FakeICE) SetupLocal(ctx context.Context, h *signaling.Handle, offer bool, counts signaling.MediaCounts, doTrickle bool) (signaling.ICEAgentRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextAgentID++
	return &fakeAgent{id: f.nextAgentID}, nil
}

func (f *FakeICE) Restart(ctx context.Context, agent signaling.ICEAgentRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Restarted = append(f.Restarted, agent)
	return nil
}

func (f *FakeICE) GatheringComplete(agent signaling.ICEAgentRef) (bool, bool) {
	return true, true
}

func (f *FakeICE) FeedTrickle(ctx context.Context, agent signaling.ICEAgentRef, candidateOrArray []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fed = append(f.Fed, string(candidateOrArray))
	return nil
}

func (f *FakeICE) CreateDataChannelAssociation(ctx context.Context, agent signaling.ICEAgentRef) error {
	return nil
}

// FakeSDP is a pass-through SDP collaborator: Merge echoes the plugin SDP
// verbatim, Process reports ForceICERestart as its ICE-restart result,
// Preparse rejects an empty SDP and otherwise reports one audio and one
// video stream, and Anonymize is the identity function. Good enough to exercise the
// negotiation state machine without parsing real SDP grammar.
type FakeSDP struct {
	mu             sync.Mutex
	ForceICERestart bool
}

func NewFakeSDP() *FakeSDP { return &FakeSDP{} }

func (f *FakeSDP) Preparse(sdp string) (signaling.MediaCounts, error) {
	if sdp == "" {
		return signaling.MediaCounts{}, fmt.Errorf("empty sdp")
	}
	return signaling.MediaCounts{Audio: 1, Video: 1}, nil
}

func (f *FakeSDP) Process(ctx context.Context, h *signaling.Handle, sdp string, offer bool, update bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ForceICERestart, nil
}

func (f *FakeSDP) Merge(ctx context.Context, h *signaling.Handle, pluginSDP string, offer bool) (string, error) {
	return pluginSDP, nil
}

func (f *FakeSDP) Anonymize(sdp string) string { return sdp }

// FakeTransport records everything sent through it, standing in for a real
// Transport implementation in tests.
type FakeTransport struct {
	NameVal signaling.TransportName

	mu       sync.Mutex
	Sent     []json.RawMessage
	Created  []uint64
	Over     []uint64
}

func NewFakeTransport(name signaling.TransportName) *FakeTransport {
	return &FakeTransport{NameVal: name}
}

func (f *FakeTransport) Name() signaling.TransportName { return f.NameVal }

func (f *FakeTransport) SendMessage(ctx context.Context, instance signaling.TransportInstance, reply signaling.ReplyToken, admin bool, body json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, body)
	return nil
}

func (f *FakeTransport) SessionCreated(ctx context.Context, instance signaling.TransportInstance, sessionID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Created = append(f.Created, sessionID)
	return nil
}

func (f *FakeTransport) SessionOver(ctx context.Context, instance signaling.TransportInstance, sessionID uint64, timeout bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Over = append(f.Over, sessionID)
	return nil
}

// LastSent returns the most recently sent body, or nil if none.
func (f *FakeTransport) LastSent() json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return nil
	}
	return f.Sent[len(f.Sent)-1]
}

// SentCount returns how many messages have been sent so far.
func (f *FakeTransport) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

// FakePlugin is a scriptable signaling.Plugin: HandleMessageFunc lets each
// test decide how a message is answered without writing a new plugin type.
type FakePlugin struct {
	PackageVal string

	HandleMessageFunc func(ctx context.Context, ref signaling.PluginSessionRef, transaction string, body json.RawMessage, jsep *signaling.JSEPEnvelope) signaling.PluginResult

	mu         sync.Mutex
	Created    int
	Destroyed  int
	MediaSetup int
}

type fakeSessionRef struct {
	handle *signaling.Handle
}

func (r *fakeSessionRef) signalingHandle() *signaling.Handle { return r.handle }

func NewFakePlugin(pkg string) *FakePlugin { return &FakePlugin{PackageVal: pkg} }

func (p *FakePlugin) Init(ctx context.Context) error { return nil }
func (p *FakePlugin) Destroy(ctx context.Context)     {}
func (p *FakePlugin) Name() string                    { return p.PackageVal }
func (p *FakePlugin) Package() string                 { return p.PackageVal }
func (p *FakePlugin) Version() string                 { return "test" }

func (p *FakePlugin) CreateSession(ctx context.Context, handle *signaling.Handle) (signaling.PluginSessionRef, error) {
	p.mu.Lock()
	p.Created++
	p.mu.Unlock()
	return &fakeSessionRef{handle: handle}, nil
}

func (p *FakePlugin) DestroySession(ctx context.Context, ref signaling.PluginSessionRef) error {
	p.mu.Lock()
	p.Destroyed++
	p.mu.Unlock()
	return nil
}

func (p *FakePlugin) HandleMessage(ctx context.Context, ref signaling.PluginSessionRef, transaction string, body json.RawMessage, jsep *signaling.JSEPEnvelope) signaling.PluginResult {
	if p.HandleMessageFunc != nil {
		return p.HandleMessageFunc(ctx, ref, transaction, body, jsep)
	}
	return signaling.PluginResult{Kind: signaling.PluginResultOK, Data: body}
}

func (p *FakePlugin) SetupMedia(ctx context.Context, ref signaling.PluginSessionRef) error {
	p.mu.Lock()
	p.MediaSetup++
	p.mu.Unlock()
	return nil
}
func (p *FakePlugin) HangupMedia(ctx context.Context, ref signaling.PluginSessionRef) error { return nil }

func (p *FakePlugin) QuerySession(ctx context.Context, ref signaling.PluginSessionRef) (json.RawMessage, error) {
	return json.Marshal(map[string]interface{}{"state": "fake"})
}
