// Package echotest is a minimal reference Plugin: it deterministically
// echoes the message body and JSEP it receives back as a plugin event,
// exercising the full dispatch pipeline end to end without any real media
// handling. Modeled on the teacher's examples/* reference agents, which
// exist purely to exercise the framework rather than to do useful work.
package echotest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gatewayrtc/core/pkg/signaling"
)

const (
	Package = "plugin.echotest"
	name    = "Echo Test"
	version = "1.0.0"
)

// Plugin implements signaling.Plugin.
type Plugin struct {
	callbacks signaling.PluginCallbacks
}

// New constructs an echo-test plugin wired to the core's callback surface.
func New(callbacks signaling.PluginCallbacks) *Plugin {
	return &Plugin{callbacks: callbacks}
}

func (p *Plugin) Init(ctx context.Context) error   { return nil }
func (p *Plugin) Destroy(ctx context.Context)       {}
func (p *Plugin) Name() string                      { return name }
func (p *Plugin) Package() string                   { return Package }
func (p *Plugin) Version() string                   { return version }

// session is the PluginSessionRef this plugin hands back to the core; it
// satisfies the handleBearer convention PushEvent/ClosePC/EndSession rely
// on to recover the owning Handle from an opaque ref.
type session struct {
	handle *signaling.Handle
}

func (s *session) signalingHandle() *signaling.Handle { return s.handle }

func (p *Plugin) CreateSession(ctx context.Context, handle *signaling.Handle) (signaling.PluginSessionRef, error) {
	return &session{handle: handle}, nil
}

func (p *Plugin) DestroySession(ctx context.Context, ref signaling.PluginSessionRef) error {
	return nil
}

// HandleMessage replies OkWait immediately (spec §8 scenario 1) and then
// asynchronously pushes the same body/jsep back as an event, the way the
// happy-path end-to-end scenario describes.
func (p *Plugin) HandleMessage(ctx context.Context, ref signaling.PluginSessionRef, transaction string, body json.RawMessage, jsep *signaling.JSEPEnvelope) signaling.PluginResult {
	go func() {
		time.Sleep(10 * time.Millisecond)
		message, _ := json.Marshal(map[string]interface{}{
			"plugindata": map[string]interface{}{
				"plugin": Package,
				"data":   json.RawMessage(body),
			},
		})

		var answer *signaling.JSEPEnvelope
		if jsep != nil {
			answer = &signaling.JSEPEnvelope{Type: "answer", SDP: jsep.SDP}
		}
		p.callbacks.PushEvent(context.Background(), ref, transaction, message, answer)
	}()

	return signaling.PluginResult{Kind: signaling.PluginResultOKWait, Hint: "processing"}
}

func (p *Plugin) SetupMedia(ctx context.Context, ref signaling.PluginSessionRef) error  { return nil }
func (p *Plugin) HangupMedia(ctx context.Context, ref signaling.PluginSessionRef) error { return nil }

func (p *Plugin) QuerySession(ctx context.Context, ref signaling.PluginSessionRef) (json.RawMessage, error) {
	return json.Marshal(map[string]interface{}{"state": "echo"})
}
