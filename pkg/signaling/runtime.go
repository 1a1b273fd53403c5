// Package signaling implements the core request-dispatch pipeline,
// session/handle registry, and signaling state machine of a
// general-purpose WebRTC server (spec.md §1-§9). Transports, plugins,
// and the ICE/SDP media stack are external collaborators reached only
// through the interfaces in transport.go and collaborators.go.
package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gatewayrtc/core/pkg/logger"
)

// ServerInfo is returned by the info verb (spec §4.3).
type ServerInfo struct {
	Name      string
	Version   string
	Transports []string
	Plugins    []string
}

// Runtime is the explicit, constructed-once value that replaces the
// source's process-wide globals (spec §9 "Global state"): the registry,
// auth module, logger, and stop flag are bundled here and threaded through
// every entry point instead of living as package-level state.
type Runtime struct {
	Info ServerInfo

	Registry *Registry
	Auth     *Auth
	Log      logger.Logger
	Telemetry Telemetry
	ICE      ICE
	SDP      SDP

	queue   *requestQueue
	pool    *WorkerPool
	deferCh chan func()

	mu         sync.RWMutex
	transports map[TransportName]Transport
	plugins    map[string]Plugin // keyed by package name

	sessionTimeout atomic.Int64 // time.Duration as int64 nanos; 0 disables sweeper
	debug          debugFlags

	// FullTrickle mirrors spec §4.4/§4.5/§9's "full-trickle mode": when
	// set, an ICE restart on an established handle that has TRICKLE also
	// sets RESEND_TRICKLES. The next outbound JSEP clears that flag and
	// emits a "resend-trickles" event; the core itself keeps no candidate
	// cache and re-sends no candidates.
	FullTrickle bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	eventsEnabled bool
}

// RuntimeOptions configures a new Runtime.
type RuntimeOptions struct {
	Info           ServerInfo
	Auth           *Auth
	Log            logger.Logger
	Telemetry      Telemetry
	ICE            ICE
	SDP            SDP
	Workers        int
	WorkerBacklog  int
	SessionTimeout time.Duration
	EventsEnabled  bool
	FullTrickle    bool
}

// NewRuntime constructs a Runtime with an empty registry and starts its
// dispatcher and worker pool. Callers must call Stop to shut down
// cooperatively (spec §5 Cancellation).
func NewRuntime(opts RuntimeOptions) *Runtime {
	if opts.Log == nil {
		opts.Log = logger.NoOp()
	}
	if opts.Auth == nil {
		opts.Auth = NewAuth("", "", false, nil)
	}
	if opts.Telemetry == nil {
		opts.Telemetry = NoOpTelemetry{}
	}

	rt := &Runtime{
		Info:          opts.Info,
		Registry:      NewRegistry(),
		Auth:          opts.Auth,
		Log:           opts.Log,
		Telemetry:     opts.Telemetry,
		ICE:           opts.ICE,
		SDP:           opts.SDP,
		queue:         newRequestQueue(),
		pool:          NewWorkerPool(opts.Workers, opts.WorkerBacklog),
		deferCh:       make(chan func(), 64),
		transports:    make(map[TransportName]Transport),
		plugins:       make(map[string]Plugin),
		stopCh:        make(chan struct{}),
		eventsEnabled: opts.EventsEnabled,
		FullTrickle:   opts.FullTrickle,
	}
	rt.sessionTimeout.Store(int64(opts.SessionTimeout))

	rt.wg.Add(1)
	go rt.dispatchLoop()

	rt.wg.Add(1)
	go rt.sweepLoop()

	rt.wg.Add(1)
	go rt.timerLoop()

	return rt
}

// RegisterTransport makes a Transport reachable for send_message/
// session_created/session_over calls (spec §6).
func (rt *Runtime) RegisterTransport(t Transport) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.transports[t.Name()] = t
}

// RegisterPlugin makes a Plugin attachable by its package name (spec §4.3
// attach: "look up plugin by package name").
func (rt *Runtime) RegisterPlugin(p Plugin) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.plugins[p.Package()] = p
}

func (rt *Runtime) lookupPlugin(pkg string) (Plugin, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	p, ok := rt.plugins[pkg]
	return p, ok
}

func (rt *Runtime) lookupTransport(name TransportName) (Transport, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	t, ok := rt.transports[name]
	return t, ok
}

func (rt *Runtime) transportNames() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]string, 0, len(rt.transports))
	for n := range rt.transports {
		out = append(out, string(n))
	}
	return out
}

func (rt *Runtime) pluginPackages() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]string, 0, len(rt.plugins))
	for p := range rt.plugins {
		out = append(out, p)
	}
	return out
}

func (rt *Runtime) SessionTimeout() time.Duration {
	return time.Duration(rt.sessionTimeout.Load())
}

// SetSessionTimeout backs the admin set_session_timeout verb. A value of
// zero disables the sweeper entirely (spec §4.6, §8 boundary).
func (rt *Runtime) SetSessionTimeout(d time.Duration) {
	rt.sessionTimeout.Store(int64(d))
}

// IncomingRequest implements TransportCallbacks: the single entry point
// transports call to push a Request onto the dispatch queue (spec §4.1).
func (rt *Runtime) IncomingRequest(transport TransportName, instance TransportInstance, reply ReplyToken, admin bool, payload json.RawMessage) {
	req := newRequest(TransportOrigin{Transport: transport, Instance: instance}, reply, admin, payload)
	rt.queue.push(req)
}

// TransportGone implements TransportCallbacks (spec §8 scenario 6): every
// Session whose origin equals that instance is destroyed and removed
// within the same call; their plugins receive destroy_session.
func (rt *Runtime) TransportGone(transport TransportName, instance TransportInstance) {
	for _, s := range rt.Registry.Snapshot() {
		if s.Origin.Transport != transport || s.Origin.Instance != instance {
			continue
		}
		rt.destroySession(context.Background(), s, false)
	}
}

func (rt *Runtime) IsAPISecretNeeded() bool { return rt.Auth.apiSecretSet }
func (rt *Runtime) IsAPISecretValid(secret string) bool {
	return constantTimeEquals(secret, rt.Auth.apiSecret)
}
func (rt *Runtime) IsAuthTokenNeeded() bool { return rt.Auth.tokenAuthOn }
func (rt *Runtime) IsAuthTokenValid(token string) bool { return rt.Auth.Tokens.Exists(token) }

func (rt *Runtime) NotifyEvent(kind string, data map[string]interface{}) {
	if !rt.eventsEnabled {
		return
	}
	rt.Log.Debug("event", "kind", kind)
}

func (rt *Runtime) EventsEnabled() bool { return rt.eventsEnabled }

// Stop shuts the runtime down cooperatively (spec §5 Cancellation): the
// dispatcher sees the sentinel, the sweeper's loop quits, the pool drains
// without force, then every Session is destroyed.
func (rt *Runtime) Stop() {
	rt.stopOnce.Do(func() {
		close(rt.stopCh)
		rt.queue.push(sentinelRequest)
		close(rt.deferCh)
		rt.wg.Wait()
		rt.pool.Drain()
		for _, s := range rt.Registry.Snapshot() {
			rt.destroySession(context.Background(), s, false)
		}
	})
}
