package signaling

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Handle is the per-PeerConnection child of a Session (spec §3, C4). It is
// exclusively owned by its Session's handle map; everyone else holds only a
// refcounted reference obtained via lookup (spec §3 Ownership, §5 Shared
// Resource Policy).
type Handle struct {
	ID        uint64
	OpaqueID  string // caller-tagged for logging/events; empty means unset

	// session is a non-owning back-reference (spec §9 design note: forward
	// edges own, back edges are plain references — Go's GC makes a weak
	// pointer unnecessary, but the ownership direction is the same: the
	// Session's handle map is authoritative, this field is just a
	// convenience back-pointer never used to extend the Session's
	// lifetime decision).
	session *Session

	mu           sync.Mutex
	cleaningCond *sync.Cond

	plugin    Plugin
	pluginRef PluginSessionRef

	flags   flagSet
	agent   ICEAgentRef
	localSDP  string
	remoteSDP string

	trickles trickleQueue

	// msgMu serializes plugin message-handling per handle (SPEC_FULL.md's
	// decision on the spec's §9 open question: two `message` verbs on the
	// same handle run one at a time; different handles still run fully
	// concurrently across the worker pool).
	msgMu sync.Mutex

	refcount int32
}

func newHandle(id uint64, opaqueID string, session *Session) *Handle {
	h := &Handle{ID: id, OpaqueID: opaqueID, session: session, refcount: 1}
	h.cleaningCond = sync.NewCond(&h.mu)
	return h
}

// Ref increments the Handle's reference count; callers obtaining a
// reference via lookup are contractually required to call Unref (spec §5).
func (h *Handle) Ref() { atomic.AddInt32(&h.refcount, 1) }

// Unref decrements the reference count, returning true if it reached zero.
func (h *Handle) Unref() bool {
	return atomic.AddInt32(&h.refcount, -1) == 0
}

func (h *Handle) attachPlugin(p Plugin, ref PluginSessionRef) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plugin = p
	h.pluginRef = ref
}

func (h *Handle) Plugin() (Plugin, PluginSessionRef) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.plugin, h.pluginRef
}

func (h *Handle) hasFlag(f WebrtcFlag) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flags.has(f)
}

func (h *Handle) setFlag(f WebrtcFlag) {
	h.mu.Lock()
	h.flags.set(f)
	h.mu.Unlock()
}

func (h *Handle) clearFlag(f WebrtcFlag) {
	h.mu.Lock()
	h.flags.clear(f)
	if f == FlagCleaning {
		h.cleaningCond.Broadcast()
	}
	h.mu.Unlock()
}

// beginCleaning sets CLEANING; finishCleaning clears it and wakes any
// waiters. Used by handle teardown paths (detach, session destroy, timeout
// sweep) around plugin hangup calls.
func (h *Handle) beginCleaning() {
	h.mu.Lock()
	h.flags.set(FlagCleaning)
	h.mu.Unlock()
}

func (h *Handle) finishCleaning() {
	h.mu.Lock()
	h.flags.clear(FlagCleaning)
	h.cleaningCond.Broadcast()
	h.mu.Unlock()
}

// awaitCleaningClear blocks until CLEANING is unset or ctx is done or the
// 3s bound elapses, whichever comes first (spec §4.4 step 1; SPEC_FULL.md's
// condition-variable redesign of the source's 100ms sleep-poll loop).
// Returns false if CLEANING was still set when the wait gave up.
func (h *Handle) awaitCleaningClear(ctx context.Context) bool {
	deadline := time.Now().Add(3 * time.Second)

	done := make(chan struct{})
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(time.Until(deadline)):
		case <-stopWatch:
			return
		}
		h.mu.Lock()
		h.cleaningCond.Broadcast()
		h.mu.Unlock()
		close(done)
	}()

	h.mu.Lock()
	defer h.mu.Unlock()
	for h.flags.has(FlagCleaning) {
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		h.cleaningCond.Wait()
	}
	return true
}

// bufferTrickle appends a candidate to the pending queue (spec §4.5).
func (h *Handle) bufferTrickle(t PendingTrickle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trickles.push(t)
}

// drainTrickles empties the pending queue, dropping stale entries, when the
// handle reaches "answer received and processed" (spec §4.5).
func (h *Handle) drainTrickles() []PendingTrickle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.trickles.drain(time.Now())
}

// needsBuffering reports whether a trickle candidate arriving right now
// must be buffered rather than fed straight to ICE (spec §4.5: buffered
// while ¬stream_ready ∨ PROCESSING_OFFER ∨ ¬GOT_OFFER ∨ ¬GOT_ANSWER).
func (h *Handle) needsBuffering(streamReady bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !streamReady ||
		h.flags.has(FlagProcessingOffer) ||
		!h.flags.has(FlagGotOffer) ||
		!h.flags.has(FlagGotAnswer)
}

func (h *Handle) setLocalSDP(sdp string) {
	h.mu.Lock()
	h.localSDP = sdp
	h.mu.Unlock()
}

func (h *Handle) setRemoteSDP(sdp string) {
	h.mu.Lock()
	h.remoteSDP = sdp
	h.mu.Unlock()
}

func (h *Handle) SDPs() (local, remote string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.localSDP, h.remoteSDP
}

func (h *Handle) setAgent(a ICEAgentRef) {
	h.mu.Lock()
	h.agent = a
	h.mu.Unlock()
}

func (h *Handle) getAgent() ICEAgentRef {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.agent
}

// FlagSnapshot returns the current flag bitset for introspection (admin
// handle_info, spec §4.7).
func (h *Handle) FlagSnapshot() WebrtcFlag {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flags.bits
}

// Session returns the owning Session. Non-owning: callers must not use
// this to extend the Handle's or Session's lifetime beyond their own
// refcounted hold.
func (h *Handle) Session() *Session { return h.session }
