package signaling

import (
	"sync"
	"sync/atomic"
	"time"
)

// Session is a logical client context (spec §3, C3). It owns its handle
// map; Sessions are owned exclusively by the registry's map.
type Session struct {
	ID     uint64
	Origin TransportOrigin

	mu      sync.Mutex
	handles map[uint64]*Handle

	lastActivity atomic.Int64 // unix nanos, monotonic-ish via time.Now().UnixNano()

	destroyed      atomic.Bool
	timeoutLatched atomic.Bool

	refcount int32
}

func newSession(id uint64, origin TransportOrigin) *Session {
	s := &Session{
		ID:      id,
		Origin:  origin,
		handles: make(map[uint64]*Handle),
		refcount: 1,
	}
	s.touch()
	return s
}

// touch updates last_activity; spec §3 invariant: updated before any
// request-specific dispatch succeeds.
func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// IdleFor reports how long the Session has been idle.
func (s *Session) IdleFor() time.Duration {
	last := s.lastActivity.Load()
	return time.Since(time.Unix(0, last))
}

func (s *Session) Destroyed() bool { return s.destroyed.Load() }

// markDestroyed flips destroyed false->true; monotonic per spec §3
// invariant. Returns false if it was already destroyed.
func (s *Session) markDestroyed() bool {
	return s.destroyed.CompareAndSwap(false, true)
}

// latchTimeout compare-and-sets timeoutLatched false->true, racing against
// concurrent destroy/sweep (spec §4.6 step 1).
func (s *Session) latchTimeout() bool {
	return s.timeoutLatched.CompareAndSwap(false, true)
}

func (s *Session) Ref() { atomic.AddInt32(&s.refcount, 1) }

func (s *Session) Unref() bool { return atomic.AddInt32(&s.refcount, -1) == 0 }

// addHandle inserts a new Handle and returns nothing; the session map is the
// Handle's sole owner from this point (spec §3 Ownership).
func (s *Session) addHandle(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[h.ID] = h
}

// getHandle looks up a Handle by id, bumping its refcount on success (spec
// §5 "A lookup returns a reference whose counter has been pre-incremented").
func (s *Session) getHandle(id uint64) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	if ok {
		h.Ref()
	}
	return h, ok
}

// removeHandle deletes a Handle from the map, returning it if present.
func (s *Session) removeHandle(id uint64) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	if ok {
		delete(s.handles, id)
	}
	return h, ok
}

// handleSnapshot returns all handles currently owned by the session, for
// the sweeper and for admin list_handles/transport_gone teardown.
func (s *Session) handleSnapshot() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	return out
}

func (s *Session) handleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
