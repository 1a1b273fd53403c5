package signaling

import "sync"

// Registry is the process-wide session-id -> Session map (spec §3, C2),
// guarded by a single mutex with short critical sections (spec §5). It is
// grounded on the teacher's core/redis_registry.go map-plus-mutex shape,
// adapted from a remote store to the spec's required single in-process map.
type Registry struct {
	mu       sync.Mutex
	sessions map[uint64]*Session
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uint64]*Session)}
}

// Create allocates a new Session, optionally with a caller-supplied id.
// Returns ErrSessionConflict if the id is already taken (spec §4.3 create,
// §8 boundary).
func (r *Registry) Create(id uint64, origin TransportOrigin) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != 0 {
		if _, exists := r.sessions[id]; exists {
			return nil, ErrSessionConflict
		}
	} else {
		for {
			candidate := randomID()
			if _, exists := r.sessions[candidate]; !exists {
				id = candidate
				break
			}
		}
	}

	s := newSession(id, origin)
	r.sessions[id] = s
	return s, nil
}

// Lookup returns the Session for id with its refcount pre-incremented, or
// ErrSessionNotFound. Per spec §3 invariant, once destroyed is true a
// Session is "not found" to new callers even if references remain live.
func (r *Registry) Lookup(id uint64) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok || s.Destroyed() {
		return nil, ErrSessionNotFound
	}
	s.Ref()
	return s, nil
}

// Remove deletes a Session from the map; the caller is responsible for
// having already marked it destroyed and for releasing its own reference
// afterward (spec §3, §4.6).
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Snapshot returns every live Session, for the timeout sweeper and for
// admin list_sessions / transport_gone (spec §4.6, §4.7, §8 scenario 6).
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
