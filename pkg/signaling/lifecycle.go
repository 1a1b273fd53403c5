package signaling

import "context"

// destroyHandle tears down a single Handle: it marks it CLEANING, waits for
// an in-flight message verb to settle, hangs up its plugin session if one is
// attached, and unrefs it (spec §4.4 step 1, §4.6 step 2).
func (rt *Runtime) destroyHandle(ctx context.Context, h *Handle) {
	h.beginCleaning()
	defer h.finishCleaning()

	h.msgMu.Lock()
	plugin, ref := h.Plugin()
	h.msgMu.Unlock()

	if plugin != nil {
		_ = plugin.HangupMedia(ctx, ref)
		if err := plugin.DestroySession(ctx, ref); err != nil {
			rt.Log.Warn("plugin destroy_session failed", "handle", h.ID, "err", err)
		}
	}

	if h.Unref() {
		// last reference: nothing else to release. destroyHandle does not
		// touch the Session's map; destroySession removes the entry after
		// this call returns, and ClosePC leaves it in place.
	}
}

// destroySession tears down every Handle owned by session, notifies its
// origin transport, and removes it from the registry (spec §4.6 "Session
// timeout", §8 scenario 6 "Transport disappearance", and the destroy verb).
// Safe to call more than once; only the first call that wins markDestroyed
// does the work.
func (rt *Runtime) destroySession(ctx context.Context, s *Session, timeout bool) {
	if !s.markDestroyed() {
		return
	}

	for _, h := range s.handleSnapshot() {
		rt.destroyHandle(ctx, h)
		s.removeHandle(h.ID)
	}

	if rt.eventsEnabled {
		rt.NotifyEvent("session-destroyed", map[string]interface{}{
			"session_id": s.ID,
			"timeout":    timeout,
		})
	}

	if t, ok := rt.lookupTransport(s.Origin.Transport); ok {
		if err := t.SessionOver(ctx, s.Origin.Instance, s.ID, timeout); err != nil {
			rt.Log.Warn("session_over notify failed", "session", s.ID, "err", err)
		}
	}

	rt.Registry.Remove(s.ID)
	s.Unref()
}
