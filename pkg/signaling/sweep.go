package signaling

import (
	"context"
	"time"
)

const sweepInterval = 2 * time.Second

// sweepLoop is C5, the timeout sweeper: every tick it destroys every Session
// idle past its configured timeout (spec §4.6). A SessionTimeout of zero
// disables sweeping entirely.
func (rt *Runtime) sweepLoop() {
	defer rt.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rt.stopCh:
			return
		case <-ticker.C:
			rt.sweepOnce()
		}
	}
}

func (rt *Runtime) sweepOnce() {
	timeout := rt.SessionTimeout()
	if timeout <= 0 {
		return
	}

	for _, s := range rt.Registry.Snapshot() {
		if s.Destroyed() {
			continue
		}
		if s.IdleFor() < timeout {
			continue
		}
		if !s.latchTimeout() {
			continue
		}
		rt.destroySession(context.Background(), s, true)
	}
}
