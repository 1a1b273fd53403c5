package signaling

// timerLoop is the cooperative timer loop spec §5 requires for deferred
// plugin-initiated teardown: close_pc and end_session always run here, never
// synchronously on the plugin's calling goroutine.
func (rt *Runtime) timerLoop() {
	defer rt.wg.Done()
	for fn := range rt.deferCh {
		fn()
	}
}

// deferOnTimer schedules fn to run on the timer loop. Safe to call from any
// goroutine up until Stop closes deferCh.
func (rt *Runtime) deferOnTimer(fn func()) {
	defer func() { recover() }() // Stop may have closed deferCh concurrently
	rt.deferCh <- fn
}
