package signaling

import (
	"encoding/json"
	"time"
)

// trickleMaxAge is the spec's unexplained 45s staleness threshold (spec §4.5,
// §9 Open Questions — "a magic number with no documented rationale"). It is
// kept verbatim rather than re-derived.
const trickleMaxAge = 45 * time.Second

// PendingTrickle is one buffered candidate awaiting replay once the handle's
// signaling state reaches "answer received and processed" (spec §4.5, §3).
type PendingTrickle struct {
	TransactionID string
	// CandidateOrArray holds exactly one of a single candidate object or a
	// candidates array, as received on the wire.
	CandidateOrArray json.RawMessage
	ReceivedAt       time.Time
}

func (p PendingTrickle) expired(now time.Time) bool {
	return now.Sub(p.ReceivedAt) > trickleMaxAge
}

// trickleQueue is a small FIFO buffer; Handle serializes access to it under
// its own mutex, matching spec §5's per-handle mutex requirement.
type trickleQueue struct {
	items []PendingTrickle
}

func (q *trickleQueue) push(t PendingTrickle) {
	q.items = append(q.items, t)
}

// drain returns the non-stale entries in FIFO order and empties the queue,
// dropping anything older than trickleMaxAge at drain time (spec §4.5,
// §8 invariants).
func (q *trickleQueue) drain(now time.Time) []PendingTrickle {
	fresh := make([]PendingTrickle, 0, len(q.items))
	for _, t := range q.items {
		if !t.expired(now) {
			fresh = append(fresh, t)
		}
	}
	q.items = nil
	return fresh
}
