package signaling

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// WorkerPool processes `message` verbs off the dispatcher (spec §4.1,
// C7). SPEC_FULL.md adopts the spec's own REDESIGN FLAG: a fixed,
// bounded worker count with a bounded backlog instead of the source's
// unbounded-worker, 120s-idle-timeout pool, rejecting with
// ErrPoolSaturated ("Thread pool error") when the backlog is full even
// after a brief bounded backoff — grounded on the teacher's
// resilience/retry.go use of github.com/cenkalti/backoff for bounded
// retry-before-give-up.
type WorkerPool struct {
	tasks   chan func()
	wg      sync.WaitGroup
	draining atomic.Bool

	submitRetryBudget time.Duration
}

// NewWorkerPool starts `workers` goroutines draining a backlog of size
// `backlog`.
func NewWorkerPool(workers, backlog int) *WorkerPool {
	if workers <= 0 {
		workers = 8
	}
	if backlog <= 0 {
		backlog = 256
	}
	p := &WorkerPool{
		tasks:             make(chan func(), backlog),
		submitRetryBudget: 200 * time.Millisecond,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit enqueues task, retrying admission with bounded exponential
// backoff before giving up with ErrPoolSaturated (spec §9 "reject ...
// when saturated, as the source does on push failure").
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	if p.draining.Load() {
		return ErrPoolSaturated
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 40 * time.Millisecond

	deadline := time.Now().Add(p.submitRetryBudget)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		select {
		case p.tasks <- task:
			return struct{}{}, nil
		default:
			if time.Now().After(deadline) {
				return struct{}{}, backoff.Permanent(ErrPoolSaturated)
			}
			return struct{}{}, ErrPoolSaturated
		}
	}, backoff.WithBackOff(bo))
	return err
}

// Drain stops accepting new work and waits for the backlog to empty
// (non-force drain on global stop, spec §5 Cancellation).
func (p *WorkerPool) Drain() {
	p.draining.Store(true)
	close(p.tasks)
	p.wg.Wait()
}
