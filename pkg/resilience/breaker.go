// Package resilience provides fault-tolerance helpers for calls to
// collaborators that can misbehave — a flaky plugin, a dropped AMQP
// broker connection — without letting one slow collaborator back up the
// whole gateway.
//
// Grounded on the teacher's core/circuit_breaker.go interface (Execute,
// ExecuteWithTimeout, GetState, GetMetrics, Reset, CanExecute) and the
// three-state closed/open/half-open model described there, reimplemented
// here at a scope matched to this repository rather than copied in full.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute when the breaker is open.
var ErrOpen = errors.New("resilience: circuit breaker open")

// State is the circuit breaker's current state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config configures a CircuitBreaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from closed to open.
	FailureThreshold int
	// OpenTimeout is how long the breaker stays open before it moves to
	// half-open, where every call is let through as a probe.
	OpenTimeout time.Duration
	// HalfOpenSuccesses is the number of consecutive probe successes
	// required to close the breaker again.
	HalfOpenSuccesses int
}

// DefaultConfig mirrors the teacher's defaults: a handful of failures
// trips the breaker, with a short cooldown before probing again.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, OpenTimeout: 10 * time.Second, HalfOpenSuccesses: 2}
}

// CircuitBreaker protects calls to a single collaborator.
type CircuitBreaker struct {
	name string
	cfg  Config

	mu              sync.Mutex
	state           State
	consecutiveFail int
	consecutiveOK   int
	openedAt        time.Time
	totalSuccess    int64
	totalFailure    int64
	totalRejected   int64
}

// New constructs a CircuitBreaker, matching the teacher's named
// CircuitBreakerParams{Name, Config} shape.
func New(name string, cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultConfig().OpenTimeout
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = DefaultConfig().HalfOpenSuccesses
	}
	return &CircuitBreaker{name: name, cfg: cfg}
}

// CanExecute reports whether a call would currently be allowed through.
func (b *CircuitBreaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canExecuteLocked()
}

func (b *CircuitBreaker) canExecuteLocked() bool {
	switch b.state {
	case Open:
		if time.Since(b.openedAt) >= b.cfg.OpenTimeout {
			b.state = HalfOpen
			b.consecutiveOK = 0
			return true
		}
		return false
	default:
		return true
	}
}

// Execute runs fn with circuit breaker protection.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	b.mu.Lock()
	if !b.canExecuteLocked() {
		b.totalRejected++
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.totalFailure++
		b.consecutiveFail++
		b.consecutiveOK = 0
		if b.state == HalfOpen || b.consecutiveFail >= b.cfg.FailureThreshold {
			b.state = Open
			b.openedAt = time.Now()
		}
		return err
	}

	b.totalSuccess++
	b.consecutiveFail = 0
	if b.state == HalfOpen {
		b.consecutiveOK++
		if b.consecutiveOK >= b.cfg.HalfOpenSuccesses {
			b.state = Closed
		}
	}
	return nil
}

// ExecuteWithTimeout runs fn with both circuit breaker protection and a
// deadline, for operations that might hang (e.g. an AMQP publish against a
// stalled broker).
func (b *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	return b.Execute(ctx, func() error {
		done := make(chan error, 1)
		go func() { done <- fn() }()
		select {
		case err := <-done:
			return err
		case <-time.After(timeout):
			return context.DeadlineExceeded
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (b *CircuitBreaker) GetState() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

func (b *CircuitBreaker) GetMetrics() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"name":             b.name,
		"state":            b.state.String(),
		"total_success":    b.totalSuccess,
		"total_failure":    b.totalFailure,
		"total_rejected":   b.totalRejected,
		"consecutive_fail": b.consecutiveFail,
	}
}

func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutiveFail = 0
	b.consecutiveOK = 0
	b.totalSuccess, b.totalFailure, b.totalRejected = 0, 0, 0
}
