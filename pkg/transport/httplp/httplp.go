// Package httplp implements the HTTP long-poll Transport: clients POST
// requests to one path, naming their instance in the "instance" query
// parameter, and GET the same path and parameter to long-poll for
// queued responses/events, mirroring the wait-for-next-message shape of the
// teacher's polling-based async task state machine (core/async_task.go)
// applied to HTTP instead of an in-process queue.
package httplp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatewayrtc/core/pkg/logger"
	"github.com/gatewayrtc/core/pkg/signaling"
)

const Name signaling.TransportName = "http"

const longPollTimeout = 30 * time.Second

// Transport implements signaling.Transport over plain HTTP long-polling.
type Transport struct {
	callbacks signaling.TransportCallbacks
	log       logger.Logger

	mu        sync.Mutex
	instances map[string]*instance
}

type instance struct {
	id      string
	mu      sync.Mutex
	cond    *sync.Cond
	pending []json.RawMessage
	closed  bool
}

func newInstance(id string) *instance {
	i := &instance{id: id}
	i.cond = sync.NewCond(&i.mu)
	return i
}

func New(callbacks signaling.TransportCallbacks, log logger.Logger) *Transport {
	if log == nil {
		log = logger.NoOp()
	}
	return &Transport{callbacks: callbacks, log: log, instances: make(map[string]*instance)}
}

func (t *Transport) Name() signaling.TransportName { return Name }

func (t *Transport) getOrCreate(id string) *instance {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	inst, ok := t.instances[id]
	if !ok {
		inst = newInstance(id)
		t.instances[id] = inst
	}
	return inst
}

// Handler serves both the POST (submit a request, body is the janus
// envelope) and GET (long-poll for the next queued response) verbs for one
// path, keyed by the "instance" query parameter the client supplies.
func (t *Transport) Handler(admin bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		instanceID := r.URL.Query().Get("instance")
		inst := t.getOrCreate(instanceID)

		switch r.Method {
		case http.MethodPost:
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "invalid body", http.StatusBadRequest)
				return
			}
			t.callbacks.IncomingRequest(Name, inst, inst.id, admin, json.RawMessage(body))
			w.WriteHeader(http.StatusAccepted)
		case http.MethodGet:
			msg := inst.poll(r.Context())
			w.Header().Set("Content-Type", "application/json")
			if msg == nil {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			_, _ = w.Write(msg)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// poll blocks until a message is available, the request context is
// cancelled, or longPollTimeout elapses.
func (i *instance) poll(ctx context.Context) json.RawMessage {
	deadline := time.Now().Add(longPollTimeout)

	done := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(time.Until(deadline)):
		case <-stop:
			return
		}
		i.mu.Lock()
		i.cond.Broadcast()
		i.mu.Unlock()
		close(done)
	}()

	i.mu.Lock()
	defer i.mu.Unlock()
	for len(i.pending) == 0 {
		if ctx.Err() != nil || time.Now().After(deadline) {
			return nil
		}
		i.cond.Wait()
	}
	msg := i.pending[0]
	i.pending = i.pending[1:]
	return msg
}

func (i *instance) push(msg json.RawMessage) {
	i.mu.Lock()
	i.pending = append(i.pending, msg)
	i.cond.Broadcast()
	i.mu.Unlock()
}

func (t *Transport) SendMessage(ctx context.Context, instanceRef signaling.TransportInstance, reply signaling.ReplyToken, admin bool, body json.RawMessage) error {
	inst, ok := instanceRef.(*instance)
	if !ok {
		return signaling.ErrInvalidRequestPath
	}
	inst.push(body)
	return nil
}

func (t *Transport) SessionCreated(ctx context.Context, instanceRef signaling.TransportInstance, sessionID uint64) error {
	t.log.Debug("session created", "session_id", sessionID)
	return nil
}

func (t *Transport) SessionOver(ctx context.Context, instanceRef signaling.TransportInstance, sessionID uint64, timeout bool) error {
	t.log.Debug("session over", "session_id", sessionID, "timeout", timeout)
	return nil
}

// Forget releases an instance (e.g. on an idle-cleanup sweep an operator
// wires up); not invoked by the core itself.
func (t *Transport) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.instances, id)
}
