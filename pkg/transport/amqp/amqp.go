// Package amqp implements the AMQP Transport (spec §1 names it explicitly
// alongside HTTP long-poll and WebSocket): it consumes control-plane
// requests off a queue and replies via each message's reply-to/
// correlation-id, the standard AMQP RPC pattern. The initial connection in
// Start is retried with bounded exponential backoff, grounded on the
// teacher's resilience/retry.go use of github.com/cenkalti/backoff; a
// connection lost after Start is not re-established.
package amqp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gatewayrtc/core/pkg/logger"
	"github.com/gatewayrtc/core/pkg/signaling"
)

const Name signaling.TransportName = "amqp"

// Config configures the AMQP transport.
type Config struct {
	URL          string
	RequestQueue string
	AdminQueue   string
}

// Transport implements signaling.Transport over RabbitMQ.
type Transport struct {
	cfg       Config
	callbacks signaling.TransportCallbacks
	log       logger.Logger

	mu   sync.RWMutex
	conn *amqp.Connection
	ch   *amqp.Channel

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// replyInstance is the TransportInstance this transport hands the core:
// enough to route a reply back through the broker's default exchange.
type replyInstance struct {
	replyTo       string
	correlationID string
}

func New(cfg Config, callbacks signaling.TransportCallbacks, log logger.Logger) *Transport {
	if log == nil {
		log = logger.NoOp()
	}
	return &Transport{cfg: cfg, callbacks: callbacks, log: log, stopCh: make(chan struct{})}
}

func (t *Transport) Name() signaling.TransportName { return Name }

// Start connects, declares the queues, and begins consuming. It retries the
// initial connection with bounded exponential backoff before giving up.
func (t *Transport) Start(ctx context.Context) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := t.connect(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(reconnectBackOff()))
	if err != nil {
		return err
	}

	t.wg.Add(1)
	go t.consumeLoop(t.cfg.RequestQueue, false)
	if t.cfg.AdminQueue != "" {
		t.wg.Add(1)
		go t.consumeLoop(t.cfg.AdminQueue, true)
	}
	return nil
}

func reconnectBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	return bo
}

func (t *Transport) connect() error {
	conn, err := amqp.Dial(t.cfg.URL)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if _, err := ch.QueueDeclare(t.cfg.RequestQueue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return err
	}
	if t.cfg.AdminQueue != "" {
		if _, err := ch.QueueDeclare(t.cfg.AdminQueue, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return err
		}
	}

	t.mu.Lock()
	t.conn, t.ch = conn, ch
	t.mu.Unlock()
	return nil
}

func (t *Transport) consumeLoop(queue string, admin bool) {
	defer t.wg.Done()
	for {
		t.mu.RLock()
		ch := t.ch
		t.mu.RUnlock()
		if ch == nil {
			return
		}

		deliveries, err := ch.Consume(queue, "", true, false, false, false, nil)
		if err != nil {
			t.log.Warn("amqp consume failed", "queue", queue, "err", err)
			return
		}

		for {
			select {
			case <-t.stopCh:
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				inst := &replyInstance{replyTo: d.ReplyTo, correlationID: d.CorrelationId}
				t.callbacks.IncomingRequest(Name, inst, inst, admin, json.RawMessage(d.Body))
			}
		}
	}
}

func (t *Transport) SendMessage(ctx context.Context, instance signaling.TransportInstance, reply signaling.ReplyToken, admin bool, body json.RawMessage) error {
	inst, ok := instance.(*replyInstance)
	if !ok || inst.replyTo == "" {
		return signaling.ErrInvalidRequestPath
	}
	t.mu.RLock()
	ch := t.ch
	t.mu.RUnlock()
	if ch == nil {
		return signaling.ErrInvalidRequestPath
	}
	return ch.PublishWithContext(ctx, "", inst.replyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: inst.correlationID,
		Body:          body,
	})
}

func (t *Transport) SessionCreated(ctx context.Context, instance signaling.TransportInstance, sessionID uint64) error {
	t.log.Debug("session created", "session_id", sessionID)
	return nil
}

func (t *Transport) SessionOver(ctx context.Context, instance signaling.TransportInstance, sessionID uint64, timeout bool) error {
	t.log.Debug("session over", "session_id", sessionID, "timeout", timeout)
	return nil
}

// Stop closes the connection and unblocks the consume loops.
func (t *Transport) Stop() {
	close(t.stopCh)
	t.mu.Lock()
	if t.ch != nil {
		_ = t.ch.Close()
	}
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.mu.Unlock()
	t.wg.Wait()
}
