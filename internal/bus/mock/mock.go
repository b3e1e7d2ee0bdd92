// Package mock provides an in-memory [bus.Connection]/[bus.Dialer] pair for
// orchestrator tests, following the teacher's test-double convention
// (internal/agent/mock).
package mock

import (
	"context"
	"sync"

	"github.com/vhoststream/core/internal/bus"
)

// Broker is an in-memory durable-queue stand-in shared by a Dialer's
// connections. Push feeds a queue's consumers; a publish is not delivered to
// consumers, it is only recorded, and Published returns those records for
// test assertions.
type Broker struct {
	mu        sync.Mutex
	queues    map[string]chan bus.Delivery
	published map[string][][]byte
	failNext  map[string]bool
}

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{
		queues:    make(map[string]chan bus.Delivery),
		published: make(map[string][][]byte),
		failNext:  make(map[string]bool),
	}
}

func (b *Broker) queueFor(name string) chan bus.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.queues[name]
	if !ok {
		ch = make(chan bus.Delivery, 64)
		b.queues[name] = ch
	}
	return ch
}

// Push enqueues a raw message for delivery to queue's consumer.
func (b *Broker) Push(queue string, body []byte) {
	b.queueFor(queue) <- bus.NewDelivery(body, func() error { return nil }, func(bool) error { return nil })
}

// Published returns every message body published to queue, in order.
func (b *Broker) Published(queue string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.published[queue]...)
}

// FailNextPublish makes the next Publish call to queue return an error,
// exercising circuit-breaker and retry paths.
func (b *Broker) FailNextPublish(queue string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext[queue] = true
}

func (b *Broker) recordPublish(queue string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext[queue] {
		b.failNext[queue] = false
		return errPublishFailed
	}
	b.published[queue] = append(b.published[queue], body)
	return nil
}

var errPublishFailed = &publishError{}

type publishError struct{}

func (*publishError) Error() string { return "mock: publish failed" }

// Dialer is a [bus.Dialer] backed by a [Broker].
type Dialer struct {
	Broker *Broker
}

// Dial implements [bus.Dialer].
func (d Dialer) Dial(ctx context.Context) (bus.Connection, error) {
	return &connection{broker: d.Broker}, nil
}

type connection struct {
	broker *Broker
	mu     sync.Mutex
	closed bool
}

// Consume implements [bus.Consumer]. prefetch is ignored; the mock delivers
// as fast as the channel allows.
func (c *connection) Consume(ctx context.Context, queue string, prefetch int) (<-chan bus.Delivery, error) {
	src := c.broker.queueFor(queue)
	out := make(chan bus.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Publish implements [bus.Publisher].
func (c *connection) Publish(ctx context.Context, queue string, body []byte) error {
	return c.broker.recordPublish(queue, body)
}

// Alive implements [bus.Connection].
func (c *connection) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close implements [bus.Connection].
func (c *connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
