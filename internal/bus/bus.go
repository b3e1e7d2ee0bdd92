// Package bus defines the message-bus boundary the orchestrator consumes
// classified comments from and publishes speak requests to: a durable work
// queue with at-least-once delivery, persistent messages, and a
// per-consumer prefetch limit. [AMQPDialer] is the production implementation;
// [bus/mock] provides an in-memory double for tests.
package bus

import "context"

// Delivery is one inbound message read from a queue. Ack/Nack must be
// called exactly once per delivery.
type Delivery struct {
	Body []byte

	// ack/nack are supplied by the Connection implementation.
	ack  func() error
	nack func(requeue bool) error
}

// Ack acknowledges successful processing of the delivery.
func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack rejects the delivery. When requeue is true the broker redelivers it
// to another consumer; the orchestrator uses requeue=false for messages it
// has determined are permanently malformed.
func (d Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// NewDelivery constructs a Delivery around the given ack/nack callbacks.
// Exported for use by Connection implementations outside this package
// (e.g. [bus/mock]).
func NewDelivery(body []byte, ack func() error, nack func(requeue bool) error) Delivery {
	return Delivery{Body: body, ack: ack, nack: nack}
}

// Consumer reads deliveries from a named durable queue.
type Consumer interface {
	// Consume returns a channel of deliveries from queue. The channel is
	// closed when the underlying connection drops; callers should treat
	// closure as a signal to reconnect.
	Consume(ctx context.Context, queue string, prefetch int) (<-chan Delivery, error)
}

// Publisher publishes persistent messages to a named durable queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Connection is a live bus connection exposing both roles plus liveness.
type Connection interface {
	Consumer
	Publisher

	// Alive reports whether the connection is still usable.
	Alive() bool

	// Close releases the connection's resources.
	Close() error
}

// Dialer establishes new [Connection]s, abstracting the concrete transport
// (AMQP in production, an in-memory broker in tests) so [Reconnector] can
// stay transport-agnostic.
type Dialer interface {
	Dial(ctx context.Context) (Connection, error)
}
