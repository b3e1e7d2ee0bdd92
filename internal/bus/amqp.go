package bus

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPDialer dials an AMQP 0-9-1 broker (RabbitMQ) and declares the durable
// queues the core reads and writes, grounded on original_source's
// aio_pika-based message_queue.py: durable queues, per-consumer prefetch,
// and persistent delivery on publish.
type AMQPDialer struct {
	URL    string
	Queues []string
}

// Dial implements [Dialer].
func (d AMQPDialer) Dial(ctx context.Context) (Connection, error) {
	conn, err := amqp.DialConfig(d.URL, amqp.Config{})
	if err != nil {
		return nil, fmt.Errorf("bus: dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: open channel: %w", err)
	}

	for _, q := range d.Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("bus: declare queue %q: %w", q, err)
		}
	}

	return &amqpConnection{conn: conn, ch: ch}, nil
}

// amqpConnection wraps an AMQP connection and channel as a [Connection].
type amqpConnection struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	mu     sync.Mutex
	closed bool
}

// Consume implements [Consumer]. It sets the channel's Qos to prefetch
// before consuming, matching spec.md's single-consumer hot-path requirement.
func (c *amqpConnection) Consume(ctx context.Context, queue string, prefetch int) (<-chan Delivery, error) {
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("bus: set qos: %w", err)
	}

	deliveries, err := c.ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("bus: consume %q: %w", queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				delivery := d
				select {
				case out <- NewDelivery(delivery.Body,
					func() error { return delivery.Ack(false) },
					func(requeue bool) error { return delivery.Nack(false, requeue) },
				):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Publish implements [Publisher] with persistent delivery mode, matching
// spec.md §6's "persistent messages" requirement.
func (c *amqpConnection) Publish(ctx context.Context, queue string, body []byte) error {
	return c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Alive implements [Connection].
func (c *amqpConnection) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.conn.IsClosed()
}

// Close implements [Connection].
func (c *amqpConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	ch := c.ch.Close()
	conn := c.conn.Close()
	if conn != nil {
		return conn
	}
	return ch
}
