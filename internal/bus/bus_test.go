package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/vhoststream/core/internal/bus"
	"github.com/vhoststream/core/internal/bus/mock"
)

func TestMockBus_PublishAndConsume(t *testing.T) {
	broker := mock.NewBroker()
	dialer := mock.Dialer{Broker: broker}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := dialer.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := conn.Publish(ctx, "speak_requests", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := broker.Published("speak_requests"); len(got) != 1 {
		t.Fatalf("published = %d messages, want 1", len(got))
	}

	broker.Push("classified_comments", []byte(`{"username":"alice"}`))
	deliveries, err := conn.Consume(ctx, "classified_comments", 1)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	select {
	case d := <-deliveries:
		if string(d.Body) != `{"username":"alice"}` {
			t.Errorf("delivery body = %q", d.Body)
		}
		if err := d.Ack(); err != nil {
			t.Errorf("Ack: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMockBus_PublishFailureInjection(t *testing.T) {
	broker := mock.NewBroker()
	dialer := mock.Dialer{Broker: broker}
	conn, _ := dialer.Dial(context.Background())

	broker.FailNextPublish("speak_requests")
	if err := conn.Publish(context.Background(), "speak_requests", []byte("x")); err == nil {
		t.Fatal("expected publish error, got nil")
	}
	if err := conn.Publish(context.Background(), "speak_requests", []byte("y")); err != nil {
		t.Fatalf("second publish should succeed: %v", err)
	}
}

func TestReconnector_ReconnectsOnDisconnect(t *testing.T) {
	broker := mock.NewBroker()
	dialer := mock.Dialer{Broker: broker}

	reconnected := make(chan bus.Connection, 1)
	r := bus.NewReconnector(bus.ReconnectorConfig{
		Dialer:     dialer,
		Backoff:    time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
		OnReconnect: func(c bus.Connection) {
			reconnected <- c
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := r.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	r.Monitor(ctx)
	r.NotifyDisconnect()

	select {
	case <-reconnected:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reconnect")
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
