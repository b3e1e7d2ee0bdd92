package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/vhoststream/core/internal/bus"
	"github.com/vhoststream/core/internal/bus/mock"
	"github.com/vhoststream/core/internal/resilience"
)

func TestBreakerConnection_OpensAfterConsecutiveFailures(t *testing.T) {
	broker := mock.NewBroker()
	dialer := mock.Dialer{Broker: broker}
	conn, _ := dialer.Dial(context.Background())

	wrapped := bus.WithCircuitBreaker(conn, resilience.CircuitBreakerConfig{
		Name:         "test",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	broker.FailNextPublish("speak_requests")
	if err := wrapped.Publish(context.Background(), "speak_requests", []byte("x")); err == nil {
		t.Fatal("expected first publish to fail")
	}
	broker.FailNextPublish("speak_requests")
	if err := wrapped.Publish(context.Background(), "speak_requests", []byte("y")); err == nil {
		t.Fatal("expected second publish to fail")
	}

	if wrapped.BreakerState() != resilience.StateOpen {
		t.Fatalf("breaker state = %v, want open", wrapped.BreakerState())
	}
	if wrapped.Alive() {
		t.Error("Alive() = true, want false once the breaker is open")
	}

	// The breaker is now open: a third publish must not even reach the
	// underlying connection.
	if err := wrapped.Publish(context.Background(), "speak_requests", []byte("z")); err != resilience.ErrCircuitOpen {
		t.Errorf("publish while open = %v, want ErrCircuitOpen", err)
	}
}
