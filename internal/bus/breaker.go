package bus

import (
	"context"

	"github.com/vhoststream/core/internal/resilience"
)

// BreakerConnection wraps a [Connection], routing Publish through a
// [resilience.CircuitBreaker] so a persistently down downstream queue fails
// fast instead of blocking the orchestrator's hot path on repeated timeouts.
type BreakerConnection struct {
	Connection
	breaker *resilience.CircuitBreaker
}

// WithCircuitBreaker wraps conn's Publish path with a circuit breaker using
// the given configuration.
func WithCircuitBreaker(conn Connection, cfg resilience.CircuitBreakerConfig) *BreakerConnection {
	return &BreakerConnection{Connection: conn, breaker: resilience.NewCircuitBreaker(cfg)}
}

// Publish executes the wrapped connection's Publish through the breaker,
// returning [resilience.ErrCircuitOpen] immediately without attempting the
// call when the breaker is open.
func (c *BreakerConnection) Publish(ctx context.Context, queue string, body []byte) error {
	return c.breaker.Execute(func() error {
		return c.Connection.Publish(ctx, queue, body)
	})
}

// Alive reports the wrapped connection as alive only when the circuit
// breaker is not open, so readiness checks surface a downstream outage even
// while the underlying transport connection itself is still up.
func (c *BreakerConnection) Alive() bool {
	return c.Connection.Alive() && c.breaker.State() != resilience.StateOpen
}

// BreakerState exposes the underlying breaker's state for diagnostics.
func (c *BreakerConnection) BreakerState() resilience.State {
	return c.breaker.State()
}
