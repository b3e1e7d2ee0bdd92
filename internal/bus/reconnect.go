package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Default reconnection parameters, matching the teacher's audio Reconnector.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Reconnector monitors a bus [Connection] and automatically reconnects on
// disconnection with exponential backoff, generalized from
// internal/session.Reconnector's audio.Platform/audio.Connection pair to a
// Dialer/Connection pair.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	dialer      Dialer
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	onReconnect func(Connection)

	mu           sync.Mutex
	conn         Connection
	done         chan struct{}
	stopOnce     sync.Once
	disconnected chan struct{}
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	Dialer Dialer

	// MaxRetries is the maximum number of reconnection attempts before
	// giving up. Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial backoff between retries, doubling each attempt
	// up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff caps the backoff duration. Defaults to 30s if zero.
	MaxBackoff time.Duration

	// OnReconnect is called with the new connection after a successful
	// reconnect. May be nil.
	OnReconnect func(Connection)
}

// NewReconnector creates a [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Reconnector{
		dialer:       cfg.Dialer,
		maxRetries:   maxRetries,
		backoff:      backoff,
		maxBackoff:   maxBackoff,
		onReconnect:  cfg.OnReconnect,
		done:         make(chan struct{}),
		disconnected: make(chan struct{}, 1),
	}
}

// Connect performs the initial dial.
func (r *Reconnector) Connect(ctx context.Context) (Connection, error) {
	conn, err := r.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("bus: reconnector initial connect: %w", err)
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	return conn, nil
}

// Monitor starts a background goroutine watching for disconnect signals.
func (r *Reconnector) Monitor(ctx context.Context) {
	go r.monitorLoop(ctx)
}

// NotifyDisconnect signals that the connection was lost. Safe to call
// multiple times; only the first call per reconnect cycle has effect.
func (r *Reconnector) NotifyDisconnect() {
	select {
	case r.disconnected <- struct{}{}:
	default:
	}
}

// Stop halts monitoring and closes the current connection.
func (r *Reconnector) Stop() error {
	r.stopOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Connection returns the current connection. During a reconnect attempt it
// is still the previous connection until a new one replaces it; it is nil
// before Connect succeeds and after Stop.
func (r *Reconnector) Connection() Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

func (r *Reconnector) monitorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-r.disconnected:
			r.attemptReconnect(ctx)
		}
	}
}

func (r *Reconnector) attemptReconnect(ctx context.Context) {
	currentBackoff := r.backoff

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		default:
		}

		slog.Info("bus: attempting reconnection", "attempt", attempt, "max_retries", r.maxRetries, "backoff", currentBackoff)

		conn, err := r.dialer.Dial(ctx)
		if err == nil {
			r.mu.Lock()
			old := r.conn
			r.conn = conn
			r.mu.Unlock()

			if old != nil {
				_ = old.Close()
			}

			slog.Info("bus: reconnection successful", "attempt", attempt)
			if r.onReconnect != nil {
				r.onReconnect(conn)
			}
			return
		}

		slog.Warn("bus: reconnection attempt failed", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(currentBackoff):
		}

		currentBackoff *= 2
		if currentBackoff > r.maxBackoff {
			currentBackoff = r.maxBackoff
		}
	}

	slog.Error("bus: reconnection failed after max retries", "max_retries", r.maxRetries)
}
