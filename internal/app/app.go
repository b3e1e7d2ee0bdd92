// Package app wires the decision core's subsystems into a running process.
//
// The App struct owns the full lifecycle: New creates and connects the bus,
// the Brain, the Sale Flow State Machine, the Event Log, the session
// journal, the OpenTelemetry metrics provider and the Orchestrator, Run
// starts the orchestrator's background loops and the health HTTP server,
// and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithDialer, WithClock, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vhoststream/core/internal/brain"
	"github.com/vhoststream/core/internal/bus"
	"github.com/vhoststream/core/internal/clock"
	"github.com/vhoststream/core/internal/config"
	"github.com/vhoststream/core/internal/health"
	"github.com/vhoststream/core/internal/logging"
	"github.com/vhoststream/core/internal/metrics"
	"github.com/vhoststream/core/internal/metrics/archive"
	otelmetrics "github.com/vhoststream/core/internal/otel"
	"github.com/vhoststream/core/internal/orchestrator"
	"github.com/vhoststream/core/internal/resilience"
	"github.com/vhoststream/core/internal/saleflow"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// inboundQueue and outboundQueue are the two durable queues the bus dialer
// declares up front, matching orchestrator's unexported constants of the
// same name.
const (
	inboundQueue  = "classified_comments"
	outboundQueue = "speak_requests"
)

// App owns all subsystem lifetimes and orchestrates the decision core.
type App struct {
	cfg *config.Config

	clk           clock.Clock
	dialer        bus.Dialer
	meterProvider metric.MeterProvider
	reconnector   *bus.Reconnector
	conn          bus.Connection

	brain   *brain.Brain
	machine *saleflow.Machine
	metrics *metrics.Collector
	journal *logging.Journal
	otel    *otelmetrics.Metrics

	orch         *orchestrator.Orchestrator
	healthServer *http.Server

	otelShutdown func(context.Context) error

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithClock injects a clock instead of [clock.NewReal].
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clk = c }
}

// WithDialer injects a bus [bus.Dialer] instead of building an
// [bus.AMQPDialer] from cfg.Bus.URL.
func WithDialer(d bus.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithMeterProvider injects a [metric.MeterProvider] instead of calling
// [otelmetrics.InitProvider] to install the global Prometheus-backed one.
// Tests should use this with an in-process reader (e.g. a
// sdk/metric.ManualReader) to avoid cross-test Prometheus registration
// collisions, mirroring the teacher's internal/observe testing convention.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *App) { a.meterProvider = mp }
}

// New creates an App by wiring all subsystems together. New performs all
// initialisation synchronously: session journal creation, OTel provider
// startup, the initial bus dial, and Brain/Machine/Collector/Orchestrator
// construction. It does not start the orchestrator's background loops or
// the health server; call Run for that.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.clk == nil {
		a.clk = clock.NewReal()
	}

	sessionID := uuid.NewString()

	// ── 1. Session journal ───────────────────────────────────────────────
	logDir := cfg.Server.LogDir
	if logDir == "" {
		logDir = "."
	}
	journal, err := logging.New(logDir, "vhost-core", sessionID, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}
	a.journal = journal
	a.closers = append(a.closers, journal.Close)

	// ── 2. OpenTelemetry metrics provider ────────────────────────────────
	mp := a.meterProvider
	if mp == nil {
		shutdown, err := otelmetrics.InitProvider(ctx, otelmetrics.ProviderConfig{ServiceName: "vhost-core"})
		if err != nil {
			return nil, fmt.Errorf("app: init otel provider: %w", err)
		}
		a.otelShutdown = shutdown
		a.closers = append(a.closers, func() error { return shutdown(context.Background()) })
		mp = otel.GetMeterProvider()
	}

	otelM, err := otelmetrics.NewMetrics(mp)
	if err != nil {
		return nil, fmt.Errorf("app: init otel instruments: %w", err)
	}
	a.otel = otelM

	// ── 3. Bus connection ────────────────────────────────────────────────
	if a.dialer == nil {
		a.dialer = bus.AMQPDialer{URL: cfg.Bus.URL, Queues: []string{inboundQueue, outboundQueue}}
	}
	a.reconnector = bus.NewReconnector(bus.ReconnectorConfig{Dialer: a.dialer})
	rawConn, err := a.reconnector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: initial bus connect: %w", err)
	}
	breaker := bus.WithCircuitBreaker(rawConn, resilience.CircuitBreakerConfig{
		Name:         "bus-publish",
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
	})
	a.conn = breaker
	a.reconnector.Monitor(ctx)
	a.closers = append(a.closers, a.reconnector.Stop)

	// ── 4. Brain, Sale Flow machine, Event Log ───────────────────────────
	a.brain = brain.New(a.clk, brain.WithConfig(cfg.Brain.ToBrainConfig()))
	a.machine = saleflow.New(a.clk)
	a.metrics = metrics.New(a.clk)

	// ── 5. Optional archival sink ─────────────────────────────────────────
	var orchOpts []orchestrator.Option
	orchOpts = append(orchOpts, orchestrator.WithOTelMetrics(a.otel))
	if cfg.Archive.PostgresDSN != "" {
		archiveStore, err := archive.NewStore(ctx, cfg.Archive.PostgresDSN, sessionID)
		if err != nil {
			return nil, fmt.Errorf("app: init archive store: %w", err)
		}
		a.closers = append(a.closers, func() error { archiveStore.Close(); return nil })
		orchOpts = append(orchOpts, orchestrator.WithArchiver(archiveStore))
	}

	// ── 6. Orchestrator ───────────────────────────────────────────────────
	orchCfg := orchestrator.Config{
		MetricsExportInterval: cfg.Metrics.ExportIntervalOrDefault(),
		MetricsExportDir:      cfg.Metrics.ExportPath,
		ViewerUpdateInterval:  cfg.Flow.ViewerUpdateIntervalOrDefault(),
		Prefetch:              cfg.Bus.PrefetchOrDefault(),
		StateMachineEnabled:   cfg.Flow.Enabled,
		AutoTransition:        cfg.Flow.AutoTransition,
	}
	a.orch = orchestrator.New(a.clk, a.conn, a.brain, a.machine, a.metrics, a.journal, orchCfg, orchOpts...)

	// ── 7. Health/readiness HTTP server ──────────────────────────────────
	handler := health.New(
		health.Checker{Name: "bus", Check: func(context.Context) error {
			if !a.conn.Alive() {
				return fmt.Errorf("bus connection not alive")
			}
			return nil
		}},
	)
	mux := http.NewServeMux()
	handler.Register(mux)
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.healthServer = &http.Server{Addr: addr, Handler: mux}

	return a, nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Metrics returns the Event Log collector backing RealtimeStats and Export.
func (a *App) Metrics() *metrics.Collector { return a.metrics }

// Machine returns the sale-flow state machine.
func (a *App) Machine() *saleflow.Machine { return a.machine }

// Brain returns the decision engine.
func (a *App) Brain() *brain.Brain { return a.brain }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the health server and the orchestrator's consume/export/viewer
// loops, blocking until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		slog.Info("app: health server listening", "addr", a.healthServer.Addr)
		if err := a.healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("app: health server: %w", err)
			return
		}
		errCh <- nil
	}()

	go func() {
		errCh <- a.orch.Run(ctx)
	}()

	slog.Info("app: running")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))

		if a.healthServer != nil {
			if err := a.healthServer.Shutdown(ctx); err != nil {
				slog.Warn("app: health server shutdown error", "err", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}

		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}
