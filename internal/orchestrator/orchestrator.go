// Package orchestrator binds the message bus to the Brain and the Sale Flow
// State Machine: it consumes classified comments, obtains a decision, and
// publishes speak requests, recording every step into the Event Log and the
// session journal.
//
// Grounded on internal/agent/orchestrator/orchestrator.go's locking
// discipline (snapshot shared state, do I/O outside any lock) and
// functional-options construction style, generalized from NPC routing to
// the classified-comment -> decision -> speak-request pipeline of
// spec.md §4.E.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vhoststream/core/internal/brain"
	"github.com/vhoststream/core/internal/bus"
	"github.com/vhoststream/core/internal/clock"
	"github.com/vhoststream/core/internal/logging"
	"github.com/vhoststream/core/internal/metrics"
	otelmetrics "github.com/vhoststream/core/internal/otel"
	"github.com/vhoststream/core/internal/saleflow"
	"github.com/vhoststream/core/pkg/schema"
)

// autoTransitionTriggers maps a spoken comment's intent to the sale-flow
// trigger fired after the speak is committed, per spec.md §4.E.
var autoTransitionTriggers = map[brain.Intent]saleflow.Trigger{
	brain.IntentGreeting:        "greeting_received",
	brain.IntentProductQuestion: "product_mention",
	brain.IntentPriceQuestion:   "price_question",
	brain.IntentPurchaseIntent:  "purchase_intent",
	brain.IntentComplaint:       "complaint_received",
}

const (
	inboundQueue  = "classified_comments"
	outboundQueue = "speak_requests"
)

// Config tunes the orchestrator's background tasks and the sale-flow state
// machine's participation in decisions, per spec.md §6's ENABLE_STATE_MACHINE
// and AUTO_STATE_TRANSITION.
type Config struct {
	MetricsExportInterval time.Duration
	MetricsExportDir      string
	ViewerUpdateInterval  time.Duration
	Prefetch              int

	// StateMachineEnabled toggles the sale-flow machine's participation in
	// decisions. When false the Brain always sees phase "IDLE" and
	// CheckTimeout is never called.
	StateMachineEnabled bool

	// AutoTransition toggles firing [autoTransitionTriggers] after a
	// committed speak. When false the machine only moves via an external
	// caller driving Transition/ForcePhase directly.
	AutoTransition bool
}

// DefaultConfig returns the spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		MetricsExportInterval: 300 * time.Second,
		MetricsExportDir:      ".",
		ViewerUpdateInterval:  10 * time.Second,
		Prefetch:              1,
		StateMachineEnabled:   true,
		AutoTransition:        true,
	}
}

// ViewerFeed is an optional external source of the current viewer count.
// When nil, the orchestrator never updates the viewer count on its own.
type ViewerFeed interface {
	CurrentViewers(ctx context.Context) (int, error)
}

// Orchestrator wires a bus [Connection] to a [brain.Brain] and a
// [saleflow.Machine], publishing speak requests and maintaining the Event
// Log and session journal.
type Orchestrator struct {
	clk      clock.Clock
	conn     bus.Connection
	brain    *brain.Brain
	machine  *saleflow.Machine
	metrics  *metrics.Collector
	journal  *logging.Journal
	otel     *otelmetrics.Metrics
	feed     ViewerFeed
	archiver Archiver
	cfg      Config

	lastViewerCount int64
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithViewerFeed installs an optional external viewer-count source.
func WithViewerFeed(f ViewerFeed) Option {
	return func(o *Orchestrator) { o.feed = f }
}

// WithOTelMetrics installs the OpenTelemetry side channel. Optional.
func WithOTelMetrics(m *otelmetrics.Metrics) Option {
	return func(o *Orchestrator) { o.otel = m }
}

// Archiver persists Event Log entries past the process lifetime. The JSONL
// journal remains authoritative; an Archiver is a best-effort secondary
// sink, so its calls are fired from a separate goroutine and never block
// the inbound hot path.
type Archiver interface {
	ArchiveComment(ctx context.Context, e metrics.CommentEvent) error
	ArchiveSpeak(ctx context.Context, e metrics.SpeakEvent) error
}

// WithArchiver installs an optional [Archiver]. Optional.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// New creates an Orchestrator bound to the given bus connection and
// subsystems.
func New(clk clock.Clock, conn bus.Connection, b *brain.Brain, m *saleflow.Machine, col *metrics.Collector, journal *logging.Journal, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{clk: clk, conn: conn, brain: b, machine: m, metrics: col, journal: journal, cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run starts the inbound consume loop and background tasks. It blocks until
// ctx is cancelled or a background task fails, in which case the first
// error is returned (golang.org/x/sync/errgroup first-error propagation,
// mirroring the teacher's app.Run wg.Go usage but with failure reporting
// for the two auxiliary loops).
func (o *Orchestrator) Run(ctx context.Context) error {
	deliveries, err := o.conn.Consume(ctx, inboundQueue, o.cfg.Prefetch)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.consumeLoop(gctx, deliveries)
	})
	if o.cfg.MetricsExportInterval > 0 {
		g.Go(func() error {
			o.exportLoop(gctx)
			return nil
		})
	}
	if o.feed != nil && o.cfg.ViewerUpdateInterval > 0 {
		g.Go(func() error {
			o.viewerPollLoop(gctx)
			return nil
		})
	}

	err = g.Wait()
	o.journal.System("session ended", map[string]any{
		"realtime_stats": o.metrics.RealtimeStats(),
	})
	return err
}

func (o *Orchestrator) consumeLoop(ctx context.Context, deliveries <-chan bus.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			o.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery implements the seven-step inbound loop of spec.md §4.E.
func (o *Orchestrator) handleDelivery(ctx context.Context, d bus.Delivery) {
	var msg schema.ClassifiedComment
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		o.rejectMalformed(ctx, d, "invalid json: "+err.Error())
		return
	}
	if err := msg.Validate(); err != nil {
		o.rejectMalformed(ctx, d, err.Error())
		return
	}

	// 1. Record the Comment Event.
	handle := o.metrics.RecordComment(msg.Username, msg.Text(), msg.Intent)
	o.journal.Comment(msg.Username, msg.Text(), msg.Intent)
	if o.otel != nil {
		o.otel.RecordComment(ctx, msg.Intent)
	}
	if o.archiver != nil {
		go o.archiveComment(metrics.CommentEvent{
			Timestamp: o.clk.Now(),
			Author:    msg.Username,
			Text:      msg.Text(),
			Intent:    msg.Intent,
		})
	}

	// 3. Build the Brain input.
	phase := saleflow.PhaseIdle
	viewerCount := 0
	if o.cfg.StateMachineEnabled {
		// 2. Opportunistically check phase timeout.
		from := o.machine.Phase()
		if o.machine.CheckTimeout() {
			to := o.machine.Phase()
			o.journal.Transition(from.String(), to.String(), "timeout")
			if o.otel != nil {
				o.otel.RecordTransition(ctx, from.String(), to.String(), "timeout")
			}
		}
		phase = o.machine.Phase()
		viewerCount = o.machine.GetSnapshot().ViewerCount
	}
	input := brain.Input{
		Comment:     msg.ToBrainComment(),
		Phase:       phase.String(),
		ViewerCount: viewerCount,
	}

	// 4. Obtain a Decision.
	decision := o.brain.Decide(input)
	o.journal.Decision(string(decision.Action), string(decision.Reason), decision.Priority)
	if o.otel != nil {
		o.otel.RecordDecision(ctx, string(decision.Action), string(decision.Reason))
	}

	switch decision.Action {
	case brain.ActionSpeak:
		o.commitSpeak(ctx, msg, decision, handle, phase, viewerCount)
	case brain.ActionQueue:
		// 6. QUEUE only fires once the Brain's pending backlog is at
		// capacity, which the hot path never drives to in practice — the
		// backlog is read-only from Decide's perspective. Nothing to
		// publish here; the comment is dropped, same as SKIP/WAIT.
	default:
		// 7. SKIP/WAIT: counted implicitly by the Brain's decision reason;
		// nothing to publish.
	}

	if err := d.Ack(); err != nil {
		slog.Warn("orchestrator: ack failed", "error", err)
	}
}

func (o *Orchestrator) commitSpeak(ctx context.Context, msg schema.ClassifiedComment, decision brain.Decision, handle metrics.CommentHandle, phase saleflow.Phase, viewerCount int) {
	style := "friendly"
	if o.cfg.StateMachineEnabled {
		style = o.machine.GetResponseStyle()
	}
	now := o.clk.Now()

	out := schema.SpeakRequest{
		ClassifiedComment: msg,
		BrainDecision: schema.BrainDecisionPayload{
			Action:     string(decision.Action),
			Reason:     string(decision.Reason),
			Priority:   decision.Priority,
			Cooldown:   decision.Cooldown,
			Confidence: decision.Confidence,
		},
		SaleState:             phase.String(),
		ResponseStyle:         style,
		OrchestratorTimestamp: float64(now.UnixNano()) / 1e9,
	}

	body, err := json.Marshal(out)
	if err != nil {
		slog.Error("orchestrator: marshal speak request failed", "error", err)
		return
	}

	if err := o.conn.Publish(ctx, outboundQueue, body); err != nil {
		slog.Error("orchestrator: publish speak request failed", "error", err)
		if o.otel != nil {
			o.otel.RecordPublishError(ctx, outboundQueue)
		}
		return
	}

	// Duration is unknowable here: this core never synthesizes or plays the
	// response, it only decides to speak and hands off downstream.
	o.metrics.MarkResponded(handle, 0)
	speakEvent := o.metrics.RecordSpeak(msg.Text(), 0, msg.Intent, phase.String(), viewerCount, decision.Priority, string(decision.Reason))
	o.journal.Speak(msg.Text(), msg.Intent, phase.String(), decision.Priority, speakEvent.ViewerCount)
	if o.otel != nil {
		o.otel.RecordSpeak(ctx, msg.Intent, phase.String(), speakEvent.TimeSinceLast)
	}
	if o.archiver != nil {
		go o.archiveSpeak(speakEvent)
	}

	o.brain.MarkSpoken()
	if !o.cfg.StateMachineEnabled {
		return
	}
	o.machine.NotifySpeak()

	if !o.cfg.AutoTransition {
		return
	}
	if trigger, ok := autoTransitionTriggers[brain.Normalize(msg.Intent)]; ok {
		from := o.machine.Phase()
		if o.machine.Transition(trigger, false) {
			to := o.machine.Phase()
			o.journal.Transition(from.String(), to.String(), string(trigger))
			if o.otel != nil {
				o.otel.RecordTransition(ctx, from.String(), to.String(), string(trigger))
			}
		}
	}
}

// archiveComment and archiveSpeak run on their own goroutine, detached from
// ctx: the inbound delivery may already be acked by the time a slow archive
// write completes, and a failing archival sink must never hold up or cancel
// processing of the next delivery.
func (o *Orchestrator) archiveComment(e metrics.CommentEvent) {
	if err := o.archiver.ArchiveComment(context.Background(), e); err != nil {
		slog.Warn("orchestrator: archive comment failed", "error", err)
	}
}

func (o *Orchestrator) archiveSpeak(e metrics.SpeakEvent) {
	if err := o.archiver.ArchiveSpeak(context.Background(), e); err != nil {
		slog.Warn("orchestrator: archive speak failed", "error", err)
	}
}

func (o *Orchestrator) rejectMalformed(ctx context.Context, d bus.Delivery, reason string) {
	o.metrics.RecordMalformedInput()
	slog.Warn("orchestrator: dropping malformed inbound message", "reason", reason)
	if o.otel != nil {
		o.otel.RecordMalformedMessage(ctx)
	}
	if err := d.Nack(false); err != nil {
		slog.Warn("orchestrator: nack failed", "error", err)
	}
}

// exportLoop periodically snapshots the Event Log to a timestamped JSON
// file under cfg.MetricsExportDir, per spec.md §4.E background task (a).
func (o *Orchestrator) exportLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.MetricsExportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.exportMetrics()
		}
	}
}

func (o *Orchestrator) exportMetrics() {
	export := o.metrics.Export()
	slog.Info("orchestrator: metrics export tick", "total_speaks", export.Counters.TotalSpeaks, "total_comments", export.Counters.TotalComments)
	o.journal.System("metrics export", map[string]any{"counters": export.Counters})

	dir := o.cfg.MetricsExportDir
	if dir == "" {
		dir = "."
	}
	body, err := json.MarshalIndent(export, "", "  ")
	if err == nil {
		err = os.MkdirAll(dir, 0o755)
	}
	if err == nil {
		path := filepath.Join(dir, fmt.Sprintf("metrics_%s.json", export.ExportTime.Format("20060102_150405")))
		err = os.WriteFile(path, body, 0o644)
	}
	if err != nil {
		slog.Warn("orchestrator: metrics export file failed", "dir", dir, "error", err)
	}
}

// viewerPollLoop periodically refreshes the viewer count from the optional
// [ViewerFeed], per spec.md §4.E background task (b).
func (o *Orchestrator) viewerPollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.ViewerUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := o.feed.CurrentViewers(ctx)
			if err != nil {
				slog.Warn("orchestrator: viewer feed poll failed", "error", err)
				continue
			}
			if o.cfg.StateMachineEnabled {
				o.machine.UpdateViewerCount(count)
			}
			o.metrics.RecordViewer(count)
			if o.otel != nil {
				delta := int64(count) - o.lastViewerCount
				o.otel.ViewerCount.Add(ctx, delta)
				o.lastViewerCount = int64(count)
			}
		}
	}
}
