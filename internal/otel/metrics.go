// Package otel provides application-wide OpenTelemetry metrics for the
// decision core: counters and histograms mirroring the Event Log's speak,
// comment, and decision activity as a pure side-channel, plus a Prometheus
// exporter bridge that registers them with the default Prometheus registry.
// This module serves no /metrics HTTP endpoint for that registry.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all decision-core
// metrics.
const meterName = "github.com/vhoststream/core"

// Metrics holds all OpenTelemetry metric instruments for the decision core.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// Decisions counts Brain decisions. Use with attributes:
	//   attribute.String("action", ...), attribute.String("reason", ...)
	Decisions metric.Int64Counter

	// Speaks counts committed SPEAK decisions. Use with attributes:
	//   attribute.String("intent", ...), attribute.String("phase", ...)
	Speaks metric.Int64Counter

	// Comments counts classified comments ingested. Use with attribute:
	//   attribute.String("intent", ...)
	Comments metric.Int64Counter

	// SpeakInterval tracks the time between consecutive SPEAK decisions.
	SpeakInterval metric.Float64Histogram

	// DecisionLatency tracks the Brain's wall-clock time per Decide call.
	DecisionLatency metric.Float64Histogram

	// PhaseTransitions counts sale-flow phase transitions. Use with
	// attributes: attribute.String("from", ...), attribute.String("to", ...),
	// attribute.String("trigger", ...)
	PhaseTransitions metric.Int64Counter

	// QueueDepth tracks the Brain's pending-queue size.
	QueueDepth metric.Int64UpDownCounter

	// ViewerCount tracks the most recently observed viewer count.
	ViewerCount metric.Int64UpDownCounter

	// BusPublishErrors counts outbound publish failures. Use with attribute:
	//   attribute.String("queue", ...)
	BusPublishErrors metric.Int64Counter

	// MalformedMessages counts inbound messages dropped for failing to
	// parse or missing required fields.
	MalformedMessages metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds), tuned
// for both sub-millisecond decision latencies and multi-second speak
// intervals.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Decisions, err = m.Int64Counter("vhost.brain.decisions",
		metric.WithDescription("Total Brain decisions by action and reason."),
	); err != nil {
		return nil, err
	}
	if met.Speaks, err = m.Int64Counter("vhost.brain.speaks",
		metric.WithDescription("Total committed SPEAK decisions by intent and phase."),
	); err != nil {
		return nil, err
	}
	if met.Comments, err = m.Int64Counter("vhost.comments.received",
		metric.WithDescription("Total classified comments ingested by intent."),
	); err != nil {
		return nil, err
	}
	if met.SpeakInterval, err = m.Float64Histogram("vhost.brain.speak_interval",
		metric.WithDescription("Time between consecutive SPEAK decisions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DecisionLatency, err = m.Float64Histogram("vhost.brain.decision_latency",
		metric.WithDescription("Wall-clock latency of a single Decide call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PhaseTransitions, err = m.Int64Counter("vhost.saleflow.transitions",
		metric.WithDescription("Total sale-flow phase transitions by from, to, and trigger."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("vhost.brain.queue_depth",
		metric.WithDescription("Current depth of the Brain's pending-comment queue."),
	); err != nil {
		return nil, err
	}
	if met.ViewerCount, err = m.Int64UpDownCounter("vhost.viewers.current",
		metric.WithDescription("Most recently observed viewer count."),
	); err != nil {
		return nil, err
	}
	if met.BusPublishErrors, err = m.Int64Counter("vhost.bus.publish_errors",
		metric.WithDescription("Total outbound publish failures by queue."),
	); err != nil {
		return nil, err
	}
	if met.MalformedMessages, err = m.Int64Counter("vhost.bus.malformed_messages",
		metric.WithDescription("Total inbound messages dropped for malformed content."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("otel: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordDecision is a convenience method recording a Brain decision.
func (m *Metrics) RecordDecision(ctx context.Context, action, reason string) {
	m.Decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("reason", reason),
	))
}

// RecordSpeak is a convenience method recording a committed SPEAK decision
// and its interval since the prior speak.
func (m *Metrics) RecordSpeak(ctx context.Context, intent, phase string, intervalSeconds float64) {
	m.Speaks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("intent", intent),
		attribute.String("phase", phase),
	))
	if intervalSeconds > 0 {
		m.SpeakInterval.Record(ctx, intervalSeconds)
	}
}

// RecordComment is a convenience method recording an ingested comment.
func (m *Metrics) RecordComment(ctx context.Context, intent string) {
	m.Comments.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}

// RecordTransition is a convenience method recording a sale-flow phase
// transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to, trigger string) {
	m.PhaseTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("trigger", trigger),
	))
}

// RecordPublishError is a convenience method recording an outbound publish
// failure.
func (m *Metrics) RecordPublishError(ctx context.Context, queue string) {
	m.BusPublishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}

// RecordMalformedMessage is a convenience method recording a dropped
// inbound message.
func (m *Metrics) RecordMalformedMessage(ctx context.Context) {
	m.MalformedMessages.Add(ctx, 1)
}
