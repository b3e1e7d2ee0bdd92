// Package metrics implements the Event Log: three bounded append-only event
// sequences (speak events, comment events, viewer samples) plus a small set
// of monotone counters, and the windowed aggregations the rest of the
// system queries to judge how the virtual host is performing.
//
// Every public method on [Collector] is safe for concurrent use.
package metrics

import "time"

// SpeakEvent records one committed SPEAK decision.
type SpeakEvent struct {
	Timestamp     time.Time
	Text          string
	Duration      time.Duration
	Intent        string
	Phase         string
	ViewerCount   int
	Priority      int
	Reason        string
	TimeSinceLast float64 // seconds since the prior speak, 0 if this is the first
}

// CommentEvent records one classified comment as it arrived.
type CommentEvent struct {
	Timestamp       time.Time
	Author          string
	Text            string
	Intent          string
	WasResponded    bool
	ResponseLatency time.Duration
}

// ViewerSample records a point-in-time viewer count observation.
type ViewerSample struct {
	Timestamp time.Time
	Count     int
}

// Counters is the set of monotone non-decreasing totals the Event Log
// tracks across the life of a session.
type Counters struct {
	TotalSpeaks          int
	TotalComments        int
	RespondedComments    int
	SpeaksWithSalePhrase int
	MalformedInputs      int
}

// SpeakIntervalStats summarizes the gaps between consecutive speaks in a
// window, excluding the zero interval of a session's first speak.
type SpeakIntervalStats struct {
	Mean  float64
	Min   float64
	Max   float64
	Stdev float64
	Count int
}

// Summary is the windowed aggregation returned by [Collector.Summary].
type Summary struct {
	PeriodStart time.Time
	PeriodEnd   time.Time

	TotalSpeaks   int
	SpeakInterval SpeakIntervalStats

	TotalComments     int
	RespondedComments int
	ResponseRate      float64
	MeanResponseLatency time.Duration

	SalePhraseCount int
	SalePhraseRate  float64

	ViewerMean float64
	ViewerMin  int
	ViewerMax  int
}

// RealtimeStats is the cheap, always-available snapshot returned by
// [Collector.RealtimeStats], independent of any window computation.
type RealtimeStats struct {
	SessionDuration time.Duration
	TotalSpeaks     int
	TotalComments   int
	ResponseRate    float64
	SalePhraseRate  float64
	CurrentViewers  int
	TimeSinceSpeak  float64
	MalformedInputs int
}

// ViewerDeltaPoint is one entry of [Collector.ViewerDeltaAfterSpeak]'s
// result: the viewer-count change observed in the window following a
// speak.
type ViewerDeltaPoint struct {
	SpeakTime    time.Time
	Intent       string
	ViewerBefore int
	ViewerAfter  int
	Delta        int
}

// Export is the full Event Log snapshot returned by [Collector.Export] —
// every field a session needs to reconstruct its Event Log state. The
// Orchestrator's export loop writes it to disk as JSON.
type Export struct {
	SessionStart time.Time
	ExportTime   time.Time
	Counters     Counters
	SpeakEvents  []SpeakEvent
	CommentEvents []CommentEvent
	ViewerHistory []ViewerSample
	Summary      Summary
}

// CommentHandle identifies a [CommentEvent] for later mutation via
// [Collector.MarkResponded]. It is opaque to callers beyond equality; once
// the comment has aged out of the bounded event log, MarkResponded on its
// handle is a silent no-op.
type CommentHandle int64
