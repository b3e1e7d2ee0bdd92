package metrics

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vhoststream/core/internal/clock"
)

const (
	speakEventCap   = 1000
	commentEventCap = 5000
	viewerSampleCap = 1000

	significantViewerChange = 0.10 // 10%
)

// defaultSalePhrases mirrors the Vietnamese sale-CTA vocabulary the source
// session shipped with; spec.md §9 leaves this list as informational
// configuration, so it is a var, not a const, and callers may replace it
// wholesale via [WithSalePhrases].
var defaultSalePhrases = []string{
	"mua ngay", "đặt hàng", "giá", "khuyến mãi", "giảm giá",
	"flash sale", "số lượng có hạn", "link", "inbox", "dm",
}

// Collector is the Event Log: the single piece of shared mutable state in
// the decision core. Every mutator and query serializes through one mutex;
// queries return a consistent snapshot taken under the lock before any
// aggregation runs.
type Collector struct {
	clk clock.Clock

	mu            sync.Mutex
	sessionStart  time.Time
	lastSpeak     time.Time
	haveSpoken    bool
	counters      Counters
	speaks        *ring[SpeakEvent]
	comments      []commentSlot // comments[i] has handle commentsBase+i
	commentsBase  int64
	viewers       *ring[ViewerSample]
	salePhrases   []string

	onViewerSignificantChange func(prev, curr int, deltaPct float64)
}

// commentSlot wraps a CommentEvent with bookkeeping that lets MarkResponded
// mutate in place without breaking earlier Snapshot copies.
type commentSlot struct {
	event CommentEvent
}

// Option configures a [Collector] during construction.
type Option func(*Collector)

// WithSalePhrases overrides the default sale-phrase vocabulary used for
// case-insensitive substring detection against spoken text.
func WithSalePhrases(phrases []string) Option {
	return func(c *Collector) { c.salePhrases = phrases }
}

// WithViewerChangeObserver registers a callback fired whenever RecordViewer
// observes a swing larger than 10% relative to the prior sample.
func WithViewerChangeObserver(fn func(prev, curr int, deltaPct float64)) Option {
	return func(c *Collector) { c.onViewerSignificantChange = fn }
}

// New creates a [Collector] with its session clock started at clk.Now().
func New(clk clock.Clock, opts ...Option) *Collector {
	c := &Collector{
		clk:         clk,
		salePhrases: defaultSalePhrases,
		speaks:      newRing[SpeakEvent](speakEventCap),
		viewers:     newRing[ViewerSample](viewerSampleCap),
	}
	for _, o := range opts {
		o(c)
	}
	c.sessionStart = clk.Now()
	return c
}

// RecordComment appends a CommentEvent and returns a handle for a later
// MarkResponded call. It does not judge intent or content — that decision
// belongs to the Brain.
func (c *Collector) RecordComment(author, text, intent string) CommentHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.comments = append(c.comments, commentSlot{event: CommentEvent{
		Timestamp: c.clk.Now(),
		Author:    author,
		Text:      text,
		Intent:    intent,
	}})
	c.counters.TotalComments++

	handle := c.commentsBase + int64(len(c.comments)) - 1

	if len(c.comments) > commentEventCap {
		// Drop the oldest entry and advance the base offset so every handle
		// issued so far — evicted or not — still resolves to the right slot,
		// or safely misses, instead of silently pointing at the wrong event.
		c.comments = c.comments[1:]
		c.commentsBase++
	}
	return CommentHandle(handle)
}

// MarkResponded marks the comment at handle as responded with the given
// latency. It is idempotent: calling it twice for the same handle only
// counts once, satisfying the false→true-once invariant. A handle that has
// aged out of the bounded event log is silently ignored.
func (c *Collector) MarkResponded(handle CommentHandle, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := int64(handle) - c.commentsBase
	if idx < 0 || idx >= int64(len(c.comments)) {
		return
	}
	slot := &c.comments[idx]
	if slot.event.WasResponded {
		return
	}
	slot.event.WasResponded = true
	slot.event.ResponseLatency = latency
	c.counters.RespondedComments++
}

// RecordSpeak appends a SpeakEvent, computing TimeSinceLast from the prior
// call (0 if this is the session's first speak), and bumps the speak and
// sale-phrase counters.
func (c *Collector) RecordSpeak(text string, duration time.Duration, intent, phase string, viewerCount, priority int, reason string) SpeakEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	var timeSinceLast float64
	if c.haveSpoken {
		timeSinceLast = now.Sub(c.lastSpeak).Seconds()
	}

	event := SpeakEvent{
		Timestamp:     now,
		Text:          text,
		Duration:      duration,
		Intent:        intent,
		Phase:         phase,
		ViewerCount:   viewerCount,
		Priority:      priority,
		Reason:        reason,
		TimeSinceLast: timeSinceLast,
	}
	c.speaks.Add(event)
	c.counters.TotalSpeaks++
	if c.isSalePhrase(text) {
		c.counters.SpeaksWithSalePhrase++
	}
	c.lastSpeak = now
	c.haveSpoken = true

	return event
}

// RecordViewer appends a ViewerSample. If the new count differs from the
// prior sample by more than 10% relative, the registered
// WithViewerChangeObserver callback (if any) is invoked outside the lock.
func (c *Collector) RecordViewer(count int) {
	c.mu.Lock()
	prevSamples := c.viewers.Snapshot()
	c.viewers.Add(ViewerSample{Timestamp: c.clk.Now(), Count: count})
	c.mu.Unlock()

	if len(prevSamples) == 0 {
		return
	}
	prev := prevSamples[len(prevSamples)-1].Count
	if prev == 0 {
		return
	}
	deltaPct := float64(count-prev) / float64(prev)
	if math.Abs(deltaPct) > significantViewerChange && c.onViewerSignificantChange != nil {
		c.onViewerSignificantChange(prev, count, deltaPct)
	}
}

// RecordMalformedInput increments the malformed-input counter: inbound bus
// messages that failed to decode or validate before ever becoming a
// CommentEvent.
func (c *Collector) RecordMalformedInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters.MalformedInputs++
}

func (c *Collector) isSalePhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range c.salePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// snapshot is taken under the lock and used by every read-only query below
// so concurrent mutators never interleave with aggregation.
type snapshot struct {
	sessionStart time.Time
	lastSpeak    time.Time
	haveSpoken   bool
	counters     Counters
	speaks       []SpeakEvent
	comments     []CommentEvent
	viewers      []ViewerSample
}

func (c *Collector) snapshot() snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	comments := make([]CommentEvent, len(c.comments))
	for i, slot := range c.comments {
		comments[i] = slot.event
	}

	return snapshot{
		sessionStart: c.sessionStart,
		lastSpeak:    c.lastSpeak,
		haveSpoken:   c.haveSpoken,
		counters:     c.counters,
		speaks:       c.speaks.Snapshot(),
		comments:     comments,
		viewers:      c.viewers.Snapshot(),
	}
}

// Summary computes the windowed aggregation over the last windowSeconds of
// session history, measured back from the Collector's clock.
func (c *Collector) Summary(windowSeconds float64) Summary {
	snap := c.snapshot()
	now := c.clk.Now()
	cutoff := now.Add(-time.Duration(windowSeconds * float64(time.Second)))

	var speaks []SpeakEvent
	for _, e := range snap.speaks {
		if !e.Timestamp.Before(cutoff) {
			speaks = append(speaks, e)
		}
	}
	var comments []CommentEvent
	for _, e := range snap.comments {
		if !e.Timestamp.Before(cutoff) {
			comments = append(comments, e)
		}
	}
	var viewers []ViewerSample
	for _, v := range snap.viewers {
		if !v.Timestamp.Before(cutoff) {
			viewers = append(viewers, v)
		}
	}

	interval := speakIntervalStats(speaks)

	var responded []CommentEvent
	for _, e := range comments {
		if e.WasResponded {
			responded = append(responded, e)
		}
	}
	var latencySum time.Duration
	latencyCount := 0
	for _, e := range responded {
		if e.ResponseLatency > 0 {
			latencySum += e.ResponseLatency
			latencyCount++
		}
	}
	var meanLatency time.Duration
	if latencyCount > 0 {
		meanLatency = latencySum / time.Duration(latencyCount)
	}

	var responseRate float64
	if len(comments) > 0 {
		responseRate = float64(len(responded)) / float64(len(comments))
	}

	saleCount := 0
	for _, e := range speaks {
		if c.isSalePhrase(e.Text) {
			saleCount++
		}
	}
	var saleRate float64
	if len(speaks) > 0 {
		saleRate = float64(saleCount) / float64(len(speaks))
	}

	viewerMean, viewerMin, viewerMax := viewerStats(viewers)

	return Summary{
		PeriodStart:         cutoff,
		PeriodEnd:           now,
		TotalSpeaks:         len(speaks),
		SpeakInterval:       interval,
		TotalComments:       len(comments),
		RespondedComments:   len(responded),
		ResponseRate:        responseRate,
		MeanResponseLatency: meanLatency,
		SalePhraseCount:     saleCount,
		SalePhraseRate:      saleRate,
		ViewerMean:          viewerMean,
		ViewerMin:           viewerMin,
		ViewerMax:           viewerMax,
	}
}

func speakIntervalStats(speaks []SpeakEvent) SpeakIntervalStats {
	var intervals []float64
	for _, e := range speaks {
		if e.TimeSinceLast > 0 {
			intervals = append(intervals, e.TimeSinceLast)
		}
	}
	if len(intervals) == 0 {
		return SpeakIntervalStats{}
	}

	sum, min, max := 0.0, intervals[0], intervals[0]
	for _, v := range intervals {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(intervals))

	var stdev float64
	if len(intervals) > 1 {
		var sq float64
		for _, v := range intervals {
			d := v - mean
			sq += d * d
		}
		stdev = math.Sqrt(sq / float64(len(intervals)-1))
	}

	return SpeakIntervalStats{Mean: mean, Min: min, Max: max, Stdev: stdev, Count: len(intervals)}
}

func viewerStats(samples []ViewerSample) (mean float64, min, max int) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sum := 0
	min, max = samples[0].Count, samples[0].Count
	for _, s := range samples {
		sum += s.Count
		if s.Count < min {
			min = s.Count
		}
		if s.Count > max {
			max = s.Count
		}
	}
	return float64(sum) / float64(len(samples)), min, max
}

// RealtimeStats returns a cheap, always-available snapshot that does not
// require windowed aggregation.
func (c *Collector) RealtimeStats() RealtimeStats {
	snap := c.snapshot()
	now := c.clk.Now()

	var responseRate, saleRate float64
	if snap.counters.TotalComments > 0 {
		responseRate = float64(snap.counters.RespondedComments) / float64(snap.counters.TotalComments)
	}
	if snap.counters.TotalSpeaks > 0 {
		saleRate = float64(snap.counters.SpeaksWithSalePhrase) / float64(snap.counters.TotalSpeaks)
	}

	currentViewers := 0
	if len(snap.viewers) > 0 {
		currentViewers = snap.viewers[len(snap.viewers)-1].Count
	}

	var timeSinceSpeak float64
	if snap.haveSpoken {
		timeSinceSpeak = now.Sub(snap.lastSpeak).Seconds()
	}

	return RealtimeStats{
		SessionDuration: now.Sub(snap.sessionStart),
		TotalSpeaks:     snap.counters.TotalSpeaks,
		TotalComments:   snap.counters.TotalComments,
		ResponseRate:    responseRate,
		SalePhraseRate:  saleRate,
		CurrentViewers:  currentViewers,
		TimeSinceSpeak:  timeSinceSpeak,
		MalformedInputs: snap.counters.MalformedInputs,
	}
}

// ViewerDeltaAfterSpeak returns, for each speak event, the viewer-count
// change observed in the first viewer sample strictly within
// (speak_time, speak_time+window]. Speaks with no such sample are omitted.
func (c *Collector) ViewerDeltaAfterSpeak(window time.Duration) []ViewerDeltaPoint {
	snap := c.snapshot()

	viewers := append([]ViewerSample(nil), snap.viewers...)
	sort.Slice(viewers, func(i, j int) bool { return viewers[i].Timestamp.Before(viewers[j].Timestamp) })

	var out []ViewerDeltaPoint
	for _, e := range snap.speaks {
		upper := e.Timestamp.Add(window)
		for _, v := range viewers {
			if v.Timestamp.After(e.Timestamp) && !v.Timestamp.After(upper) {
				out = append(out, ViewerDeltaPoint{
					SpeakTime:    e.Timestamp,
					Intent:       e.Intent,
					ViewerBefore: e.ViewerCount,
					ViewerAfter:  v.Count,
					Delta:        v.Count - e.ViewerCount,
				})
				break
			}
		}
	}
	return out
}

// Export returns the full exportable snapshot, including a window-300s
// summary, matching the on-disk metrics file layout of spec.md §6.
func (c *Collector) Export() Export {
	snap := c.snapshot()
	return Export{
		SessionStart:  snap.sessionStart,
		ExportTime:    c.clk.Now(),
		Counters:      snap.counters,
		SpeakEvents:   snap.speaks,
		CommentEvents: snap.comments,
		ViewerHistory: snap.viewers,
		Summary:       c.Summary(300),
	}
}

// Reset clears every accumulator and starts a new session, returning the
// fresh session identifier for downstream logging to key its journal file
// on.
func (c *Collector) Reset() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.speaks = newRing[SpeakEvent](speakEventCap)
	c.comments = nil
	c.commentsBase = 0
	c.viewers = newRing[ViewerSample](viewerSampleCap)
	c.counters = Counters{}
	c.sessionStart = c.clk.Now()
	c.lastSpeak = time.Time{}
	c.haveSpoken = false

	return uuid.NewString()
}
