package brain

import (
	"math"
	"sync"
	"time"

	"github.com/vhoststream/core/internal/clock"
)

// Observer is invoked after the recent-comment ring has been updated, for
// observability hooks (metrics, logging). Decisions returned by the
// cooldown, spam, and duplicate gates (WAIT/TOO_FAST, SKIP/SPAM,
// SKIP/DUPLICATE) do not reach it. It must not block or mutate shared state
// reachable from the caller.
type Observer func(in Input, decision Decision)

// Brain is the central decision engine. A single Brain is owned by one
// Orchestrator and driven from its hot path. Its ring and queue are not
// locked, because that caller guarantees single-threaded access; mu guards
// only the speak timing and count read by [Brain.Stats].
type Brain struct {
	clk      clock.Clock
	cfg      Config
	ring     *commentRing
	queue    *pendingQueue
	mu       sync.Mutex // guards lastSpeak/speakCount only, for stats reads off the hot path
	observer Observer

	lastSpeakTime time.Time
	haveSpoken    bool
	speakCount    int
}

// Option configures a [Brain] during construction.
type Option func(*Brain)

// WithConfig overrides the default thresholds and tables.
func WithConfig(cfg Config) Option {
	return func(b *Brain) { b.cfg = cfg }
}

// WithObserver registers a decision-observability hook.
func WithObserver(fn Observer) Option {
	return func(b *Brain) { b.observer = fn }
}

// New creates a [Brain] using [DefaultConfig] unless overridden by opts.
func New(clk clock.Clock, opts ...Option) *Brain {
	b := &Brain{clk: clk, cfg: DefaultConfig()}
	for _, o := range opts {
		o(b)
	}
	b.ring = newCommentRing(b.cfg.DuplicateWindow)
	b.queue = newPendingQueue(b.cfg.MaxQueueSize, time.Duration(b.cfg.QueueTimeoutSeconds*float64(time.Second)))
	return b
}

// Decide runs the full decision procedure against in, given the Brain's
// internal recent-comment and cooldown state. It is deterministic given
// fixed internal state and clock value; Decide itself mutates that state
// (it appends to the duplicate ring and may purge the pending queue), so
// is not safe to call concurrently with itself — the single-threaded hot
// path contract the Orchestrator upholds.
func (b *Brain) Decide(in Input) Decision {
	now := b.clk.Now()

	// 1. Cooldown gate.
	elapsed := b.timeSinceLastSpeak(now)
	if elapsed < b.cfg.MinSpeakInterval {
		return Decision{
			Action:   ActionWait,
			Reason:   ReasonTooFast,
			Priority: 0,
			Cooldown: b.cfg.MinSpeakInterval - elapsed,
			Metadata: map[string]any{"wait_time": b.cfg.MinSpeakInterval - elapsed},
		}
	}

	intent := in.Comment.Intent
	if !intent.IsValid() {
		intent = IntentUnknown
	}

	// 2. Spam gate.
	if intent == IntentSpam {
		return Decision{Action: ActionSkip, Reason: ReasonSpam, Priority: 0}
	}

	// 3. Duplicate gate.
	normalized := normalize(in.Comment.Text)
	if b.ring.MaxSimilarity(normalized) >= b.cfg.DuplicateSimilarity {
		return Decision{Action: ActionSkip, Reason: ReasonDuplicate, Priority: 0}
	}

	// 4. Priority score.
	priority := b.calculatePriority(in, intent)

	// 5. Starvation boost.
	if elapsed > b.cfg.MaxSpeakInterval {
		priority = max(priority, b.cfg.AutoSpeakPriority)
	}

	// 6. Action choice. The high-priority-but-not-auto band speaks immediately
	// as long as the pending queue has room; only once that backlog is at
	// capacity does a comment of this priority get held as QUEUE/QUEUE_FULL
	// instead. Entries that do sit unpromoted past queue_timeout are dropped
	// by PurgeExpired.
	var decision Decision
	switch {
	case priority >= b.cfg.AutoSpeakPriority:
		decision = b.speakDecision(in, intent, priority)
	case priority >= b.cfg.HighPriorityThreshold:
		b.queue.PurgeExpired(now)
		if b.queue.Len() < b.cfg.MaxQueueSize {
			decision = b.speakDecision(in, intent, priority)
		} else {
			decision = Decision{Action: ActionQueue, Reason: ReasonQueueFull, Priority: priority}
		}
	default:
		decision = Decision{Action: ActionSkip, Reason: ReasonLowPriority, Priority: priority}
	}

	// 7. Post-hoc bookkeeping.
	b.trackComment(in.Comment.Text)
	if b.observer != nil {
		b.observer(in, decision)
	}

	return decision
}

func (b *Brain) timeSinceLastSpeak(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.haveSpoken {
		// No speak yet this session: treat as long silence so starvation
		// logic and cooldown gates both behave as if ample time has passed.
		return math.Inf(1)
	}
	return now.Sub(b.lastSpeakTime).Seconds()
}

func (b *Brain) trackComment(text string) {
	b.ring.Add(normalize(text))
}

func (b *Brain) calculatePriority(in Input, intent Intent) int {
	base, ok := b.cfg.IntentPriority[intent]
	if !ok {
		base = 3
	}

	stateMultiplier := 1.0
	if mods, ok := b.cfg.StateModifiers[in.Phase]; ok {
		if m, ok := mods[intent]; ok {
			stateMultiplier = m
		}
	}

	viewerMultiplier := 1.0
	switch {
	case in.ViewerCount < b.cfg.LowViewerThreshold:
		viewerMultiplier = b.cfg.LowViewerMultiplier
	case in.ViewerCount > b.cfg.HighViewerThreshold:
		viewerMultiplier = b.cfg.HighViewerMultiplier
	}

	bonus := 0
	switch {
	case in.Comment.IsSubscriber:
		bonus += 2
	case in.Comment.IsFollower:
		bonus += 1
	}
	if in.Comment.GiftValue > 0 {
		giftBonus := int(in.Comment.GiftValue / 100)
		if giftBonus > 3 {
			giftBonus = 3
		}
		bonus += giftBonus
	}

	raw := float64(base)*stateMultiplier*viewerMultiplier + float64(bonus)
	priority := int(raw)
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}
	return priority
}

func (b *Brain) speakDecision(in Input, intent Intent, priority int) Decision {
	reason, ok := intentToReason[intent]
	if !ok {
		reason = ReasonHighPriority
	}

	cooldown := b.cfg.DefaultCooldown * (1 - (float64(priority)-5)*0.1)
	if cooldown < 2.0 {
		cooldown = 2.0
	}
	if cooldown > 8.0 {
		cooldown = 8.0
	}

	return Decision{
		Action:     ActionSpeak,
		Reason:     reason,
		Priority:   priority,
		Cooldown:   cooldown,
		Confidence: 0.8 + float64(priority)/50,
		Metadata: map[string]any{
			"intent":       string(intent),
			"sale_state":   in.Phase,
			"viewer_count": in.ViewerCount,
		},
	}
}

// MarkSpoken records that a SPEAK decision was committed by the
// Orchestrator — published and acknowledged. It resets the cooldown clock
// and increments the cumulative speak counter.
func (b *Brain) MarkSpoken() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSpeakTime = b.clk.Now()
	b.haveSpoken = true
	b.speakCount++
}

// Stats is a point-in-time snapshot of Brain bookkeeping.
type Stats struct {
	SpeakCount         int
	TimeSinceLastSpeak float64
	QueueSize          int
	RecentCommentCount int
}

// Stats returns the Brain's current statistics.
func (b *Brain) Stats() Stats {
	b.mu.Lock()
	elapsed := math.Inf(1)
	if b.haveSpoken {
		elapsed = b.clk.Now().Sub(b.lastSpeakTime).Seconds()
	}
	speakCount := b.speakCount
	b.mu.Unlock()

	return Stats{
		SpeakCount:         speakCount,
		TimeSinceLastSpeak: elapsed,
		QueueSize:          b.queue.Len(),
		RecentCommentCount: b.ring.Len(),
	}
}
