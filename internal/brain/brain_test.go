package brain

import (
	"testing"
	"time"

	"github.com/vhoststream/core/internal/clock"
)

func input(intent Intent, text string, phase string, viewers int) Input {
	return Input{
		Comment: Comment{ID: "c1", Author: "u1", Text: text, Intent: intent},
		Phase:   phase,
		ViewerCount: viewers,
	}
}

// S1: cooldown gate — greeting speaks, an immediate follow-up waits.
func TestBrain_S1_Cooldown(t *testing.T) {
	c := clock.NewManual(time.Now())
	b := New(c)

	d := b.Decide(input(IntentGreeting, "Xin chao", "IDLE", 100))
	if d.Action != ActionSpeak {
		t.Fatalf("first decision = %v, want SPEAK", d.Action)
	}
	if d.Priority < 6 {
		t.Errorf("priority = %d, want >= 6", d.Priority)
	}
	b.MarkSpoken()

	c.Advance(1 * time.Second)
	d2 := b.Decide(input(IntentPriceQuestion, "gia bao nhieu", "IDLE", 100))
	if d2.Action != ActionWait || d2.Reason != ReasonTooFast {
		t.Fatalf("second decision = %v/%v, want WAIT/TOO_FAST", d2.Action, d2.Reason)
	}
	if d2.Cooldown < 1.9 || d2.Cooldown > 2.1 {
		t.Errorf("cooldown = %v, want ~2.0", d2.Cooldown)
	}
}

// S2: starvation boost — after max_speak_interval a low-priority comment
// still triggers SPEAK.
func TestBrain_S2_StarvationBoost(t *testing.T) {
	c := clock.NewManual(time.Now())
	b := New(c)

	d := b.Decide(input(IntentGreeting, "hello", "IDLE", 100))
	if d.Action != ActionSpeak {
		t.Fatalf("initial decision = %v, want SPEAK", d.Action)
	}
	b.MarkSpoken()

	c.Advance(16 * time.Second)
	d2 := b.Decide(input(IntentChitchat, "random chitchat text", "IDLE", 100))
	if d2.Action != ActionSpeak {
		t.Fatalf("starved decision = %v, want SPEAK", d2.Action)
	}
	if d2.Priority < 9 {
		t.Errorf("starved priority = %d, want >= 9", d2.Priority)
	}
}

// S3: duplicate suppression.
func TestBrain_S3_DuplicateSuppression(t *testing.T) {
	c := clock.NewManual(time.Now())
	b := New(c)

	d := b.Decide(input(IntentGreeting, "Xin chao moi nguoi", "IDLE", 100))
	if d.Action != ActionSpeak {
		t.Fatalf("first decision = %v, want SPEAK", d.Action)
	}
	b.MarkSpoken()

	c.Advance(5 * time.Second)
	d2 := b.Decide(input(IntentGreeting, "Xin chao moi nguoi", "IDLE", 100))
	if d2.Action != ActionSkip || d2.Reason != ReasonDuplicate {
		t.Fatalf("duplicate decision = %v/%v, want SKIP/DUPLICATE", d2.Action, d2.Reason)
	}
}

// S5: a complaint lands in the high-priority-but-not-auto band. With the
// pending queue below capacity (the default — nothing ever pushes into it
// in normal operation) it must SPEAK immediately, not sit unspoken in
// QUEUE: this is what lets complaint_received reach the saleflow machine.
func TestBrain_S5_HighPriorityComplaintSpeaksWithQueueCapacity(t *testing.T) {
	c := clock.NewManual(time.Now())
	b := New(c)
	// A prior speak 5s ago: past min_speak_interval, short of the starvation boost.
	b.MarkSpoken()
	c.Advance(5 * time.Second)

	in := input(IntentComplaint, "toi khong hai long voi san pham", "COOLDOWN", 100)
	d := b.Decide(in)
	if d.Action != ActionSpeak {
		t.Fatalf("complaint decision = %v/%v (priority %d), want SPEAK", d.Action, d.Reason, d.Priority)
	}
	if d.Priority < b.cfg.HighPriorityThreshold || d.Priority >= b.cfg.AutoSpeakPriority {
		t.Fatalf("priority %d outside the high-priority band [%d, %d)", d.Priority, b.cfg.HighPriorityThreshold, b.cfg.AutoSpeakPriority)
	}
}

// S6: queue full. The backlog is never populated by Decide itself (it only
// reads Len against capacity), so a full backlog has to be constructed
// directly through the unexported queue field, mirroring how the decision
// procedure this was ported from declares but never appends to its queue.
func TestBrain_S6_QueueFull(t *testing.T) {
	c := clock.NewManual(time.Now())
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 2
	b := New(c, WithConfig(cfg))
	// A prior speak 5s ago: past min_speak_interval, short of the starvation boost.
	b.MarkSpoken()
	c.Advance(5 * time.Second)

	for i := 0; i < cfg.MaxQueueSize; i++ {
		if !b.queue.Push(Input{}, 7, c.Now()) {
			t.Fatalf("priming push %d failed unexpectedly", i)
		}
	}
	if !b.queue.Full() {
		t.Fatalf("queue not full after priming, len=%d capacity=%d", b.queue.Len(), cfg.MaxQueueSize)
	}

	in := input(IntentComplaint, "toi khong hai long voi san pham", "COOLDOWN", 100)
	d := b.Decide(in)
	if d.Action != ActionQueue || d.Reason != ReasonQueueFull {
		t.Fatalf("decision with full queue = %v/%v, want QUEUE/QUEUE_FULL", d.Action, d.Reason)
	}
}

// Invariant 1: interval between consecutive SPEAK decisions >= min_speak_interval.
func TestBrain_Invariant_MinSpeakInterval(t *testing.T) {
	c := clock.NewManual(time.Now())
	b := New(c)

	b.Decide(input(IntentGreeting, "hello there", "IDLE", 100))
	b.MarkSpoken()

	c.Advance(2 * time.Second) // below the 3s default
	d := b.Decide(input(IntentPurchaseIntent, "toi muon mua", "IDLE", 100))
	if d.Action == ActionSpeak {
		t.Fatal("SPEAK emitted before min_speak_interval elapsed")
	}
}

// Invariant 2: never SPEAK for intent spam.
func TestBrain_Invariant_NeverSpeaksSpam(t *testing.T) {
	c := clock.NewManual(time.Now())
	b := New(c)
	d := b.Decide(input(IntentSpam, "buy cheap followers now", "IDLE", 100))
	if d.Action == ActionSpeak {
		t.Fatal("SPEAK emitted for spam intent")
	}
	if d.Reason != ReasonSpam {
		t.Errorf("reason = %v, want SPAM", d.Reason)
	}
}

// Invariant 4: clock advances past max_speak_interval with a pending
// non-spam comment => next decision is SPEAK.
func TestBrain_Invariant_ForcedSpeakAfterSilence(t *testing.T) {
	c := clock.NewManual(time.Now())
	b := New(c)

	b.Decide(input(IntentGreeting, "hello there", "IDLE", 100))
	b.MarkSpoken()

	c.Advance(20 * time.Second) // past the 15s max_speak_interval
	d := b.Decide(input(IntentChitchat, "just saying hi", "IDLE", 100))
	if d.Action != ActionSpeak {
		t.Fatalf("decision = %v, want SPEAK after prolonged silence", d.Action)
	}
}

// MarkSpoken increments the speak count, and Stats measures the time since
// the last speak from that call.
func TestBrain_MarkSpoken_UpdatesTiming(t *testing.T) {
	c := clock.NewManual(time.Now())
	b := New(c)
	if got := b.Stats().SpeakCount; got != 0 {
		t.Fatalf("speak count = %d, want 0", got)
	}
	b.MarkSpoken()
	c.Advance(7 * time.Second)
	stats := b.Stats()
	if stats.SpeakCount != 1 {
		t.Errorf("speak count = %d, want 1", stats.SpeakCount)
	}
	if stats.TimeSinceLastSpeak < 6.9 || stats.TimeSinceLastSpeak > 7.1 {
		t.Errorf("time since last speak = %v, want ~7s", stats.TimeSinceLastSpeak)
	}
}

// Priority clamp boundaries: spam floors at 1, purchase_intent with
// subscriber+gift bonuses and favorable state/viewer multipliers still
// clamps to 10.
func TestBrain_PriorityClampBoundaries(t *testing.T) {
	c := clock.NewManual(time.Now())
	b := New(c)

	low := b.calculatePriority(input(IntentSpam, "spam", "IDLE", 100), IntentSpam)
	if low != 1 {
		t.Errorf("spam priority = %d, want clamped to 1", low)
	}

	in := input(IntentPurchaseIntent, "buy now", "PRICE", 10)
	in.Comment.IsSubscriber = true
	in.Comment.GiftValue = 1000
	high := b.calculatePriority(in, IntentPurchaseIntent)
	if high != 10 {
		t.Errorf("boosted priority = %d, want clamped to 10", high)
	}
}

// Duplicate ring eviction: after duplicate_window+1 distinct entries the
// oldest is gone and no longer suppresses a repeat.
func TestBrain_RingEvictionAtWindowPlusOne(t *testing.T) {
	c := clock.NewManual(time.Now())
	cfg := DefaultConfig()
	cfg.DuplicateWindow = 3
	cfg.MinSpeakInterval = 0
	b := New(c, WithConfig(cfg))

	first := "the very first unique comment text"
	b.Decide(input(IntentChitchat, first, "IDLE", 100))
	for _, filler := range []string{"filler alpha one", "filler beta two", "filler gamma three"} {
		b.Decide(input(IntentChitchat, filler, "IDLE", 100))
	}

	if b.ring.Len() != 3 {
		t.Fatalf("ring length = %d, want 3 (capacity)", b.ring.Len())
	}
	if sim := b.ring.MaxSimilarity(normalize(first)); sim >= cfg.DuplicateSimilarity {
		t.Errorf("evicted comment still detected as duplicate, similarity = %v", sim)
	}
}
