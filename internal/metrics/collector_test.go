package metrics

import (
	"testing"
	"time"

	"github.com/vhoststream/core/internal/clock"
)

func TestCollector_RecordCommentAndMarkResponded(t *testing.T) {
	c := clock.NewManual(time.Now())
	col := New(c)

	h := col.RecordComment("alice", "hello there", "greeting")
	col.MarkResponded(h, 200*time.Millisecond)
	// Idempotent: a second call must not double-count.
	col.MarkResponded(h, 500*time.Millisecond)

	stats := col.RealtimeStats()
	if stats.TotalComments != 1 {
		t.Fatalf("total comments = %d, want 1", stats.TotalComments)
	}
	if stats.ResponseRate != 1.0 {
		t.Fatalf("response rate = %v, want 1.0", stats.ResponseRate)
	}
}

func TestCollector_RecordSpeak_TimeSinceLast(t *testing.T) {
	c := clock.NewManual(time.Now())
	col := New(c)

	first := col.RecordSpeak("hi everyone", time.Second, "greeting", "IDLE", 100, 7, "GREETING")
	if first.TimeSinceLast != 0 {
		t.Errorf("first speak's time since last = %v, want 0", first.TimeSinceLast)
	}

	c.Advance(5 * time.Second)
	second := col.RecordSpeak("welcome back", time.Second, "greeting", "IDLE", 100, 7, "GREETING")
	if second.TimeSinceLast < 4.9 || second.TimeSinceLast > 5.1 {
		t.Errorf("second speak's time since last = %v, want ~5s", second.TimeSinceLast)
	}
}

func TestCollector_CountersMonotone(t *testing.T) {
	c := clock.NewManual(time.Now())
	col := New(c)

	for i := 0; i < 5; i++ {
		col.RecordComment("u", "text", "chitchat")
	}
	for i := 0; i < 3; i++ {
		col.RecordSpeak("text", time.Second, "chitchat", "IDLE", 10, 4, "ENGAGEMENT")
	}

	stats := col.RealtimeStats()
	if stats.TotalComments != 5 {
		t.Errorf("total comments = %d, want 5", stats.TotalComments)
	}
	if stats.TotalSpeaks != 3 {
		t.Errorf("total speaks = %d, want 3", stats.TotalSpeaks)
	}
}

func TestCollector_SalePhraseDetection(t *testing.T) {
	c := clock.NewManual(time.Now())
	col := New(c)

	col.RecordSpeak("Mua Ngay di ban oi, gia tot lam", time.Second, "purchase_intent", "CTA", 10, 9, "SALE_CTA")
	col.RecordSpeak("cam on ban nhe", time.Second, "thanks", "COOLDOWN", 10, 5, "ENGAGEMENT")

	stats := col.RealtimeStats()
	if stats.SalePhraseRate != 0.5 {
		t.Errorf("sale phrase rate = %v, want 0.5", stats.SalePhraseRate)
	}
}

func TestCollector_Summary_ResponseRateExact(t *testing.T) {
	c := clock.NewManual(time.Now())
	col := New(c)

	h1 := col.RecordComment("a", "one", "chitchat")
	col.RecordComment("b", "two", "chitchat")
	col.RecordComment("c", "three", "chitchat")
	col.MarkResponded(h1, time.Second)

	summary := col.Summary(300)
	if summary.TotalComments != 3 {
		t.Fatalf("total comments in window = %d, want 3", summary.TotalComments)
	}
	if summary.RespondedComments != 1 {
		t.Fatalf("responded comments = %d, want 1", summary.RespondedComments)
	}
	want := 1.0 / 3.0
	if summary.ResponseRate != want {
		t.Errorf("response rate = %v, want %v", summary.ResponseRate, want)
	}
}

func TestCollector_ViewerSignificantChangeObserved(t *testing.T) {
	c := clock.NewManual(time.Now())
	var gotPrev, gotCurr int
	fired := false
	col := New(c, WithViewerChangeObserver(func(prev, curr int, deltaPct float64) {
		fired = true
		gotPrev, gotCurr = prev, curr
	}))

	col.RecordViewer(100)
	col.RecordViewer(120) // +20%, above the 10% threshold

	if !fired {
		t.Fatal("viewer change observer did not fire on a 20% jump")
	}
	if gotPrev != 100 || gotCurr != 120 {
		t.Errorf("observer args = (%d, %d), want (100, 120)", gotPrev, gotCurr)
	}
}

func TestCollector_ViewerDeltaAfterSpeak(t *testing.T) {
	c := clock.NewManual(time.Now())
	col := New(c)

	col.RecordViewer(100)
	col.RecordSpeak("hello", time.Second, "greeting", "IDLE", 100, 7, "GREETING")
	c.Advance(2 * time.Second)
	col.RecordViewer(115)

	deltas := col.ViewerDeltaAfterSpeak(30 * time.Second)
	if len(deltas) != 1 {
		t.Fatalf("deltas = %d entries, want 1", len(deltas))
	}
	if deltas[0].Delta != 15 {
		t.Errorf("delta = %d, want 15", deltas[0].Delta)
	}
}

func TestCollector_Reset(t *testing.T) {
	c := clock.NewManual(time.Now())
	col := New(c)
	col.RecordComment("a", "hi", "greeting")
	col.RecordSpeak("hi", time.Second, "greeting", "IDLE", 10, 7, "GREETING")

	sessionID := col.Reset()
	if sessionID == "" {
		t.Fatal("reset returned empty session id")
	}

	stats := col.RealtimeStats()
	if stats.TotalComments != 0 || stats.TotalSpeaks != 0 {
		t.Fatalf("stats after reset = %+v, want all zero", stats)
	}
}

func TestCollector_RecordMalformedInput(t *testing.T) {
	c := clock.NewManual(time.Now())
	col := New(c)

	col.RecordMalformedInput()
	col.RecordMalformedInput()

	stats := col.RealtimeStats()
	if stats.MalformedInputs != 2 {
		t.Fatalf("malformed inputs = %d, want 2", stats.MalformedInputs)
	}

	col.Reset()
	if got := col.RealtimeStats().MalformedInputs; got != 0 {
		t.Errorf("malformed inputs after reset = %d, want 0", got)
	}
}

func TestCollector_MarkRespondedAfterEviction_IsNoop(t *testing.T) {
	c := clock.NewManual(time.Now())
	col := New(c)

	h := col.RecordComment("first", "text", "chitchat")
	for i := 0; i < commentEventCap; i++ {
		col.RecordComment("filler", "text", "chitchat")
	}

	// h has aged out of the bounded buffer; this must not panic or corrupt
	// state, and must not count as a response.
	col.MarkResponded(h, time.Second)

	stats := col.RealtimeStats()
	if stats.ResponseRate != 0 {
		t.Errorf("response rate = %v, want 0 (stale handle ignored)", stats.ResponseRate)
	}
}
