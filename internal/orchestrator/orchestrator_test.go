package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/vhoststream/core/internal/brain"
	"github.com/vhoststream/core/internal/bus/mock"
	"github.com/vhoststream/core/internal/clock"
	"github.com/vhoststream/core/internal/logging"
	"github.com/vhoststream/core/internal/metrics"
	"github.com/vhoststream/core/internal/saleflow"
	"github.com/vhoststream/core/pkg/schema"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *mock.Broker) {
	t.Helper()

	clk := clock.NewManual(time.Now())
	broker := mock.NewBroker()
	dialer := mock.Dialer{Broker: broker}
	conn, err := dialer.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	b := brain.New(clk)
	machine := saleflow.New(clk)
	col := metrics.New(clk)
	journal, err := logging.New(t.TempDir(), "orchestrator_test", "test-session", slog.Default())
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	t.Cleanup(func() { _ = journal.Close() })

	cfg := DefaultConfig()
	cfg.MetricsExportInterval = 0
	cfg.ViewerUpdateInterval = 0

	return New(clk, conn, b, machine, col, journal, cfg), broker
}

func TestOrchestrator_SpeakPublishesAndTransitions(t *testing.T) {
	o, broker := newTestOrchestrator(t)

	msg := schema.ClassifiedComment{
		Username:         "alice",
		OriginalComment:  "Hi everyone, excited to be here!",
		Intent:           "greeting",
		IntentConfidence: 0.9,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	broker.Push("classified_comments", body)

	deliveries, err := o.conn.Consume(context.Background(), "classified_comments", 1)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	select {
	case d := <-deliveries:
		o.handleDelivery(context.Background(), d)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	published := broker.Published("speak_requests")
	if len(published) != 1 {
		t.Fatalf("published speak requests = %d, want 1", len(published))
	}

	var out schema.SpeakRequest
	if err := json.Unmarshal(published[0], &out); err != nil {
		t.Fatalf("unmarshal speak request: %v", err)
	}
	if out.BrainDecision.Action != string(brain.ActionSpeak) {
		t.Errorf("brain decision action = %q, want %q", out.BrainDecision.Action, brain.ActionSpeak)
	}

	stats := o.metrics.RealtimeStats()
	if stats.TotalSpeaks != 1 {
		t.Errorf("total speaks = %d, want 1", stats.TotalSpeaks)
	}

	// greeting auto-transitions idle -> warm_up once spoken.
	if got := o.machine.Phase(); got != saleflow.PhaseWarmUp {
		t.Errorf("phase after greeting speak = %v, want %v", got, saleflow.PhaseWarmUp)
	}
}

// S5: a complaint delivered through the real Brain→Orchestrator pipeline
// must be spoken (not silently queued) and must drive the saleflow machine
// into CRISIS via complaint_received — the interrupt path the high-priority
// queue-capacity bug used to swallow.
func TestOrchestrator_ComplaintSpeaksAndTriggersCrisis(t *testing.T) {
	o, broker := newTestOrchestrator(t)
	o.machine.ForcePhase(saleflow.PhaseInterest, "test_setup")
	o.clk.(*clock.Manual).Advance(46 * time.Second) // past INTEREST's 45s min dwell

	msg := schema.ClassifiedComment{
		Username:         "bob",
		OriginalComment:  "toi khong hai long voi san pham nay",
		Intent:           "complaint",
		IntentConfidence: 0.9,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	broker.Push("classified_comments", body)

	deliveries, err := o.conn.Consume(context.Background(), "classified_comments", 1)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	select {
	case d := <-deliveries:
		o.handleDelivery(context.Background(), d)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	published := broker.Published("speak_requests")
	if len(published) != 1 {
		t.Fatalf("published speak requests = %d, want 1 (complaint must SPEAK, not QUEUE)", len(published))
	}

	var out schema.SpeakRequest
	if err := json.Unmarshal(published[0], &out); err != nil {
		t.Fatalf("unmarshal speak request: %v", err)
	}
	if out.BrainDecision.Action != string(brain.ActionSpeak) {
		t.Errorf("brain decision action = %q, want %q", out.BrainDecision.Action, brain.ActionSpeak)
	}

	if got := o.machine.Phase(); got != saleflow.PhaseCrisis {
		t.Errorf("phase after complaint speak = %v, want %v", got, saleflow.PhaseCrisis)
	}
}

func TestOrchestrator_MalformedJSONIsNackedAndCounted(t *testing.T) {
	o, broker := newTestOrchestrator(t)

	broker.Push("classified_comments", []byte("not json"))

	deliveries, err := o.conn.Consume(context.Background(), "classified_comments", 1)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	select {
	case d := <-deliveries:
		o.handleDelivery(context.Background(), d)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	stats := o.metrics.RealtimeStats()
	if stats.MalformedInputs != 1 {
		t.Errorf("malformed inputs = %d, want 1", stats.MalformedInputs)
	}
	if len(broker.Published("speak_requests")) != 0 {
		t.Error("malformed input must never produce a speak request")
	}
}

func TestOrchestrator_MissingRequiredFieldIsRejected(t *testing.T) {
	o, broker := newTestOrchestrator(t)

	msg := schema.ClassifiedComment{Username: "bob"} // missing original_comment and intent
	body, _ := json.Marshal(msg)
	broker.Push("classified_comments", body)

	deliveries, err := o.conn.Consume(context.Background(), "classified_comments", 1)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	select {
	case d := <-deliveries:
		o.handleDelivery(context.Background(), d)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	stats := o.metrics.RealtimeStats()
	if stats.MalformedInputs != 1 {
		t.Errorf("malformed inputs = %d, want 1", stats.MalformedInputs)
	}
	if stats.TotalComments != 0 {
		t.Errorf("total comments = %d, want 0 (validation must fail before recording)", stats.TotalComments)
	}
}
