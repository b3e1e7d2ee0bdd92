package brain

// Config holds every tunable threshold and table the Brain's decision
// procedure reads. All fields have sensible defaults via [DefaultConfig];
// an [internal/config.Config] maps onto this at startup.
type Config struct {
	// MinSpeakInterval is the minimum time, in seconds, between two SPEAK
	// decisions. Below it every decision is WAIT/TOO_FAST.
	MinSpeakInterval float64

	// MaxSpeakInterval, once exceeded with no speak, boosts priority to
	// AutoSpeakPriority regardless of intent (the starvation boost).
	MaxSpeakInterval float64

	// DefaultCooldown is the baseline cooldown seconds attached to SPEAK
	// decisions, scaled by priority.
	DefaultCooldown float64

	// HighPriorityThreshold is the minimum priority eligible for SPEAK when
	// queue capacity allows it.
	HighPriorityThreshold int

	// AutoSpeakPriority is the priority at or above which a decision is
	// always SPEAK, queue capacity notwithstanding.
	AutoSpeakPriority int

	// MaxQueueSize bounds the pending-queue path (QUEUE_FULL beyond it).
	MaxQueueSize int

	// QueueTimeoutSeconds drops a queued comment that has waited this long
	// without being promoted to SPEAK.
	QueueTimeoutSeconds float64

	// DuplicateWindow is the recent-comment ring's capacity.
	DuplicateWindow int

	// DuplicateSimilarity is the word-Jaccard threshold at or above which a
	// comment is treated as a duplicate of one already in the ring.
	DuplicateSimilarity float64

	// LowViewerThreshold and LowViewerMultiplier apply when ViewerCount is
	// below the threshold (more responsive with a small audience).
	LowViewerThreshold  int
	LowViewerMultiplier float64

	// HighViewerThreshold and HighViewerMultiplier apply when ViewerCount is
	// above the threshold (more selective with a large audience).
	HighViewerThreshold  int
	HighViewerMultiplier float64

	// IntentPriority is the base priority score per intent. An intent absent
	// from the table scores 3 (the unknown-intent default).
	IntentPriority map[Intent]int

	// StateModifiers scales an intent's base priority by sale phase. A
	// (phase, intent) pair absent from the table defaults to 1.0.
	StateModifiers map[string]map[Intent]float64
}

// DefaultConfig returns the threshold and table values from spec §4.D.
func DefaultConfig() Config {
	return Config{
		MinSpeakInterval:      3.0,
		MaxSpeakInterval:      15.0,
		DefaultCooldown:       4.0,
		HighPriorityThreshold: 7,
		AutoSpeakPriority:     9,
		MaxQueueSize:          10,
		QueueTimeoutSeconds:   30.0,
		DuplicateWindow:       10,
		DuplicateSimilarity:   0.8,
		LowViewerThreshold:    50,
		LowViewerMultiplier:   1.2,
		HighViewerThreshold:   500,
		HighViewerMultiplier:  0.8,

		IntentPriority: map[Intent]int{
			IntentPurchaseIntent:  10,
			IntentPriceQuestion:   9,
			IntentProductQuestion: 8,
			IntentComplaint:       7,
			IntentGreeting:        6,
			IntentRequest:         6,
			IntentThanks:          5,
			IntentChitchat:        4,
			IntentUnknown:         3,
			IntentSpam:            1,
		},

		StateModifiers: map[string]map[Intent]float64{
			"IDLE":     {IntentGreeting: 1.5, IntentChitchat: 1.2},
			"WARM_UP":  {IntentProductQuestion: 1.3},
			"INTEREST": {IntentPriceQuestion: 1.5},
			"PRICE":    {IntentPurchaseIntent: 2.0},
			"CTA":      {IntentPurchaseIntent: 1.5},
			"COOLDOWN": {},
		},
	}
}

// intentToReason maps the intent of a SPEAK decision to its [Reason].
// Intents absent from the table (including [IntentUnknown]) map to
// [ReasonHighPriority].
var intentToReason = map[Intent]Reason{
	IntentGreeting:        ReasonGreeting,
	IntentPriceQuestion:   ReasonPriceQuestion,
	IntentProductQuestion: ReasonProductQuestion,
	IntentPurchaseIntent:  ReasonSaleCTA,
	IntentThanks:          ReasonEngagement,
	IntentChitchat:        ReasonEngagement,
}
