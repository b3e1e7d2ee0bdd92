// Package brain implements the central decision engine: given a classified
// comment and the live session context (sale phase, recent-comment history,
// time since the host last spoke, queue depth), it decides whether the
// virtual host should speak, skip, wait, or queue the comment for later.
//
// Decide is pure given its inputs: two calls with identical clock, comment,
// phase, and internal state always produce the same [Decision].
package brain

// Intent is one of the closed set of comment classifications a comment
// classifier upstream may attach to a comment.
type Intent string

const (
	IntentGreeting        Intent = "greeting"
	IntentPriceQuestion   Intent = "price_question"
	IntentProductQuestion Intent = "product_question"
	IntentPurchaseIntent  Intent = "purchase_intent"
	IntentThanks          Intent = "thanks"
	IntentComplaint       Intent = "complaint"
	IntentRequest         Intent = "request"
	IntentChitchat        Intent = "chitchat"
	IntentSpam            Intent = "spam"
	IntentUnknown         Intent = "unknown"
)

// IsValid reports whether i is one of the recognised intents.
func (i Intent) IsValid() bool {
	switch i {
	case IntentGreeting, IntentPriceQuestion, IntentProductQuestion, IntentPurchaseIntent,
		IntentThanks, IntentComplaint, IntentRequest, IntentChitchat, IntentSpam, IntentUnknown:
		return true
	default:
		return false
	}
}

// Normalize returns i if valid, otherwise [IntentUnknown] — the Brain never
// fails on an unrecognised intent string, it substitutes the unknown intent.
func Normalize(raw string) Intent {
	i := Intent(raw)
	if i.IsValid() {
		return i
	}
	return IntentUnknown
}

// Action is one of the closed set of decisions the Brain can return.
type Action string

const (
	ActionSpeak Action = "SPEAK"
	ActionSkip  Action = "SKIP"
	ActionWait  Action = "WAIT"
	ActionQueue Action = "QUEUE"
)

// Reason is the closed set of justifications attached to a [Decision].
type Reason string

const (
	ReasonGreeting        Reason = "GREETING"
	ReasonPriceQuestion   Reason = "PRICE_QUESTION"
	ReasonProductQuestion Reason = "PRODUCT_QUESTION"
	ReasonHighPriority    Reason = "HIGH_PRIORITY"
	ReasonSaleCTA         Reason = "SALE_CTA"
	ReasonEngagement      Reason = "ENGAGEMENT"
	ReasonSpam            Reason = "SPAM"
	ReasonDuplicate       Reason = "DUPLICATE"
	ReasonLowPriority     Reason = "LOW_PRIORITY"
	ReasonCooldownActive  Reason = "COOLDOWN_ACTIVE"
	ReasonTooFast         Reason = "TOO_FAST"
	ReasonQueueFull       Reason = "QUEUE_FULL"
	ReasonStateTransition Reason = "STATE_TRANSITION"
)

// Comment is a classified comment arriving from upstream, the Brain's
// primary input alongside session context.
type Comment struct {
	ID           string
	Author       string
	Text         string
	Intent       Intent
	Confidence   float64
	IsFollower   bool
	IsSubscriber bool
	GiftValue    float64
}

// Input bundles a [Comment] with the session context the Brain needs to
// reach a decision: the current sale phase and viewer count. Timing state
// (last speak time, recent-comment ring, queue depth) is held internally by
// the [Brain].
type Input struct {
	Comment     Comment
	Phase       string
	ViewerCount int
}

// Decision is the Brain's output for a single [Input].
type Decision struct {
	Action     Action
	Reason     Reason
	Priority   int
	Cooldown   float64
	Confidence float64
	Metadata   map[string]any
}
