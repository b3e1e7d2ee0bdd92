// Package schema defines the JSON wire types exchanged over the message bus:
// inbound classified comments on the "classified_comments" queue and
// outbound speak requests on the "speak_requests" queue.
package schema

import "github.com/vhoststream/core/internal/brain"

// ClassifiedComment is the inbound message shape. Fields marked optional in
// the wire contract use zero-value-as-absent semantics; [ClassifiedComment.ToBrainComment]
// maps an unrecognised intent to unknown.
type ClassifiedComment struct {
	CommentID        string  `json:"comment_id,omitempty"`
	UserID           string  `json:"user_id,omitempty"`
	Username         string  `json:"username"`
	Nickname         string  `json:"nickname,omitempty"`
	OriginalComment  string  `json:"original_comment"`
	Content          string  `json:"content,omitempty"`
	Intent           string  `json:"intent"`
	IntentConfidence float64 `json:"intent_confidence,omitempty"`
	Priority         int     `json:"priority,omitempty"`
	IsFollower       bool    `json:"is_follower,omitempty"`
	IsSubscriber     bool    `json:"is_subscriber,omitempty"`
	GiftValue        float64 `json:"gift_value,omitempty"`
	Timestamp        float64 `json:"timestamp"`
}

// Validate reports the reason a message is malformed per spec.md §7:
// required fields are username, original_comment, and intent.
func (c ClassifiedComment) Validate() error {
	switch {
	case c.Username == "":
		return errMissingField("username")
	case c.OriginalComment == "":
		return errMissingField("original_comment")
	case c.Intent == "":
		return errMissingField("intent")
	}
	return nil
}

// Text returns the comment body to classify against, preferring Content
// (the normalized/translated form) over OriginalComment when present.
func (c ClassifiedComment) Text() string {
	if c.Content != "" {
		return c.Content
	}
	return c.OriginalComment
}

// ToBrainComment converts the wire message into a [brain.Comment], normalizing
// the intent string to the closed set.
func (c ClassifiedComment) ToBrainComment() brain.Comment {
	return brain.Comment{
		ID:           c.CommentID,
		Author:       c.Username,
		Text:         c.Text(),
		Intent:       brain.Normalize(c.Intent),
		Confidence:   c.IntentConfidence,
		IsFollower:   c.IsFollower,
		IsSubscriber: c.IsSubscriber,
		GiftValue:    c.GiftValue,
	}
}

// BrainDecisionPayload is the decision block embedded in a [SpeakRequest].
type BrainDecisionPayload struct {
	Action     string  `json:"action"`
	Reason     string  `json:"reason"`
	Priority   int     `json:"priority"`
	Cooldown   float64 `json:"cooldown"`
	Confidence float64 `json:"confidence"`
}

// SpeakRequest is the outbound message shape: the original inbound fields
// plus the committed SPEAK decision and the sale-flow context at decide time.
type SpeakRequest struct {
	ClassifiedComment
	BrainDecision         BrainDecisionPayload `json:"brain_decision"`
	SaleState             string               `json:"sale_state"`
	ResponseStyle         string               `json:"response_style"`
	OrchestratorTimestamp float64              `json:"orchestrator_timestamp"`
}

type missingFieldError struct{ field string }

func errMissingField(field string) error { return &missingFieldError{field: field} }

func (e *missingFieldError) Error() string {
	return "schema: missing required field " + e.field
}
