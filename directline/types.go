// Package directline is a typed client for the Bot Framework Direct Line v3
// REST channel: create conversation, post activity, list activities since a
// watermark.
package directline

import "encoding/json"

// Conversation is the remote half of a session: the conversation identifier
// plus the per-conversation bearer token returned by the create call.
type Conversation struct {
	ConversationID string `json:"conversationId"`
	Token          string `json:"token"`
	ExpiresIn      int    `json:"expires_in"`
}

// ChannelAccount identifies an activity author.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Activity is a single unit in the conversation feed. Only message-typed
// activities with content matter to this system; everything else
// (conversation updates, typing indicators) passes through the poller's
// filter unexamined.
type Activity struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	From        ChannelAccount    `json:"from"`
	Text        string            `json:"text,omitempty"`
	Timestamp   string            `json:"timestamp,omitempty"`
	Attachments []json.RawMessage `json:"attachments,omitempty"`
}

// ActivityTypeMessage is the only activity type carrying user-visible content.
const ActivityTypeMessage = "message"

// HasContent reports whether the activity carries text or at least one
// attachment.
func (a Activity) HasContent() bool {
	return a.Text != "" || len(a.Attachments) > 0
}

// ActivitySet is one page of the activity feed: the activities after the
// requested watermark, in the remote service's (ascending chronological)
// order, plus the next watermark.
type ActivitySet struct {
	Activities []Activity `json:"activities"`
	Watermark  string     `json:"watermark"`
}
