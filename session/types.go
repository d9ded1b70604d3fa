package session

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found")

// Session binds a widget user to one remote Direct Line conversation.
type Session struct {
	ID             string    `json:"id"`              // caller-chosen user identifier
	ConversationID string    `json:"conversation_id"` // remote conversation identifier
	Token          string    `json:"-"`               // per-conversation bearer token, never serialized to clients
	Watermark      string    `json:"watermark"`       // last-seen activity cursor, empty = from the beginning
	ExpiresIn      int       `json:"expires_in"`      // token lifetime in seconds, as reported by the remote service
	CreatedAt      time.Time `json:"created_at"`
}

// TTL returns the session lifetime. Sessions without a reported
// token lifetime fall back to one hour.
func (s Session) TTL() time.Duration {
	if s.ExpiresIn <= 0 {
		return time.Hour
	}
	return time.Duration(s.ExpiresIn) * time.Second
}

// Expired reports whether the session's token lifetime has elapsed at now.
func (s Session) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > s.TTL()
}
