// Package poll implements the reply-polling engine: the bounded retry loop
// that turns the Direct Line cursor-based activity feed into a single batch
// of new bot replies per user turn.
package poll

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/botline/server/config"
	"github.com/botline/server/directline"
	"github.com/botline/server/session"
)

// Transport is the slice of the Direct Line client the poller needs.
// Satisfied by *directline.Client.
type Transport interface {
	Activities(ctx context.Context, conv directline.Conversation, watermark string) (directline.ActivitySet, error)
}

// WatermarkStore persists the advancing read cursor.
// Satisfied by any session.Store.
type WatermarkStore interface {
	UpdateWatermark(ctx context.Context, sessionID, watermark string) error
}

// Reply is one new bot-authored message surfaced to the caller.
type Reply struct {
	ID          string            `json:"id"`
	Text        string            `json:"text"`
	Timestamp   string            `json:"timestamp"`
	Attachments []json.RawMessage `json:"attachments,omitempty"`
}

// Outcome is the terminal state of one poll invocation.
type Outcome int

const (
	// OutcomeReplied means at least one qualifying reply arrived in budget.
	OutcomeReplied Outcome = iota
	// OutcomeTimedOut means the attempt budget was exhausted with no
	// qualifying reply. Not an error: the caller shows a fallback.
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReplied:
		return "replied"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result is what one poll invocation produced. Polled distinguishes "the bot
// had nothing to say" from "the upstream never answered a single list call".
type Result struct {
	Replies []Reply
	Outcome Outcome
	Polled  bool
}

// Filter decides whether an activity qualifies as a reply to surface.
type Filter func(directline.Activity) bool

// ReplyFilter builds the default filter for a session: message-typed,
// authored by neither the sending user nor the conversation itself, and
// carrying content. The feed is a shared bidirectional channel, so the just
// sent user message echoes back and must be dropped here.
func ReplyFilter(userID, conversationID string) Filter {
	return func(a directline.Activity) bool {
		if a.Type != directline.ActivityTypeMessage {
			return false
		}
		if a.From.ID == userID || a.From.ID == conversationID {
			return false
		}
		return a.HasContent()
	}
}

// Poller runs the per-turn retry loop against the activity feed.
type Poller struct {
	transport Transport
	store     WatermarkStore
}

func New(transport Transport, store WatermarkStore) *Poller {
	return &Poller{transport: transport, store: store}
}

// Poll repeatedly lists activities for sess until a qualifying reply appears
// or cfg.PollAttempts is exhausted. A nil filter defaults to
// ReplyFilter(sess.ID, sess.ConversationID).
//
// The watermark is persisted the moment the upstream returns one, even when
// no reply qualifies, so a later poll never re-observes already-seen
// activities. Replies come back in the order the upstream returned them, each
// ID at most once per invocation. The only error returned is the context's,
// when the caller goes away mid-wait.
func (p *Poller) Poll(ctx context.Context, sess session.Session, cfg config.Config, filter Filter) (Result, error) {
	if filter == nil {
		filter = ReplyFilter(sess.ID, sess.ConversationID)
	}

	conv := directline.Conversation{
		ConversationID: sess.ConversationID,
		Token:          sess.Token,
	}

	if err := wait(ctx, cfg.InitialDelay()); err != nil {
		return Result{Outcome: OutcomeTimedOut}, err
	}

	var result Result
	watermark := sess.Watermark
	seen := make(map[string]bool)

	for attempt := 1; attempt <= cfg.PollAttempts; attempt++ {
		set, err := p.transport.Activities(ctx, conv, watermark)
		if err != nil {
			if ctx.Err() != nil {
				result.Outcome = OutcomeTimedOut
				return result, ctx.Err()
			}
			slog.Debug("poll attempt failed", "sessionId", sess.ID, "attempt", attempt, "error", err)
			if attempt == cfg.PollAttempts {
				result.Outcome = OutcomeTimedOut
				return result, nil
			}
			if err := wait(ctx, cfg.PollInterval()); err != nil {
				result.Outcome = OutcomeTimedOut
				return result, err
			}
			continue
		}

		result.Polled = true

		// Advance the cursor before filtering: it must move even when no
		// reply qualifies, or the next poll re-reads the same activities.
		if set.Watermark != "" {
			watermark = set.Watermark
			if err := p.store.UpdateWatermark(ctx, sess.ID, set.Watermark); err != nil {
				slog.Warn("failed to persist watermark", "sessionId", sess.ID, "error", err)
			}
		}

		for _, a := range set.Activities {
			if !filter(a) || seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			result.Replies = append(result.Replies, Reply{
				ID:          a.ID,
				Text:        a.Text,
				Timestamp:   a.Timestamp,
				Attachments: a.Attachments,
			})
		}

		if len(result.Replies) > 0 {
			result.Outcome = OutcomeReplied
			return result, nil
		}

		if attempt == cfg.PollAttempts {
			break
		}
		if err := wait(ctx, cfg.PollInterval()); err != nil {
			result.Outcome = OutcomeTimedOut
			return result, err
		}
	}

	result.Outcome = OutcomeTimedOut
	return result, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
