// Package chat coordinates one user turn: validate input, look up the
// session, send the message upstream, poll for the reply batch.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/botline/server/config"
	"github.com/botline/server/directline"
	"github.com/botline/server/poll"
	"github.com/botline/server/session"
)

// ErrInvalidInput means the caller omitted the session ID or the message text.
var ErrInvalidInput = errors.New("session ID and message text are required")

// ErrPollExhausted means the poll budget ran out without a single list call
// reaching the upstream. Distinct from a quiet bot, which is a normal empty
// result.
var ErrPollExhausted = errors.New("upstream unreachable for the whole poll budget")

// userName is the display name attached to widget users upstream.
const userName = "Web User"

// Transport is the slice of the Direct Line client the coordinator calls
// directly. Satisfied by *directline.Client.
type Transport interface {
	StartConversation(ctx context.Context, userID, userName string) (directline.Conversation, error)
	PostActivity(ctx context.Context, conv directline.Conversation, from directline.ChannelAccount, text string) (string, error)
}

// TurnResult is the shaped outcome of one user turn.
type TurnResult struct {
	Replies []poll.Reply
	Outcome poll.Outcome
}

// Client is the single entry point for programmatic chat interactions.
type Client struct {
	store     session.Store
	transport Transport
	poller    *poll.Poller
	cfg       *config.Store

	turnMu sync.Mutex
	turns  map[string]*sync.Mutex // sessionID → per-session turn lock
}

func NewClient(store session.Store, transport Transport, poller *poll.Poller, cfg *config.Store) *Client {
	return &Client{
		store:     store,
		transport: transport,
		poller:    poller,
		cfg:       cfg,
		turns:     make(map[string]*sync.Mutex),
	}
}

// StartSession opens a remote conversation for a fresh widget user and
// persists the binding. The returned session ID is what the widget sends back
// with every turn.
func (c *Client) StartSession(ctx context.Context) (session.Session, error) {
	userID := "user-" + uuid.NewString()

	conv, err := c.transport.StartConversation(ctx, userID, userName)
	if err != nil {
		return session.Session{}, err
	}

	sess := session.Session{
		ID:             userID,
		ConversationID: conv.ConversationID,
		Token:          conv.Token,
		ExpiresIn:      conv.ExpiresIn,
		CreatedAt:      time.Now(),
	}
	if err := c.store.Create(ctx, sess); err != nil {
		return session.Session{}, fmt.Errorf("persist session: %w", err)
	}

	slog.Info("session started", "sessionId", sess.ID, "conversationId", sess.ConversationID)
	return sess, nil
}

// SendMessage runs one full turn and returns the new bot replies, empty when
// the bot stayed quiet for the whole poll budget. Turns for the same session
// are serialized so concurrent submits cannot race the watermark.
//
// Errors: ErrInvalidInput before anything else, session.ErrNotFound before
// any network call, a *directline.UpstreamError when the send itself fails
// (never auto-retried, to avoid duplicate sends), ErrPollExhausted when the
// upstream answered no poll at all, and the context's error on cancellation.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if sessionID == "" || text == "" {
		return TurnResult{}, ErrInvalidInput
	}

	unlock := c.lockTurn(sessionID)
	defer unlock()

	sess, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	conv := directline.Conversation{
		ConversationID: sess.ConversationID,
		Token:          sess.Token,
	}
	from := directline.ChannelAccount{ID: sess.ID, Name: userName}

	// The send must be accepted before polling starts, so the poller can
	// never race its own message. A failed send skips polling entirely.
	if _, err := c.transport.PostActivity(ctx, conv, from, text); err != nil {
		return TurnResult{}, err
	}

	result, err := c.poller.Poll(ctx, sess, c.cfg.Get(), nil)
	if err != nil {
		return TurnResult{}, err
	}

	if result.Outcome == poll.OutcomeTimedOut && !result.Polled {
		return TurnResult{}, ErrPollExhausted
	}

	slog.Debug("turn completed",
		"sessionId", sessionID, "outcome", result.Outcome.String(), "replies", len(result.Replies))

	return TurnResult{Replies: result.Replies, Outcome: result.Outcome}, nil
}

// lockTurn acquires the per-session turn lock, creating it on first use.
func (c *Client) lockTurn(sessionID string) func() {
	c.turnMu.Lock()
	mu, ok := c.turns[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		c.turns[sessionID] = mu
	}
	c.turnMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
