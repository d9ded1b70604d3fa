package directline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the public Direct Line v3 endpoint.
const DefaultBaseURL = "https://directline.botframework.com/v3/directline"

type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewClient creates a Direct Line client. baseURL defaults to DefaultBaseURL
// when empty. The secret authenticates conversation creation only; all later
// calls use the per-conversation token.
func NewClient(baseURL, secret string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// StartConversation opens a new conversation for the given user.
// Returns ErrMissingSecret without touching the network when no secret is
// configured.
func (c *Client) StartConversation(ctx context.Context, userID, userName string) (Conversation, error) {
	const op = "start conversation"

	if c.secret == "" {
		return Conversation{}, ErrMissingSecret
	}

	body := map[string]any{
		"user": ChannelAccount{ID: userID, Name: userName},
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/conversations", c.secret, body)
	if err != nil {
		return Conversation{}, &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return Conversation{}, &UpstreamError{Op: op, Status: resp.StatusCode}
	}

	var conv Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return Conversation{}, &UpstreamError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return conv, nil
}

// PostActivity sends one user message into the conversation and returns the
// activity ID assigned by the remote service. Never retried here: a dropped
// send is surfaced to the caller rather than silently duplicated.
func (c *Client) PostActivity(ctx context.Context, conv Conversation, from ChannelAccount, text string) (string, error) {
	const op = "post activity"

	activity := Activity{
		Type: ActivityTypeMessage,
		From: from,
		Text: text,
	}

	u := fmt.Sprintf("%s/conversations/%s/activities", c.baseURL, url.PathEscape(conv.ConversationID))
	resp, err := c.do(ctx, http.MethodPost, u, conv.Token, activity)
	if err != nil {
		return "", &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		drain(resp.Body)
		return "", &UpstreamError{Op: op, Status: resp.StatusCode}
	}

	var ack struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return "", &UpstreamError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return ack.ID, nil
}

// Activities lists the feed after watermark (empty = from the beginning).
// All failures come back as *UpstreamError; the poller treats them as
// recoverable within its attempt budget.
func (c *Client) Activities(ctx context.Context, conv Conversation, watermark string) (ActivitySet, error) {
	const op = "list activities"

	u := fmt.Sprintf("%s/conversations/%s/activities", c.baseURL, url.PathEscape(conv.ConversationID))
	if watermark != "" {
		u += "?watermark=" + url.QueryEscape(watermark)
	}

	resp, err := c.do(ctx, http.MethodGet, u, conv.Token, nil)
	if err != nil {
		return ActivitySet{}, &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return ActivitySet{}, &UpstreamError{Op: op, Status: resp.StatusCode}
	}

	var set ActivitySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return ActivitySet{}, &UpstreamError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return set, nil
}

func (c *Client) do(ctx context.Context, method, url, token string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// drain reads the rest of an error response so the connection can be reused.
func drain(r io.Reader) {
	io.Copy(io.Discard, io.LimitReader(r, 4096))
}
