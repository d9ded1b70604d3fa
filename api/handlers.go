// Package api exposes the inbound HTTP surface: create a conversation and
// submit one user turn.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/botline/server/chat"
	"github.com/botline/server/directline"
	"github.com/botline/server/logger"
	"github.com/botline/server/poll"
	"github.com/botline/server/session"
)

type Handler struct {
	chat *chat.Client
}

func NewHandler(chatClient *chat.Client) *Handler {
	return &Handler{chat: chatClient}
}

// Register attaches the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/conversations", h.HandleCreateConversation)
	mux.HandleFunc("POST /api/messages", h.HandleSendMessage)
}

type conversationResponse struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// HandleCreateConversation opens a new bot session and returns the session ID
// the widget must send with every turn.
func (h *Handler) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	log := logger.NewRequestLogger()

	sess, err := h.chat.StartSession(r.Context())
	if err != nil {
		writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusCreated, conversationResponse{
		UserID:         sess.ID,
		ConversationID: sess.ConversationID,
	})
}

type messageRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

type messageResponse struct {
	Status  string       `json:"status"` // "replied" or "no_reply"
	Replies []poll.Reply `json:"replies"`
}

// HandleSendMessage runs one user turn: send the message, poll for replies,
// return however many arrived. An exhausted poll budget with a reachable
// upstream is a normal "no_reply" response, not an error.
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	log := logger.NewRequestLogger()

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "request body must be JSON with sessionId and text")
		return
	}

	result, err := h.chat.SendMessage(r.Context(), req.SessionID, req.Text)
	if err != nil {
		writeError(w, log, err)
		return
	}

	status := "replied"
	if result.Outcome == poll.OutcomeTimedOut {
		status = "no_reply"
	}

	replies := result.Replies
	if replies == nil {
		replies = []poll.Reply{}
	}

	writeJSON(w, http.StatusOK, messageResponse{Status: status, Replies: replies})
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var upstream *directline.UpstreamError

	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		writeErrorMessage(w, http.StatusBadRequest, "sessionId and text are required")
	case errors.Is(err, session.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, "session not found, create a new conversation first")
	case errors.Is(err, directline.ErrMissingSecret):
		log.Error("direct line secret not configured")
		writeErrorMessage(w, http.StatusInternalServerError, "bot service is not configured")
	case errors.Is(err, chat.ErrPollExhausted):
		log.Warn("poll budget exhausted without reaching upstream")
		writeErrorMessage(w, http.StatusGatewayTimeout, "bot service did not respond, try again")
	case errors.As(err, &upstream):
		log.Warn("upstream call failed", "op", upstream.Op, "status", upstream.Status, "error", err)
		writeErrorMessage(w, http.StatusBadGateway, "bot service unavailable, try again")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		log.Debug("request cancelled")
	default:
		log.Error("unexpected error", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
