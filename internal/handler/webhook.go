package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/finbot/finbot/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	SecretHeader        = "X-Telegram-Bot-Api-Secret-Token"
	unauthorizedMessage = "Sorry, you are not authorized to use this bot."
	failureMessage      = "Sorry, something went wrong. Please try again."
)

// Conversation turns one chat message into a reply. *agent.ConversationHandler satisfies it.
type Conversation interface {
	Handle(ctx context.Context, userID, text string) (string, error)
}

// Sender delivers replies. *telegram.Client satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// WebhookHandler handles POST /webhook updates from Telegram. Valid updates
// are always answered with 200 so Telegram does not redeliver them.
type WebhookHandler struct {
	conv          Conversation
	sender        Sender
	secret        string
	allowedUserID string
	timeout       time.Duration
}

func NewWebhookHandler(conv Conversation, sender Sender, secret, allowedUserID string, timeout time.Duration) *WebhookHandler {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &WebhookHandler{conv: conv, sender: sender, secret: secret, allowedUserID: allowedUserID, timeout: timeout}
}

func (h *WebhookHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			models.WriteError(w, http.StatusUnauthorized, "invalid webhook secret")
			return
		}
	}

	var upd models.Update
	if err := models.DecodeJSON(w, r, &upd); err != nil {
		log.Warn().Err(err).Msg("webhook: undecodable update")
		respond(w, "ignored")
		return
	}
	if upd.Message == nil {
		respond(w, "ignored")
		return
	}

	msg := upd.Message
	chatID := msg.Chat.ID
	userID := ""
	if msg.From != nil {
		userID = strconv.FormatInt(msg.From.ID, 10)
	}

	// Replies outlive a dropped Telegram connection.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	if h.allowedUserID != "" && userID != h.allowedUserID {
		log.Warn().Str("user_id", userID).Msg("webhook: user not allowed")
		h.reply(ctx, chatID, unauthorizedMessage)
		respond(w, "unauthorized")
		return
	}

	if msg.Text == "" {
		respond(w, "no_text")
		return
	}

	reply, err := h.conv.Handle(ctx, userID, msg.Text)
	if err != nil {
		log.Error().Err(err).Int64("update_id", upd.UpdateID).Msg("webhook: conversation failed")
		h.reply(ctx, chatID, failureMessage)
		respond(w, "error")
		return
	}
	h.reply(ctx, chatID, reply)
	respond(w, "success")
}

func (h *WebhookHandler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.sender.SendMessage(ctx, chatID, text); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("webhook: send reply failed")
	}
}

func respond(w http.ResponseWriter, status string) {
	models.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}
