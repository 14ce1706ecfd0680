package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/finbot/finbot/internal/models"
)

// ChatHandler handles POST /api/v1/chat, the webhook conversation without Telegram.
type ChatHandler struct {
	conv Conversation
}

func NewChatHandler(conv Conversation) *ChatHandler {
	return &ChatHandler{conv: conv}
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := models.DecodeJSON(w, r, &req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.SetDefaults()

	if req.Message == "" {
		models.WriteError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.UserID == "" {
		models.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(req.Timeout)*time.Second)
	defer cancel()

	reply, err := h.conv.Handle(ctx, req.UserID, req.Message)
	if err != nil {
		models.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	models.WriteJSON(w, http.StatusOK, models.ChatResponse{
		Status:          "success",
		Reply:           reply,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	})
}
