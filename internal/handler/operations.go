package handler

import (
	"net/http"

	"github.com/finbot/finbot/internal/models"
	"github.com/finbot/finbot/internal/operation"
	"github.com/finbot/finbot/internal/service"
	"github.com/go-chi/chi/v5"
)

// OperationsHandler exposes the operation entry point over HTTP for scripts.
type OperationsHandler struct {
	svc *service.OperationService
}

func NewOperationsHandler(svc *service.OperationService) *OperationsHandler {
	return &OperationsHandler{svc: svc}
}

// Execute handles POST /api/v1/operations. Operation failures are reported in
// the envelope with 200; only malformed requests get 400.
func (h *OperationsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req models.OperationRequest
	if err := models.DecodeJSON(w, r, &req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Operation == nil {
		models.WriteError(w, http.StatusBadRequest, "operation is required")
		return
	}
	op, err := operation.Parse(req.Operation)
	if err != nil {
		models.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var env service.Envelope
	if req.IsRetry {
		env = h.svc.Retry(r.Context(), req.UserID, op)
	} else {
		env = h.svc.Handle(r.Context(), req.UserID, op)
	}
	models.WriteJSON(w, http.StatusOK, env)
}

// Confirm handles POST /api/v1/operations/confirm
func (h *OperationsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := decodeUser(w, r)
	if !ok {
		return
	}
	models.WriteJSON(w, http.StatusOK, h.svc.Confirm(r.Context(), userID))
}

// Cancel handles POST /api/v1/operations/cancel
func (h *OperationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := decodeUser(w, r)
	if !ok {
		return
	}
	models.WriteJSON(w, http.StatusOK, h.svc.Cancel(r.Context(), userID))
}

// Pending handles GET /api/v1/operations/pending/{userID}
func (h *OperationsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	resp := models.PendingResponse{UserID: userID}
	if p, ok := h.svc.Pending(r.Context(), userID); ok {
		exp := p.ExpiresAt
		resp.Pending = true
		resp.ID = p.ID
		resp.OperationType = string(p.Operation.Type)
		resp.Table = p.Operation.Table
		resp.Reasoning = p.Operation.Reasoning
		resp.ExpiresAt = &exp
	}
	models.WriteJSON(w, http.StatusOK, resp)
}

func decodeUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req models.UserRequest
	if err := models.DecodeJSON(w, r, &req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return "", false
	}
	if req.UserID == "" {
		models.WriteError(w, http.StatusBadRequest, "user_id is required")
		return "", false
	}
	return req.UserID, true
}
