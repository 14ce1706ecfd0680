package handler

import (
	"net/http"
	"strconv"

	"github.com/finbot/finbot/internal/budget"
	"github.com/finbot/finbot/internal/models"
)

// SummaryHandler serves the budget reports.
type SummaryHandler struct {
	tracker *budget.Tracker
}

func NewSummaryHandler(tracker *budget.Tracker) *SummaryHandler {
	return &SummaryHandler{tracker: tracker}
}

// Summary handles GET /api/v1/summary
func (h *SummaryHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.tracker.MonthlySummary(r.Context())
	if err != nil {
		models.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	models.WriteJSON(w, http.StatusOK, sum)
}

// BudgetImpact handles GET /api/v1/budget-impact?category=Food&amount=250
func (h *SummaryHandler) BudgetImpact(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		models.WriteError(w, http.StatusBadRequest, "category is required")
		return
	}
	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil {
		models.WriteError(w, http.StatusBadRequest, "amount must be a number")
		return
	}
	impact, err := h.tracker.BudgetImpact(r.Context(), category, amount)
	if err != nil {
		models.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	models.WriteJSON(w, http.StatusOK, impact)
}
