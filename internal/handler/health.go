package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/finbot/finbot/internal/models"
)

const version = "1.0.0"

// HealthChecker is implemented by dependencies that can report connectivity
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles GET /health with dependency checks
type HealthHandler struct {
	notion HealthChecker
	store  HealthChecker
}

func NewHealthHandler(notion, store HealthChecker) *HealthHandler {
	return &HealthHandler{notion: notion, store: store}
}

// Health reports degraded with 503 when any configured dependency fails.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"server": "ok"}
	overallStatus := "healthy"

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for name, c := range map[string]HealthChecker{"notion": h.notion, "confirm_store": h.store} {
		if c == nil {
			checks[name] = "disabled"
			continue
		}
		if err := c.Ping(ctx); err != nil {
			checks[name] = "unavailable: " + err.Error()
			overallStatus = "degraded"
		} else {
			checks[name] = "ok"
		}
	}

	statusCode := http.StatusOK
	if overallStatus == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	models.WriteJSON(w, statusCode, models.HealthResponse{
		Status:  overallStatus,
		Version: version,
		Checks:  checks,
	})
}
