package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler answers liveness probes. It deliberately touches no
// dependencies; a wedged database should fail requests, not the probe.
type HealthHandler struct {
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// HealthCheck reports the process is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "arena",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
