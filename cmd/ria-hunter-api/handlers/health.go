package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
)

const readyTimeout = 3 * time.Second

// Pinger reports whether the firm store is reachable.
type Pinger interface {
	Ready(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	logger  *observability.Logger
	service string
	pinger  Pinger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(logger *observability.Logger, service string, pinger Pinger) *HealthHandler {
	return &HealthHandler{logger: logger.WithComponent("health"), service: service, pinger: pinger}
}

// HealthResponse is the body of the probe endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Service: h.service})
}

// Ready handles GET /ready by pinging the database.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.pinger.Ready(ctx); err != nil {
		h.logger.WithContext(r.Context()).Warn().Err(err).Msg("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ready"})
}
