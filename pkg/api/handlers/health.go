package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/carbonledger/evidenced/pkg/api/respond"
)

// ReadinessCheck probes a dependency. A nil error means ready.
type ReadinessCheck func(ctx context.Context) error

// healthResponse is the health probe payload.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	ready ReadinessCheck
}

// NewHealthHandler creates the health handler. ready may be nil, in which
// case readiness degenerates to liveness.
func NewHealthHandler(ready ReadinessCheck) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// Liveness handles GET /health. It answers as long as the process serves
// requests.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// Readiness handles GET /ready. It probes the catalog so load balancers
// stop routing before the database is reachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := h.ready(ctx); err != nil {
			respond.JSON(w, http.StatusServiceUnavailable, healthResponse{
				Status:    "unhealthy",
				Timestamp: time.Now().UTC(),
				Error:     err.Error(),
			})
			return
		}
	}
	respond.JSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}
