package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/intelliform/internal/health"
	"github.com/ashureev/intelliform/internal/store"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler reports process, archive and backend status.
type HealthHandler struct {
	archive  store.Archive
	reporter *health.Reporter
	views    interface{ Len() int }
}

// NewHealthHandler creates a health handler. archive may be nil.
func NewHealthHandler(archive store.Archive, reporter *health.Reporter, views interface{ Len() int }) *HealthHandler {
	return &HealthHandler{archive: archive, reporter: reporter, views: views}
}

// RegisterHealth registers the public health route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// Health returns 200 while the process can serve requests. The backend
// status is informational; an unreachable archive yields 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	body := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.archive != nil {
		if err := h.archive.Ping(ctx); err != nil {
			body["status"] = "degraded"
			body["archive"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			body["archive"] = "ok"
		}
	} else {
		body["archive"] = "disabled"
	}

	if h.reporter != nil {
		backendStatus, err := h.reporter.Status(ctx, health.ServiceBackend)
		if err != nil {
			body["backend"] = "UNKNOWN"
		} else {
			body["backend"] = backendStatus.String()
		}
	}
	if h.views != nil {
		body["views"] = h.views.Len()
	}
	JSON(w, status, body)
}
