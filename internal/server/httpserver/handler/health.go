package handler

import (
	"net/http"
	"time"
)

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusStarting = "starting"
)

// handleHealth handles GET /healthz. A degraded engine still serves
// requests, so it answers 200 and reports the fallback in the body.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.store.StorageStats()
	resp := HealthResponse{
		Status:   StatusOK,
		Backend:  string(stats.Backend),
		Durable:  stats.Durable,
		Degraded: h.store.IsDegraded(),
		Time:     time.Now().UTC().Format(time.RFC3339),
	}
	if resp.Degraded {
		resp.Status = StatusDegraded
		if err := h.store.LastInitError(); err != nil {
			resp.LastError = err.Error()
		}
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleReady handles GET /readyz. It answers 503 until the engine has
// been initialized.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.store.StorageStats().Backend == "" {
		h.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": StatusStarting})
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": StatusOK})
}
