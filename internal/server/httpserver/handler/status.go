package handler

import (
	"net/http"
	"strconv"

	"github.com/yndnr/clinvault/internal/infra/buildinfo"
)

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, StatusResponse{
		Build:   buildinfo.Get(),
		Storage: newStorageStatus(h.store.StorageStats()),
	})
}

// handleAudit handles GET /admin/v1/audit?session_id=...|actor_id=...&limit=N.
func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID, actorID := q.Get("session_id"), q.Get("actor_id")
	if (sessionID == "") == (actorID == "") {
		h.writeError(w, r, http.StatusBadRequest, "CV-VALD-4001", "exactly one of session_id or actor_id is required")
		return
	}

	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.writeError(w, r, http.StatusBadRequest, "CV-VALD-4001", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	var err error
	var entries []AuditEntryResponse
	if sessionID != "" {
		log, e := h.store.GetAuditLog(r.Context(), sessionID, limit)
		entries, err = newAuditEntries(log), e
	} else {
		log, e := h.store.GetAuditLogByActor(r.Context(), actorID, limit)
		entries, err = newAuditEntries(log), e
	}
	if err != nil {
		h.handleStoreError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"entries": entries})
}
