package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage"
	"github.com/yndnr/clinvault/internal/telemetry/logger"
)

// Store is the part of storage.Storage the admin handlers read.
type Store interface {
	IsDegraded() bool
	LastInitError() error
	StorageStats() storage.Stats
	GetAuditLog(ctx context.Context, sessionID string, limit int) ([]*domain.AuditEntry, error)
	GetAuditLogByActor(ctx context.Context, actorID string, limit int) ([]*domain.AuditEntry, error)
}

// Handler routes admin requests.
type Handler struct {
	store  Store
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Handler reading from store.
func New(store Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		store:  store,
		logger: log,
		mux:    http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.HandleFunc("GET /readyz", h.handleReady)

	h.mux.HandleFunc("GET /admin/v1/status", h.handleStatus)
	h.mux.HandleFunc("GET /admin/v1/audit", h.handleAudit)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message, nil))
}

// handleStoreError converts storage errors to HTTP responses.
func (h *Handler) handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if code := domain.CodeOf(err); code != "" {
		h.writeError(w, r, errorCodeToHTTPStatus(code), code, err.Error())
		return
	}

	h.logger.Error("internal error", "error", err, "path", r.URL.Path)
	h.writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// CodeInternal is the error code of unclassified failures.
const CodeInternal = "CV-SYS-5000"

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasPrefix(code, "CV-VALD-4"):
		return http.StatusBadRequest
	case code == domain.ErrInvalidPageToken.Code:
		return http.StatusBadRequest
	case code == domain.ErrNotInitialized.Code, code == domain.ErrClosed.Code:
		return http.StatusServiceUnavailable
	case code == domain.ErrIntegrity.Code:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
