package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/clinvault/internal/server/httpserver/handler"
)

// RouterConfig holds configuration for the admin router.
type RouterConfig struct {
	Store handler.Store

	// Metrics serves /metrics. Nil leaves the route unregistered.
	Metrics http.Handler

	Logger *slog.Logger

	// AdminAllowList restricts /metrics and /admin/v1/* (empty = no restriction).
	AdminAllowList []string

	// RateLimit is the per-IP request rate of /admin/v1/* (0 = unlimited).
	RateLimit int
}

// NewRouter builds the admin mux.
//
// Probe endpoints are never restricted so orchestrators can reach them.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	h := handler.New(cfg.Store, log)
	mux := http.NewServeMux()

	probe := Chain(h, RequestID(), Recover(log))
	mux.Handle("GET /healthz", probe)
	mux.Handle("GET /readyz", probe)

	acl := NetworkACL(cfg.AdminAllowList, log)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics, Recover(log), acl))
	}

	admin := []Middleware{RequestID(), Recover(log), AccessLog(log), acl}
	if cfg.RateLimit > 0 {
		admin = append(admin, RateLimit(cfg.RateLimit))
	}
	mux.Handle("GET /admin/v1/", Chain(h, admin...))

	return mux
}
