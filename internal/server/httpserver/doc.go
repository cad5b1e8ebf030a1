// Package httpserver provides the admin HTTP listener of clinvault-server.
//
// Routes:
//
//   - GET /healthz: liveness, reports degraded storage
//   - GET /readyz: readiness, 503 until storage is initialized
//   - GET /metrics: Prometheus exposition
//   - GET /admin/v1/status: build and storage statistics
//   - GET /admin/v1/audit: audit entries by session or actor
//
// /metrics and /admin/v1/* can be restricted to an IP allowlist.
package httpserver
