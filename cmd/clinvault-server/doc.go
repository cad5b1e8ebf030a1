// Package main provides the entry point for clinvault-server.
//
// The server hosts the encrypted clinical store and exposes a small admin
// surface on a loopback HTTP listener and, optionally, a Unix socket:
//
//   - /healthz and /readyz probes
//   - /metrics in Prometheus format
//   - /admin/v1/status and /admin/v1/audit
//
// Usage:
//
//	clinvault-server [flags]
//	clinvault-server -config /etc/clinvault/server.yaml -log-level debug
//
// Configuration is layered defaults < file < CLINVAULT_* environment <
// flags. The log level follows edits to the config file without a restart.
package main
