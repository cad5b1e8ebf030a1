// Package main provides the entry point for clinvault-cli.
//
// The CLI manages a clinvault deployment:
//
//   - keygen and verify for encryption key setup
//   - sessions list/show and audit show against the store
//   - system stats/status/health and kv backups
//   - server config inspection and the CLI profile
//
// Usage:
//
//	clinvault-cli [global flags] command [flags]
//	clinvault-cli -c /etc/clinvault/server.yaml sessions list -u user-42
//	clinvault-cli -a 127.0.0.1:9180 system status
package main
