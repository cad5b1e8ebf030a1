// Package command defines the clinvault-cli commands on urfave/cli/v2.
//
// Most commands open the store directly from the clinvault-server
// configuration file, so they need read access to the data directory and
// the encryption key. The sqlite backend tolerates a running server; the
// kv backend holds an exclusive lock and must be stopped first. Commands
// under "system status", "system health" and "audit show --remote" go
// through the server's admin listener instead.
package command
