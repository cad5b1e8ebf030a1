// Package storage is the clinvault storage engine.
//
// The Engine persists sessions, clinical files and clinical records through
// a backend.Backend chosen at startup by a Selector, seals every payload
// with the configured cipher and keeps recently used sessions in a hot
// cache. Session writes go to the cache and then to the backend in the same
// call; reads prefer the cache. Every session access attempts exactly one
// audit write.
//
// Architecture:
//
//   - Selector: picks sqlite, kv or memory and falls back to memory, flagged
//     as degraded, when the durable backend or its key cannot be set up
//   - Cache: bounded TTL + LRU session cache, never written back
//   - Audit: best-effort recorder whose failures never reach the caller
//
// Callers depend on the Storage interface; cmd/clinvault-server builds one
// Engine and passes it down.
package storage
