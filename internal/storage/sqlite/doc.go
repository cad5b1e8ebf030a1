// Package sqlite is the durable backend.Backend on a single SQLite file.
//
// The database runs in WAL mode with one open connection, so this process
// is the only writer. The schema is managed by goose migrations embedded
// in the binary and applied on Open.
//
// Payload columns hold sealed blobs. Only the denormalized columns
// (owner, patient id, counts, timestamps, size, media type) are indexed.
package sqlite
