// Package cache keeps recently used sessions in memory.
//
// The cache is bounded by entry count and by age. An entry older than the
// TTL is never returned; a Put that pushes the cache over capacity evicts
// the least recently accessed other entry. A background sweeper removes
// expired entries one shard at a time.
//
// The cache holds no dirty state and never writes back. Losing an entry
// only costs a backend read.
package cache
