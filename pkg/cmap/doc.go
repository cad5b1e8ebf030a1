// Package cmap provides a generic concurrent map split into independently
// locked shards.
//
// Single-key operations take one shard lock. Whole-map operations (Range,
// RemoveWhere, Count, Clear) visit the shards one at a time, so a long
// scan such as a cache sweep never blocks writers on other shards. Range
// is consistent per shard, not across shards.
//
//	m := cmap.New[string, *entry]()
//	old, loaded := m.Swap("sess-1", e)
//	n := m.RemoveWhere(func(_ string, e *entry) bool { return e.expired(now) })
package cmap
