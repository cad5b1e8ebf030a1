package cmap

import (
	"hash/maphash"
	"sync"
)

const shardCount = 16 // power of two

// Map is a concurrent map of shardCount independently locked shards.
// The zero value is not usable; create one with New.
type Map[K comparable, V any] struct {
	shards [shardCount]shard[K, V]
	seed   maphash.Seed
}

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// New returns an empty Map.
func New[K comparable, V any]() *Map[K, V] {
	m := &Map[K, V]{seed: maphash.MakeSeed()}
	for i := range m.shards {
		m.shards[i].items = make(map[K]V)
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return &m.shards[maphash.Comparable(m.seed, key)&(shardCount-1)]
}

// locked runs fn with the write lock of key's shard held.
func (m *Map[K, V]) locked(key K, fn func(items map[K]V)) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.items)
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	return v, ok
}

// Swap stores value and returns the value it replaced, if any.
func (m *Map[K, V]) Swap(key K, value V) (prev V, loaded bool) {
	m.locked(key, func(items map[K]V) {
		prev, loaded = items[key]
		items[key] = value
	})
	return prev, loaded
}

// Pop removes key and returns the value it held.
func (m *Map[K, V]) Pop(key K) (v V, ok bool) {
	m.locked(key, func(items map[K]V) {
		if v, ok = items[key]; ok {
			delete(items, key)
		}
	})
	return v, ok
}

// Update stores fn's result under key. fn sees the current value, if any,
// and runs under the shard lock.
func (m *Map[K, V]) Update(key K, fn func(cur V, exists bool) V) (v V) {
	m.locked(key, func(items map[K]V) {
		cur, exists := items[key]
		v = fn(cur, exists)
		items[key] = v
	})
	return v
}

// DeleteIf removes key if it is present and pred accepts its value.
func (m *Map[K, V]) DeleteIf(key K, pred func(V) bool) (deleted bool) {
	m.locked(key, func(items map[K]V) {
		if cur, ok := items[key]; ok && pred(cur) {
			delete(items, key)
			deleted = true
		}
	})
	return deleted
}

// ReplaceIf stores value under key if key is present and pred accepts its
// current value.
func (m *Map[K, V]) ReplaceIf(key K, pred func(V) bool, value V) (replaced bool) {
	m.locked(key, func(items map[K]V) {
		if cur, ok := items[key]; ok && pred(cur) {
			items[key] = value
			replaced = true
		}
	})
	return replaced
}

// StoreIf stores value under key if pred accepts the current state of the
// key. pred runs under the shard lock.
func (m *Map[K, V]) StoreIf(key K, value V, pred func(cur V, exists bool) bool) (stored bool) {
	m.locked(key, func(items map[K]V) {
		cur, exists := items[key]
		if pred(cur, exists) {
			items[key] = value
			stored = true
		}
	})
	return stored
}

// Count returns the number of entries. Shards are counted one at a time.
func (m *Map[K, V]) Count() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Clear removes every entry.
func (m *Map[K, V]) Clear() {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		clear(s.items)
		s.mu.Unlock()
	}
}

// Range calls fn for each entry until fn returns false. Each shard is
// read-locked while it is visited, so fn must not write to the map.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// RemoveWhere removes every entry pred accepts and returns the count.
// Each shard is write-locked only while it is scanned.
func (m *Map[K, V]) RemoveWhere(pred func(key K, value V) bool) int {
	removed := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, v := range s.items {
			if pred(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
