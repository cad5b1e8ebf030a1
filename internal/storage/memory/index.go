package memory

import (
	"sync"

	"github.com/yndnr/clinvault/pkg/cmap"
)

// IDSet is a concurrent-safe set of row IDs.
type IDSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// NewIDSet creates an empty set.
func NewIDSet() *IDSet {
	return &IDSet{items: make(map[string]struct{})}
}

// Add adds an ID to the set.
func (s *IDSet) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = struct{}{}
}

// Remove removes an ID from the set.
func (s *IDSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

// Contains checks if an ID is in the set.
func (s *IDSet) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

// Len returns the number of IDs in the set.
func (s *IDSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Items returns a copy of all IDs.
func (s *IDSet) Items() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]string, 0, len(s.items))
	for id := range s.items {
		items = append(items, id)
	}
	return items
}

// Index maps a secondary key (owner, session, patient) to the set of
// row IDs carrying it. Empty keys are not indexed.
type Index struct {
	index *cmap.Map[string, *IDSet]
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{index: cmap.New[string, *IDSet]()}
}

// Add indexes id under key.
func (i *Index) Add(key, id string) {
	if key == "" {
		return
	}
	i.index.Update(key, func(set *IDSet, ok bool) *IDSet {
		if !ok {
			set = NewIDSet()
		}
		set.Add(id)
		return set
	})
}

// Remove unindexes id from key and drops the key once its set is empty.
func (i *Index) Remove(key, id string) {
	if key == "" {
		return
	}
	i.index.DeleteIf(key, func(set *IDSet) bool {
		set.Remove(id)
		return set.Len() == 0
	})
}

// Get returns all IDs indexed under key.
func (i *Index) Get(key string) []string {
	set, ok := i.index.Get(key)
	if !ok {
		return nil
	}
	return set.Items()
}

// Count returns the number of IDs indexed under key.
func (i *Index) Count(key string) int {
	set, ok := i.index.Get(key)
	if !ok {
		return 0
	}
	return set.Len()
}
