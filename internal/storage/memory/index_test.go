package memory

import (
	"sort"
	"sync"
	"testing"
)

func TestIDSet(t *testing.T) {
	s := NewIDSet()
	s.Add("a")
	s.Add("b")
	s.Add("a")

	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if !s.Contains("a") || s.Contains("z") {
		t.Error("Contains() mismatch")
	}

	s.Remove("a")
	if s.Contains("a") {
		t.Error("a should be removed")
	}
}

func TestIndex_AddRemove(t *testing.T) {
	idx := NewIndex()
	idx.Add("u1", "s1")
	idx.Add("u1", "s2")
	idx.Add("u2", "s3")
	idx.Add("", "ignored")

	got := idx.Get("u1")
	sort.Strings(got)
	if len(got) != 2 || got[0] != "s1" || got[1] != "s2" {
		t.Errorf("Get(u1) = %v", got)
	}
	if idx.Count("") != 0 {
		t.Error("empty key should not be indexed")
	}

	idx.Remove("u1", "s1")
	idx.Remove("u1", "s2")
	if _, ok := idx.index.Get("u1"); ok || idx.Count("u1") != 0 {
		t.Error("empty set should be dropped from the index")
	}
	if idx.Count("u2") != 1 {
		t.Errorf("Count(u2) = %d, want 1", idx.Count("u2"))
	}
}

func TestIndex_Concurrent(t *testing.T) {
	idx := NewIndex()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := string(rune('a'+w)) + string(rune('0'+i%10))
				idx.Add("patient", id)
				if i%3 == 0 {
					idx.Remove("patient", id)
				}
			}
		}(w)
	}
	wg.Wait()

	if idx.Count("patient") > 80 {
		t.Errorf("Count() = %d, want at most 80 distinct ids", idx.Count("patient"))
	}
}
