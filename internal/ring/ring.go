// Package ring implements the bounded FIFO log store: O(1) push with
// oldest-eviction, and filtered, paginated, sorted snapshot queries that
// never hold the store's lock across the caller's use of the result.
package ring

import (
	"strings"
	"sync"

	"github.com/flarelane/logdeck/internal/event"
)

// SortOrder selects how a filtered snapshot is ordered before pagination.
type SortOrder int

const (
	// NewestFirst reverses natural (oldest-first) order. It is the default.
	NewestFirst SortOrder = iota
	OldestFirst
)

// ParseSortOrder maps the wire string to a SortOrder. Unknown values
// default to NewestFirst, per spec.md §4.E.
func ParseSortOrder(s string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(s), "oldest_first") {
		return OldestFirst
	}
	return NewestFirst
}

// Filter selects and orders a subset of stored events. Zero value matches
// everything in NewestFirst order.
type Filter struct {
	GlobalLevel  event.Level
	HasGlobal    bool
	TargetLevels map[string]event.Level
	Search       string
	Target       string
	SortOrder    SortOrder
}

// requiredLevel implements the precise longest-prefix resolution in
// spec.md §4.B.1: among TargetLevels entries whose key equals the event's
// target or is a "::"-prefix of it, the longest key wins; otherwise fall
// back to GlobalLevel; otherwise no gate is applied (ok=false).
func (f Filter) requiredLevel(target string) (level event.Level, ok bool) {
	bestLen := -1
	for key, lvl := range f.TargetLevels {
		if key == target || strings.HasPrefix(target, key+"::") {
			if len(key) > bestLen {
				bestLen = len(key)
				level = lvl
				ok = true
			}
		}
	}
	if ok {
		return level, true
	}
	if f.HasGlobal {
		return f.GlobalLevel, true
	}
	return event.LevelUnknown, false
}

// matches applies the full predicate from spec.md §4.B: level gate, then
// target substring, then search substring, all combined by AND.
func (f Filter) matches(e *event.Event) bool {
	if required, ok := f.requiredLevel(e.Target); ok {
		if int(e.Level) < int(required) {
			return false
		}
	}
	if t := strings.TrimSpace(f.Target); t != "" {
		if !strings.Contains(strings.ToLower(e.Target), strings.ToLower(t)) {
			return false
		}
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		if !strings.Contains(strings.ToLower(e.Message), strings.ToLower(s)) {
			return false
		}
	}
	return true
}

// Store is the bounded, concurrency-safe ring of recent events.
type Store struct {
	mu       sync.RWMutex
	entries  []*event.Event
	head     int // next write position
	count    int // number currently stored (<= capacity)
	capacity int
}

// New returns a Store holding at most capacity events. capacity == 0 is
// legal: every Push becomes a no-op and the store stays permanently empty.
func New(capacity int) *Store {
	if capacity < 0 {
		capacity = 0
	}
	return &Store{
		entries:  make([]*event.Event, capacity),
		capacity: capacity,
	}
}

// Push appends e, evicting the oldest entry first if the store is full.
// Reports whether an eviction occurred. Completes in O(1) under a single
// short-held exclusive lock.
func (s *Store) Push(e *event.Event) (evicted bool) {
	if s.capacity == 0 {
		return false
	}
	s.mu.Lock()
	evicted = s.count == s.capacity
	s.entries[s.head] = e
	s.head = (s.head + 1) % s.capacity
	if s.count < s.capacity {
		s.count++
	}
	s.mu.Unlock()
	return evicted
}

// Len reports how many events are currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// oldestFirstLocked returns a freshly-allocated copy of all stored events in
// natural (oldest-first) order. Must be called with the read lock held.
func (s *Store) oldestFirstLocked() []*event.Event {
	out := make([]*event.Event, s.count)
	if s.count == 0 {
		return out
	}
	start := (s.head - s.count + s.capacity) % s.capacity
	for i := 0; i < s.count; i++ {
		out[i] = s.entries[(start+i)%s.capacity]
	}
	return out
}

// SnapshotFiltered walks the ring oldest-first applying filter, computes
// the filtered total, then sorts and paginates. limit < 0 means unbounded;
// the read lock is released before the caller inspects the result.
func (s *Store) SnapshotFiltered(filter Filter, limit, offset int) (logs []*event.Event, total int) {
	s.mu.RLock()
	all := s.oldestFirstLocked()
	s.mu.RUnlock()

	filtered := make([]*event.Event, 0, len(all))
	for _, e := range all {
		if filter.matches(e) {
			filtered = append(filtered, e)
		}
	}
	total = len(filtered)

	if filter.SortOrder == NewestFirst {
		reverse(filtered)
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(filtered) {
		return []*event.Event{}, total
	}
	filtered = filtered[offset:]

	if limit >= 0 && limit < len(filtered) {
		filtered = filtered[:limit]
	}
	return filtered, total
}

// DistinctTargets returns the lexicographically sorted, deduplicated set
// of targets currently present in the ring.
func (s *Store) DistinctTargets() []string {
	s.mu.RLock()
	all := s.oldestFirstLocked()
	s.mu.RUnlock()

	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, e := range all {
		if _, ok := seen[e.Target]; ok {
			continue
		}
		seen[e.Target] = struct{}{}
		out = append(out, e.Target)
	}
	insertionSortStrings(out)
	return out
}

func reverse(s []*event.Event) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func insertionSortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
