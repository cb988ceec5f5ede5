package tracker

import (
	"sort"
	"sync"
)

// TrackingSet holds the tracked and untracked identifiers.
//
// The two sets are disjoint and only ever grow: auto-discovery inserts into
// tracked, nothing is removed. All methods are safe for concurrent use.
type TrackingSet struct {
	mu        sync.RWMutex
	tracked   map[string]struct{}
	untracked map[string]struct{}
}

// NewTrackingSet builds a set from registry identifiers. An identifier listed
// in both slices ends up untracked, so an explicit opt-out beats a tracked
// duplicate instead of tracked membership alone deciding.
func NewTrackingSet(tracked, untracked []string) *TrackingSet {
	s := &TrackingSet{
		tracked:   make(map[string]struct{}, len(tracked)),
		untracked: make(map[string]struct{}, len(untracked)),
	}
	for _, id := range untracked {
		s.untracked[id] = struct{}{}
	}
	for _, id := range tracked {
		if _, optedOut := s.untracked[id]; optedOut {
			continue
		}
		s.tracked[id] = struct{}{}
	}
	return s
}

// IsTracked reports whether id is in the tracked set.
func (s *TrackingSet) IsTracked(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tracked[id]
	return ok
}

// IsKnown reports whether id is in either set.
func (s *TrackingSet) IsKnown(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.knownLocked(id)
}

func (s *TrackingSet) knownLocked(id string) bool {
	if _, ok := s.tracked[id]; ok {
		return true
	}
	_, ok := s.untracked[id]
	return ok
}

// Observe applies the auto-track policy to id and reports whether it is
// tracked afterwards. discovered is true when this call added it.
//
// The membership check and the insert happen under one lock, so concurrent
// observers of the same new id discover it exactly once.
func (s *TrackingSet) Observe(id string, trackNew bool) (tracked, discovered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tracked[id]; ok {
		return true, false
	}
	if !trackNew || s.knownLocked(id) {
		return false, false
	}
	s.tracked[id] = struct{}{}
	return true, true
}

// Snapshot returns sorted copies of both sets.
func (s *TrackingSet) Snapshot() (tracked, untracked []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.tracked), sortedKeys(s.untracked)
}

// Counts returns the sizes of both sets.
func (s *TrackingSet) Counts() (tracked, untracked int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracked), len(s.untracked)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
