package boardsync

import (
	"sync"
	"time"
)

// activeEditSet tracks item IDs currently under local optimistic mutation.
// Membership protects in-flight local edits from being clobbered by a racing
// remote snapshot. Entries expire a fixed window after the last touch.
type activeEditSet struct {
	mu        sync.Mutex
	window    time.Duration
	deadlines map[string]time.Time
	now       func() time.Time
}

func newActiveEditSet(window time.Duration) *activeEditSet {
	return &activeEditSet{
		window:    window,
		deadlines: map[string]time.Time{},
		now:       time.Now,
	}
}

// Touch marks an ID as actively edited, refreshing its expiry window.
func (s *activeEditSet) Touch(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlines[id] = s.now().Add(s.window)
}

func (s *activeEditSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline, ok := s.deadlines[id]
	if !ok {
		return false
	}
	if s.now().After(deadline) {
		delete(s.deadlines, id)
		return false
	}
	return true
}

func (s *activeEditSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deadlines, id)
}

func (s *activeEditSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, deadline := range s.deadlines {
		if now.After(deadline) {
			delete(s.deadlines, id)
		}
	}
	return len(s.deadlines)
}
