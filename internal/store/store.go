// Package store holds the canonical local view of a board: the ordered
// content items, the viewport, and per-item sync status. It is the single
// source of truth for rendering; the reconciler and the mutation pipeline
// are its only writers.
package store

import (
	"sync"

	"github.com/sketchdeck/boardsync/internal/board"
)

// Hard bounds for the viewport scale. A tighter UI range may be configured
// upstream, but nothing stored here ever escapes these.
const (
	MinScale = 0.01
	MaxScale = 3.0
)

type Viewport struct {
	X              float64
	Y              float64
	Scale          float64
	SelectedItemID string
}

type Store struct {
	mu         sync.RWMutex
	items      []board.Item
	index      map[string]int
	syncStatus map[string]board.SyncStatus
	viewport   Viewport

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

func New() *Store {
	return &Store{
		index:      map[string]int{},
		syncStatus: map[string]board.SyncStatus{},
		viewport:   Viewport{Scale: 1},
		subs:       map[int]func(){},
	}
}

// Subscribe registers an observer invoked after every mutation. The returned
// function removes the observer. Observers run on the mutating goroutine and
// must not call back into the Store's write operations.
func (s *Store) Subscribe(fn func()) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// AddItem appends an item. Adding an ID that is already present is silently
// ignored; callers are expected to use UpdateItem for existing items.
func (s *Store) AddItem(item board.Item) {
	s.mu.Lock()
	if item.ID == "" {
		s.mu.Unlock()
		return
	}
	if _, exists := s.index[item.ID]; exists {
		s.mu.Unlock()
		return
	}
	s.index[item.ID] = len(s.items)
	s.items = append(s.items, item.Clone())
	s.mu.Unlock()
	s.notify()
}

// UpdateItem applies mutate to a copy of the stored item and writes it back.
// No-op if the ID is absent.
func (s *Store) UpdateItem(id string, mutate func(*board.Item)) {
	s.mu.Lock()
	pos, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	item := s.items[pos].Clone()
	mutate(&item)
	item.ID = id // identity is not mutable
	s.items[pos] = item
	s.mu.Unlock()
	s.notify()
}

// DeleteItem removes an item, clears the selection if it was selected, and
// drops any sync-status entry for it.
func (s *Store) DeleteItem(id string) {
	s.mu.Lock()
	pos, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.items = append(s.items[:pos], s.items[pos+1:]...)
	delete(s.index, id)
	for i := pos; i < len(s.items); i++ {
		s.index[s.items[i].ID] = i
	}
	delete(s.syncStatus, id)
	if s.viewport.SelectedItemID == id {
		s.viewport.SelectedItemID = ""
	}
	s.mu.Unlock()
	s.notify()
}

// SetAllItems replaces the whole item list, used by the reconciler to apply
// a merged snapshot. Sync-status entries for IDs no longer present are
// dropped.
func (s *Store) SetAllItems(items []board.Item) {
	s.mu.Lock()
	s.items = make([]board.Item, 0, len(items))
	s.index = make(map[string]int, len(items))
	for _, item := range items {
		if _, dup := s.index[item.ID]; dup {
			continue
		}
		s.index[item.ID] = len(s.items)
		s.items = append(s.items, item.Clone())
	}
	for id := range s.syncStatus {
		if _, ok := s.index[id]; !ok {
			delete(s.syncStatus, id)
		}
	}
	if s.viewport.SelectedItemID != "" {
		if _, ok := s.index[s.viewport.SelectedItemID]; !ok {
			s.viewport.SelectedItemID = ""
		}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) ClearAll() {
	s.mu.Lock()
	s.items = nil
	s.index = map[string]int{}
	s.syncStatus = map[string]board.SyncStatus{}
	s.viewport.SelectedItemID = ""
	s.mu.Unlock()
	s.notify()
}

func (s *Store) SetSyncStatus(id string, status board.SyncStatus) {
	s.mu.Lock()
	s.syncStatus[id] = status
	s.mu.Unlock()
	s.notify()
}

func (s *Store) ClearSyncStatus(id string) {
	s.mu.Lock()
	delete(s.syncStatus, id)
	s.mu.Unlock()
	s.notify()
}

// SyncStatusOf returns the status annotation for an item. Absence means the
// item has no pending or failed persistence, i.e. it is synced.
func (s *Store) SyncStatusOf(id string) (board.SyncStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.syncStatus[id]
	return status, ok
}

// Items returns an ordered deep copy of all items.
func (s *Store) Items() []board.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]board.Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.Clone())
	}
	return out
}

func (s *Store) Item(id string) (board.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[id]
	if !ok {
		return board.Item{}, false
	}
	return s.items[pos].Clone(), true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) Viewport() Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}

func (s *Store) SetViewport(v Viewport) {
	s.mu.Lock()
	v.Scale = clampScale(v.Scale)
	s.viewport = v
	s.mu.Unlock()
	s.notify()
}

func (s *Store) SetViewportPosition(x, y float64) {
	s.mu.Lock()
	s.viewport.X = x
	s.viewport.Y = y
	s.mu.Unlock()
	s.notify()
}

// SetViewportScale stores the scale, silently clamped to [MinScale, MaxScale].
func (s *Store) SetViewportScale(scale float64) {
	s.mu.Lock()
	s.viewport.Scale = clampScale(scale)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) Select(id string) {
	s.mu.Lock()
	s.viewport.SelectedItemID = id
	s.mu.Unlock()
	s.notify()
}

// ResetViewport returns the viewport to the origin at scale 1 with nothing
// selected.
func (s *Store) ResetViewport() {
	s.mu.Lock()
	s.viewport = Viewport{Scale: 1}
	s.mu.Unlock()
	s.notify()
}

func clampScale(scale float64) float64 {
	if scale < MinScale {
		return MinScale
	}
	if scale > MaxScale {
		return MaxScale
	}
	return scale
}
