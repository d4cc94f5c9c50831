package remote

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCollection is an in-process Collection used by tests, the simulator,
// and offline mode. It mimics the remote contract faithfully: server-assigned
// IDs and timestamps, creation-time ordering, and a full snapshot pushed to
// every subscription on every change.
type MemoryCollection struct {
	mu     sync.Mutex
	boards map[string]map[string]memRecord
	subs   map[string][]*memSubscription
	closed bool
	now    func() time.Time
}

type memRecord struct {
	payload   json.RawMessage
	createdAt time.Time
	seq       uint64
}

var memSeq uint64

func NewMemoryCollection() *MemoryCollection {
	return &MemoryCollection{
		boards: map[string]map[string]memRecord{},
		subs:   map[string][]*memSubscription{},
		now:    time.Now,
	}
}

func (c *MemoryCollection) Create(ctx context.Context, boardID string, record json.RawMessage) (string, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	id := uuid.NewString()
	now := c.now()
	stamped, err := stampRecord(record, id, now, now)
	if err != nil {
		return "", err
	}
	if c.boards[boardID] == nil {
		c.boards[boardID] = map[string]memRecord{}
	}
	memSeq++
	c.boards[boardID][id] = memRecord{payload: stamped, createdAt: now, seq: memSeq}
	c.broadcastLocked(boardID)
	return id, nil
}

func (c *MemoryCollection) Update(ctx context.Context, boardID, id string, record json.RawMessage) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	existing, ok := c.boards[boardID][id]
	if !ok {
		return ErrNotFound
	}
	stamped, err := stampRecord(record, id, existing.createdAt, c.now())
	if err != nil {
		return err
	}
	existing.payload = stamped
	c.boards[boardID][id] = existing
	c.broadcastLocked(boardID)
	return nil
}

func (c *MemoryCollection) Delete(ctx context.Context, boardID, id string) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.boards[boardID][id]; !ok {
		return ErrNotFound
	}
	delete(c.boards[boardID], id)
	c.broadcastLocked(boardID)
	return nil
}

func (c *MemoryCollection) Snapshot(ctx context.Context, boardID string) ([]json.RawMessage, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.snapshotLocked(boardID), nil
}

func (c *MemoryCollection) PublishPresence(ctx context.Context, boardID string, update PresenceUpdate) error {
	_ = ctx
	_ = boardID
	_ = update
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	// Presence is transient; the in-memory backend has no other clients to
	// fan it out to, so accepting the write is the whole contract.
	return nil
}

func (c *MemoryCollection) Subscribe(ctx context.Context, boardID string) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	sub := &memSubscription{
		ch:     make(chan []json.RawMessage, 1),
		parent: c,
		board:  boardID,
	}
	c.subs[boardID] = append(c.subs[boardID], sub)
	sub.push(c.snapshotLocked(boardID))
	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	return sub, nil
}

func (c *MemoryCollection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, subs := range c.subs {
		for _, sub := range subs {
			sub.closeWith(nil)
		}
	}
	c.subs = map[string][]*memSubscription{}
	return nil
}

func (c *MemoryCollection) snapshotLocked(boardID string) []json.RawMessage {
	records := make([]memRecord, 0, len(c.boards[boardID]))
	for _, rec := range c.boards[boardID] {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].createdAt.Equal(records[j].createdAt) {
			return records[i].seq < records[j].seq
		}
		return records[i].createdAt.Before(records[j].createdAt)
	})
	out := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		out = append(out, append(json.RawMessage(nil), rec.payload...))
	}
	return out
}

func (c *MemoryCollection) broadcastLocked(boardID string) {
	snapshot := c.snapshotLocked(boardID)
	for _, sub := range c.subs[boardID] {
		sub.push(snapshot)
	}
}

func (c *MemoryCollection) dropSub(boardID string, target *memSubscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.subs[boardID]
	for i, sub := range subs {
		if sub == target {
			c.subs[boardID] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

type memSubscription struct {
	mu     sync.Mutex
	ch     chan []json.RawMessage
	closed bool
	err    error
	parent *MemoryCollection
	board  string
}

func (s *memSubscription) Snapshots() <-chan []json.RawMessage {
	return s.ch
}

func (s *memSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// push delivers latest-wins: a slow consumer sees the newest snapshot, not a
// backlog of stale ones.
func (s *memSubscription) push(snapshot []json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snapshot:
	default:
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snapshot
	}
}

func (s *memSubscription) closeWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}

func (s *memSubscription) Close() error {
	if s.parent != nil {
		s.parent.dropSub(s.board, s)
	}
	s.closeWith(nil)
	return nil
}
