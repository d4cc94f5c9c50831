package boardsync

import (
	"context"
	"sync"
	"time"

	"github.com/sketchdeck/boardsync/internal/board"
	"github.com/sketchdeck/boardsync/internal/remote"
	"github.com/sketchdeck/boardsync/internal/store"
)

// LockManager maintains advisory per-item edit locks. Locks are purely
// cooperative: Lock applies unconditionally, even over another user's live
// lock — the UI is expected to consult the current lock fields before
// calling. Remote writes are best-effort with no rollback; if one never
// lands, the remote echo reconciles the true state back eventually.
type LockManager struct {
	boardID string
	user    User
	col     remote.Collection
	store   *store.Store
	logger  Logger
	enabled func() bool

	ttl        time.Duration
	sweepEvery time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewLockManager(cfg Config, col remote.Collection, st *store.Store, enabled func() bool) *LockManager {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &LockManager{
		boardID:    cfg.BoardID,
		user:       cfg.User,
		col:        col,
		store:      st,
		logger:     cfg.Logger,
		enabled:    enabled,
		ttl:        cfg.LockTTL,
		sweepEvery: cfg.LockSweepInterval,
		now:        time.Now,
	}
}

// Lock marks the item as being edited by the local user, locally and
// remotely. There is no acquisition check.
func (m *LockManager) Lock(id string) {
	at := m.now()
	m.store.UpdateItem(id, func(item *board.Item) {
		item.SetLock(m.user.ID, m.user.Name, m.user.Color, at)
	})
	m.pushLockState(id)
}

// Unlock clears the item's lock fields locally and remotely.
func (m *LockManager) Unlock(id string) {
	m.store.UpdateItem(id, func(item *board.Item) {
		item.ClearLock()
	})
	m.pushLockState(id)
}

// pushLockState replicates the item's current lock fields remotely as a
// whole-object write. Failures are logged and the local optimistic state is
// kept.
func (m *LockManager) pushLockState(id string) {
	if board.IsLocalID(id) || !m.enabled() {
		return
	}
	item, ok := m.store.Item(id)
	if !ok {
		return
	}
	payload, err := board.EncodeItem(item)
	if err != nil {
		m.logf("encode %s for lock write: %v", id, err)
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancelOp := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelOp()
		if err := m.col.Update(ctx, m.boardID, id, payload); err != nil {
			m.logf("lock write for %s: %v", id, err)
		}
	}()
}

// Start runs the stale-lock sweep until the context ends.
func (m *LockManager) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Sweep releases every lock older than the TTL, regardless of owner.
// Remote clear failures are swallowed; the next tick retries.
func (m *LockManager) Sweep() {
	cutoff := m.now().Add(-m.ttl)
	for _, item := range m.store.Items() {
		if item.LockedAt == nil || !item.LockedAt.Before(cutoff) {
			continue
		}
		id := item.ID
		m.store.UpdateItem(id, func(it *board.Item) {
			it.ClearLock()
		})
		m.pushLockState(id)
	}
}

func (m *LockManager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *LockManager) logf(format string, args ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Printf(format, args...)
}
