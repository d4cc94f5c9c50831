package boardsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sketchdeck/boardsync/internal/board"
	"github.com/sketchdeck/boardsync/internal/remote"
	"github.com/sketchdeck/boardsync/internal/store"
)

// Mutator is the write path: it applies mutations to the store optimistically
// and persists them to the remote collection in the background. Local
// feedback is always synchronous; remote consistency is eventual and
// observable through per-item sync status.
type Mutator struct {
	boardID string
	user    User
	col     remote.Collection
	store   *store.Store
	active  *activeEditSet
	rec     *Reconciler
	logger  Logger
	enabled func() bool

	retryBase  time.Duration
	maxRetries int

	dragThrottle *throttle
	dragMu       sync.Mutex
	dragID       string
	dragPayload  []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// injectable for retry-schedule tests
	wait func(ctx context.Context, delay time.Duration) bool
	now  func() time.Time
}

func NewMutator(cfg Config, col remote.Collection, st *store.Store, active *activeEditSet, rec *Reconciler, enabled func() bool) *Mutator {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Mutator{
		boardID:      cfg.BoardID,
		user:         cfg.User,
		col:          col,
		store:        st,
		active:       active,
		rec:          rec,
		logger:       cfg.Logger,
		enabled:      enabled,
		retryBase:    cfg.RetryBaseDelay,
		maxRetries:   cfg.MaxRetries,
		dragThrottle: newThrottle(cfg.DragInterval),
		ctx:          ctx,
		cancel:       cancel,
		wait:         waitWithContext,
		now:          time.Now,
	}
}

// Create adds a new item. With localOnly (or the remote store disabled) the
// item gets a local-origin ID and lands in the store immediately, with no
// remote echo expected. Otherwise the record is submitted to the remote
// store and the store entry arrives only via the reconciler once the echo
// shows up; inserting locally as well would duplicate the item.
func (m *Mutator) Create(item board.Item, localOnly bool) (string, error) {
	now := m.now()
	item.CreatedBy = m.user.ID
	item.CreatedAt = now
	item.UpdatedAt = now
	item.Rotation = board.NormalizeRotation(item.Rotation)

	if localOnly || !m.enabled() {
		item.ID = board.NewLocalID()
		m.store.AddItem(item)
		return item.ID, nil
	}

	item.ID = board.NewID() // placeholder for encoding; the remote assigns the real one
	payload, err := board.EncodeItem(item)
	if err != nil {
		return "", err
	}
	if m.rec != nil {
		m.rec.NoteLocalCreate()
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for attempt := 0; ; attempt++ {
			id, err := m.col.Create(m.ctx, m.boardID, payload)
			if err == nil {
				m.store.SetSyncStatus(id, board.SyncPending)
				return
			}
			if attempt >= m.maxRetries {
				m.logf("create failed after %d attempts: %v", attempt+1, err)
				return
			}
			if !m.wait(m.ctx, m.retryBase*time.Duration(attempt+1)) {
				return
			}
		}
	}()
	return "", nil
}

// Update merges fields into the stored item synchronously, marks it pending,
// shields it in the actively-editing set, then persists the whole object in
// the background with linear backoff. The payload sent remotely is the item
// as it was at call time.
func (m *Mutator) Update(id string, mutate func(*board.Item)) {
	now := m.now()
	m.store.UpdateItem(id, func(item *board.Item) {
		mutate(item)
		item.Rotation = board.NormalizeRotation(item.Rotation)
		item.UpdatedAt = now
	})
	item, ok := m.store.Item(id)
	if !ok {
		return
	}
	m.active.Touch(id)

	// never send a locally-generated ID as an update target; its create has
	// not been acknowledged remotely, and with no persist attempted there is
	// no network state to report
	if board.IsLocalID(id) || !m.enabled() {
		return
	}
	m.store.SetSyncStatus(id, board.SyncPending)
	payload, err := board.EncodeItem(item)
	if err != nil {
		m.logf("encode %s for update: %v", id, err)
		m.store.SetSyncStatus(id, board.SyncError)
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.persistUpdate(id, payload)
	}()
}

// DragUpdate applies a drag movement like Update but coalesces the outbound
// writes: every call lands in the store immediately, while at most one
// remote persist per drag interval goes out, plus a trailing one carrying
// the final position.
func (m *Mutator) DragUpdate(id string, mutate func(*board.Item)) {
	now := m.now()
	m.store.UpdateItem(id, func(item *board.Item) {
		mutate(item)
		item.Rotation = board.NormalizeRotation(item.Rotation)
		item.UpdatedAt = now
	})
	item, ok := m.store.Item(id)
	if !ok {
		return
	}
	m.active.Touch(id)
	if board.IsLocalID(id) || !m.enabled() {
		return
	}
	m.store.SetSyncStatus(id, board.SyncPending)
	payload, err := board.EncodeItem(item)
	if err != nil {
		m.logf("encode %s for drag update: %v", id, err)
		m.store.SetSyncStatus(id, board.SyncError)
		return
	}
	m.dragMu.Lock()
	m.dragID = id
	m.dragPayload = payload
	m.dragMu.Unlock()
	m.dragThrottle.Do(m.sendDrag)
}

// sendDrag persists the newest drag payload recorded at call time, the way
// the cursor throttle publishes the newest position.
func (m *Mutator) sendDrag() {
	m.dragMu.Lock()
	id, payload := m.dragID, m.dragPayload
	m.dragMu.Unlock()
	if id == "" {
		return
	}
	m.persistUpdate(id, payload)
}

func (m *Mutator) persistUpdate(id string, payload []byte) {
	for attempt := 0; ; attempt++ {
		err := m.col.Update(m.ctx, m.boardID, id, payload)
		if err == nil {
			m.store.SetSyncStatus(id, board.SyncSynced)
			return
		}
		m.store.SetSyncStatus(id, board.SyncError)
		if attempt >= m.maxRetries {
			m.logf("update %s failed after %d attempts: %v", id, attempt+1, err)
			return
		}
		if !m.wait(m.ctx, m.retryBase*time.Duration(attempt+1)) {
			return
		}
	}
}

// Delete removes the item from the store synchronously. Remote deletion is
// fire-and-forget: failures are logged but never retried, since a retry
// could race a recreate of the same item.
func (m *Mutator) Delete(id string) {
	m.store.DeleteItem(id)
	m.active.Remove(id)
	if board.IsLocalID(id) || !m.enabled() {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.col.Delete(m.ctx, m.boardID, id); err != nil {
			m.logf("delete %s: %v", id, err)
		}
	}()
}

// ClearAll empties the store and issues remote deletes for every persisted
// item in parallel. Failures are aggregated into one log line.
func (m *Mutator) ClearAll() {
	items := m.store.Items()
	m.store.ClearAll()
	if !m.enabled() {
		return
	}
	var ids []string
	for _, item := range items {
		if !board.IsLocalID(item.ID) {
			ids = append(ids, item.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		var failMu sync.Mutex
		var failures []string
		var inner sync.WaitGroup
		for _, id := range ids {
			inner.Add(1)
			go func(id string) {
				defer inner.Done()
				if err := m.col.Delete(m.ctx, m.boardID, id); err != nil {
					failMu.Lock()
					failures = append(failures, fmt.Sprintf("%s: %v", id, err))
					failMu.Unlock()
				}
			}(id)
		}
		inner.Wait()
		if len(failures) > 0 {
			m.logf("clear all: %d of %d deletes failed: %v", len(failures), len(ids), failures)
		}
	}()
}

// Close cancels in-flight retry chains and waits for background work.
func (m *Mutator) Close() {
	m.dragThrottle.Stop()
	m.cancel()
	m.wg.Wait()
}

func (m *Mutator) logf(format string, args ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Printf(format, args...)
}
