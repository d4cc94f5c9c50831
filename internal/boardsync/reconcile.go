package boardsync

import (
	"sync"
	"time"

	"github.com/sketchdeck/boardsync/internal/board"
	"github.com/sketchdeck/boardsync/internal/store"
)

// steadyMergeDelay is the debounce applied to snapshot writes outside the
// post-create window. Near zero: it only collapses bursts of redundant
// snapshots arriving in the same tick.
const steadyMergeDelay = 2 * time.Millisecond

// Reconciler merges remote snapshots into the store. Per item the rule is:
// the remote copy wins unless the item is in the actively-editing set, and
// items present locally but missing remotely survive only if their ID marks
// them as never having been persisted.
type Reconciler struct {
	store  *store.Store
	active *activeEditSet

	mergeDebounce   *debouncer
	postCreateDelay time.Duration

	mu         sync.Mutex
	lastCreate time.Time
	now        func() time.Time
}

func NewReconciler(st *store.Store, active *activeEditSet, postCreateDelay time.Duration) *Reconciler {
	return &Reconciler{
		store:           st,
		active:          active,
		mergeDebounce:   newDebouncer(),
		postCreateDelay: postCreateDelay,
		now:             time.Now,
	}
}

// NoteLocalCreate widens the next merge's debounce so the create's own echo
// can arrive before the generic merge runs, avoiding a visible flicker where
// the new item disappears and reappears.
func (r *Reconciler) NoteLocalCreate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastCreate = r.now()
}

// Apply schedules a debounced merge of the given remote snapshot. The
// snapshot is captured at call time; a newer Apply replaces an unexpired
// pending one.
func (r *Reconciler) Apply(remoteItems []board.Item) {
	delay := steadyMergeDelay
	r.mu.Lock()
	if !r.lastCreate.IsZero() && r.now().Sub(r.lastCreate) < r.postCreateDelay {
		delay = r.postCreateDelay
	}
	r.mu.Unlock()
	snapshot := remoteItems
	r.mergeDebounce.Schedule(delay, func() {
		r.ApplyNow(snapshot)
	})
}

// ApplyNow merges synchronously and writes the result to the store.
func (r *Reconciler) ApplyNow(remoteItems []board.Item) {
	merged, adopted, conflicted := r.Merge(remoteItems)
	r.store.SetAllItems(merged)
	for _, id := range adopted {
		// the remote copy is now canonical; absence of a status means synced
		r.store.ClearSyncStatus(id)
	}
	for _, id := range conflicted {
		// the local copy was kept over a differing remote one; the flag
		// clears when the item is later adopted or successfully persisted
		r.store.SetSyncStatus(id, board.SyncConflict)
	}
}

// Merge computes the merged item list without touching the store. It also
// returns the IDs whose remote copy was adopted, so their pending/error
// status can be cleared, and the IDs whose differing remote copy was
// suppressed by the actively-editing shield. Exported for direct
// verification.
func (r *Reconciler) Merge(remoteItems []board.Item) (merged []board.Item, adopted, conflicted []string) {
	local := r.store.Items()
	leftover := make(map[string]struct{}, len(local))
	byID := make(map[string]board.Item, len(local))
	for _, item := range local {
		byID[item.ID] = item
		leftover[item.ID] = struct{}{}
	}

	merged = make([]board.Item, 0, len(remoteItems))
	for _, remoteItem := range remoteItems {
		localItem, haveLocal := byID[remoteItem.ID]
		if haveLocal && r.active.Contains(remoteItem.ID) {
			merged = append(merged, localItem)
			if !localItem.SameContent(remoteItem) {
				conflicted = append(conflicted, remoteItem.ID)
			}
		} else {
			merged = append(merged, remoteItem)
			adopted = append(adopted, remoteItem.ID)
		}
		delete(leftover, remoteItem.ID)
	}

	// locally-present items the remote no longer has: keep only the ones
	// that were never persisted (local-origin IDs); the rest were deleted
	// by another client
	for _, item := range local {
		if _, ok := leftover[item.ID]; !ok {
			continue
		}
		if board.IsLocalID(item.ID) {
			merged = append(merged, item)
		}
	}
	return merged, adopted, conflicted
}

func (r *Reconciler) Close() {
	r.mergeDebounce.Stop()
}
