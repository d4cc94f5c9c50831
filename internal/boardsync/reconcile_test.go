package boardsync

import (
	"testing"
	"time"

	"github.com/sketchdeck/boardsync/internal/board"
	"github.com/sketchdeck/boardsync/internal/store"
)

func newTestReconciler() (*Reconciler, *store.Store, *activeEditSet) {
	st := store.New()
	active := newActiveEditSet(time.Hour)
	rec := NewReconciler(st, active, 50*time.Millisecond)
	return rec, st, active
}

func namedCircle(id string, x float64) board.Item {
	return board.Item{
		ID:     id,
		Kind:   board.KindCircle,
		X:      x,
		Circle: &board.CircleShape{Radius: 1, Opacity: 1},
	}
}

func TestMergeActivelyEditedLocalWins(t *testing.T) {
	rec, st, active := newTestReconciler()
	defer rec.Close()

	st.AddItem(namedCircle("a", 100)) // local in-flight position
	active.Touch("a")

	merged, _, _ := rec.Merge([]board.Item{namedCircle("a", 1)})
	if len(merged) != 1 || merged[0].X != 100 {
		t.Fatalf("merged = %+v, want local copy with x=100", merged)
	}
}

func TestMergeRemoteWinsWhenNotEditing(t *testing.T) {
	rec, st, _ := newTestReconciler()
	defer rec.Close()

	st.AddItem(namedCircle("a", 100))
	merged, adopted, _ := rec.Merge([]board.Item{namedCircle("a", 1)})
	if merged[0].X != 1 {
		t.Fatalf("merged x = %v, want remote copy", merged[0].X)
	}
	if len(adopted) != 1 || adopted[0] != "a" {
		t.Fatalf("adopted = %v, want [a]", adopted)
	}
}

func TestMergeActiveButAbsentLocallyTakesRemote(t *testing.T) {
	rec, _, active := newTestReconciler()
	defer rec.Close()

	active.Touch("a")
	merged, _, _ := rec.Merge([]board.Item{namedCircle("a", 1)})
	if len(merged) != 1 || merged[0].X != 1 {
		t.Fatalf("merged = %+v, want remote copy", merged)
	}
}

func TestMergeLeftoverRetention(t *testing.T) {
	rec, st, active := newTestReconciler()
	defer rec.Close()

	localID := board.NewLocalID()
	st.AddItem(namedCircle(localID, 5))  // never persisted: must survive
	st.AddItem(namedCircle("gone", 6))   // remote-origin, deleted remotely
	active.Touch(localID)                // new local item being edited

	merged, _, _ := rec.Merge([]board.Item{namedCircle("b", 1)})

	ids := map[string]bool{}
	for _, item := range merged {
		ids[item.ID] = true
	}
	if !ids["b"] {
		t.Fatal("remote item missing from merge")
	}
	if !ids[localID] {
		t.Fatal("unpersisted local item dropped by merge")
	}
	if ids["gone"] {
		t.Fatal("remotely-deleted item kept by merge")
	}
}

func TestMergeFlagsSuppressedDivergentRemoteCopy(t *testing.T) {
	rec, st, active := newTestReconciler()
	defer rec.Close()

	st.AddItem(namedCircle("a", 100))
	active.Touch("a")
	rec.ApplyNow([]board.Item{namedCircle("a", 1)})

	item, _ := st.Item("a")
	if item.X != 100 {
		t.Fatalf("x = %v, want the shielded local copy", item.X)
	}
	status, ok := st.SyncStatusOf("a")
	if !ok || status != board.SyncConflict {
		t.Fatalf("status = %v/%v, want conflict", status, ok)
	}
}

func TestMergeIdenticalSuppressedCopyIsNotAConflict(t *testing.T) {
	rec, st, active := newTestReconciler()
	defer rec.Close()

	st.AddItem(namedCircle("a", 100))
	active.Touch("a")
	_, _, conflicted := rec.Merge([]board.Item{namedCircle("a", 100)})
	if len(conflicted) != 0 {
		t.Fatalf("conflicted = %v, want none for an identical remote copy", conflicted)
	}
}

func TestApplyNowWritesMergeAndClearsAdoptedStatus(t *testing.T) {
	rec, st, _ := newTestReconciler()
	defer rec.Close()

	st.SetSyncStatus("a", board.SyncPending)
	rec.ApplyNow([]board.Item{namedCircle("a", 1)})

	if st.Len() != 1 {
		t.Fatalf("store len = %d, want 1", st.Len())
	}
	if _, ok := st.SyncStatusOf("a"); ok {
		t.Fatal("adopted remote item must end with no status annotation")
	}
}

func TestApplyDebouncesAndKeepsLatestSnapshot(t *testing.T) {
	rec, st, _ := newTestReconciler()
	defer rec.Close()

	rec.Apply([]board.Item{namedCircle("a", 1)})
	rec.Apply([]board.Item{namedCircle("a", 2)})

	waitFor(t, "debounced merge", func() bool { return st.Len() == 1 })
	item, _ := st.Item("a")
	if item.X != 2 {
		t.Fatalf("x = %v, want latest snapshot's 2", item.X)
	}
}

func TestApplyAfterLocalCreateUsesWiderDebounce(t *testing.T) {
	rec, st, _ := newTestReconciler()
	defer rec.Close()

	rec.NoteLocalCreate()
	start := time.Now()
	rec.Apply([]board.Item{namedCircle("a", 1)})
	waitFor(t, "post-create merge", func() bool { return st.Len() == 1 })
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("merge ran after %v, want at least the post-create delay", elapsed)
	}
}
