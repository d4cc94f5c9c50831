package store

import (
	"sync/atomic"
	"testing"

	"github.com/sketchdeck/boardsync/internal/board"
)

func rect(id string, x float64) board.Item {
	return board.Item{
		ID:   id,
		Kind: board.KindRectangle,
		X:    x,
		Rect: &board.RectShape{Width: 10, Height: 10, Opacity: 1},
	}
}

func TestAddItemIgnoresDuplicateID(t *testing.T) {
	s := New()
	s.AddItem(rect("a", 1))
	s.AddItem(rect("a", 99))
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	item, _ := s.Item("a")
	if item.X != 1 {
		t.Fatalf("duplicate add must not overwrite, x = %v", item.X)
	}
}

func TestUpdateItemIsPartial(t *testing.T) {
	s := New()
	item := rect("a", 1)
	item.Y = 7
	item.Rotation = 45
	s.AddItem(item)

	s.UpdateItem("a", func(it *board.Item) { it.X = 42 })

	got, ok := s.Item("a")
	if !ok {
		t.Fatal("item disappeared")
	}
	if got.X != 42 {
		t.Fatalf("x = %v, want 42", got.X)
	}
	if got.Y != 7 || got.Rotation != 45 || got.Rect == nil || got.Rect.Width != 10 {
		t.Fatalf("unrelated fields changed: %+v", got)
	}

	// absent ID is a no-op
	s.UpdateItem("missing", func(it *board.Item) { it.X = 1 })
	if s.Len() != 1 {
		t.Fatalf("len = %d after no-op update", s.Len())
	}
}

func TestDeleteItemClearsSelectionAndStatus(t *testing.T) {
	s := New()
	s.AddItem(rect("a", 1))
	s.AddItem(rect("b", 2))
	s.Select("a")
	s.SetSyncStatus("a", board.SyncPending)

	s.DeleteItem("a")
	if s.Viewport().SelectedItemID != "" {
		t.Fatal("selection not cleared for deleted item")
	}
	if _, ok := s.SyncStatusOf("a"); ok {
		t.Fatal("sync status not cleared for deleted item")
	}

	s.Select("b")
	s.AddItem(rect("c", 3))
	s.DeleteItem("c")
	if s.Viewport().SelectedItemID != "b" {
		t.Fatal("deleting a non-selected item must leave selection untouched")
	}
}

func TestViewportScaleClamped(t *testing.T) {
	s := New()
	cases := []struct {
		in   float64
		want float64
	}{
		{1.5, 1.5},
		{0.005, MinScale},
		{MinScale, MinScale},
		{3.0, 3.0},
		{50, MaxScale},
		{-2, MinScale},
	}
	for _, tc := range cases {
		s.SetViewportScale(tc.in)
		if got := s.Viewport().Scale; got != tc.want {
			t.Errorf("SetViewportScale(%v) stored %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestResetViewport(t *testing.T) {
	s := New()
	s.AddItem(rect("a", 1))
	s.SetViewportPosition(10, 20)
	s.SetViewportScale(2)
	s.Select("a")
	s.ResetViewport()
	v := s.Viewport()
	if v.X != 0 || v.Y != 0 || v.Scale != 1 || v.SelectedItemID != "" {
		t.Fatalf("viewport after reset = %+v", v)
	}
}

func TestSetAllItemsReplacesAndPrunes(t *testing.T) {
	s := New()
	s.AddItem(rect("a", 1))
	s.AddItem(rect("b", 2))
	s.SetSyncStatus("a", board.SyncError)
	s.Select("a")

	s.SetAllItems([]board.Item{rect("b", 20), rect("c", 30)})

	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
	if _, ok := s.Item("a"); ok {
		t.Fatal("replaced item still present")
	}
	if _, ok := s.SyncStatusOf("a"); ok {
		t.Fatal("status for vanished item not pruned")
	}
	if s.Viewport().SelectedItemID != "" {
		t.Fatal("selection of vanished item not cleared")
	}
	items := s.Items()
	if items[0].ID != "b" || items[1].ID != "c" {
		t.Fatalf("order not preserved: %v, %v", items[0].ID, items[1].ID)
	}
}

func TestSubscribersNotifiedOnEveryMutation(t *testing.T) {
	s := New()
	var calls int64
	unsubscribe := s.Subscribe(func() { atomic.AddInt64(&calls, 1) })

	s.AddItem(rect("a", 1))
	s.UpdateItem("a", func(it *board.Item) { it.X = 2 })
	s.SetViewportScale(2)
	s.DeleteItem("a")

	if got := atomic.LoadInt64(&calls); got != 4 {
		t.Fatalf("observer calls = %d, want 4", got)
	}

	unsubscribe()
	s.AddItem(rect("b", 1))
	if got := atomic.LoadInt64(&calls); got != 4 {
		t.Fatalf("observer called after unsubscribe: %d", got)
	}
}

func TestItemsReturnsCopies(t *testing.T) {
	s := New()
	s.AddItem(rect("a", 1))
	items := s.Items()
	items[0].Rect.Width = 999
	stored, _ := s.Item("a")
	if stored.Rect.Width != 10 {
		t.Fatal("snapshot aliases stored item")
	}
}
