package localstate

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLoadViewportBeforeSave(t *testing.T) {
	db := openTestDB(t)
	_, ok, err := db.LoadViewport()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("fresh db reported a saved viewport")
	}
}

func TestViewportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	want := Viewport{X: -120.5, Y: 44, Scale: 1.5, SelectedItemID: "item-7"}
	if err := db.SaveViewport(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, ok, err := db.LoadViewport()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("viewport lost across reopen")
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSaveViewportOverwrites(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveViewport(Viewport{X: 1, Y: 2, Scale: 1}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.SaveViewport(Viewport{X: 9, Y: 9, Scale: 2}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, _ := db.LoadViewport()
	if !ok || got.X != 9 || got.Scale != 2 {
		t.Fatalf("got %+v", got)
	}
}
