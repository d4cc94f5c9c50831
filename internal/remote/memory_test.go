package remote

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func mustCreate(t *testing.T, c *MemoryCollection, boardID, payload string) string {
	t.Helper()
	id, err := c.Create(context.Background(), boardID, json.RawMessage(payload))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func TestMemoryCreateStampsServerFields(t *testing.T) {
	c := NewMemoryCollection()
	defer c.Close()

	id := mustCreate(t, c, "b1", `{"type":"circle","x":1,"y":2}`)
	if id == "" {
		t.Fatal("no server-assigned id")
	}
	snapshot, err := c.Snapshot(context.Background(), "b1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot) != 1 {
		t.Fatalf("snapshot len = %d", len(snapshot))
	}
	if got := recordID(snapshot[0]); got != id {
		t.Fatalf("record id = %q, want %q", got, id)
	}
	if recordCreatedAt(snapshot[0]).IsZero() {
		t.Fatal("createdAt not stamped")
	}
}

func TestMemorySnapshotOrderedByCreation(t *testing.T) {
	c := NewMemoryCollection()
	defer c.Close()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	step := 0
	c.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	first := mustCreate(t, c, "b1", `{"type":"circle"}`)
	second := mustCreate(t, c, "b1", `{"type":"text"}`)

	// updating the first record must not reorder it
	if err := c.Update(context.Background(), "b1", first, json.RawMessage(`{"type":"circle","x":9}`)); err != nil {
		t.Fatalf("update: %v", err)
	}
	snapshot, _ := c.Snapshot(context.Background(), "b1")
	if recordID(snapshot[0]) != first || recordID(snapshot[1]) != second {
		t.Fatalf("order = %q, %q", recordID(snapshot[0]), recordID(snapshot[1]))
	}
	if recordCreatedAt(snapshot[0]).After(recordCreatedAt(snapshot[1])) {
		t.Fatal("update changed createdAt")
	}
}

func TestMemoryUpdateUnknownID(t *testing.T) {
	c := NewMemoryCollection()
	defer c.Close()
	err := c.Update(context.Background(), "b1", "missing", json.RawMessage(`{}`))
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := c.Delete(context.Background(), "b1", "missing"); err != ErrNotFound {
		t.Fatalf("delete err = %v, want ErrNotFound", err)
	}
}

func TestMemorySubscriptionEmitsFullSnapshots(t *testing.T) {
	c := NewMemoryCollection()
	defer c.Close()

	mustCreate(t, c, "b1", `{"type":"circle"}`)

	sub, err := c.Subscribe(context.Background(), "b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// initial snapshot reflects existing records
	initial := <-sub.Snapshots()
	if len(initial) != 1 {
		t.Fatalf("initial snapshot len = %d, want 1", len(initial))
	}

	mustCreate(t, c, "b1", `{"type":"text"}`)
	var next []json.RawMessage
	deadline := time.After(2 * time.Second)
	for len(next) != 2 {
		select {
		case next = <-sub.Snapshots():
		case <-deadline:
			t.Fatal("no snapshot after change")
		}
	}

	// changes to other boards must not leak in
	mustCreate(t, c, "b2", `{"type":"image"}`)
	snapshot, _ := c.Snapshot(context.Background(), "b1")
	if len(snapshot) != 2 {
		t.Fatalf("board b1 has %d records, want 2", len(snapshot))
	}
}

func TestMemorySubscriptionClosesWithContext(t *testing.T) {
	c := NewMemoryCollection()
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := c.Subscribe(ctx, "b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Snapshots():
			if !ok {
				if sub.Err() != nil {
					t.Fatalf("clean close should leave Err nil, got %v", sub.Err())
				}
				return
			}
		case <-deadline:
			t.Fatal("subscription did not close after context cancel")
		}
	}
}
