package boardsync

import (
	"testing"
	"time"
)

func TestActiveEditSetExpiry(t *testing.T) {
	set := newActiveEditSet(3 * time.Second)
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	set.now = func() time.Time { return now }

	set.Touch("a")
	if !set.Contains("a") {
		t.Fatal("freshly touched ID missing")
	}

	now = now.Add(2 * time.Second)
	if !set.Contains("a") {
		t.Fatal("ID expired before the window")
	}

	// a further edit refreshes the window
	set.Touch("a")
	now = now.Add(2 * time.Second)
	if !set.Contains("a") {
		t.Fatal("touch did not refresh the window")
	}

	now = now.Add(2 * time.Second)
	if set.Contains("a") {
		t.Fatal("ID survived past the window")
	}
	if set.Len() != 0 {
		t.Fatalf("len = %d after expiry", set.Len())
	}
}

func TestActiveEditSetRemove(t *testing.T) {
	set := newActiveEditSet(time.Hour)
	set.Touch("a")
	set.Remove("a")
	if set.Contains("a") {
		t.Fatal("removed ID still present")
	}
	set.Touch("")
	if set.Len() != 0 {
		t.Fatal("empty ID must be ignored")
	}
}
