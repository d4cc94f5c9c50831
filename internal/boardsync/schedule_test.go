package boardsync

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerLatestWins(t *testing.T) {
	d := newDebouncer()
	defer d.Stop()

	var got int64
	d.Schedule(20*time.Millisecond, func() { atomic.StoreInt64(&got, 1) })
	d.Schedule(5*time.Millisecond, func() { atomic.StoreInt64(&got, 2) })

	waitFor(t, "debounced run", func() bool { return atomic.LoadInt64(&got) != 0 })
	if atomic.LoadInt64(&got) != 2 {
		t.Fatalf("got %d, want the latest scheduled function", got)
	}
	// the replaced function must never run
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt64(&got) != 2 {
		t.Fatal("replaced function ran")
	}
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	d := newDebouncer()
	var ran int64
	d.Schedule(5*time.Millisecond, func() { atomic.AddInt64(&ran, 1) })
	d.Stop()
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt64(&ran) != 0 {
		t.Fatal("stopped debouncer still ran")
	}
}

func TestThrottleCoalescesBurst(t *testing.T) {
	th := newThrottle(30 * time.Millisecond)
	defer th.Stop()

	var calls int64
	var last int64
	for i := 1; i <= 10; i++ {
		v := int64(i)
		th.Do(func() {
			atomic.AddInt64(&calls, 1)
			atomic.StoreInt64(&last, v)
		})
	}
	// leading call runs immediately; the burst collapses into one trailing
	// run carrying the newest value
	waitFor(t, "trailing run", func() bool { return atomic.LoadInt64(&calls) == 2 })
	if atomic.LoadInt64(&last) != 10 {
		t.Fatalf("last = %d, want 10", last)
	}
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt64(&calls) != 2 {
		t.Fatalf("calls = %d, want exactly 2", calls)
	}
}
