package boardsync

import (
	"context"
	"sync"
	"time"
)

// debouncer runs the most recently scheduled function after its delay.
// Scheduling again before the delay elapses replaces both the function and
// the deadline, so the latest value always wins. Owned by the component
// that created it and stopped on teardown.
type debouncer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newDebouncer() *debouncer {
	return &debouncer{}
}

func (d *debouncer) Schedule(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
		fn()
	})
}

func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// throttle runs a function at most once per interval. A call inside the
// interval schedules a single trailing run carrying the latest function, so
// the final value in a burst is never dropped.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	lastRun  time.Time
	timer    *time.Timer
	pending  func()
	stopped  bool
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{interval: interval}
}

func (t *throttle) Do(fn func()) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	now := time.Now()
	if elapsed := now.Sub(t.lastRun); elapsed >= t.interval {
		t.lastRun = now
		t.mu.Unlock()
		fn()
		return
	}
	t.pending = fn
	if t.timer == nil {
		wait := t.interval - now.Sub(t.lastRun)
		t.timer = time.AfterFunc(wait, t.runPending)
	}
	t.mu.Unlock()
}

func (t *throttle) runPending() {
	t.mu.Lock()
	fn := t.pending
	t.pending = nil
	t.timer = nil
	if t.stopped || fn == nil {
		t.mu.Unlock()
		return
	}
	t.lastRun = time.Now()
	t.mu.Unlock()
	fn()
}

func (t *throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// waitWithContext sleeps for delay unless the context ends first; reports
// whether the full delay elapsed.
func waitWithContext(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
