package boardsync

import (
	"context"
	"errors"
	"sync"

	"github.com/sketchdeck/boardsync/internal/board"
	"github.com/sketchdeck/boardsync/internal/remote"
)

// ErrFeedDisabled is returned by Start when the remote store is globally
// disabled; the store's own content stays authoritative.
var ErrFeedDisabled = errors.New("remote feed disabled")

// FeedAdapter turns the remote subscription's raw record snapshots into
// typed item snapshots. Malformed records are logged and skipped without
// aborting the rest of the snapshot. On subscription failure the adapter
// surfaces the error and stops emitting; it never resubscribes on its own.
type FeedAdapter struct {
	boardID string
	source  remote.Subscriber
	enabled func() bool
	logger  Logger

	mu      sync.Mutex
	err     error
	started bool

	snapshots chan []board.Item
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewFeedAdapter(boardID string, source remote.Subscriber, enabled func() bool, logger Logger) *FeedAdapter {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &FeedAdapter{
		boardID:   boardID,
		source:    source,
		enabled:   enabled,
		logger:    logger,
		snapshots: make(chan []board.Item, 1),
	}
}

func (f *FeedAdapter) Start(ctx context.Context) error {
	if !f.enabled() {
		return ErrFeedDisabled
	}
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return errors.New("feed already started")
	}
	f.started = true
	f.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	sub, err := f.source.Subscribe(runCtx, f.boardID)
	if err != nil {
		cancel()
		f.setErr(err)
		close(f.snapshots)
		return err
	}
	f.cancel = cancel
	f.wg.Add(1)
	go f.run(sub)
	return nil
}

func (f *FeedAdapter) run(sub remote.Subscription) {
	defer f.wg.Done()
	defer close(f.snapshots)
	defer sub.Close()
	for raw := range sub.Snapshots() {
		items := make([]board.Item, 0, len(raw))
		for _, record := range raw {
			item, err := board.DecodeRecord(record)
			if err != nil {
				f.logf("skipping malformed record: %v", err)
				continue
			}
			items = append(items, item)
		}
		f.push(items)
	}
	if err := sub.Err(); err != nil {
		f.setErr(err)
	}
}

// push delivers latest-wins so a slow consumer always observes the newest
// complete snapshot.
func (f *FeedAdapter) push(items []board.Item) {
	select {
	case f.snapshots <- items:
	default:
		select {
		case <-f.snapshots:
		default:
		}
		f.snapshots <- items
	}
}

// Snapshots is closed when the subscription ends; check Err afterwards.
func (f *FeedAdapter) Snapshots() <-chan []board.Item {
	return f.snapshots
}

func (f *FeedAdapter) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *FeedAdapter) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *FeedAdapter) Close() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
}

func (f *FeedAdapter) logf(format string, args ...any) {
	if f.logger == nil {
		return
	}
	f.logger.Printf(format, args...)
}
