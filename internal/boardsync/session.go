package boardsync

import (
	"context"
	"sync"

	"github.com/sketchdeck/boardsync/internal/localstate"
	"github.com/sketchdeck/boardsync/internal/remote"
	"github.com/sketchdeck/boardsync/internal/store"
)

// SessionOptions carry the optional collaborators a Session can run without.
type SessionOptions struct {
	// LocalState persists the viewport across sessions when set.
	LocalState *localstate.DB
	// Settings supplies the global remote-enabled flag; when nil the remote
	// store is always consulted.
	Settings *localstate.Settings
	// Feed overrides the snapshot source; defaults to the collection itself.
	Feed remote.Subscriber
}

// Session owns one client's synchronization state for one board: the store,
// the feed adapter, the reconciler, the mutation pipeline, locks, and
// presence. It has an explicit lifecycle: construct, Start, Close. Close
// tears down every timer and subscription the session created.
type Session struct {
	cfg   Config
	col   remote.Collection
	feeds remote.Subscriber
	local *localstate.DB
	flags *localstate.Settings

	store    *store.Store
	active   *activeEditSet
	rec      *Reconciler
	mut      *Mutator
	locks    *LockManager
	presence *Presence

	mu     sync.Mutex
	feed   *FeedAdapter
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSession(cfg Config, col remote.Collection, opts SessionOptions) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:   cfg,
		col:   col,
		feeds: opts.Feed,
		local: opts.LocalState,
		flags: opts.Settings,
		store: store.New(),
	}
	if s.feeds == nil {
		s.feeds = col
	}
	s.active = newActiveEditSet(cfg.ActiveEditWindow)
	s.rec = NewReconciler(s.store, s.active, cfg.PostCreateMergeDelay)
	s.mut = NewMutator(cfg, col, s.store, s.active, s.rec, s.remoteEnabled)
	s.locks = NewLockManager(cfg, col, s.store, s.remoteEnabled)
	s.presence = NewPresence(cfg, col, s.remoteEnabled)

	if s.local != nil {
		if viewport, ok, err := s.local.LoadViewport(); err == nil && ok {
			s.store.SetViewport(store.Viewport{
				X:              viewport.X,
				Y:              viewport.Y,
				Scale:          viewport.Scale,
				SelectedItemID: viewport.SelectedItemID,
			})
		} else if err != nil {
			cfg.logf("load persisted viewport: %v", err)
		}
	}
	return s, nil
}

func (s *Session) remoteEnabled() bool {
	if s.flags == nil {
		return true
	}
	return s.flags.RemoteEnabled()
}

// Start begins consuming the remote feed and runs the lock sweep and
// presence heartbeat. When the remote store is disabled the session runs
// with the store's own content as authoritative; if the flag is flipped on
// later, the feed is created then.
func (s *Session) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.ctx = runCtx
	s.cancel = cancel

	s.locks.Start(runCtx)
	s.presence.Start(runCtx)

	if s.flags != nil {
		s.flags.OnChange(func(enabled bool) {
			if enabled {
				if err := s.startFeed(); err != nil && err != ErrFeedDisabled {
					s.cfg.logf("restart feed: %v", err)
				}
			} else {
				s.stopFeed()
			}
		})
	}
	if err := s.startFeed(); err != nil && err != ErrFeedDisabled {
		return err
	}
	return nil
}

func (s *Session) startFeed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feed != nil || s.ctx == nil || s.ctx.Err() != nil {
		return nil
	}
	feed := NewFeedAdapter(s.cfg.BoardID, s.feeds, s.remoteEnabled, s.cfg.Logger)
	if err := feed.Start(s.ctx); err != nil {
		return err
	}
	s.feed = feed
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for snapshot := range feed.Snapshots() {
			s.rec.Apply(snapshot)
		}
		if err := feed.Err(); err != nil {
			s.cfg.logf("remote feed stopped: %v", err)
		}
	}()
	return nil
}

func (s *Session) stopFeed() {
	s.mu.Lock()
	feed := s.feed
	s.feed = nil
	s.mu.Unlock()
	if feed != nil {
		feed.Close()
	}
}

// FeedErr reports the subscription failure that halted remote updates, if
// any. Recreating the feed is the caller's decision (Restart via settings
// toggle or a new session).
func (s *Session) FeedErr() error {
	s.mu.Lock()
	feed := s.feed
	s.mu.Unlock()
	if feed == nil {
		return nil
	}
	return feed.Err()
}

func (s *Session) Store() *store.Store     { return s.store }
func (s *Session) Mutator() *Mutator       { return s.mut }
func (s *Session) Locks() *LockManager     { return s.locks }
func (s *Session) Presence() *Presence     { return s.presence }
func (s *Session) Reconciler() *Reconciler { return s.rec }

// Close tears the session down: feed, reconciler debounce, retry chains,
// sweep and heartbeat timers, then persists the viewport if local state is
// attached.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.stopFeed()
	s.wg.Wait()
	s.rec.Close()
	s.mut.Close()
	s.locks.Close()
	s.presence.Close()

	if s.local != nil {
		viewport := s.store.Viewport()
		if err := s.local.SaveViewport(localstate.Viewport{
			X:              viewport.X,
			Y:              viewport.Y,
			Scale:          viewport.Scale,
			SelectedItemID: viewport.SelectedItemID,
		}); err != nil {
			return err
		}
	}
	return nil
}
