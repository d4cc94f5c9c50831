package boardsync

import (
	"context"
	"sync"
	"time"

	"github.com/sketchdeck/boardsync/internal/remote"
)

// Presence publishes the local user's cursor position and a periodic
// heartbeat through the remote collection, throttled so a fast-moving
// cursor cannot flood the transport. Best-effort: failures are logged.
type Presence struct {
	boardID string
	user    User
	col     remote.Collection
	logger  Logger
	enabled func() bool

	cursorThrottle *throttle
	heartbeat      time.Duration

	mu      sync.Mutex
	cursorX float64
	cursorY float64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPresence(cfg Config, col remote.Collection, enabled func() bool) *Presence {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &Presence{
		boardID:        cfg.BoardID,
		user:           cfg.User,
		col:            col,
		logger:         cfg.Logger,
		enabled:        enabled,
		cursorThrottle: newThrottle(cfg.CursorInterval),
		heartbeat:      cfg.PresenceInterval,
	}
}

// MoveCursor records the latest cursor position and publishes it at most
// once per cursor interval. The position is captured at call time; the
// trailing publish carries the newest one.
func (p *Presence) MoveCursor(x, y float64) {
	p.mu.Lock()
	p.cursorX = x
	p.cursorY = y
	p.mu.Unlock()
	if !p.enabled() {
		return
	}
	p.cursorThrottle.Do(func() {
		p.publish()
	})
}

func (p *Presence) publish() {
	p.mu.Lock()
	update := remote.PresenceUpdate{
		UserID:    p.user.ID,
		UserName:  p.user.Name,
		UserColor: p.user.Color,
		CursorX:   p.cursorX,
		CursorY:   p.cursorY,
		UpdatedAt: time.Now(),
	}
	p.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.col.PublishPresence(ctx, p.boardID, update); err != nil {
		p.logf("publish presence: %v", err)
	}
}

// Start runs the heartbeat until the context ends.
func (p *Presence) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if p.enabled() {
					p.publish()
				}
			}
		}
	}()
}

func (p *Presence) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	p.cursorThrottle.Stop()
	p.wg.Wait()
}

func (p *Presence) logf(format string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}
