// Package boardsync is the client-side synchronization core of the shared
// canvas: it reconciles the local optimistic view of board items against the
// remote store's change feed, persists local mutations with bounded retry,
// and maintains advisory per-item edit locks.
package boardsync

import (
	"fmt"
	"time"
)

type Logger interface {
	Printf(format string, args ...any)
}

// User identifies the local participant; the name and color travel with
// locks and presence so other clients can render who is editing.
type User struct {
	ID    string
	Name  string
	Color string
}

const (
	DefaultCursorInterval       = 50 * time.Millisecond
	DefaultDragInterval         = 50 * time.Millisecond
	DefaultPresenceInterval     = 5 * time.Second
	DefaultRetryBaseDelay       = 500 * time.Millisecond
	DefaultMaxRetries           = 3
	DefaultLockTTL              = 30 * time.Second
	DefaultLockSweepInterval    = 10 * time.Second
	DefaultActiveEditWindow     = 3 * time.Second
	DefaultPostCreateMergeDelay = 100 * time.Millisecond
	DefaultMinScale             = 0.1
	DefaultMaxScale             = 3.0
)

type Config struct {
	BoardID string
	User    User

	// throttle intervals for outbound cursor, drag, and presence traffic
	CursorInterval   time.Duration
	DragInterval     time.Duration
	PresenceInterval time.Duration

	// mutation persistence: delay grows linearly, base × attempt number
	RetryBaseDelay time.Duration
	MaxRetries     int

	LockTTL           time.Duration
	LockSweepInterval time.Duration

	// how long a locally-edited item is protected from remote snapshots
	ActiveEditWindow time.Duration
	// extra merge debounce right after a local create, so the create's own
	// echo lands before the generic merge runs
	PostCreateMergeDelay time.Duration

	// UI zoom range; always within the store's hard [0.01, 3.0] bounds
	MinScale float64
	MaxScale float64

	Logger Logger
}

// Validate checks the configuration, warns through the logger about
// out-of-range values, and substitutes defaults for them. Only a missing
// board ID or user is a hard error.
func (c *Config) Validate() error {
	if c.BoardID == "" {
		return fmt.Errorf("board id is required")
	}
	if c.User.ID == "" {
		return fmt.Errorf("user id is required")
	}
	c.CursorInterval = c.checkDuration("cursor interval", c.CursorInterval, DefaultCursorInterval)
	c.DragInterval = c.checkDuration("drag interval", c.DragInterval, DefaultDragInterval)
	c.PresenceInterval = c.checkDuration("presence interval", c.PresenceInterval, DefaultPresenceInterval)
	c.RetryBaseDelay = c.checkDuration("retry base delay", c.RetryBaseDelay, DefaultRetryBaseDelay)
	c.LockTTL = c.checkDuration("lock ttl", c.LockTTL, DefaultLockTTL)
	c.LockSweepInterval = c.checkDuration("lock sweep interval", c.LockSweepInterval, DefaultLockSweepInterval)
	c.ActiveEditWindow = c.checkDuration("active edit window", c.ActiveEditWindow, DefaultActiveEditWindow)
	if c.PostCreateMergeDelay <= 0 {
		c.PostCreateMergeDelay = DefaultPostCreateMergeDelay
	}
	if c.MaxRetries < 0 {
		c.logf("invalid max retries %d, using %d", c.MaxRetries, DefaultMaxRetries)
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MinScale <= 0 || c.MinScale >= c.MaxScale {
		if c.MinScale != 0 || c.MaxScale != 0 {
			c.logf("invalid scale range [%v, %v], using [%v, %v]",
				c.MinScale, c.MaxScale, DefaultMinScale, DefaultMaxScale)
		}
		c.MinScale = DefaultMinScale
		c.MaxScale = DefaultMaxScale
	}
	return nil
}

func (c *Config) checkDuration(name string, value, fallback time.Duration) time.Duration {
	if value == 0 {
		return fallback
	}
	if value < 0 {
		c.logf("invalid %s %s, using %s", name, value, fallback)
		return fallback
	}
	return value
}

func (c *Config) logf(format string, args ...any) {
	if c.Logger == nil {
		return
	}
	c.Logger.Printf(format, args...)
}
