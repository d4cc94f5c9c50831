// boardsync-sim is a headless harness for the synchronization core: it
// builds a session against a DSN-selected remote backend, applies a few
// scripted mutations, and prints the store as snapshots reconcile.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sketchdeck/boardsync/internal/board"
	"github.com/sketchdeck/boardsync/internal/boardsync"
	"github.com/sketchdeck/boardsync/internal/localstate"
	"github.com/sketchdeck/boardsync/internal/remote"
)

func main() {
	logger := log.New(os.Stderr, "boardsync-sim ", log.LstdFlags)

	dsn := envOrDefault("BOARDSYNC_REMOTE_DSN", "memory://")
	dataDir := envOrDefault("BOARDSYNC_DATA_DIR", ".boardsync")

	col, err := remote.Open(dsn)
	if err != nil {
		logger.Fatalf("open remote collection: %v", err)
	}
	defer col.Close()

	var feed remote.Subscriber
	if feedDSN := os.Getenv("BOARDSYNC_FEED_DSN"); feedDSN != "" {
		feed, err = remote.OpenFeed(feedDSN)
		if err != nil {
			logger.Fatalf("open feed: %v", err)
		}
	}

	local, err := localstate.Open(filepath.Join(dataDir, "local.db"))
	if err != nil {
		logger.Fatalf("open local state: %v", err)
	}
	defer local.Close()

	settings, err := localstate.OpenSettings(filepath.Join(dataDir, "settings.json"), logger)
	if err != nil {
		logger.Fatalf("open settings: %v", err)
	}
	defer settings.Close()

	cfg := boardsync.Config{
		BoardID: envOrDefault("BOARDSYNC_BOARD_ID", "demo-board"),
		User: boardsync.User{
			ID:    envOrDefault("BOARDSYNC_USER_ID", "sim-user"),
			Name:  envOrDefault("BOARDSYNC_USER_NAME", "Simulator"),
			Color: envOrDefault("BOARDSYNC_USER_COLOR", "#4287f5"),
		},
		CursorInterval:    durationEnv("BOARDSYNC_CURSOR_INTERVAL", 0),
		DragInterval:      durationEnv("BOARDSYNC_DRAG_INTERVAL", 0),
		PresenceInterval:  durationEnv("BOARDSYNC_PRESENCE_INTERVAL", 0),
		RetryBaseDelay:    durationEnv("BOARDSYNC_RETRY_BASE_DELAY", 0),
		MaxRetries:        intEnv("BOARDSYNC_MAX_RETRIES", 0),
		LockTTL:           durationEnv("BOARDSYNC_LOCK_TTL", 0),
		LockSweepInterval: durationEnv("BOARDSYNC_LOCK_SWEEP_INTERVAL", 0),
		ActiveEditWindow:  durationEnv("BOARDSYNC_ACTIVE_EDIT_WINDOW", 0),
		Logger:            logger,
	}

	session, err := boardsync.NewSession(cfg, col, boardsync.SessionOptions{
		LocalState: local,
		Settings:   settings,
		Feed:       feed,
	})
	if err != nil {
		logger.Fatalf("new session: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := session.Start(ctx); err != nil {
		logger.Fatalf("start session: %v", err)
	}

	script(session)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := session.Close(); err != nil {
				logger.Printf("close session: %v", err)
			}
			return
		case <-ticker.C:
			dump(logger, session)
		}
	}
}

func script(session *boardsync.Session) {
	mut := session.Mutator()
	mut.Create(board.Item{
		Kind: board.KindRectangle,
		X:    40, Y: 40,
		Rect: &board.RectShape{Width: 120, Height: 80, Fill: "#ffcc00", Opacity: 1},
	}, false)
	mut.Create(board.Item{
		Kind: board.KindText,
		X:    200, Y: 120,
		Text: &board.TextShape{Content: "hello board", FontSize: 24},
	}, false)
	noteID, _ := mut.Create(board.Item{
		Kind: board.KindCircle,
		X:    320, Y: 200,
		Circle: &board.CircleShape{Radius: 30, Fill: "#55cc88", Opacity: 0.8},
	}, true)
	session.Locks().Lock(noteID)
	for i := 0; i < 5; i++ {
		mut.DragUpdate(noteID, func(it *board.Item) { it.X += 3 })
	}
	session.Locks().Unlock(noteID)
	session.Presence().MoveCursor(335, 200)
}

func dump(logger *log.Logger, session *boardsync.Session) {
	items := session.Store().Items()
	logger.Printf("store has %d items", len(items))
	for _, item := range items {
		status := "synced"
		if s, ok := session.Store().SyncStatusOf(item.ID); ok {
			status = string(s)
		}
		logger.Printf("  %-9s %-40s (%.0f,%.0f) status=%s", item.Kind, item.ID, item.X, item.Y, status)
	}
	if err := session.FeedErr(); err != nil {
		logger.Printf("feed error: %v", err)
	}
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
