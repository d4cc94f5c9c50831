package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	postgresItemsTable       = "boardsync_items"
	postgresPresenceTable    = "boardsync_presence"
	postgresChangeChannel    = "boardsync_changes"
	postgresOperationTimeout = 5 * time.Second
	listenerMinReconnect     = 500 * time.Millisecond
	listenerMaxReconnect     = 10 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresCollection stores board records in Postgres and implements the
// ordered change feed with LISTEN/NOTIFY: every committed write notifies the
// board's channel and subscribers re-query the full ordered record set.
type PostgresCollection struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB

	mu     sync.Mutex
	closed bool
}

func NewPostgresCollection(dsn string) (*PostgresCollection, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	return &PostgresCollection{
		dsn:    dsn,
		openDB: sql.Open,
	}, nil
}

func (c *PostgresCollection) ensureReady() error {
	c.initOnce.Do(func() {
		db, err := c.openDB("postgres", c.dsn)
		if err != nil {
			c.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()
		schema := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				board_id   TEXT NOT NULL,
				item_id    TEXT NOT NULL,
				record     JSONB NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (board_id, item_id)
			)`, pq.QuoteIdentifier(postgresItemsTable))
		if _, err := db.ExecContext(ctx, schema); err != nil {
			c.initErr = err
			_ = db.Close()
			return
		}
		presence := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				board_id   TEXT NOT NULL,
				user_id    TEXT NOT NULL,
				payload    JSONB NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (board_id, user_id)
			)`, pq.QuoteIdentifier(postgresPresenceTable))
		if _, err := db.ExecContext(ctx, presence); err != nil {
			c.initErr = err
			_ = db.Close()
			return
		}
		c.db = db
	})
	return c.initErr
}

func (c *PostgresCollection) Create(ctx context.Context, boardID string, record json.RawMessage) (string, error) {
	if err := c.ensureReady(); err != nil {
		return "", err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	id := uuid.NewString()

	// the insert and the stamped rewrite commit together, so a concurrent
	// snapshot re-query never observes a record whose embedded id is the
	// client's placeholder
	tx, err := c.db.BeginTx(opCtx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()
	var createdAt, updatedAt time.Time
	query := fmt.Sprintf(
		"INSERT INTO %s (board_id, item_id, record) VALUES ($1, $2, $3) RETURNING created_at, updated_at",
		pq.QuoteIdentifier(postgresItemsTable))
	if err := tx.QueryRowContext(opCtx, query, boardID, id, []byte(record)).Scan(&createdAt, &updatedAt); err != nil {
		return "", err
	}
	stamped, err := stampRecord(record, id, createdAt, updatedAt)
	if err != nil {
		return "", err
	}
	rewrite := fmt.Sprintf("UPDATE %s SET record = $3 WHERE board_id = $1 AND item_id = $2",
		pq.QuoteIdentifier(postgresItemsTable))
	if _, err := tx.ExecContext(opCtx, rewrite, boardID, id, []byte(stamped)); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	if err := c.notifyChange(opCtx, boardID); err != nil {
		return "", err
	}
	return id, nil
}

func (c *PostgresCollection) Update(ctx context.Context, boardID, id string, record json.RawMessage) error {
	if err := c.ensureReady(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	var createdAt time.Time
	lookup := fmt.Sprintf("SELECT created_at FROM %s WHERE board_id = $1 AND item_id = $2",
		pq.QuoteIdentifier(postgresItemsTable))
	err := c.db.QueryRowContext(opCtx, lookup, boardID, id).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	now := time.Now()
	stamped, err := stampRecord(record, id, createdAt, now)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET record = $3, updated_at = now() WHERE board_id = $1 AND item_id = $2",
		pq.QuoteIdentifier(postgresItemsTable))
	if _, err := c.db.ExecContext(opCtx, query, boardID, id, []byte(stamped)); err != nil {
		return err
	}
	return c.notifyChange(opCtx, boardID)
}

func (c *PostgresCollection) Delete(ctx context.Context, boardID, id string) error {
	if err := c.ensureReady(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	query := fmt.Sprintf("DELETE FROM %s WHERE board_id = $1 AND item_id = $2",
		pq.QuoteIdentifier(postgresItemsTable))
	result, err := c.db.ExecContext(opCtx, query, boardID, id)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return c.notifyChange(opCtx, boardID)
}

func (c *PostgresCollection) Snapshot(ctx context.Context, boardID string) ([]json.RawMessage, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	query := fmt.Sprintf(
		"SELECT record FROM %s WHERE board_id = $1 ORDER BY created_at, item_id",
		pq.QuoteIdentifier(postgresItemsTable))
	rows, err := c.db.QueryContext(opCtx, query, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []json.RawMessage
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(payload))
	}
	return out, rows.Err()
}

func (c *PostgresCollection) PublishPresence(ctx context.Context, boardID string, update PresenceUpdate) error {
	if err := c.ensureReady(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (board_id, user_id, payload, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (board_id, user_id) DO UPDATE SET payload = $3, updated_at = now()`,
		pq.QuoteIdentifier(postgresPresenceTable))
	_, err = c.db.ExecContext(opCtx, query, boardID, update.UserID, payload)
	return err
}

func (c *PostgresCollection) notifyChange(ctx context.Context, boardID string) error {
	query := fmt.Sprintf("SELECT pg_notify(%s, $1)", pq.QuoteLiteral(postgresChangeChannel))
	_, err := c.db.ExecContext(ctx, query, boardID)
	return err
}

// Subscribe opens a LISTEN connection and re-queries the full ordered
// snapshot whenever the board's change channel fires. Listener reconnect
// gaps are covered by treating every reconnect as a change.
func (c *PostgresCollection) Subscribe(ctx context.Context, boardID string) (Subscription, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.mu.Unlock()

	listener := pq.NewListener(c.dsn, listenerMinReconnect, listenerMaxReconnect, nil)
	if err := listener.Listen(postgresChangeChannel); err != nil {
		_ = listener.Close()
		return nil, err
	}
	sub := &pgSubscription{
		ch:       make(chan []json.RawMessage, 1),
		listener: listener,
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub.cancel = cancel
	go sub.run(subCtx, c, boardID)
	return sub, nil
}

func (c *PostgresCollection) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

type pgSubscription struct {
	mu       sync.Mutex
	ch       chan []json.RawMessage
	closed   bool
	err      error
	cancel   context.CancelFunc
	listener *pq.Listener
}

func (s *pgSubscription) run(ctx context.Context, c *PostgresCollection, boardID string) {
	defer s.closeWith(nil)
	emit := func() bool {
		snapshot, err := c.Snapshot(ctx, boardID)
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return false
		}
		s.push(snapshot)
		return true
	}
	if !emit() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case notification, ok := <-s.listener.Notify:
			if !ok {
				s.mu.Lock()
				s.err = ErrClosed
				s.mu.Unlock()
				return
			}
			// a nil notification signals a listener reconnect; changes may
			// have been missed, so re-query unconditionally
			if notification != nil && notification.Extra != boardID {
				continue
			}
			if !emit() {
				return
			}
		}
	}
}

func (s *pgSubscription) Snapshots() <-chan []json.RawMessage {
	return s.ch
}

func (s *pgSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *pgSubscription) push(snapshot []json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snapshot:
	default:
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snapshot
	}
}

func (s *pgSubscription) closeWith(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.err == nil {
		s.err = err
	}
	close(s.ch)
	s.mu.Unlock()
	_ = s.listener.Close()
}

func (s *pgSubscription) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.closeWith(nil)
	return nil
}
