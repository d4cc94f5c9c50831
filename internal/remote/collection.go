// Package remote defines the contract this client expects from the shared
// document store, plus the backends that fulfil it: an in-memory collection
// for tests and offline mode, a Postgres collection with a LISTEN/NOTIFY
// change feed, and a websocket feed client for relay-pushed snapshots.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrClosed         = errors.New("collection closed")
	ErrFeedOnly       = errors.New("feed-only source cannot write")
	ErrNotImplemented = errors.New("not implemented")
)

// Subscriber is the read side of the remote contract: an ordered change
// stream for one board. On every remote change the subscription emits the
// complete current record set, not a diff.
type Subscriber interface {
	Subscribe(ctx context.Context, boardID string) (Subscription, error)
}

// Subscription delivers full snapshots until it fails or is closed. After
// the snapshot channel closes, Err reports why (nil on clean close). A
// failed subscription does not recover; the caller decides whether to
// resubscribe.
type Subscription interface {
	Snapshots() <-chan []json.RawMessage
	Err() error
	Close() error
}

// PresenceUpdate is a cursor/presence heartbeat for one user on one board.
type PresenceUpdate struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UserColor string    `json:"userColor"`
	CursorX   float64   `json:"cursorX"`
	CursorY   float64   `json:"cursorY"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Collection is a document collection keyed by board ID. Create assigns the
// document ID and the server-side timestamps; Update replaces the whole
// record; ordering of snapshots follows creation time.
type Collection interface {
	Subscriber
	Create(ctx context.Context, boardID string, record json.RawMessage) (string, error)
	Update(ctx context.Context, boardID, id string, record json.RawMessage) error
	Delete(ctx context.Context, boardID, id string) error
	Snapshot(ctx context.Context, boardID string) ([]json.RawMessage, error)
	PublishPresence(ctx context.Context, boardID string, update PresenceUpdate) error
	Close() error
}

// stampRecord overwrites identity and timestamp fields the way a server
// would on write: the store, not the client, owns id/createdAt/updatedAt.
func stampRecord(record json.RawMessage, id string, createdAt, updatedAt time.Time) (json.RawMessage, error) {
	var fields map[string]any
	if err := json.Unmarshal(record, &fields); err != nil {
		return nil, err
	}
	fields["id"] = id
	if !createdAt.IsZero() {
		fields["createdAt"] = createdAt.UTC().Format(time.RFC3339Nano)
	}
	fields["updatedAt"] = updatedAt.UTC().Format(time.RFC3339Nano)
	return json.Marshal(fields)
}

func recordID(record json.RawMessage) string {
	var fields struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(record, &fields); err != nil {
		return ""
	}
	return fields.ID
}

func recordCreatedAt(record json.RawMessage) time.Time {
	var fields struct {
		CreatedAt string `json:"createdAt"`
	}
	if err := json.Unmarshal(record, &fields); err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, fields.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}
