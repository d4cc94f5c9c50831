package remote

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const wsDialTimeout = 10 * time.Second

// WSFeedClient subscribes to snapshots pushed by a relay endpoint over a
// websocket. It is read-only: writes still go through a Collection backend.
type WSFeedClient struct {
	baseURL string
}

// wsSnapshotMessage is the relay's push frame: the complete current record
// set for the board, in creation order.
type wsSnapshotMessage struct {
	BoardID string            `json:"boardId"`
	Records []json.RawMessage `json:"records"`
}

func NewWSFeedClient(baseURL string) (*WSFeedClient, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, err
	}
	return &WSFeedClient{baseURL: baseURL}, nil
}

// Subscribe dials the relay and streams snapshots until the connection
// fails or the context is cancelled. The initial dial is retried with
// backoff; once the stream is established a failure ends the subscription
// and the caller decides whether to recreate it.
func (c *WSFeedClient) Subscribe(ctx context.Context, boardID string) (Subscription, error) {
	target, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	q := target.Query()
	q.Set("board", boardID)
	target.RawQuery = q.Encode()

	var conn *websocket.Conn
	dial := func() error {
		dialCtx, cancel := context.WithTimeout(ctx, wsDialTimeout)
		defer cancel()
		dialed, _, err := websocket.Dial(dialCtx, target.String(), nil)
		if err != nil {
			return err
		}
		conn = dialed
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(dial, policy); err != nil {
		return nil, err
	}

	sub := &wsSubscription{
		ch:   make(chan []json.RawMessage, 1),
		conn: conn,
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub.cancel = cancel
	go sub.run(subCtx, boardID)
	return sub, nil
}

type wsSubscription struct {
	mu     sync.Mutex
	ch     chan []json.RawMessage
	closed bool
	err    error
	cancel context.CancelFunc
	conn   *websocket.Conn
}

func (s *wsSubscription) run(ctx context.Context, boardID string) {
	defer s.closeWith(nil)
	for {
		var msg wsSnapshotMessage
		if err := wsjson.Read(ctx, s.conn, &msg); err != nil {
			if ctx.Err() == nil {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
		if msg.BoardID != "" && msg.BoardID != boardID {
			continue
		}
		s.push(msg.Records)
	}
}

func (s *wsSubscription) Snapshots() <-chan []json.RawMessage {
	return s.ch
}

func (s *wsSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsSubscription) push(snapshot []json.RawMessage) {
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

func (s *wsSubscription) closeWith(err error) {
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
	_ = s.conn.Close(websocket.StatusNormalClosure, "subscription closed")
}

func (s *wsSubscription) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.closeWith(nil)
	return nil
}
