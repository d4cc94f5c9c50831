package remote

import (
	"fmt"
	"net/url"
	"strings"
)

// Open builds a Collection from a DSN. Supported schemes:
//
//	memory://            in-process collection (tests, offline, simulator)
//	postgres://...       Postgres-backed collection with LISTEN/NOTIFY feed
func Open(dsn string) (Collection, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("remote dsn is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(parsed.Scheme) {
	case "memory", "mem", "inmem":
		return NewMemoryCollection(), nil
	case "postgres", "postgresql":
		return NewPostgresCollection(dsn)
	case "ws", "wss":
		return nil, fmt.Errorf("%w: %s carries snapshots only", ErrFeedOnly, parsed.Scheme)
	case "mysql", "sqlite":
		return nil, fmt.Errorf("%w: collection scheme %s", ErrNotImplemented, parsed.Scheme)
	default:
		return nil, fmt.Errorf("unsupported collection scheme: %s", parsed.Scheme)
	}
}

// OpenFeed builds a read-only snapshot source from a DSN. In addition to the
// Collection schemes it accepts ws:// and wss:// relay endpoints.
func OpenFeed(dsn string) (Subscriber, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("feed dsn is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(parsed.Scheme) {
	case "ws", "wss":
		return NewWSFeedClient(dsn)
	default:
		return Open(dsn)
	}
}
