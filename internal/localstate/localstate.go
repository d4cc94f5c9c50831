// Package localstate persists the pieces of client state that survive a
// session: viewport position/scale/selection in a bbolt file, and a small
// watched settings file carrying the global remote-enabled flag.
package localstate

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	viewportBucket = []byte("viewport")
	viewportKey    = []byte("default")
)

// Viewport is the persisted subset of viewport state.
type Viewport struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Scale          float64 `json:"scale"`
	SelectedItemID string  `json:"selectedItemId,omitempty"`
}

type DB struct {
	db *bolt.DB
}

func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

// LoadViewport returns the persisted viewport, or ok=false if none was ever
// saved.
func (d *DB) LoadViewport() (Viewport, bool, error) {
	var out Viewport
	found := false
	err := d.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(viewportBucket)
		if bucket == nil {
			return nil
		}
		data := bucket.Get(viewportKey)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return Viewport{}, false, err
	}
	return out, found, nil
}

func (d *DB) SaveViewport(v Viewport) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(viewportBucket)
		if err != nil {
			return err
		}
		return bucket.Put(viewportKey, data)
	})
}

func (d *DB) Close() error {
	return d.db.Close()
}
