package board

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidRecord = errors.New("invalid record")
)

// LocalIDPrefix marks item IDs that were generated on this client and have
// not been assigned by the remote store. The reconciler keeps such items
// alive when they are absent from a remote snapshot.
const LocalIDPrefix = "local-"

type Kind string

const (
	KindRectangle Kind = "rectangle"
	KindCircle    Kind = "circle"
	KindText      Kind = "text"
	KindImage     Kind = "image"
)

// SyncStatus classifies an item's persistence state relative to the remote
// store. It is a local-only annotation and is never written remotely.
type SyncStatus string

const (
	SyncSynced   SyncStatus = "synced"
	SyncPending  SyncStatus = "pending"
	SyncConflict SyncStatus = "conflict"
	SyncError    SyncStatus = "error"
)

type RectShape struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Fill    string  `json:"fill,omitempty"`
	Opacity float64 `json:"opacity"`
}

type CircleShape struct {
	Radius  float64 `json:"radius"`
	Fill    string  `json:"fill,omitempty"`
	Opacity float64 `json:"opacity"`
}

type TextShape struct {
	Content  string  `json:"content"`
	FontSize float64 `json:"fontSize"`
	Color    string  `json:"color,omitempty"`
}

type ImageShape struct {
	URL     string  `json:"url"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Opacity float64 `json:"opacity"`
}

// Item is one drawable object on the canvas. Exactly one of the shape
// variant pointers is non-nil, matching Kind.
type Item struct {
	ID       string
	Kind     Kind
	X        float64
	Y        float64
	Rotation float64

	Rect   *RectShape
	Circle *CircleShape
	Text   *TextShape
	Image  *ImageShape

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time

	LockedByUserID    string
	LockedByUserName  string
	LockedByUserColor string
	LockedAt          *time.Time
}

func NewID() string {
	return uuid.NewString()
}

// NewLocalID generates an ID for an item that exists only on this client.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// NormalizeRotation maps any angle onto [0, 360).
func NormalizeRotation(deg float64) float64 {
	r := math.Mod(deg, 360)
	if r < 0 {
		r += 360
	}
	return r
}

// Locked reports whether the item currently carries lock fields.
func (it Item) Locked() bool {
	return it.LockedByUserID != ""
}

// SetLock stamps all lock fields together so the locked-by/locked-at
// invariant cannot be half-applied.
func (it *Item) SetLock(userID, userName, userColor string, at time.Time) {
	it.LockedByUserID = userID
	it.LockedByUserName = userName
	it.LockedByUserColor = userColor
	it.LockedAt = &at
}

// ClearLock removes all lock fields together.
func (it *Item) ClearLock() {
	it.LockedByUserID = ""
	it.LockedByUserName = ""
	it.LockedByUserColor = ""
	it.LockedAt = nil
}

// SameContent reports whether two items agree on everything a user can see,
// ignoring bookkeeping timestamps.
func (it Item) SameContent(other Item) bool {
	it.CreatedAt, other.CreatedAt = time.Time{}, time.Time{}
	it.UpdatedAt, other.UpdatedAt = time.Time{}, time.Time{}
	it.LockedAt, other.LockedAt = nil, nil
	return reflect.DeepEqual(it, other)
}

// Clone returns a deep copy so store snapshots cannot alias shape structs.
func (it Item) Clone() Item {
	out := it
	if it.Rect != nil {
		r := *it.Rect
		out.Rect = &r
	}
	if it.Circle != nil {
		c := *it.Circle
		out.Circle = &c
	}
	if it.Text != nil {
		t := *it.Text
		out.Text = &t
	}
	if it.Image != nil {
		im := *it.Image
		out.Image = &im
	}
	if it.LockedAt != nil {
		at := *it.LockedAt
		out.LockedAt = &at
	}
	return out
}
