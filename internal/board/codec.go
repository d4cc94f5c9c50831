package board

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	// DefaultFontSize is applied to legacy text records missing fontSize.
	DefaultFontSize = 24
	// DefaultOpacity is applied to legacy records missing opacity.
	DefaultOpacity = 1.0
)

// record is the wire shape of one remote document. Kind-specific fields are
// flat and optional; pointers distinguish "absent" from zero so legacy
// records can be defaulted.
type record struct {
	ID       string  `json:"id"`
	Type     Kind    `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation,omitempty"`

	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Radius   *float64 `json:"radius,omitempty"`
	Fill     string   `json:"fill,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty"`
	Content  *string  `json:"content,omitempty"`
	FontSize *float64 `json:"fontSize,omitempty"`
	Color    string   `json:"color,omitempty"`
	URL      string   `json:"url,omitempty"`

	CreatedBy string `json:"createdBy,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`

	LockedByUserID    string `json:"lockedByUserId,omitempty"`
	LockedByUserName  string `json:"lockedByUserName,omitempty"`
	LockedByUserColor string `json:"lockedByUserColor,omitempty"`
	LockedAt          string `json:"lockedAt,omitempty"`
}

const recordSchemaJSON = `{
	"type": "object",
	"required": ["id", "type", "x", "y"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"type": {"enum": ["rectangle", "circle", "text", "image"]},
		"x": {"type": "number"},
		"y": {"type": "number"},
		"rotation": {"type": "number"},
		"width": {"type": "number", "minimum": 0},
		"height": {"type": "number", "minimum": 0},
		"radius": {"type": "number", "minimum": 0},
		"opacity": {"type": "number", "minimum": 0, "maximum": 1},
		"fontSize": {"type": "number", "exclusiveMinimum": 0}
	}
}`

var recordSchema = compileRecordSchema()

func compileRecordSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(recordSchemaJSON))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.json", doc); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile("record.json")
	if err != nil {
		panic(err)
	}
	return schema
}

// DecodeRecord validates and decodes one raw remote document into an Item.
// A failure is permanent: the caller should log and skip the record rather
// than abort the snapshot it arrived in.
func DecodeRecord(data []byte) (Item, error) {
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := recordSchema.Validate(value); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	item := Item{
		ID:                rec.ID,
		Kind:              rec.Type,
		X:                 rec.X,
		Y:                 rec.Y,
		Rotation:          NormalizeRotation(rec.Rotation),
		CreatedBy:         rec.CreatedBy,
		CreatedAt:         parseTime(rec.CreatedAt),
		UpdatedAt:         parseTime(rec.UpdatedAt),
		LockedByUserID:    rec.LockedByUserID,
		LockedByUserName:  rec.LockedByUserName,
		LockedByUserColor: rec.LockedByUserColor,
	}
	if rec.LockedAt != "" && rec.LockedByUserID != "" {
		if at := parseTime(rec.LockedAt); !at.IsZero() {
			item.LockedAt = &at
		}
	}
	if item.LockedAt == nil {
		// locked-by without locked-at (or vice versa) is treated as unlocked
		item.ClearLock()
	}

	switch rec.Type {
	case KindRectangle:
		item.Rect = &RectShape{
			Width:   floatOr(rec.Width, 0),
			Height:  floatOr(rec.Height, 0),
			Fill:    rec.Fill,
			Opacity: floatOr(rec.Opacity, DefaultOpacity),
		}
	case KindCircle:
		item.Circle = &CircleShape{
			Radius:  floatOr(rec.Radius, 0),
			Fill:    rec.Fill,
			Opacity: floatOr(rec.Opacity, DefaultOpacity),
		}
	case KindText:
		content := ""
		if rec.Content != nil {
			content = *rec.Content
		}
		item.Text = &TextShape{
			Content:  content,
			FontSize: floatOr(rec.FontSize, DefaultFontSize),
			Color:    rec.Color,
		}
	case KindImage:
		item.Image = &ImageShape{
			URL:     rec.URL,
			Width:   floatOr(rec.Width, 0),
			Height:  floatOr(rec.Height, 0),
			Opacity: floatOr(rec.Opacity, DefaultOpacity),
		}
	default:
		return Item{}, fmt.Errorf("%w: unknown type %q", ErrInvalidRecord, rec.Type)
	}
	return item, nil
}

// EncodeItem renders an Item as a remote document. Writes are whole-object
// replacements, so every field the remote store knows about is emitted.
// Sync status is deliberately not part of the wire shape.
func EncodeItem(item Item) ([]byte, error) {
	if item.ID == "" {
		return nil, fmt.Errorf("%w: empty item id", ErrInvalidInput)
	}
	rec := record{
		ID:                item.ID,
		Type:              item.Kind,
		X:                 item.X,
		Y:                 item.Y,
		Rotation:          NormalizeRotation(item.Rotation),
		CreatedBy:         item.CreatedBy,
		CreatedAt:         formatTime(item.CreatedAt),
		UpdatedAt:         formatTime(item.UpdatedAt),
		LockedByUserID:    item.LockedByUserID,
		LockedByUserName:  item.LockedByUserName,
		LockedByUserColor: item.LockedByUserColor,
	}
	if item.LockedAt != nil {
		rec.LockedAt = formatTime(*item.LockedAt)
	}
	switch item.Kind {
	case KindRectangle:
		if item.Rect == nil {
			return nil, fmt.Errorf("%w: rectangle without geometry", ErrInvalidInput)
		}
		rec.Width = &item.Rect.Width
		rec.Height = &item.Rect.Height
		rec.Fill = item.Rect.Fill
		rec.Opacity = &item.Rect.Opacity
	case KindCircle:
		if item.Circle == nil {
			return nil, fmt.Errorf("%w: circle without geometry", ErrInvalidInput)
		}
		rec.Radius = &item.Circle.Radius
		rec.Fill = item.Circle.Fill
		rec.Opacity = &item.Circle.Opacity
	case KindText:
		if item.Text == nil {
			return nil, fmt.Errorf("%w: text without content", ErrInvalidInput)
		}
		rec.Content = &item.Text.Content
		rec.FontSize = &item.Text.FontSize
		rec.Color = item.Text.Color
	case KindImage:
		if item.Image == nil {
			return nil, fmt.Errorf("%w: image without source", ErrInvalidInput)
		}
		rec.URL = item.Image.URL
		rec.Width = &item.Image.Width
		rec.Height = &item.Image.Height
		rec.Opacity = &item.Image.Opacity
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, item.Kind)
	}
	return json.Marshal(rec)
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
