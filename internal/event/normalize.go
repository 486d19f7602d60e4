package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Normalizer converts a platform-specific raw event into a Record. Capture
// collaborators implement one per platform; the engine never sees raw
// platform objects.
type Normalizer interface {
	Normalize(raw []byte) (Record, error)
}

// ErrUnsupportedType is returned for raw events the normalizer does not map.
var ErrUnsupportedType = errors.New("event: unsupported raw event type")

// BrowserEvent is the JSON shape emitted by the in-page capture script.
type BrowserEvent struct {
	Type        string         `json:"type"`
	Key         string         `json:"key,omitempty"`
	Code        string         `json:"code,omitempty"`
	Timestamp   *float64       `json:"timestamp"`
	Target      *BrowserTarget `json:"target,omitempty"`
	MetaKeys    *BrowserMeta   `json:"metaKeys,omitempty"`
	Coordinates *Pointer       `json:"coordinates,omitempty"`
	Button      int            `json:"button,omitempty"`
	Focus       *bool          `json:"focus,omitempty"`
}

// BrowserTarget describes the DOM element an event was dispatched to.
// Only tag name and input type are used.
type BrowserTarget struct {
	TagName string `json:"tagName"`
	Type    string `json:"type,omitempty"`
}

// UnmarshalJSON accepts both an object and the bare string form ("window").
func (t *BrowserTarget) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.TagName = s
		t.Type = ""
		return nil
	}
	type plain BrowserTarget
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = BrowserTarget(p)
	return nil
}

// Signature returns the "tag-type" grouping key.
func (t *BrowserTarget) Signature() string {
	if t == nil || t.TagName == "" {
		return "unknown"
	}
	if t.TagName == "window" && t.Type == "" {
		return "window"
	}
	typ := t.Type
	if typ == "" {
		typ = "none"
	}
	return t.TagName + "-" + typ
}

// BrowserMeta is the modifier state of a key event.
type BrowserMeta struct {
	Ctrl  bool `json:"ctrl"`
	Alt   bool `json:"alt"`
	Shift bool `json:"shift"`
	Meta  bool `json:"meta"`
}

// BrowserNormalizer maps BrowserEvent JSON into Records.
type BrowserNormalizer struct{}

// Normalize implements Normalizer.
func (BrowserNormalizer) Normalize(raw []byte) (Record, error) {
	var be BrowserEvent
	if err := json.Unmarshal(raw, &be); err != nil {
		return Record{}, fmt.Errorf("decode browser event: %w", err)
	}
	return be.Record()
}

// Record converts the browser event. A key the capture script already
// sanitized to a class is kept as is; anything else is classified and
// dropped.
func (be BrowserEvent) Record() (Record, error) {
	if be.Timestamp == nil {
		return Record{}, fmt.Errorf("%w: missing timestamp", ErrBadTimestamp)
	}

	rec := Record{
		TimestampMs: *be.Timestamp,
		Target:      be.Target.Signature(),
	}

	switch be.Type {
	case "keydown", "keyup":
		rec.Kind = KindKeyDown
		if be.Type == "keyup" {
			rec.Kind = KindKeyUp
		}
		if kc := KeyClass(be.Key); kc.Valid() {
			rec.KeyClass = kc
		} else {
			rec.KeyClass = ClassifyKey(be.Key)
		}
		if m := be.MetaKeys; m != nil {
			if m.Ctrl {
				rec.Modifiers |= ModCtrl
			}
			if m.Alt {
				rec.Modifiers |= ModAlt
			}
			if m.Shift {
				rec.Modifiers |= ModShift
			}
			if m.Meta {
				rec.Modifiers |= ModMeta
			}
		}
	case "mouse_mousedown", "mouse_mouseup", "mousedown", "mouseup":
		rec.Kind = KindMouseDown
		if be.Type == "mouse_mouseup" || be.Type == "mouseup" {
			rec.Kind = KindMouseUp
		}
		if be.Coordinates != nil {
			rec.Pointer = &Pointer{X: be.Coordinates.X, Y: be.Coordinates.Y, Button: be.Button}
		}
	case "focus_change":
		rec.Kind = KindFocusLost
		if be.Focus != nil && *be.Focus {
			rec.Kind = KindFocusGained
		}
		if be.Target == nil {
			rec.Target = "window"
		}
	case "focus":
		rec.Kind = KindFocusGained
	case "blur":
		rec.Kind = KindFocusLost
	default:
		return Record{}, fmt.Errorf("%w: %q", ErrUnsupportedType, be.Type)
	}

	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}
