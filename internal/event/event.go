// Package event defines the normalized input record consumed by the
// analysis engine.
//
// IMPORTANT: a Record never carries the literal key that was pressed. Raw
// key text is reduced to a coarse KeyClass at the normalization boundary:
//   - Keylogger: records "h", "e", "l", "l", "o" → "hello"
//   - This package: records "alphanumeric" five times
//
// Only the timing, the class of key, modifier state, pointer position and an
// opaque target signature survive normalization.
package event

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Kind identifies what sort of input occurrence a Record describes.
type Kind int

const (
	KindUnknown Kind = iota
	KindKeyDown
	KindKeyUp
	KindMouseDown
	KindMouseUp
	KindFocusGained
	KindFocusLost
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindKeyDown:
		return "key_down"
	case KindKeyUp:
		return "key_up"
	case KindMouseDown:
		return "mouse_down"
	case KindMouseUp:
		return "mouse_up"
	case KindFocusGained:
		return "focus_gained"
	case KindFocusLost:
		return "focus_lost"
	default:
		return "unknown"
	}
}

// IsKey reports whether the kind is a keyboard event.
func (k Kind) IsKey() bool { return k == KindKeyDown || k == KindKeyUp }

// IsMouse reports whether the kind is a pointer button event.
func (k Kind) IsMouse() bool { return k == KindMouseDown || k == KindMouseUp }

// IsFocus reports whether the kind is a focus transition.
func (k Kind) IsFocus() bool { return k == KindFocusGained || k == KindFocusLost }

// Modifiers is the set of modifier keys held during a key event.
type Modifiers uint8

const (
	ModCtrl Modifiers = 1 << iota
	ModAlt
	ModShift
	ModMeta

	modAll = ModCtrl | ModAlt | ModShift | ModMeta
)

// Has reports whether all modifiers in m2 are set.
func (m Modifiers) Has(m2 Modifiers) bool { return m&m2 == m2 }

// Any reports whether any modifier in m2 is set.
func (m Modifiers) Any(m2 Modifiers) bool { return m&m2 != 0 }

// String renders the set as "ctrl+alt+shift+meta" style text.
func (m Modifiers) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	if m.Has(ModCtrl) {
		parts = append(parts, "ctrl")
	}
	if m.Has(ModAlt) {
		parts = append(parts, "alt")
	}
	if m.Has(ModShift) {
		parts = append(parts, "shift")
	}
	if m.Has(ModMeta) {
		parts = append(parts, "meta")
	}
	return strings.Join(parts, "+")
}

// Pointer holds the position and button of a mouse event.
type Pointer struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button int     `json:"button"`
}

// Record is one normalized input occurrence. Records are passed and stored
// by value; nothing downstream of the normalizer can alter one.
type Record struct {
	Kind        Kind      `json:"kind"`
	KeyClass    KeyClass  `json:"key_class,omitempty"`
	TimestampMs float64   `json:"timestamp_ms"`
	Modifiers   Modifiers `json:"modifiers,omitempty"`
	Pointer     *Pointer  `json:"pointer,omitempty"`
	Target      string    `json:"target,omitempty"`
}

// Errors returned by Validate.
var (
	ErrUnknownKind      = errors.New("event: unknown kind")
	ErrBadTimestamp     = errors.New("event: timestamp must be finite and non-negative")
	ErrMissingKeyClass  = errors.New("event: key event without key class")
	ErrUnexpectedField  = errors.New("event: field not valid for this kind")
	ErrUnknownModifiers = errors.New("event: unknown modifier bits")
)

// Validate checks that the record is well formed.
func (r Record) Validate() error {
	if r.Kind <= KindUnknown || r.Kind > KindFocusLost {
		return fmt.Errorf("%w: %d", ErrUnknownKind, int(r.Kind))
	}
	if math.IsNaN(r.TimestampMs) || math.IsInf(r.TimestampMs, 0) || r.TimestampMs < 0 {
		return fmt.Errorf("%w: %v", ErrBadTimestamp, r.TimestampMs)
	}
	if r.Modifiers&^modAll != 0 {
		return ErrUnknownModifiers
	}

	if r.Kind.IsKey() {
		if r.KeyClass == "" {
			return ErrMissingKeyClass
		}
		if !r.KeyClass.Valid() {
			return fmt.Errorf("%w: %q", ErrMissingKeyClass, string(r.KeyClass))
		}
	} else {
		if r.KeyClass != "" {
			return fmt.Errorf("%w: key class on %s", ErrUnexpectedField, r.Kind)
		}
		if r.Modifiers != 0 {
			return fmt.Errorf("%w: modifiers on %s", ErrUnexpectedField, r.Kind)
		}
	}

	if r.Pointer != nil && !r.Kind.IsMouse() {
		return fmt.Errorf("%w: pointer on %s", ErrUnexpectedField, r.Kind)
	}
	return nil
}

// Clone returns a copy that shares no memory with r.
func (r Record) Clone() Record {
	if r.Pointer != nil {
		p := *r.Pointer
		r.Pointer = &p
	}
	return r
}
