package event

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyKey(t *testing.T) {
	tests := []struct {
		raw      string
		expected KeyClass
	}{
		{"a", KeyAlphanumeric},
		{"Z", KeyAlphanumeric},
		{"7", KeyAlphanumeric},
		{"Enter", KeyEnter},
		{"ArrowLeft", KeyArrowLeft},
		{"Insert", KeyInsert},
		{"!", KeyOther},
		{"é", KeyOther},
		{"Shift", KeyOther},
		{"F5", KeyOther},
		{"", KeyOther},
		{"alphanumeric", KeyOther},
	}

	for _, test := range tests {
		t.Run(test.raw, func(t *testing.T) {
			assert.Equal(t, test.expected, ClassifyKey(test.raw))
		})
	}
}

func TestKeyClassValid(t *testing.T) {
	assert.True(t, KeyAlphanumeric.Valid())
	assert.True(t, KeyOther.Valid())
	assert.True(t, KeyPageDown.Valid())
	assert.False(t, KeyClass("x").Valid())
	assert.False(t, KeyClass("").Valid())
}

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		err  error
	}{
		{"key down", Record{Kind: KindKeyDown, KeyClass: KeyAlphanumeric, TimestampMs: 1}, nil},
		{"mouse with pointer", Record{Kind: KindMouseDown, TimestampMs: 1, Pointer: &Pointer{X: 1, Y: 2}}, nil},
		{"focus", Record{Kind: KindFocusLost, TimestampMs: 0}, nil},
		{"unknown kind", Record{TimestampMs: 1}, ErrUnknownKind},
		{"out of range kind", Record{Kind: Kind(42), TimestampMs: 1}, ErrUnknownKind},
		{"nan timestamp", Record{Kind: KindFocusLost, TimestampMs: math.NaN()}, ErrBadTimestamp},
		{"inf timestamp", Record{Kind: KindFocusLost, TimestampMs: math.Inf(1)}, ErrBadTimestamp},
		{"negative timestamp", Record{Kind: KindFocusLost, TimestampMs: -5}, ErrBadTimestamp},
		{"key without class", Record{Kind: KindKeyUp, TimestampMs: 1}, ErrMissingKeyClass},
		{"key with raw text", Record{Kind: KindKeyDown, KeyClass: "q", TimestampMs: 1}, ErrMissingKeyClass},
		{"mouse with class", Record{Kind: KindMouseUp, KeyClass: KeyOther, TimestampMs: 1}, ErrUnexpectedField},
		{"focus with modifiers", Record{Kind: KindFocusGained, Modifiers: ModCtrl, TimestampMs: 1}, ErrUnexpectedField},
		{"key with pointer", Record{Kind: KindKeyDown, KeyClass: KeyOther, TimestampMs: 1, Pointer: &Pointer{}}, ErrUnexpectedField},
		{"bad modifier bits", Record{Kind: KindKeyDown, KeyClass: KeyOther, TimestampMs: 1, Modifiers: 0x80}, ErrUnknownModifiers},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.rec.Validate()
			if test.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, test.err), "expected %v, got %v", test.err, err)
		})
	}
}

func TestRecordCloneDetachesPointer(t *testing.T) {
	orig := Record{Kind: KindMouseDown, TimestampMs: 1, Pointer: &Pointer{X: 1}}
	c := orig.Clone()
	c.Pointer.X = 99
	assert.Equal(t, float64(1), orig.Pointer.X)
}

func TestModifiers(t *testing.T) {
	m := ModCtrl | ModShift
	assert.True(t, m.Has(ModCtrl))
	assert.False(t, m.Has(ModCtrl|ModAlt))
	assert.True(t, m.Any(ModAlt|ModShift))
	assert.Equal(t, "ctrl+shift", m.String())
	assert.Equal(t, "none", Modifiers(0).String())
}

func TestBrowserNormalizer(t *testing.T) {
	n := BrowserNormalizer{}

	t.Run("keydown drops raw key", func(t *testing.T) {
		rec, err := n.Normalize([]byte(`{"type":"keydown","key":"p","code":"KeyP","timestamp":12.5,
			"target":{"tagName":"input","type":"password"},"metaKeys":{"ctrl":true,"alt":false,"shift":true,"meta":false}}`))
		require.NoError(t, err)
		assert.Equal(t, KindKeyDown, rec.Kind)
		assert.Equal(t, KeyAlphanumeric, rec.KeyClass)
		assert.Equal(t, 12.5, rec.TimestampMs)
		assert.Equal(t, ModCtrl|ModShift, rec.Modifiers)
		assert.Equal(t, "input-password", rec.Target)
	})

	t.Run("sanitized key classes pass through", func(t *testing.T) {
		for _, key := range []string{"alphanumeric", "other", "Backspace", "ArrowLeft"} {
			rec, err := n.Normalize([]byte(`{"type":"keydown","key":"` + key + `","timestamp":1,
				"target":{"tagName":"TEXTAREA","type":null},"metaKeys":{"ctrl":false,"alt":false,"shift":false,"meta":false}}`))
			require.NoError(t, err, key)
			assert.Equal(t, KeyClass(key), rec.KeyClass)
		}
	})

	t.Run("unlisted key name becomes other", func(t *testing.T) {
		rec, err := n.Normalize([]byte(`{"type":"keyup","key":"Shift","timestamp":1}`))
		require.NoError(t, err)
		assert.Equal(t, KeyOther, rec.KeyClass)
	})

	t.Run("mouse", func(t *testing.T) {
		rec, err := n.Normalize([]byte(`{"type":"mouse_mouseup","button":2,"timestamp":3,
			"coordinates":{"x":10,"y":20},"target":{"tagName":"button"}}`))
		require.NoError(t, err)
		assert.Equal(t, KindMouseUp, rec.Kind)
		require.NotNil(t, rec.Pointer)
		assert.Equal(t, Pointer{X: 10, Y: 20, Button: 2}, *rec.Pointer)
		assert.Equal(t, "button-none", rec.Target)
	})

	t.Run("focus with window target", func(t *testing.T) {
		rec, err := n.Normalize([]byte(`{"type":"focus_change","focus":true,"timestamp":4,"target":"window"}`))
		require.NoError(t, err)
		assert.Equal(t, KindFocusGained, rec.Kind)
		assert.Equal(t, "window", rec.Target)

		rec, err = n.Normalize([]byte(`{"type":"focus_change","focus":false,"timestamp":5}`))
		require.NoError(t, err)
		assert.Equal(t, KindFocusLost, rec.Kind)
		assert.Equal(t, "window", rec.Target)
	})

	t.Run("missing timestamp", func(t *testing.T) {
		_, err := n.Normalize([]byte(`{"type":"keydown","key":"a"}`))
		assert.ErrorIs(t, err, ErrBadTimestamp)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := n.Normalize([]byte(`{"type":"wheel","timestamp":1}`))
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := n.Normalize([]byte(`not json`))
		assert.Error(t, err)
	})
}
