package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inputsentry/internal/event"
)

func rec(ts float64) event.Record {
	return event.Record{Kind: event.KindKeyDown, KeyClass: event.KeyAlphanumeric, TimestampMs: ts}
}

func timestamps(recs []event.Record) []float64 {
	out := make([]float64, len(recs))
	for i, r := range recs {
		out[i] = r.TimestampMs
	}
	return out
}

func TestNewDefaultsCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
	assert.Equal(t, DefaultCapacity, New(-3).Cap())
	assert.Equal(t, 7, New(7).Cap())
}

func TestAppendAndWindow(t *testing.T) {
	r := New(5)
	assert.Nil(t, r.Window(3))

	for i := 1; i <= 3; i++ {
		r.Append(rec(float64(i)))
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []float64{2, 3}, timestamps(r.Window(2)))
	assert.Equal(t, []float64{1, 2, 3}, timestamps(r.Window(10)))
	assert.Nil(t, r.Window(0))
}

func TestEvictionKeepsMostRecent(t *testing.T) {
	const capacity = 4
	r := New(capacity)
	for i := 0; i < capacity+1; i++ {
		r.Append(rec(float64(i)))
	}

	require.Equal(t, capacity, r.Len())
	assert.Equal(t, []float64{1, 2, 3, 4}, timestamps(r.All()))

	for i := capacity + 1; i < 3*capacity+2; i++ {
		r.Append(rec(float64(i)))
	}
	assert.Equal(t, capacity, r.Len())
	assert.Equal(t, []float64{10, 11, 12, 13}, timestamps(r.All()))
	assert.Equal(t, []float64{12, 13}, timestamps(r.Window(2)))
}

func TestWindowIsACopy(t *testing.T) {
	r := New(3)
	r.Append(event.Record{Kind: event.KindMouseDown, TimestampMs: 1, Pointer: &event.Pointer{X: 5}})

	w := r.Window(1)
	w[0].TimestampMs = 100
	w[0].Pointer.X = 100

	again := r.Window(1)
	assert.Equal(t, float64(1), again[0].TimestampMs)
	assert.Equal(t, float64(5), again[0].Pointer.X)
}

func TestAppendCopiesPointer(t *testing.T) {
	r := New(3)
	p := &event.Pointer{X: 1}
	r.Append(event.Record{Kind: event.KindMouseDown, TimestampMs: 1, Pointer: p})
	p.X = 42
	assert.Equal(t, float64(1), r.Window(1)[0].Pointer.X)
}

func TestReset(t *testing.T) {
	r := New(3)
	for i := 0; i < 5; i++ {
		r.Append(rec(float64(i)))
	}
	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.All())

	r.Append(rec(9))
	assert.Equal(t, []float64{9}, timestamps(r.All()))
}
