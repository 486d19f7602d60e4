// Package buffer holds the bounded history of recent input records.
package buffer

import "inputsentry/internal/event"

// DefaultCapacity is the number of records kept when no capacity is given.
const DefaultCapacity = 1000

// Ring is a fixed-capacity FIFO of records. When full, Append evicts the
// oldest record. Ring is not safe for concurrent use; the owner serializes
// access.
type Ring struct {
	records []event.Record
	head    int // index of the oldest record
	size    int
}

// New creates a ring holding at most capacity records.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{records: make([]event.Record, capacity)}
}

// Append adds rec, evicting the oldest record if the ring is full.
func (r *Ring) Append(rec event.Record) {
	rec = rec.Clone()
	if r.size < len(r.records) {
		r.records[(r.head+r.size)%len(r.records)] = rec
		r.size++
		return
	}
	r.records[r.head] = rec
	r.head = (r.head + 1) % len(r.records)
}

// Len returns the number of stored records.
func (r *Ring) Len() int { return r.size }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.records) }

// Window returns a copy of the most recent min(n, Len()) records, oldest
// first.
func (r *Ring) Window(n int) []event.Record {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]event.Record, n)
	start := r.head + r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.records[(start+i)%len(r.records)].Clone()
	}
	return out
}

// All returns a copy of every stored record, oldest first.
func (r *Ring) All() []event.Record { return r.Window(r.size) }

// Reset drops all records.
func (r *Ring) Reset() {
	clear(r.records)
	r.head = 0
	r.size = 0
}
