// Package membuf implements MemBuffer, a contiguous growable byte
// region with a sliding read cursor. It backs both Writer staging and
// Buffer message storage.
package membuf

import (
	"errors"

	"github.com/ehrlich-b/mtmsg/internal/constants"
)

// ErrNoGrow is returned by Reserve when growFactor forbids growth and
// the requested reservation exceeds the current capacity.
var ErrNoGrow = errors.New("membuf: grow factor forbids growth")

// ErrAlloc is returned by Reserve when the underlying allocator
// refuses a growth request. The package's allocator never refuses a
// positive size, so Reserve does not return it in practice.
var ErrAlloc = errors.New("membuf: allocation failed")

// MemBuffer is a contiguous growable byte region with a sliding read
// cursor: start >= 0, start+length <= cap, and on reset-to-empty
// start snaps back to 0 to avoid unbounded drift.
type MemBuffer struct {
	data       []byte // len(data) == capacity
	start      int
	length     int
	growFactor int
}

// New allocates a MemBuffer with the given initial capacity and grow
// factor. The grow factor is clamped to >= 0.
func New(initialCapacity, growFactor int) *MemBuffer {
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	if growFactor < 0 {
		growFactor = 0
	}
	return &MemBuffer{
		data:       allocate(initialCapacity),
		growFactor: growFactor,
	}
}

// Len returns the number of readable bytes currently stored.
func (m *MemBuffer) Len() int { return m.length }

// Cap returns the current backing-store capacity.
func (m *MemBuffer) Cap() int { return len(m.data) }

// GrowFactor returns the configured grow factor.
func (m *MemBuffer) GrowFactor() int { return m.growFactor }

// Bytes returns the currently readable region. The slice aliases the
// MemBuffer's backing store and is invalidated by the next mutating
// call.
func (m *MemBuffer) Bytes() []byte {
	return m.data[m.start : m.start+m.length]
}

// Reserve grows the backing store, if necessary, so that
// start+length+additional <= capacity. If growFactor <= 1, Reserve
// fails with ErrNoGrow when the request exceeds the current capacity
// (a growFactor of 1 means "do not grow"). Otherwise it repeatedly
// multiplies capacity by growFactor (at least doubling) until
// sufficient.
func (m *MemBuffer) Reserve(additional int) error {
	need := m.start + m.length + additional
	if need <= len(m.data) {
		return nil
	}
	if m.growFactor <= 1 {
		return ErrNoGrow
	}

	newCap := len(m.data)
	if newCap == 0 {
		newCap = constants.DefaultCapacity
	}
	for newCap < need {
		grown := newCap * m.growFactor
		if grown <= newCap {
			// Overflow or a degenerate factor; fall back to exact need.
			newCap = need
			break
		}
		newCap = grown
	}

	grown := allocate(newCap)
	if grown == nil && newCap > 0 {
		return ErrAlloc
	}
	copy(grown, m.data[:m.start+m.length])
	release(m.data)
	m.data = grown
	return nil
}

// Append reserves room for b and copies it in, advancing length.
func (m *MemBuffer) Append(b []byte) error {
	if err := m.Reserve(len(b)); err != nil {
		return err
	}
	copy(m.data[m.start+m.length:], b)
	m.length += len(b)
	return nil
}

// Advance moves the read cursor forward by n bytes, shrinking the
// readable region from the front. If the buffer becomes empty the
// cursor snaps back to the base.
func (m *MemBuffer) Advance(n int) {
	if n <= 0 {
		return
	}
	if n > m.length {
		n = m.length
	}
	m.start += n
	m.length -= n
	if m.length == 0 {
		m.start = 0
	}
}

// Reset empties the buffer and snaps the read cursor back to the
// base, without releasing the backing store.
func (m *MemBuffer) Reset() {
	m.start = 0
	m.length = 0
}

// Free releases the backing store. The MemBuffer must not be used
// again afterward except via a fresh call to New.
func (m *MemBuffer) Free() {
	release(m.data)
	m.data = nil
	m.start = 0
	m.length = 0
}
