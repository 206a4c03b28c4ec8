package mtmsg

import (
	"time"

	"github.com/ehrlich-b/mtmsg/internal/codec"
	"github.com/ehrlich-b/mtmsg/internal/constants"
	"github.com/ehrlich-b/mtmsg/internal/membuf"
)

// Reader holds a MemBuffer staged with one complete frame's payload
// (no outer frame header) and decodes values from it on demand.
type Reader struct {
	mem *membuf.MemBuffer
}

// NewReader creates a Reader with the given initial capacity and grow
// factor.
func NewReader(capacity, growFactor int) *Reader {
	if capacity <= 0 {
		capacity = constants.DefaultCapacity
	}
	return &Reader{mem: membuf.New(capacity, growFactor)}
}

// Clear discards any staged, undecoded bytes.
func (r *Reader) Clear() { r.mem.Reset() }

// Next decodes up to maxValues values from the head of the staged
// payload and advances past them. maxValues <= 0 means unlimited.
func (r *Reader) Next(maxValues int) ([]interface{}, error) {
	vals, consumed, _, err := codec.DecodeValues(r.mem.Bytes(), maxValues)
	if err != nil {
		return nil, err
	}
	r.mem.Advance(consumed)

	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = v.ToGo()
	}
	return out, nil
}

// msgSource is satisfied by both *Buffer and *Listener, letting
// Reader.NextMsg pull a frame from either.
type msgSource interface {
	NextMsg(timeout time.Duration) ([]interface{}, bool, error)
}

// NextMsg discards any leftover bytes, then extracts one whole frame
// from source, re-staging its values for Next to decode. Like
// Buffer/Listener's own NextMsg, a timed-out or empty wait reports
// (false, nil) rather than an error.
func (r *Reader) NextMsg(source msgSource, timeout time.Duration) (bool, error) {
	r.mem.Reset()
	values, ok, err := source.NextMsg(timeout)
	if err != nil || !ok {
		return ok, err
	}
	payload, err := encodeValues(values)
	if err != nil {
		return false, err
	}
	if err := r.mem.Append(payload); err != nil {
		return false, err
	}
	return true, nil
}

var (
	_ msgSource = (*Buffer)(nil)
	_ msgSource = (*Listener)(nil)
)
