package mtmsg

import (
	"github.com/ehrlich-b/mtmsg/internal/codec"
	"github.com/ehrlich-b/mtmsg/internal/constants"
	"github.com/ehrlich-b/mtmsg/internal/membuf"
)

// Writer stages values into its own MemBuffer with no locking. Its
// contents are posted to a Buffer by AddMsg/SetMsg, which copy the
// staged bytes into the Buffer under its lock and then clear the
// Writer on success.
type Writer struct {
	mem *membuf.MemBuffer
}

// NewWriter creates a Writer with the given initial capacity and grow
// factor.
func NewWriter(capacity, growFactor int) *Writer {
	if capacity <= 0 {
		capacity = constants.DefaultCapacity
	}
	return &Writer{mem: membuf.New(capacity, growFactor)}
}

// Clear discards any staged values.
func (w *Writer) Clear() { w.mem.Reset() }

// Add stages one value of any codec-supported Go type.
func (w *Writer) Add(v interface{}) error {
	cv, err := codec.FromGo(v)
	if err != nil {
		return newErr("add", CodeUnsupportedType, err.Error())
	}
	b, err := codec.AppendValue(nil, cv)
	if err != nil {
		return newErr("add", CodeUnsupportedType, err.Error())
	}
	return w.mem.Append(b)
}

// AddBool stages a boolean value.
func (w *Writer) AddBool(v bool) error { return w.Add(v) }

// AddInt stages an integer value.
func (w *Writer) AddInt(v int64) error { return w.Add(v) }

// AddNumber stages a floating-point value.
func (w *Writer) AddNumber(v float64) error { return w.Add(v) }

// AddString stages a string value.
func (w *Writer) AddString(v string) error { return w.Add(v) }

// AddBytes stages a byte-string value.
func (w *Writer) AddBytes(v []byte) error { return w.Add(v) }

// AddArray stages a typed numeric array value, preserving its element
// type, width, and count through a single packed encoding.
func (w *Writer) AddArray(a codec.Array) error { return w.Add(a) }

// AddMsg posts the Writer's staged values to b as one frame and
// clears the Writer on success.
func (w *Writer) AddMsg(b *Buffer) error { return w.post(b, false) }

// SetMsg discards b's currently queued messages and then posts the
// Writer's staged values as b's sole frame.
func (w *Writer) SetMsg(b *Buffer) error { return w.post(b, true) }

func (w *Writer) post(b *Buffer, clear bool) error {
	payload := append([]byte(nil), w.mem.Bytes()...)
	frame := codec.AppendFrameHeader(make([]byte, 0, codec.FrameHeaderLen(len(payload))+len(payload)), len(payload))
	frame = append(frame, payload...)
	if err := b.writeFrame(frame, clear); err != nil {
		return err
	}
	w.mem.Reset()
	return nil
}

// encodeValues serializes values into one concatenated, unframed
// payload, shared by Buffer.encodeFrame and Reader.NextMsg.
func encodeValues(values []interface{}) ([]byte, error) {
	var payload []byte
	for _, v := range values {
		cv, err := codec.FromGo(v)
		if err != nil {
			return nil, newErr("encode", CodeUnsupportedType, err.Error())
		}
		payload, err = codec.AppendValue(payload, cv)
		if err != nil {
			return nil, newErr("encode", CodeUnsupportedType, err.Error())
		}
	}
	return payload, nil
}
