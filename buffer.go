package mtmsg

import (
	"errors"
	"sync"
	"time"

	"github.com/ehrlich-b/mtmsg/internal/codec"
	"github.com/ehrlich-b/mtmsg/internal/membuf"
	"github.com/ehrlich-b/mtmsg/internal/notify"
	"github.com/ehrlich-b/mtmsg/internal/syncutil"
)

// Buffer is a bounded or growable MP/SC queue of serialized messages.
// A standalone Buffer owns its own mutex+condvar (ownMu/cond below); a
// Buffer created through Listener.NewBuffer instead shares its
// listener's cond, and cond is never reassigned after construction —
// attachment is fixed at creation, so the shared lock pointer never
// needs to move.
type Buffer struct {
	ownMu sync.Mutex
	cond  *syncutil.Cond

	id   uint64
	name string

	mem      *membuf.MemBuffer
	msgCount int

	closed       bool
	aborted      bool
	unreachable  bool
	nonblockFlag bool
	inReady      bool

	used int // protected by globalMu, not cond

	listener              *Listener
	readyPrev, readyNext  *Buffer

	riseNotifier *notify.Registration
	fallNotifier *notify.Registration

	metrics *Metrics
}

// RegistryID and RegistryName satisfy internal/registry.Entry.
func (b *Buffer) RegistryID() uint64   { return b.id }
func (b *Buffer) RegistryName() string { return b.name }

// ID returns the buffer's process-unique id.
func (b *Buffer) ID() uint64 { return b.id }

// Name returns the buffer's name, or "" if it was created unnamed.
func (b *Buffer) Name() string { return b.name }

// Metrics returns the buffer's per-object counters.
func (b *Buffer) Metrics() *Metrics { return b.metrics }

// MsgCount returns the number of complete frames currently queued.
func (b *Buffer) MsgCount() int {
	b.cond.Lock()
	defer b.cond.Unlock()
	return b.msgCount
}

// SetNonblock toggles the buffer's default wait mode: when true,
// NextMsg never waits and instead returns immediately (ok=false,
// err=nil) if no message is queued.
func (b *Buffer) SetNonblock(v bool) {
	b.cond.Lock()
	b.nonblockFlag = v
	b.cond.Unlock()
}

// IsNonblock reports the buffer's current wait mode.
func (b *Buffer) IsNonblock() bool {
	b.cond.Lock()
	defer b.cond.Unlock()
	return b.nonblockFlag
}

// AddMsg serializes values and appends them as one frame at the tail
// of the buffer.
func (b *Buffer) AddMsg(values ...interface{}) error {
	return b.addMsg(values, false)
}

// SetMsg discards any currently queued messages and then appends
// values as the buffer's sole frame.
func (b *Buffer) SetMsg(values ...interface{}) error {
	return b.addMsg(values, true)
}

func (b *Buffer) addMsg(values []interface{}, clear bool) error {
	frame, err := encodeFrame(values)
	if err != nil {
		return err
	}
	return b.writeFrame(frame, clear)
}

// encodeFrame serializes values into one length-prefixed frame.
func encodeFrame(values []interface{}) ([]byte, error) {
	payload, err := encodeValues(values)
	if err != nil {
		return nil, err
	}
	frame := codec.AppendFrameHeader(make([]byte, 0, codec.FrameHeaderLen(len(payload))+len(payload)), len(payload))
	return append(frame, payload...), nil
}

// writeFrame is the locked core shared by AddMsg/SetMsg and by
// Writer.AddMsg/Writer.SetMsg: it optionally clears the buffer, then
// appends frame, translates allocator failures into Full/MessageSize/
// OutOfMemory, and dispatches the rise notifier if the new count
// crosses its threshold.
func (b *Buffer) writeFrame(frame []byte, clear bool) error {
	b.cond.Lock()

	if b.closed {
		b.cond.Unlock()
		return newObjErr("addMsg", b.id, b.name, CodeObjectClosed, "buffer closed")
	}

	if clear {
		b.mem.Reset()
		b.msgCount = 0
	}

	if err := b.mem.Append(frame); err != nil {
		b.cond.Unlock()
		switch {
		case errors.Is(err, membuf.ErrNoGrow):
			if len(frame) <= b.mem.Cap() {
				b.metrics.RecordFull()
				return newObjErr("addMsg", b.id, b.name, CodeFull, "buffer full")
			}
			return newObjErr("addMsg", b.id, b.name, CodeMessageSize, "message exceeds buffer capacity")
		case errors.Is(err, membuf.ErrAlloc):
			return newObjErr("addMsg", b.id, b.name, CodeOutOfMemory, "allocator refused growth")
		default:
			return err
		}
	}

	b.msgCount++
	b.metrics.RecordWrite(uint64(len(frame)), uint32(b.msgCount))

	if b.listener != nil {
		b.listener.pushReady(b)
	}
	b.cond.Signal()

	var fireReg *notify.Registration
	msgCount := b.msgCount
	if notify.ShouldFireRise(b.riseNotifier, msgCount) {
		fireReg = b.riseNotifier
		fireReg.Notifier.Retain()
	}
	b.cond.Unlock()

	if fireReg != nil {
		again := fireReg.Notifier.Notify(msgCount)
		b.metrics.RecordNotifierFire()
		if !again {
			b.cond.Lock()
			if b.riseNotifier == fireReg {
				b.riseNotifier = nil
			}
			b.cond.Unlock()
		}
		fireReg.Notifier.Release()
	}
	return nil
}

// NextMsg blocks until a message is available, the timeout elapses,
// or the buffer is aborted or closed. A non-positive timeout waits
// indefinitely, unless the buffer's nonblock flag is set, in which
// case NextMsg never waits. A timeout or a nonblocking call with no
// message ready is reported as (nil, false, nil) rather than an
// error: "no message yet" and "the deadline passed" are both plain,
// non-error, empty results, not a distinct Timeout error code.
func (b *Buffer) NextMsg(timeout time.Duration) ([]interface{}, bool, error) {
	b.cond.Lock()

	var deadline time.Time
	if timeout > 0 {
		deadline = syncutil.Now().Add(timeout)
	}

	for {
		if b.closed {
			b.cond.Unlock()
			return nil, false, newObjErr("nextMsg", b.id, b.name, CodeObjectClosed, "buffer closed")
		}
		if b.aborted {
			b.cond.Unlock()
			return nil, false, newObjErr("nextMsg", b.id, b.name, CodeOperationAborted, "buffer aborted")
		}
		if b.mem.Len() > 0 {
			break
		}
		if b.nonblockFlag {
			b.cond.Unlock()
			return nil, false, nil
		}
		if !deadline.IsZero() {
			if !syncutil.Now().Before(deadline) {
				b.cond.Unlock()
				return nil, false, nil
			}
			b.cond.WaitUntil(deadline)
		} else {
			b.cond.Wait()
		}
	}

	values, err := b.takeFrame()
	if err != nil {
		b.cond.Unlock()
		return nil, false, err
	}

	if b.listener != nil {
		if b.mem.Len() > 0 {
			b.cond.Signal()
		} else {
			b.listener.popReadyBuffer(b)
			if b.unreachable {
				b.freeLocked()
			}
		}
	}

	var fireReg *notify.Registration
	msgCount := b.msgCount
	if notify.ShouldFireFall(b.fallNotifier, msgCount) {
		fireReg = b.fallNotifier
		fireReg.Notifier.Retain()
	}
	b.cond.Unlock()

	if fireReg != nil {
		again := fireReg.Notifier.Notify(msgCount)
		b.metrics.RecordNotifierFire()
		if !again {
			b.cond.Lock()
			if b.fallNotifier == fireReg {
				b.fallNotifier = nil
			}
			b.cond.Unlock()
		}
		fireReg.Notifier.Release()
	}

	return values, true, nil
}

// takeFrame decodes and discards the oldest frame in b.mem. The
// caller must hold b.cond and is responsible for ready-list
// membership and notifier dispatch afterward.
func (b *Buffer) takeFrame() ([]interface{}, error) {
	payloadLen, headerLen, err := codec.DecodeFrameHeader(b.mem.Bytes())
	if err != nil {
		return nil, err
	}
	payload := b.mem.Bytes()[headerLen : headerLen+payloadLen]
	vals, _, _, err := codec.DecodeValues(payload, -1)
	if err != nil {
		return nil, err
	}
	b.mem.Advance(headerLen + payloadLen)
	b.msgCount--
	b.metrics.RecordRead()

	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = v.ToGo()
	}
	return out, nil
}

// Clear empties the buffer without firing any notifier.
func (b *Buffer) Clear() error {
	b.cond.Lock()
	defer b.cond.Unlock()
	if b.closed {
		return newObjErr("clear", b.id, b.name, CodeObjectClosed, "buffer closed")
	}
	b.mem.Reset()
	b.msgCount = 0
	if b.listener != nil {
		b.listener.popReadyBuffer(b)
	}
	return nil
}

// SetNotifier registers a rise or fall notifier with the given
// threshold. At most one notifier of each kind may be registered at a
// time; replacing one requires ClearNotifier first.
func (b *Buffer) SetNotifier(kind notify.Kind, n notify.Notifier, threshold int) error {
	b.cond.Lock()
	defer b.cond.Unlock()
	if b.closed {
		return newObjErr("setNotifier", b.id, b.name, CodeObjectClosed, "buffer closed")
	}
	slot := &b.riseNotifier
	if kind == notify.Fall {
		slot = &b.fallNotifier
	}
	if *slot != nil {
		return newObjErr("setNotifier", b.id, b.name, CodeHasNotifier, "a notifier of this kind is already registered")
	}
	*slot = &notify.Registration{Notifier: n, Threshold: threshold}
	return nil
}

// ClearNotifier removes any notifier of the given kind.
func (b *Buffer) ClearNotifier(kind notify.Kind) error {
	b.cond.Lock()
	defer b.cond.Unlock()
	if b.closed {
		return newObjErr("clearNotifier", b.id, b.name, CodeObjectClosed, "buffer closed")
	}
	if kind == notify.Rise {
		b.riseNotifier = nil
	} else {
		b.fallNotifier = nil
	}
	return nil
}

// Close is terminal: it frees mem, wakes every waiter, and makes every
// subsequent call fail with ObjectClosed.
func (b *Buffer) Close() error {
	b.cond.Lock()
	if b.closed {
		b.cond.Unlock()
		return nil
	}
	b.closed = true
	if b.listener != nil {
		b.listener.popReadyBuffer(b)
	}
	b.mem.Free()
	b.cond.Broadcast()
	b.cond.Unlock()
	return nil
}

// SetAbort sets or clears the buffer's abort flag. Setting it empties
// ready-list participation (without discarding stored messages);
// clearing it relinks the buffer if it still holds messages.
func (b *Buffer) SetAbort(flag bool) error {
	b.cond.Lock()
	defer b.cond.Unlock()
	if b.closed {
		return newObjErr("abort", b.id, b.name, CodeObjectClosed, "buffer closed")
	}
	b.setAbortLocked(flag)
	b.cond.Broadcast()
	return nil
}

// setAbortLocked applies an abort transition; the caller must already
// hold b.cond. Used directly by Listener.SetAbort, which holds the
// same shared lock while iterating its attached buffers.
func (b *Buffer) setAbortLocked(flag bool) {
	if b.aborted == flag {
		return
	}
	b.aborted = flag
	if b.listener == nil {
		return
	}
	if flag {
		b.listener.popReadyBuffer(b)
	} else if b.mem.Len() > 0 && !b.closed {
		b.listener.pushReady(b)
	}
}

// IsAbort reports the buffer's current abort flag.
func (b *Buffer) IsAbort() bool {
	b.cond.Lock()
	defer b.cond.Unlock()
	return b.aborted
}

// Retain bumps the buffer's reference count. It is the registry-side
// counterpart to a handle lookup (BufferByID/BufferByName already do
// this internally); callers holding a handle across goroutines should
// call it before sharing the handle and Release when done with it.
func (b *Buffer) Retain() {
	globalMu.Lock()
	b.used++
	globalMu.Unlock()
}

// Release drops the buffer's reference count. When it reaches zero
// the buffer is unlinked from the registry; if it is still on a
// listener's ready list at that moment it is flagged unreachable and
// freed later by the listener's consume path instead, once the list
// no longer needs it.
func (b *Buffer) Release() {
	globalMu.Lock()
	b.used--
	if b.used < 0 {
		b.used = 0
	}
	done := b.used == 0
	if done {
		bufferRegistry.Remove(b)
	}
	globalMu.Unlock()

	if !done {
		return
	}

	b.cond.Lock()
	if b.inReady {
		b.unreachable = true
		b.cond.Unlock()
		return
	}
	b.freeLocked()
	b.cond.Unlock()
}

// freeLocked releases mem and, if attached, detaches the buffer from
// its listener. The caller must hold b.cond.
func (b *Buffer) freeLocked() {
	b.mem.Free()
	if b.listener != nil {
		delete(b.listener.attached, b.id)
	}
}
