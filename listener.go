package mtmsg

import (
	"sync"
	"time"

	"github.com/ehrlich-b/mtmsg/internal/constants"
	"github.com/ehrlich-b/mtmsg/internal/membuf"
	"github.com/ehrlich-b/mtmsg/internal/notify"
	"github.com/ehrlich-b/mtmsg/internal/registry"
	"github.com/ehrlich-b/mtmsg/internal/syncutil"
)

// Listener aggregates several attached Buffers into a single fan-in
// consumer: an attached-buffer set plus a FIFO-by-insertion-order
// ready list of those buffers currently holding at least one message.
type Listener struct {
	ownMu sync.Mutex
	cond  *syncutil.Cond

	id   uint64
	name string

	closed       bool
	aborted      bool
	nonblockFlag bool
	used         int

	attached map[uint64]*Buffer

	readyHead, readyTail *Buffer

	metrics *Metrics
}

func (l *Listener) RegistryID() uint64   { return l.id }
func (l *Listener) RegistryName() string { return l.name }

// ID returns the listener's process-unique id.
func (l *Listener) ID() uint64 { return l.id }

// Name returns the listener's name, or "" if created unnamed.
func (l *Listener) Name() string { return l.name }

// SetNonblock toggles the listener's default wait mode, identically
// to Buffer.SetNonblock.
func (l *Listener) SetNonblock(v bool) {
	l.cond.Lock()
	l.nonblockFlag = v
	l.cond.Unlock()
}

// IsNonblock reports the listener's current wait mode.
func (l *Listener) IsNonblock() bool {
	l.cond.Lock()
	defer l.cond.Unlock()
	return l.nonblockFlag
}

// NewBuffer creates a fresh Buffer attached to this listener: its
// cond is the listener's own, it is inserted into the attached set,
// and its reference count starts at 1.
func (l *Listener) NewBuffer(name string, capacity, growFactor int) (*Buffer, error) {
	l.cond.Lock()
	if l.closed {
		l.cond.Unlock()
		return nil, newObjErr("newBuffer", l.id, l.name, CodeObjectClosed, "listener closed")
	}
	if capacity <= 0 {
		capacity = constants.DefaultCapacity
	}
	b := &Buffer{
		id:       registry.NextID(),
		name:     name,
		mem:      membuf.New(capacity, growFactor),
		used:     1,
		listener: l,
		metrics:  NewMetrics(),
	}
	b.cond = l.cond
	l.attached[b.id] = b
	l.cond.Unlock()

	globalMu.Lock()
	bufferRegistry.Insert(b)
	globalMu.Unlock()

	return b, nil
}

// pushReady appends b to the tail of the ready list, if it isn't
// already present. The caller must hold l.cond.
func (l *Listener) pushReady(b *Buffer) {
	if b.inReady {
		return
	}
	b.inReady = true
	b.readyPrev = l.readyTail
	b.readyNext = nil
	if l.readyTail != nil {
		l.readyTail.readyNext = b
	} else {
		l.readyHead = b
	}
	l.readyTail = b
}

// popReadyBuffer removes b from the ready list, if present. The
// caller must hold l.cond.
func (l *Listener) popReadyBuffer(b *Buffer) {
	if !b.inReady {
		return
	}
	if b.readyPrev != nil {
		b.readyPrev.readyNext = b.readyNext
	} else {
		l.readyHead = b.readyNext
	}
	if b.readyNext != nil {
		b.readyNext.readyPrev = b.readyPrev
	} else {
		l.readyTail = b.readyPrev
	}
	b.readyPrev, b.readyNext = nil, nil
	b.inReady = false
}

// nextReadyBuffer returns the first ready buffer that still has a
// non-empty mem, reclaiming and skipping any stale empty entries it
// encounters along the way.
func (l *Listener) nextReadyBuffer() *Buffer {
	b := l.readyHead
	for b != nil {
		next := b.readyNext
		if b.mem.Len() == 0 {
			l.popReadyBuffer(b)
			if b.unreachable {
				b.freeLocked()
			}
			b = next
			continue
		}
		return b
	}
	return nil
}

// NextMsg walks the ready list for the first attached buffer with a
// queued message, decodes its oldest frame, and applies the same
// ready-list/notifier bookkeeping Buffer.NextMsg applies to a
// standalone buffer.
func (l *Listener) NextMsg(timeout time.Duration) ([]interface{}, bool, error) {
	l.cond.Lock()

	var deadline time.Time
	if timeout > 0 {
		deadline = syncutil.Now().Add(timeout)
	}

	for {
		if l.closed {
			l.cond.Unlock()
			return nil, false, newObjErr("nextMsg", l.id, l.name, CodeObjectClosed, "listener closed")
		}
		if l.aborted {
			l.cond.Unlock()
			return nil, false, newObjErr("nextMsg", l.id, l.name, CodeOperationAborted, "listener aborted")
		}
		if len(l.attached) == 0 {
			l.cond.Unlock()
			return nil, false, newObjErr("nextMsg", l.id, l.name, CodeNoBuffers, "listener has no attached buffers")
		}

		if b := l.nextReadyBuffer(); b != nil {
			return l.consumeFrom(b)
		}

		if l.nonblockFlag {
			l.cond.Unlock()
			return nil, false, nil
		}
		if !deadline.IsZero() {
			if !syncutil.Now().Before(deadline) {
				l.cond.Unlock()
				return nil, false, nil
			}
			l.cond.WaitUntil(deadline)
		} else {
			l.cond.Wait()
		}
	}
}

// consumeFrom decodes the oldest frame of b and unlocks l.cond before
// returning; the caller must hold l.cond and must not touch it
// afterward. b's fall notifier, if any, fires outside the lock.
func (l *Listener) consumeFrom(b *Buffer) ([]interface{}, bool, error) {
	values, err := b.takeFrame()
	if err != nil {
		l.cond.Unlock()
		return nil, false, err
	}

	if b.mem.Len() > 0 {
		l.cond.Signal()
	} else {
		l.popReadyBuffer(b)
		if b.unreachable {
			b.freeLocked()
		}
	}

	var fireReg *notify.Registration
	msgCount := b.msgCount
	if notify.ShouldFireFall(b.fallNotifier, msgCount) {
		fireReg = b.fallNotifier
		fireReg.Notifier.Retain()
	}
	l.cond.Unlock()

	if fireReg != nil {
		again := fireReg.Notifier.Notify(msgCount)
		b.metrics.RecordNotifierFire()
		if !again {
			l.cond.Lock()
			if b.fallNotifier == fireReg {
				b.fallNotifier = nil
			}
			l.cond.Unlock()
		}
		fireReg.Notifier.Release()
	}

	return values, true, nil
}

// Clear empties every attached buffer and the ready list.
func (l *Listener) Clear() error {
	l.cond.Lock()
	defer l.cond.Unlock()
	if l.closed {
		return newObjErr("clear", l.id, l.name, CodeObjectClosed, "listener closed")
	}
	for _, b := range l.attached {
		b.mem.Reset()
		b.msgCount = 0
		l.popReadyBuffer(b)
	}
	return nil
}

// Close is terminal: it closes the listener and every attached
// buffer, frees each buffer's mem, and wakes every waiter.
func (l *Listener) Close() error {
	l.cond.Lock()
	if l.closed {
		l.cond.Unlock()
		return nil
	}
	l.closed = true
	for _, b := range l.attached {
		b.closed = true
		l.popReadyBuffer(b)
		b.mem.Free()
	}
	l.cond.Broadcast()
	l.cond.Unlock()
	return nil
}

// SetAbort sets the listener's abort flag and propagates the
// transition to every attached buffer whose own flag differs.
func (l *Listener) SetAbort(flag bool) error {
	l.cond.Lock()
	defer l.cond.Unlock()
	if l.closed {
		return newObjErr("abort", l.id, l.name, CodeObjectClosed, "listener closed")
	}
	l.aborted = flag
	for _, b := range l.attached {
		b.setAbortLocked(flag)
	}
	l.cond.Broadcast()
	return nil
}

// IsAbort reports the listener's current abort flag.
func (l *Listener) IsAbort() bool {
	l.cond.Lock()
	defer l.cond.Unlock()
	return l.aborted
}

// Retain bumps the listener's reference count.
func (l *Listener) Retain() {
	globalMu.Lock()
	l.used++
	globalMu.Unlock()
}

// Release drops the listener's reference count. When it reaches zero
// the listener is unlinked from the registry and any attached buffers
// still flagged unreachable are freed immediately.
func (l *Listener) Release() {
	globalMu.Lock()
	l.used--
	if l.used < 0 {
		l.used = 0
	}
	done := l.used == 0
	if done {
		listenerRegistry.Remove(l)
	}
	globalMu.Unlock()

	if !done {
		return
	}

	l.cond.Lock()
	for _, b := range l.attached {
		if b.unreachable {
			b.mem.Free()
		}
	}
	l.attached = nil
	l.cond.Unlock()
}
