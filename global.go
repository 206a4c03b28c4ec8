package mtmsg

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/mtmsg/internal/constants"
	"github.com/ehrlich-b/mtmsg/internal/logging"
	"github.com/ehrlich-b/mtmsg/internal/membuf"
	"github.com/ehrlich-b/mtmsg/internal/registry"
	"github.com/ehrlich-b/mtmsg/internal/syncutil"
)

// globalMu guards the two registry tables and the refcount field of
// every registered Buffer/Listener: it is always acquired before any
// per-object lock, never the reverse.
//
// sleepMu/sleepCond are a separate mutex+condvar from globalMu even
// though both ultimately serve one process-wide "wait for something
// to happen" role: Sleep can block for seconds at a time, and parking
// that wait under globalMu would stall every NewBuffer/BufferByID/
// Abort call in the process for the duration. Giving Sleep its own
// cond keeps the two concerns independent while still observing the
// same atomic abort flag.
var (
	globalMu sync.Mutex

	bufferRegistry   = registry.New[*Buffer]()
	listenerRegistry = registry.New[*Listener]()

	// registryMetrics tracks rehash events for both tables combined;
	// there is no per-object owner for a registry-wide event, so it
	// lives at package scope rather than on a Buffer/Listener.
	registryMetrics = NewMetrics()

	globalAbort atomic.Bool

	sleepMu   sync.Mutex
	sleepCond = syncutil.NewCond(&sleepMu)

	processStart = time.Now()
)

func init() {
	bufferRegistry.SetOnRehash(registryMetrics.RecordRehash)
	listenerRegistry.SetOnRehash(registryMetrics.RecordRehash)
}

// RegistryMetrics returns a snapshot of the combined buffer/listener
// registry's rehash counters.
func RegistryMetrics() MetricsSnapshot {
	return registryMetrics.Snapshot()
}

// NewBuffer creates a standalone Buffer with the given name (use ""
// for unnamed), initial capacity, and grow factor, registers it, and
// returns it with a reference count of 1.
func NewBuffer(name string, capacity, growFactor int) (*Buffer, error) {
	if capacity <= 0 {
		capacity = constants.DefaultCapacity
	}
	b := &Buffer{
		id:      registry.NextID(),
		name:    name,
		mem:     membuf.New(capacity, growFactor),
		used:    1,
		metrics: NewMetrics(),
	}
	b.cond = syncutil.NewCond(&b.ownMu)

	globalMu.Lock()
	bufferRegistry.Insert(b)
	globalMu.Unlock()

	logging.Default().WithBuffer(b.id).Debug("buffer created", "name", name, "capacity", capacity)
	return b, nil
}

// BufferByID looks up a registered Buffer by id, bumping its
// reference count on success.
func BufferByID(id uint64) (*Buffer, error) {
	globalMu.Lock()
	b, ok := bufferRegistry.LookupByID(id)
	if ok {
		b.used++
	}
	globalMu.Unlock()
	if !ok {
		return nil, newErr("buffer", CodeUnknownObject, "no buffer with that id")
	}
	return b, nil
}

// BufferByName looks up a registered Buffer by name, bumping its
// reference count on success. It returns CodeAmbiguous if more than
// one registered buffer shares the name.
func BufferByName(name string) (*Buffer, error) {
	globalMu.Lock()
	b, err := bufferRegistry.LookupByName(name)
	if err == nil {
		b.used++
	}
	globalMu.Unlock()
	if err != nil {
		return nil, wrapRegistryErr("buffer", err)
	}
	return b, nil
}

// NewListener creates a Listener with the given name, registers it,
// and returns it with a reference count of 1.
func NewListener(name string) (*Listener, error) {
	l := &Listener{
		id:       registry.NextID(),
		name:     name,
		used:     1,
		attached: make(map[uint64]*Buffer),
		metrics:  NewMetrics(),
	}
	l.cond = syncutil.NewCond(&l.ownMu)

	globalMu.Lock()
	listenerRegistry.Insert(l)
	globalMu.Unlock()

	logging.Default().WithListener(l.id).Debug("listener created", "name", name)
	return l, nil
}

// ListenerByID looks up a registered Listener by id, bumping its
// reference count on success.
func ListenerByID(id uint64) (*Listener, error) {
	globalMu.Lock()
	l, ok := listenerRegistry.LookupByID(id)
	if ok {
		l.used++
	}
	globalMu.Unlock()
	if !ok {
		return nil, newErr("listener", CodeUnknownObject, "no listener with that id")
	}
	return l, nil
}

// ListenerByName looks up a registered Listener by name, bumping its
// reference count on success.
func ListenerByName(name string) (*Listener, error) {
	globalMu.Lock()
	l, err := listenerRegistry.LookupByName(name)
	if err == nil {
		l.used++
	}
	globalMu.Unlock()
	if err != nil {
		return nil, wrapRegistryErr("listener", err)
	}
	return l, nil
}

// Time returns seconds elapsed since process start on the monotonic
// clock.
func Time() float64 {
	return time.Since(processStart).Seconds()
}

// Sleep blocks for the given number of seconds, or until Abort(true)
// is observed, whichever comes first. A non-positive duration returns
// immediately.
func Sleep(seconds float64) error {
	if globalAbort.Load() {
		return newErr("sleep", CodeOperationAborted, "global abort")
	}
	if seconds <= 0 {
		return nil
	}
	deadline := syncutil.Now().Add(time.Duration(seconds * float64(time.Second)))

	sleepCond.Lock()
	defer sleepCond.Unlock()
	for {
		if globalAbort.Load() {
			return newErr("sleep", CodeOperationAborted, "global abort")
		}
		if !syncutil.Now().Before(deadline) {
			return nil
		}
		sleepCond.WaitUntil(deadline)
	}
}

// Abort sets or clears the process-wide abort flag and propagates the
// transition to every registered Buffer and Listener: it takes the
// global lock and calls setAbort(flag) on every registered object.
func Abort(flag bool) {
	logging.Default().WithOp(0, "abort").Info("global abort sweep", "flag", flag)

	globalMu.Lock()
	globalAbort.Store(flag)
	bufferRegistry.ForEach(func(b *Buffer) { _ = b.SetAbort(flag) })
	listenerRegistry.ForEach(func(l *Listener) { _ = l.SetAbort(flag) })
	globalMu.Unlock()

	sleepCond.Lock()
	sleepCond.Broadcast()
	sleepCond.Unlock()
}

// IsAbort reports the process-wide abort flag's current value.
func IsAbort() bool {
	return globalAbort.Load()
}

// Type reports the class tag of a value returned by this package.
func Type(x interface{}) string {
	switch x.(type) {
	case *Buffer:
		return "buffer"
	case *Listener:
		return "listener"
	case *Writer:
		return "writer"
	case *Reader:
		return "reader"
	default:
		return "unknown"
	}
}
