package registry

import (
	"sync/atomic"
	"time"
	"unsafe"
)

// idCounter is seeded once at package init from a mix of the current
// time and a throwaway heap allocation's address, so that ids from
// different process runs don't collide with small integers a caller
// might assign by hand.
var idCounter atomic.Uint64

func init() {
	seedAnchor := new(byte)
	addr := uint64(uintptr(unsafe.Pointer(seedAnchor)))
	seed := addr ^ uint64(time.Now().UnixNano())
	// Clear the top bit so the seed starts below 1<<63.
	idCounter.Store(seed &^ (uint64(1) << 63))
}

// NextID returns a fresh, process-unique, monotonically increasing
// id for a new Buffer or Listener.
func NextID() uint64 {
	return idCounter.Add(1)
}
