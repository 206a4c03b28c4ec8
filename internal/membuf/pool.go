package membuf

import (
	"sync"

	"github.com/ehrlich-b/mtmsg/internal/constants"
)

// allocate and release draw MemBuffer backing arrays from a
// size-bucketed sync.Pool once a request is large enough to be worth
// pooling, falling back to a direct make()/drop for everything else.
// Buckets are {1K,4K,16K,64K}; anything smaller than the 1K threshold
// is a direct make(), and anything larger than 64K is also a direct
// make() that is never returned to the pool, since its capacity won't
// match a bucket size exactly on release.

const (
	size1k  = 1 * 1024
	size4k  = 4 * 1024
	size16k = 16 * 1024
	size64k = 64 * 1024
)

var bufferPool = struct {
	pool1k  sync.Pool
	pool4k  sync.Pool
	pool16k sync.Pool
	pool64k sync.Pool
}{
	pool1k:  sync.Pool{New: func() any { b := make([]byte, size1k); return &b }},
	pool4k:  sync.Pool{New: func() any { b := make([]byte, size4k); return &b }},
	pool16k: sync.Pool{New: func() any { b := make([]byte, size16k); return &b }},
	pool64k: sync.Pool{New: func() any { b := make([]byte, size64k); return &b }},
}

// allocate returns a zero-length-avoiding byte slice of exactly n
// bytes, drawing from the pooled buckets when n meets the pooling
// threshold.
func allocate(n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	if n < constants.MembufPoolThreshold {
		return make([]byte, n)
	}
	switch {
	case n <= size1k:
		return (*bufferPool.pool1k.Get().(*[]byte))[:n]
	case n <= size4k:
		return (*bufferPool.pool4k.Get().(*[]byte))[:n]
	case n <= size16k:
		return (*bufferPool.pool16k.Get().(*[]byte))[:n]
	case n <= size64k:
		return (*bufferPool.pool64k.Get().(*[]byte))[:n]
	default:
		return make([]byte, n)
	}
}

// release returns a pooled buffer to its bucket. Buffers whose
// capacity doesn't match a bucket exactly (direct make()s) are
// dropped for the GC to reclaim.
func release(buf []byte) {
	c := cap(buf)
	if c == 0 {
		return
	}
	buf = buf[:c]
	switch c {
	case size1k:
		bufferPool.pool1k.Put(&buf)
	case size4k:
		bufferPool.pool4k.Put(&buf)
	case size16k:
		bufferPool.pool16k.Put(&buf)
	case size64k:
		bufferPool.pool64k.Put(&buf)
	}
}
