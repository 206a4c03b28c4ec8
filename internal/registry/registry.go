// Package registry implements the id/name hash tables used to look up
// live Buffers and Listeners: two hash tables per object kind (by id,
// by name), resized up when crowded and down when sparse, with lazy
// ambiguity detection on name lookup. Name hashing uses
// cespare/xxhash/v2.
package registry

import (
	"errors"

	"github.com/cespare/xxhash/v2"

	"github.com/ehrlich-b/mtmsg/internal/constants"
)

// ErrUnknownObject and ErrAmbiguous are the registry-local sentinel
// errors; the root package maps them onto its closed *Error set
// (UnknownObject, Ambiguous) rather than the registry importing the
// root package's error type, which would create an import cycle.
var (
	ErrUnknownObject = errors.New("registry: unknown object")
	ErrAmbiguous     = errors.New("registry: ambiguous name")
)

// Entry is the structural contract an object must satisfy to be
// stored in a Table. *Buffer and *Listener both implement it without
// importing this package, avoiding an import cycle.
type Entry interface {
	RegistryID() uint64
	RegistryName() string
}

// Table is a pair of hash tables (by id, by name) over objects of
// type T, with a grow/shrink rehash policy. All methods assume the
// caller holds whatever lock protects the table (the package-level
// global lock, ordered before any per-object lock).
type Table[T Entry] struct {
	idBuckets   [][]T
	nameBuckets [][]T
	count       int
	onRehash    func()
}

// SetOnRehash installs a callback invoked every time the table grows
// or shrinks, letting the root package feed a rehash event into its
// own Metrics without this package importing it (which would create
// an import cycle, same reason Entry is a structural interface).
func (t *Table[T]) SetOnRehash(fn func()) {
	t.onRehash = fn
}

// New returns an empty Table with the default starting bucket count.
func New[T Entry]() *Table[T] {
	return &Table[T]{
		idBuckets:   make([][]T, constants.InitialBuckets),
		nameBuckets: make([][]T, constants.InitialBuckets),
	}
}

func idBucket(id uint64, n int) int {
	return int(id % uint64(n))
}

func nameBucket(name string, n int) int {
	return int(xxhash.Sum64String(name) % uint64(n))
}

// Insert adds e to both tables, rehashing first if the insert would
// push the table past its load-factor or bucket-depth limits.
func (t *Table[T]) Insert(e T) {
	t.maybeGrow()

	ib := idBucket(e.RegistryID(), len(t.idBuckets))
	t.idBuckets[ib] = append(t.idBuckets[ib], e)

	if name := e.RegistryName(); name != "" {
		nb := nameBucket(name, len(t.nameBuckets))
		t.nameBuckets[nb] = append(t.nameBuckets[nb], e)
	}

	t.count++
}

// Remove deletes e from both tables and rehashes down if the table
// has become sparse. Removing an entry that is not registered is a
// no-op.
func (t *Table[T]) Remove(e T) {
	ib := idBucket(e.RegistryID(), len(t.idBuckets))
	before := len(t.idBuckets[ib])
	t.idBuckets[ib] = removeFrom(t.idBuckets[ib], e.RegistryID(), func(x T) uint64 { return x.RegistryID() })
	if len(t.idBuckets[ib]) == before {
		return
	}

	if name := e.RegistryName(); name != "" {
		nb := nameBucket(name, len(t.nameBuckets))
		t.nameBuckets[nb] = removeByPointer(t.nameBuckets[nb], e)
	}

	t.count--
	t.maybeShrink()
}

func removeFrom[T Entry](bucket []T, id uint64, keyOf func(T) uint64) []T {
	for i, x := range bucket {
		if keyOf(x) == id {
			return append(bucket[:i], bucket[i+1:]...)
		}
	}
	return bucket
}

func removeByPointer[T Entry](bucket []T, target T) []T {
	for i, x := range bucket {
		if any(x) == any(target) {
			return append(bucket[:i], bucket[i+1:]...)
		}
	}
	return bucket
}

// LookupByID returns the entry with the given id, or false if none
// is registered.
func (t *Table[T]) LookupByID(id uint64) (T, bool) {
	ib := idBucket(id, len(t.idBuckets))
	for _, x := range t.idBuckets[ib] {
		if x.RegistryID() == id {
			return x, true
		}
	}
	var zero T
	return zero, false
}

// LookupByName returns the unique entry with the given name. It
// returns ErrUnknownObject if no entry has that name, or ErrAmbiguous
// if more than one attached object shares it — ambiguity is detected
// lazily at lookup time rather than rejected on insert.
func (t *Table[T]) LookupByName(name string) (T, error) {
	nb := nameBucket(name, len(t.nameBuckets))
	var zero T
	var found T
	count := 0
	for _, x := range t.nameBuckets[nb] {
		if x.RegistryName() == name {
			found = x
			count++
			if count > 1 {
				return zero, ErrAmbiguous
			}
		}
	}
	if count == 0 {
		return zero, ErrUnknownObject
	}
	return found, nil
}

// Count returns the number of entries currently registered.
func (t *Table[T]) Count() int { return t.count }

// ForEach calls fn once for every registered entry. The caller is
// expected to already hold whatever lock protects the table (the
// global lock), so fn may safely take the per-object lock of each
// entry without violating the global-then-object ordering rule.
func (t *Table[T]) ForEach(fn func(T)) {
	for _, bucket := range t.idBuckets {
		for _, e := range bucket {
			fn(e)
		}
	}
}

// Snapshot returns a slice of every registered entry.
func (t *Table[T]) Snapshot() []T {
	out := make([]T, 0, t.count)
	for _, bucket := range t.idBuckets {
		out = append(out, bucket...)
	}
	return out
}

// Buckets returns the current id-table bucket count, exposed for
// registry-size-bound property tests.
func (t *Table[T]) Buckets() int { return len(t.idBuckets) }

// MaxBucketDepth returns the longest chain across the id table.
func (t *Table[T]) MaxBucketDepth() int {
	max := 0
	for _, b := range t.idBuckets {
		if len(b) > max {
			max = len(b)
		}
	}
	return max
}

func (t *Table[T]) maybeGrow() {
	n := len(t.idBuckets)
	if t.count+1 > constants.LoadFactor*n || t.MaxBucketDepth() > constants.MaxBucketDepth {
		t.rehash(n * 2)
	}
}

func (t *Table[T]) maybeShrink() {
	n := len(t.idBuckets)
	if t.count*10 < n && 2*t.count > 64 {
		newN := n / 2
		if newN < constants.InitialBuckets {
			newN = constants.InitialBuckets
		}
		if newN < n {
			t.rehash(newN)
		}
	}
}

// rehash replays every element into a freshly sized pair of tables.
// Lookup paths already hold the global lock, so the tables can be
// replaced wholesale; no incremental rehash is required.
func (t *Table[T]) rehash(newN int) {
	if newN < 1 {
		newN = 1
	}
	newID := make([][]T, newN)
	newName := make([][]T, newN)

	for _, bucket := range t.idBuckets {
		for _, e := range bucket {
			ib := idBucket(e.RegistryID(), newN)
			newID[ib] = append(newID[ib], e)
		}
	}
	for _, bucket := range t.nameBuckets {
		for _, e := range bucket {
			nb := nameBucket(e.RegistryName(), newN)
			newName[nb] = append(newName[nb], e)
		}
	}

	t.idBuckets = newID
	t.nameBuckets = newName

	if t.onRehash != nil {
		t.onRehash()
	}
}
