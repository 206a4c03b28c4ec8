// Package notify defines the polymorphic notifier capability trait
// the core dispatches without knowing the concrete target: a small
// interface called from a hot path, refcounted so the buffer can hold
// a reference across the unlocked callback.
package notify

// Kind distinguishes the two notifier slots a Buffer may hold.
type Kind int

const (
	// Rise fires when msgCount rises past its threshold.
	Rise Kind = iota
	// Fall fires when msgCount falls below its threshold (or the
	// threshold is <= 0, meaning "always fires on any decrement").
	Fall
)

func (k Kind) String() string {
	if k == Rise {
		return "rise"
	}
	return "fall"
}

// Notifier is the external capability a Buffer invokes outside its
// lock when occupancy crosses a configured threshold. Notify returns
// whether the notifier wants to keep receiving callbacks; returning
// false causes the owning Buffer to atomically clear that slot.
//
// Retain/Release let the Buffer bump the target's refcount under its
// lock before firing and release it after the call returns, so the
// target cannot be destroyed mid-callback.
type Notifier interface {
	Notify(msgCount int) (again bool)
	Retain()
	Release()
}

// Registration pairs a Notifier with the threshold it was registered
// with.
type Registration struct {
	Notifier  Notifier
	Threshold int
}

// ShouldFireRise reports whether a rise-notifier with the given
// threshold should fire for a post-increment msgCount: the count must
// have risen strictly past the threshold.
func ShouldFireRise(reg *Registration, msgCount int) bool {
	return reg != nil && msgCount > reg.Threshold
}

// ShouldFireFall reports whether a fall-notifier with the given
// threshold should fire for a post-decrement msgCount: the count must
// have fallen strictly below the threshold, or the threshold is <= 0,
// meaning "always fire on any decrement".
func ShouldFireFall(reg *Registration, msgCount int) bool {
	if reg == nil {
		return false
	}
	return reg.Threshold <= 0 || msgCount < reg.Threshold
}
