package notify

import "sync"

// CountingNotifier is a thread-safe test double recording every
// Notify/Retain/Release call.
type CountingNotifier struct {
	mu        sync.Mutex
	calls     int
	retains   int
	releases  int
	lastCount int
	keepGoing bool
}

// NewCountingNotifier returns a CountingNotifier whose Notify always
// reports "call me again" unless keepGoing is false.
func NewCountingNotifier(keepGoing bool) *CountingNotifier {
	return &CountingNotifier{keepGoing: keepGoing}
}

func (c *CountingNotifier) Notify(msgCount int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastCount = msgCount
	return c.keepGoing
}

func (c *CountingNotifier) Retain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retains++
}

func (c *CountingNotifier) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
}

// Calls returns the number of times Notify has fired.
func (c *CountingNotifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// LastCount returns the msgCount passed to the most recent Notify.
func (c *CountingNotifier) LastCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCount
}

// SetKeepGoing changes whether future Notify calls report "call me
// again".
func (c *CountingNotifier) SetKeepGoing(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keepGoing = v
}

var _ Notifier = (*CountingNotifier)(nil)
