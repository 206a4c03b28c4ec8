package mtmsg

import (
	"sync/atomic"
	"time"
)

// Metrics tracks operational statistics for a single Buffer using
// atomic counters and a value-type Snapshot: messages staged and
// drained, bytes staged, times the buffer hit Full, times a notifier
// fired, and the high-water mark of msgCount.
type Metrics struct {
	MessagesWritten atomic.Uint64
	MessagesRead    atomic.Uint64
	BytesStaged     atomic.Uint64
	FullEvents      atomic.Uint64
	NotifierFires   atomic.Uint64
	RehashCount     atomic.Uint64

	highWater atomic.Uint32

	StartTime atomic.Int64
}

// NewMetrics creates a fresh, zeroed Metrics instance stamped with
// the current time.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordWrite records a message staged into the buffer.
func (m *Metrics) RecordWrite(bytes uint64, msgCount uint32) {
	m.MessagesWritten.Add(1)
	m.BytesStaged.Add(bytes)
	m.recordHighWater(msgCount)
}

// RecordRead records a message drained from the buffer.
func (m *Metrics) RecordRead() {
	m.MessagesRead.Add(1)
}

// RecordFull records that addMsg rejected a message because the
// buffer had no room for it.
func (m *Metrics) RecordFull() {
	m.FullEvents.Add(1)
}

// RecordNotifierFire records a rise or fall notifier dispatch.
func (m *Metrics) RecordNotifierFire() {
	m.NotifierFires.Add(1)
}

// RecordRehash records a registry Table growing or shrinking.
func (m *Metrics) RecordRehash() {
	m.RehashCount.Add(1)
}

func (m *Metrics) recordHighWater(msgCount uint32) {
	for {
		current := m.highWater.Load()
		if msgCount <= current {
			return
		}
		if m.highWater.CompareAndSwap(current, msgCount) {
			return
		}
	}
}

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics
// suitable for logging or exposing to a caller.
type MetricsSnapshot struct {
	MessagesWritten uint64
	MessagesRead    uint64
	BytesStaged     uint64
	FullEvents      uint64
	NotifierFires   uint64
	RehashCount     uint64
	HighWaterMsgs   uint32
	UptimeNs        uint64
}

// Snapshot returns a consistent-enough snapshot of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		MessagesWritten: m.MessagesWritten.Load(),
		MessagesRead:    m.MessagesRead.Load(),
		BytesStaged:     m.BytesStaged.Load(),
		FullEvents:      m.FullEvents.Load(),
		NotifierFires:   m.NotifierFires.Load(),
		RehashCount:     m.RehashCount.Load(),
		HighWaterMsgs:   m.highWater.Load(),
		UptimeNs:        uint64(time.Now().UnixNano() - m.StartTime.Load()),
	}
}

// Reset zeroes all counters; useful for tests.
func (m *Metrics) Reset() {
	m.MessagesWritten.Store(0)
	m.MessagesRead.Store(0)
	m.BytesStaged.Store(0)
	m.FullEvents.Store(0)
	m.NotifierFires.Store(0)
	m.RehashCount.Store(0)
	m.highWater.Store(0)
	m.StartTime.Store(time.Now().UnixNano())
}
