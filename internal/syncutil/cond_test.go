package syncutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitUntilWakesOnBroadcast(t *testing.T) {
	var mu sync.Mutex
	c := NewCond(&mu)

	woken := make(chan struct{})
	go func() {
		mu.Lock()
		c.WaitUntil(time.Now().Add(5 * time.Second))
		mu.Unlock()
		close(woken)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	c.Broadcast()
	mu.Unlock()

	select {
	case <-woken:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by Broadcast")
	}
}

func TestWaitUntilReturnsAtDeadline(t *testing.T) {
	var mu sync.Mutex
	c := NewCond(&mu)

	start := time.Now()
	mu.Lock()
	c.WaitUntil(start.Add(50 * time.Millisecond))
	mu.Unlock()
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestWaitUntilPastDeadlineReturnsImmediately(t *testing.T) {
	var mu sync.Mutex
	c := NewCond(&mu)

	start := time.Now()
	mu.Lock()
	c.WaitUntil(start.Add(-time.Second))
	mu.Unlock()
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitTimeoutNonPositiveBlocksUntilSignal(t *testing.T) {
	var mu sync.Mutex
	c := NewCond(&mu)

	woken := make(chan struct{})
	go func() {
		mu.Lock()
		c.WaitTimeout(0)
		mu.Unlock()
		close(woken)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-woken:
		t.Fatal("waiter returned before being signaled")
	default:
	}

	mu.Lock()
	c.Signal()
	mu.Unlock()

	select {
	case <-woken:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by Signal")
	}
}
