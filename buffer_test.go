package mtmsg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/mtmsg/internal/notify"
)

func TestBasicEcho(t *testing.T) {
	b, err := NewBuffer("", 1024, 2)
	require.NoError(t, err)

	require.NoError(t, b.AddMsg(int64(1), "hi", true))

	values, ok, err := b.NextMsg(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []interface{}{int64(1), "hi", true}, values)

	assert.Equal(t, 0, b.MsgCount())
}

func TestBoundedFull(t *testing.T) {
	b, err := NewBuffer("", 16, 1)
	require.NoError(t, err)

	msg := make([]byte, 5) // SmallString: tag(1) + len(1) + 5 bytes = 7... adjust below.
	_ = msg

	// An 8-byte-encoded message: one SMALLSTRING of length 5 encodes as
	// tag(1) + len(1) + data(5) = 7 bytes payload, framed with a 1-byte
	// header = 8 bytes total in mem.
	payload := "abcde"

	require.NoError(t, b.AddMsg(payload))
	require.NoError(t, b.AddMsg(payload))

	err = b.AddMsg(payload)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeFull))
	assert.Equal(t, 2, b.MsgCount())
}

// TestMessageTooLargeForBoundedBuffer checks the MessageSize path: a
// frame that could never fit even in an empty buffer.
func TestMessageTooLargeForBoundedBuffer(t *testing.T) {
	b, err := NewBuffer("", 4, 1)
	require.NoError(t, err)

	err = b.AddMsg("this string is much too long for a 4 byte buffer")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeMessageSize))
}

func TestRiseNotifier(t *testing.T) {
	b, err := NewBuffer("", 1024, 2)
	require.NoError(t, err)

	n := notify.NewCountingNotifier(true)
	require.NoError(t, b.SetNotifier(notify.Rise, n, 3))

	require.NoError(t, b.AddMsg(int64(1)))
	require.NoError(t, b.AddMsg(int64(2)))
	require.NoError(t, b.AddMsg(int64(3)))
	assert.Equal(t, 0, n.Calls(), "notifier should not fire until msgCount > 3")

	require.NoError(t, b.AddMsg(int64(4)))
	assert.Equal(t, 1, n.Calls())

	_, ok, err := b.NextMsg(0)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.AddMsg(int64(5)))
	assert.Equal(t, 2, n.Calls())
}

// TestRiseNotifierStopsWhenNotAgain verifies the "do not call again"
// tie-break clears the slot atomically.
func TestRiseNotifierStopsWhenNotAgain(t *testing.T) {
	b, err := NewBuffer("", 1024, 2)
	require.NoError(t, err)

	n := notify.NewCountingNotifier(false)
	require.NoError(t, b.SetNotifier(notify.Rise, n, 0))

	require.NoError(t, b.AddMsg(int64(1)))
	assert.Equal(t, 1, n.Calls())

	require.NoError(t, b.AddMsg(int64(2)))
	assert.Equal(t, 1, n.Calls(), "notifier cleared itself and should not fire again")
}

func TestAbortDuringWait(t *testing.T) {
	b, err := NewBuffer("", 1024, 2)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := b.NextMsg(5 * time.Second)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.SetAbort(true))

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.True(t, IsCode(err, CodeOperationAborted))
	case <-time.After(2 * time.Second):
		t.Fatal("NextMsg did not return after abort")
	}
}

func TestCloseIsSticky(t *testing.T) {
	b, err := NewBuffer("", 1024, 2)
	require.NoError(t, err)
	require.NoError(t, b.AddMsg(int64(1)))
	require.NoError(t, b.Close())

	assert.True(t, IsCode(b.AddMsg(int64(2)), CodeObjectClosed))
	_, _, err = b.NextMsg(0)
	assert.True(t, IsCode(err, CodeObjectClosed))
	assert.True(t, IsCode(b.Clear(), CodeObjectClosed))
}

func TestAbortThenReopen(t *testing.T) {
	b, err := NewBuffer("", 1024, 2)
	require.NoError(t, err)

	require.NoError(t, b.SetAbort(true))
	assert.True(t, b.IsAbort())
	_, _, err = b.NextMsg(0)
	assert.True(t, IsCode(err, CodeOperationAborted))

	require.NoError(t, b.SetAbort(false))
	assert.False(t, b.IsAbort())

	require.NoError(t, b.AddMsg(int64(7)))
	values, ok, err := b.NextMsg(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []interface{}{int64(7)}, values)
}

func TestClearDoesNotFireNotifier(t *testing.T) {
	b, err := NewBuffer("", 1024, 2)
	require.NoError(t, err)

	n := notify.NewCountingNotifier(true)
	require.NoError(t, b.SetNotifier(notify.Fall, n, 0))

	require.NoError(t, b.AddMsg(int64(1)))
	require.NoError(t, b.Clear())
	assert.Equal(t, 0, n.Calls())
	assert.Equal(t, 0, b.MsgCount())
}

func TestSetNotifierRequiresClearFirst(t *testing.T) {
	b, err := NewBuffer("", 1024, 2)
	require.NoError(t, err)

	n1 := notify.NewCountingNotifier(true)
	n2 := notify.NewCountingNotifier(true)
	require.NoError(t, b.SetNotifier(notify.Rise, n1, 1))

	err = b.SetNotifier(notify.Rise, n2, 1)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeHasNotifier))

	require.NoError(t, b.ClearNotifier(notify.Rise))
	require.NoError(t, b.SetNotifier(notify.Rise, n2, 1))
}

func TestSetMsgDiscardsPreviousMessages(t *testing.T) {
	b, err := NewBuffer("", 1024, 2)
	require.NoError(t, err)

	require.NoError(t, b.AddMsg(int64(1)))
	require.NoError(t, b.AddMsg(int64(2)))
	require.NoError(t, b.SetMsg(int64(99)))

	assert.Equal(t, 1, b.MsgCount())
	values, ok, err := b.NextMsg(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []interface{}{int64(99)}, values)
}

func TestNonblockNextMsgReturnsImmediately(t *testing.T) {
	b, err := NewBuffer("", 1024, 2)
	require.NoError(t, err)
	b.SetNonblock(true)
	assert.True(t, b.IsNonblock())

	start := time.Now()
	values, ok, err := b.NextMsg(5 * time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, values)
	assert.Less(t, elapsed, time.Second)
}

func TestZeroLengthMessageIsLegal(t *testing.T) {
	b, err := NewBuffer("", 1024, 2)
	require.NoError(t, err)

	require.NoError(t, b.AddMsg())
	assert.Equal(t, 1, b.MsgCount())

	values, ok, err := b.NextMsg(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, values)
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	b, err := NewBuffer("", 1024, 2)
	require.NoError(t, err)

	b.Release()
	b.Release()
	b.Release()

	globalMu.Lock()
	used := b.used
	globalMu.Unlock()
	assert.GreaterOrEqual(t, used, 0)
}
