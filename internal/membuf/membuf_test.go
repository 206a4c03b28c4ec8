package membuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndAdvance(t *testing.T) {
	m := New(16, 2)
	require.NoError(t, m.Append([]byte("hello")))
	assert.Equal(t, 5, m.Len())
	assert.Equal(t, []byte("hello"), m.Bytes())

	m.Advance(2)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []byte("llo"), m.Bytes())
}

func TestAdvanceToEmptySnapsCursor(t *testing.T) {
	m := New(16, 2)
	require.NoError(t, m.Append([]byte("hi")))
	m.Advance(2)
	assert.Equal(t, 0, m.Len())

	// Internal cursor reset is observable indirectly: appending again
	// should not require growth even though the original capacity was
	// small and we've "moved" the cursor conceptually.
	require.NoError(t, m.Append([]byte("0123456789012345")))
	assert.Equal(t, 16, m.Len())
}

func TestGrowthDoublesUntilSufficient(t *testing.T) {
	m := New(4, 2)
	require.NoError(t, m.Append([]byte("01234567890123456789")))
	assert.Equal(t, 20, m.Len())
	assert.GreaterOrEqual(t, m.Cap(), 20)
}

func TestNoGrowFactorFailsOnOverflow(t *testing.T) {
	m := New(4, 1)
	err := m.Append([]byte("12345"))
	assert.ErrorIs(t, err, ErrNoGrow)

	// A reservation that fits exactly must still succeed.
	m2 := New(4, 1)
	require.NoError(t, m2.Append([]byte("1234")))
}

func TestResetEmptiesWithoutFreeing(t *testing.T) {
	m := New(16, 2)
	require.NoError(t, m.Append([]byte("data")))
	capBefore := m.Cap()
	m.Reset()
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, capBefore, m.Cap())
}

func TestFreeReleasesBackingStore(t *testing.T) {
	m := New(16, 2)
	m.Free()
	assert.Equal(t, 0, m.Cap())
	assert.Equal(t, 0, m.Len())
}

func TestPoolBucketsRoundTrip(t *testing.T) {
	for _, sz := range []int{512, size1k, size4k, size16k, size64k, size64k + 1} {
		buf := allocate(sz)
		assert.Len(t, buf, sz)
		release(buf)
	}
}
