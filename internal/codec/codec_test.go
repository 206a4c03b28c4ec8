package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromGoToGoRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
	}{
		{"nil", nil},
		{"bool true", true},
		{"bool false", false},
		{"small byte", uint8(200)},
		{"int in byte range", 42},
		{"negative int", int64(-7)},
		{"large int", int64(1 << 40)},
		{"float", 3.14159},
		{"short string", "hi"},
		{"long string", string(make([]byte, 512))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromGo(tt.in)
			require.NoError(t, err)

			encoded, err := AppendValue(nil, v)
			require.NoError(t, err)

			decoded, n, err := DecodeValue(encoded)
			require.NoError(t, err)
			assert.Equal(t, len(encoded), n)

			switch x := tt.in.(type) {
			case int:
				// every integer decodes as int64, whatever Go type it was.
				assert.Equal(t, int64(x), decoded.ToGo())
				return
			case uint8:
				assert.Equal(t, int64(x), decoded.ToGo())
				return
			}
			assert.Equal(t, tt.in, decoded.ToGo())
		})
	}
}

func TestArrayRoundTrip(t *testing.T) {
	data := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	v := Value{Kind: KindArray, Arr: Array{ElemType: ElemU16, Data: data}}

	encoded, err := AppendValue(nil, v)
	require.NoError(t, err)

	decoded, n, err := DecodeValue(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, ElemU16, decoded.Arr.ElemType)
	assert.Equal(t, data, decoded.Arr.Data)
	assert.Equal(t, 4, decoded.Arr.Count())
}

func TestDecodeValuesStopsAtMax(t *testing.T) {
	var buf []byte
	for i := 0; i < 5; i++ {
		v, _ := FromGo(i)
		var err error
		buf, err = AppendValue(buf, v)
		require.NoError(t, err)
	}

	values, consumedBytes, consumedValues, err := DecodeValues(buf, 3)
	require.NoError(t, err)
	assert.Len(t, values, 3)
	assert.Equal(t, 3, consumedValues)
	assert.Less(t, consumedBytes, len(buf))

	all, _, allCount, err := DecodeValues(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, allCount)
	assert.Len(t, all, 5)
}

func TestDecodeValueTruncated(t *testing.T) {
	_, _, err := DecodeValue(nil)
	assert.Error(t, err)

	v, _ := FromGo("hello world")
	encoded, err := AppendValue(nil, v)
	require.NoError(t, err)

	_, _, err = DecodeValue(encoded[:len(encoded)-1])
	assert.Error(t, err)
}

func TestFromGoUnsupportedType(t *testing.T) {
	_, err := FromGo(struct{ X int }{X: 1})
	require.Error(t, err)
	var ute *UnsupportedType
	assert.ErrorAs(t, err, &ute)
}

func TestFrameHeaderShortAndLong(t *testing.T) {
	short := AppendFrameHeader(nil, 100)
	assert.Len(t, short, 1)
	n, hlen, err := DecodeFrameHeader(short)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, 1, hlen)

	long := AppendFrameHeader(nil, 1<<20)
	assert.Len(t, long, 9)
	n, hlen, err = DecodeFrameHeader(long)
	require.NoError(t, err)
	assert.Equal(t, 1<<20, n)
	assert.Equal(t, 9, hlen)

	assert.Equal(t, 1, FrameHeaderLen(254))
	assert.Equal(t, 9, FrameHeaderLen(255))
}

func TestLightUserDataAndCFunctionRoundTrip(t *testing.T) {
	lu, err := FromGo(LightUserData(0xDEADBEEF))
	require.NoError(t, err)
	encoded, err := AppendValue(nil, lu)
	require.NoError(t, err)
	decoded, _, err := DecodeValue(encoded)
	require.NoError(t, err)
	assert.Equal(t, LightUserData(0xDEADBEEF), decoded.ToGo())

	cf, err := FromGo(CFunction(0x1234))
	require.NoError(t, err)
	encoded, err = AppendValue(nil, cf)
	require.NoError(t, err)
	decoded, _, err = DecodeValue(encoded)
	require.NoError(t, err)
	assert.Equal(t, CFunction(0x1234), decoded.ToGo())
}
