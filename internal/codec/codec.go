// Package codec implements the self-describing binary framing used by
// mtmsg buffers: a tag byte per Value, and a length-prefixed frame
// header in front of each ordered Value sequence. Each Kind has a
// fixed binary.LittleEndian layout behind a type-switch entry point.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ehrlich-b/mtmsg/internal/constants"
)

// Kind is the one-byte tag that precedes every encoded Value.
type Kind byte

const (
	KindNil Kind = iota
	KindInteger
	KindByte
	KindNumber
	KindBoolean
	KindString
	KindSmallString
	KindLightUserData
	KindCFunction
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInteger:
		return "integer"
	case KindByte:
		return "byte"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindSmallString:
		return "smallstring"
	case KindLightUserData:
		return "lightuserdata"
	case KindCFunction:
		return "cfunction"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// ElemType identifies the element type of an ARRAY value.
type ElemType byte

const (
	ElemU8 ElemType = iota
	ElemI8
	ElemU16
	ElemI16
	ElemU32
	ElemI32
	ElemU64
	ElemI64
	ElemF32
	ElemF64
)

// ElemSize returns the byte width of one element of the given type, or
// 0 if t is not a recognized element type.
func ElemSize(t ElemType) int {
	switch t {
	case ElemU8, ElemI8:
		return 1
	case ElemU16, ElemI16:
		return 2
	case ElemU32, ElemI32, ElemF32:
		return 4
	case ElemU64, ElemI64, ElemF64:
		return 8
	default:
		return 0
	}
}

// Array is the payload of a KindArray value: a run of same-typed
// numeric elements, stored as raw little-endian bytes.
type Array struct {
	ElemType ElemType
	Data     []byte // len(Data) == count*ElemSize(ElemType)
}

// Count returns the number of elements encoded in a.Data.
func (a Array) Count() int {
	sz := ElemSize(a.ElemType)
	if sz == 0 {
		return 0
	}
	return len(a.Data) / sz
}

// Value is a tagged union over every type the wire encoding supports.
type Value struct {
	Kind Kind
	I    int64   // Integer, Byte
	F    float64 // Number
	B    bool    // Boolean
	S    []byte  // String, SmallString, LightUserData (8-byte ptr bits), CFunction (8-byte ptr bits)
	Arr  Array   // Array
}

// UnsupportedType is returned by FromGo when a Go value has no Value
// encoding.
type UnsupportedType struct {
	GoType string
}

func (e *UnsupportedType) Error() string {
	return fmt.Sprintf("codec: unsupported type %s", e.GoType)
}

// LightUserData is an opaque pointer-sized payload with no callable
// semantics in Go; it round-trips through encode/decode by value.
type LightUserData uint64

// CFunction is an opaque pointer-sized payload, kept distinct from
// LightUserData only by its tag.
type CFunction uint64

// FromGo converts a native Go value into a Value, the encoding-side
// equivalent of uapi.Marshal's type switch.
func FromGo(v interface{}) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Value{Kind: KindNil}, nil
	case bool:
		return Value{Kind: KindBoolean, B: x}, nil
	case int:
		return intValue(int64(x)), nil
	case int8:
		return intValue(int64(x)), nil
	case int16:
		return intValue(int64(x)), nil
	case int32:
		return intValue(int64(x)), nil
	case int64:
		return intValue(x), nil
	case uint8:
		return Value{Kind: KindByte, I: int64(x)}, nil
	case uint16:
		return intValue(int64(x)), nil
	case uint32:
		return intValue(int64(x)), nil
	case uint64:
		return intValue(int64(x)), nil
	case float32:
		return Value{Kind: KindNumber, F: float64(x)}, nil
	case float64:
		return Value{Kind: KindNumber, F: x}, nil
	case string:
		return stringValue([]byte(x)), nil
	case []byte:
		return stringValue(x), nil
	case LightUserData:
		return Value{Kind: KindLightUserData, S: u64Bytes(uint64(x))}, nil
	case CFunction:
		return Value{Kind: KindCFunction, S: u64Bytes(uint64(x))}, nil
	case Array:
		return Value{Kind: KindArray, Arr: x}, nil
	default:
		return Value{}, &UnsupportedType{GoType: fmt.Sprintf("%T", v)}
	}
}

func intValue(i int64) Value {
	if i >= 0 && i <= 255 {
		return Value{Kind: KindByte, I: i}
	}
	return Value{Kind: KindInteger, I: i}
}

func stringValue(b []byte) Value {
	if len(b) <= constants.SmallStringMax {
		return Value{Kind: KindSmallString, S: b}
	}
	return Value{Kind: KindString, S: b}
}

func u64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// ToGo converts a Value back into a native Go value. Integers come back
// as int64 whichever Go integer type was passed to FromGo, including
// those stored with the one-byte KindByte encoding.
func (v Value) ToGo() interface{} {
	switch v.Kind {
	case KindNil:
		return nil
	case KindBoolean:
		return v.B
	case KindByte:
		return v.I
	case KindInteger:
		return v.I
	case KindNumber:
		return v.F
	case KindSmallString, KindString:
		return string(v.S)
	case KindLightUserData:
		return LightUserData(binary.LittleEndian.Uint64(v.S))
	case KindCFunction:
		return CFunction(binary.LittleEndian.Uint64(v.S))
	case KindArray:
		return v.Arr
	default:
		return nil
	}
}

// AppendValue appends the encoded form of v to dst and returns the
// extended slice.
func AppendValue(dst []byte, v Value) ([]byte, error) {
	dst = append(dst, byte(v.Kind))
	switch v.Kind {
	case KindNil:
		return dst, nil
	case KindByte:
		return append(dst, byte(v.I)), nil
	case KindInteger:
		return appendInt64(dst, v.I), nil
	case KindNumber:
		return appendUint64(dst, math.Float64bits(v.F)), nil
	case KindBoolean:
		if v.B {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case KindSmallString:
		if len(v.S) > constants.SmallStringMax {
			return nil, &UnsupportedType{GoType: "smallstring too long"}
		}
		dst = append(dst, byte(len(v.S)))
		return append(dst, v.S...), nil
	case KindString:
		dst = appendUint64(dst, uint64(len(v.S)))
		return append(dst, v.S...), nil
	case KindLightUserData, KindCFunction:
		if len(v.S) != 8 {
			return nil, &UnsupportedType{GoType: "pointer payload must be 8 bytes"}
		}
		return append(dst, v.S...), nil
	case KindArray:
		sz := ElemSize(v.Arr.ElemType)
		if sz == 0 {
			return nil, &UnsupportedType{GoType: "unknown array element type"}
		}
		dst = append(dst, byte(v.Arr.ElemType), byte(sz))
		dst = appendUint64(dst, uint64(v.Arr.Count()))
		return append(dst, v.Arr.Data...), nil
	default:
		return nil, &UnsupportedType{GoType: v.Kind.String()}
	}
}

// DecodeValue decodes one Value from the head of src, returning the
// value and the number of bytes consumed.
func DecodeValue(src []byte) (Value, int, error) {
	if len(src) < 1 {
		return Value{}, 0, errTruncated("tag")
	}
	kind := Kind(src[0])
	rest := src[1:]
	switch kind {
	case KindNil:
		return Value{Kind: KindNil}, 1, nil
	case KindByte:
		if len(rest) < 1 {
			return Value{}, 0, errTruncated("byte")
		}
		return Value{Kind: KindByte, I: int64(rest[0])}, 2, nil
	case KindInteger:
		if len(rest) < 8 {
			return Value{}, 0, errTruncated("integer")
		}
		return Value{Kind: KindInteger, I: int64(binary.LittleEndian.Uint64(rest))}, 9, nil
	case KindNumber:
		if len(rest) < 8 {
			return Value{}, 0, errTruncated("number")
		}
		return Value{Kind: KindNumber, F: math.Float64frombits(binary.LittleEndian.Uint64(rest))}, 9, nil
	case KindBoolean:
		if len(rest) < 1 {
			return Value{}, 0, errTruncated("boolean")
		}
		return Value{Kind: KindBoolean, B: rest[0] != 0}, 2, nil
	case KindSmallString:
		if len(rest) < 1 {
			return Value{}, 0, errTruncated("smallstring length")
		}
		n := int(rest[0])
		if len(rest) < 1+n {
			return Value{}, 0, errTruncated("smallstring data")
		}
		s := make([]byte, n)
		copy(s, rest[1:1+n])
		return Value{Kind: KindSmallString, S: s}, 2 + n, nil
	case KindString:
		if len(rest) < 8 {
			return Value{}, 0, errTruncated("string length")
		}
		n := int(binary.LittleEndian.Uint64(rest))
		if n < 0 || len(rest) < 8+n {
			return Value{}, 0, errTruncated("string data")
		}
		s := make([]byte, n)
		copy(s, rest[8:8+n])
		return Value{Kind: KindString, S: s}, 9 + n, nil
	case KindLightUserData, KindCFunction:
		if len(rest) < 8 {
			return Value{}, 0, errTruncated("pointer payload")
		}
		s := make([]byte, 8)
		copy(s, rest[:8])
		return Value{Kind: kind, S: s}, 9, nil
	case KindArray:
		if len(rest) < 2+8 {
			return Value{}, 0, errTruncated("array header")
		}
		elemType := ElemType(rest[0])
		elemSize := int(rest[1])
		if ElemSize(elemType) != elemSize || elemSize == 0 {
			return Value{}, 0, fmt.Errorf("codec: inconsistent array element size")
		}
		count := int(binary.LittleEndian.Uint64(rest[2:10]))
		dataLen := count * elemSize
		if count < 0 || len(rest) < 10+dataLen {
			return Value{}, 0, errTruncated("array data")
		}
		data := make([]byte, dataLen)
		copy(data, rest[10:10+dataLen])
		return Value{Kind: KindArray, Arr: Array{ElemType: elemType, Data: data}}, 11 + dataLen, nil
	default:
		return Value{}, 0, &UnsupportedType{GoType: kind.String()}
	}
}

// DecodeValues decodes up to maxValues Values starting at src[0],
// stopping early if it runs out of bytes. maxValues <= 0 means
// unlimited. It returns the decoded values, bytes consumed, and
// values consumed.
func DecodeValues(src []byte, maxValues int) (values []Value, consumedBytes int, consumedValues int, err error) {
	for len(src) > 0 {
		if maxValues > 0 && consumedValues >= maxValues {
			break
		}
		v, n, derr := DecodeValue(src)
		if derr != nil {
			return values, consumedBytes, consumedValues, derr
		}
		values = append(values, v)
		src = src[n:]
		consumedBytes += n
		consumedValues++
	}
	return values, consumedBytes, consumedValues, nil
}

func appendInt64(dst []byte, v int64) []byte {
	return appendUint64(dst, uint64(v))
}

func appendUint64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func errTruncated(what string) error {
	return fmt.Errorf("codec: truncated %s", what)
}

// AppendFrameHeader appends a frame-length header in front of a
// payload of payloadLen bytes.
func AppendFrameHeader(dst []byte, payloadLen int) []byte {
	if payloadLen <= constants.FrameShortMax {
		return append(dst, byte(payloadLen))
	}
	dst = append(dst, constants.FrameLongSentinel)
	return appendUint64(dst, uint64(payloadLen))
}

// DecodeFrameHeader reads a frame header from the head of src,
// returning the declared payload length and the header's own byte
// width.
func DecodeFrameHeader(src []byte) (payloadLen int, headerLen int, err error) {
	if len(src) < 1 {
		return 0, 0, errTruncated("frame header")
	}
	b := src[0]
	if b != constants.FrameLongSentinel {
		return int(b), 1, nil
	}
	if len(src) < 9 {
		return 0, 0, errTruncated("frame long length")
	}
	return int(binary.LittleEndian.Uint64(src[1:9])), 9, nil
}

// FrameHeaderLen returns the number of bytes AppendFrameHeader would
// use for a payload of the given length, without writing anything.
func FrameHeaderLen(payloadLen int) int {
	if payloadLen <= constants.FrameShortMax {
		return 1
	}
	return 9
}
