package wire

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testState uint8

const (
	testStateNone  testState = 0
	testStateInit  testState = 1
	testStatePreOp testState = 2
	testStateOp    testState = 8
)

type testFmmu uint8

const (
	testFmmuUnused testFmmu = 0x00
	testFmmuOutput testFmmu = 0x01
)

type testCategory uint16

const (
	testCategoryNop            testCategory = 0
	testCategoryDeviceSpecific testCategory = 1
	testCategoryGeneral        testCategory = 30
)

type testCode uint16

const (
	testCodeNoError testCode = 0x0000
	testCodeBusy    testCode = 0x0015
)

// Declared before the nested layouts it references
type testOuter struct {
	Control testControl `wire:"bytes=2"`
	Value   uint32      `wire:"bytes=4"`
}

type testControl struct {
	State testState `wire:"bits=4"`
	Ack   bool      `wire:"bits=1,post_skip=11"`
}

type testNibbles struct {
	Low  uint8 `wire:"bits=3"`
	Mid  bool  `wire:"bits=1"`
	High uint8 `wire:"bits=4"`
}

type testSigned struct {
	Offset int8  `wire:"bits=4"`
	Gain   uint8 `wire:"bits=3"`
	Trim   int8  `wire:"bits=1"`
}

type testSkipped struct {
	First  uint16 `wire:"bytes=2"`
	Hidden uint8  `wire:"bytes=1,skip"`
	Last   uint8  `wire:"pre_skip=8"`
}

type testPadded struct {
	Flag bool `wire:"bits=1"`
	_    byte `wire:"bits=7"`
	Word uint16
}

type testPoint struct {
	X int16 `wire:"bytes=2"`
	Y int16 `wire:"bytes=2"`
}

type testMixed struct {
	Name  [4]byte
	Temp  float32
	Count int8
	Point testPoint `wire:"bytes=4"`
}

type testCustom struct {
	Raw uint16
}

func (c testCustom) PackedLen() int { return 2 }

func (c testCustom) PackTo(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, ErrBufferTooShort
	}
	binary.BigEndian.PutUint16(buf, c.Raw)
	return 2, nil
}

func (c *testCustom) UnpackFrom(buf []byte) error {
	if len(buf) < 2 {
		return ErrShortBuffer
	}
	c.Raw = binary.BigEndian.Uint16(buf)
	return nil
}

type testWithCustom struct {
	Tag    uint8
	Custom testCustom `wire:"bytes=2"`
}

var (
	testStateEnum = MustEnum(EnumSpec[testState]{
		Bits:     8,
		Variants: []testState{testStateNone, testStateInit, testStatePreOp, testStateOp},
	})
	testFmmuEnum = MustEnum(EnumSpec[testFmmu]{
		Bits:       8,
		Variants:   []testFmmu{testFmmuUnused, testFmmuOutput},
		Alternates: map[testFmmu][]uint64{testFmmuUnused: {0xff}},
	})
	_ = MustEnum(EnumSpec[testCategory]{
		Bits:       16,
		Variants:   []testCategory{testCategoryNop, testCategoryDeviceSpecific, testCategoryGeneral},
		Alternates: map[testCategory][]uint64{testCategoryDeviceSpecific: {2, 3, 4, 5, 6, 7, 8, 9}},
	})
	testCodeEnum = MustEnum(EnumSpec[testCode]{
		Bits:     16,
		Variants: []testCode{testCodeNoError, testCodeBusy},
		CatchAll: true,
	})
	_ = MustStruct[testOuter](48)
	_ = MustStruct[testControl](16)
	_ = MustStruct[testNibbles](8)
	_ = MustStruct[testSigned](8)
	_ = MustStruct[testSkipped](40)
	_ = MustStruct[testPadded](24)
	_ = MustStruct[testPoint](32)
	_ = MustStruct[testMixed](104)
	_ = MustStruct[testWithCustom](24)
)

func TestPackControl(t *testing.T) {
	buf, err := Marshal(testControl{State: testStateOp, Ack: true})
	assert.Nil(t, err)
	assert.Equal(t, []byte{0x18, 0x00}, buf)

	buf, err = Marshal(testControl{State: testStatePreOp})
	assert.Nil(t, err)
	assert.Equal(t, []byte{0x02, 0x00}, buf)
}

func TestRoundTrip(t *testing.T) {
	t.Run("nested declared out of order", func(t *testing.T) {
		in := testOuter{Control: testControl{State: testStateInit, Ack: true}, Value: 0xdeadbeef}
		buf, err := Marshal(in)
		assert.Nil(t, err)
		assert.Equal(t, []byte{0x11, 0x00, 0xef, 0xbe, 0xad, 0xde}, buf)
		out, err := Decode[testOuter](buf)
		assert.Nil(t, err)
		assert.Equal(t, in, out)
	})
	t.Run("mixed kinds", func(t *testing.T) {
		in := testMixed{
			Name:  [4]byte{'e', 'c', 'a', 't'},
			Temp:  21.5,
			Count: -3,
			Point: testPoint{X: -100, Y: 250},
		}
		buf, err := Marshal(in)
		assert.Nil(t, err)
		assert.Len(t, buf, 13)
		assert.Equal(t, byte(0xfd), buf[8])
		out, err := Decode[testMixed](buf)
		assert.Nil(t, err)
		assert.Equal(t, in, out)
	})
	t.Run("signed sub byte fields", func(t *testing.T) {
		for _, in := range []testSigned{
			{Offset: -3, Gain: 5, Trim: -1},
			{Offset: -8, Gain: 7, Trim: 0},
			{Offset: 7, Gain: 0, Trim: -1},
			{Offset: 0, Gain: 1, Trim: 0},
		} {
			buf, err := Marshal(in)
			assert.Nil(t, err)
			out, err := Decode[testSigned](buf)
			assert.Nil(t, err)
			assert.Equal(t, in, out)
		}
		buf, err := Marshal(testSigned{Offset: -3, Gain: 5})
		assert.Nil(t, err)
		assert.Equal(t, []byte{0x5d}, buf)
	})
	t.Run("custom packer", func(t *testing.T) {
		in := testWithCustom{Tag: 7, Custom: testCustom{Raw: 0x1234}}
		buf, err := Marshal(in)
		assert.Nil(t, err)
		assert.Equal(t, []byte{0x07, 0x12, 0x34}, buf)
		out, err := Decode[testWithCustom](buf)
		assert.Nil(t, err)
		assert.Equal(t, in, out)
	})
	t.Run("primitives", func(t *testing.T) {
		buf, err := Marshal(uint32(0x01020304))
		assert.Nil(t, err)
		assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf)
		v, err := Decode[uint32](buf)
		assert.Nil(t, err)
		assert.EqualValues(t, 0x01020304, v)
		i, err := Decode[int16]([]byte{0xfe, 0xff})
		assert.Nil(t, err)
		assert.EqualValues(t, -2, i)
		b, err := Decode[bool]([]byte{1})
		assert.Nil(t, err)
		assert.True(t, b)
	})
}

func TestSiblingBits(t *testing.T) {
	in := testNibbles{Low: 0x5, Mid: true, High: 0xa}
	buf, err := Marshal(in)
	assert.Nil(t, err)
	assert.Equal(t, []byte{0xad}, buf)

	// Only the masked bits of each field are written
	buf, err = Marshal(testNibbles{Low: 0xff, High: 0x0})
	assert.Nil(t, err)
	assert.Equal(t, []byte{0x07}, buf)

	out, err := Decode[testNibbles]([]byte{0xad})
	assert.Nil(t, err)
	assert.Equal(t, in, out)

	// Dirty destination bytes do not leak into the result
	dirty := []byte{0xff, 0xee}
	n, err := Pack(testNibbles{High: 0x1}, dirty)
	assert.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []byte{0x10, 0xee}, dirty)
}

func TestSkipAndPadding(t *testing.T) {
	buf, err := Marshal(testSkipped{First: 0x0102, Hidden: 0x33, Last: 0x44})
	assert.Nil(t, err)
	assert.Equal(t, []byte{0x02, 0x01, 0x00, 0x00, 0x44}, buf)

	out, err := Decode[testSkipped]([]byte{0x02, 0x01, 0x99, 0x99, 0x44})
	assert.Nil(t, err)
	assert.Equal(t, testSkipped{First: 0x0102, Last: 0x44}, out)

	padded, err := Decode[testPadded]([]byte{0xff, 0x34, 0x12})
	assert.Nil(t, err)
	assert.True(t, padded.Flag)
	assert.EqualValues(t, 0x1234, padded.Word)
}

func TestEnum(t *testing.T) {
	t.Run("alternate decodes to primary variant", func(t *testing.T) {
		v, err := Decode[testFmmu]([]byte{0xff})
		assert.Nil(t, err)
		assert.Equal(t, testFmmuUnused, v)
		buf, err := Marshal(v)
		assert.Nil(t, err)
		assert.Equal(t, []byte{0x00}, buf)
	})
	t.Run("range of alternates", func(t *testing.T) {
		for raw := uint16(2); raw <= 9; raw++ {
			buf := []byte{byte(raw), 0}
			v, err := Decode[testCategory](buf)
			assert.Nil(t, err)
			assert.Equal(t, testCategoryDeviceSpecific, v)
		}
	})
	t.Run("unknown discriminant", func(t *testing.T) {
		_, err := Decode[testState]([]byte{0x07})
		var decodeErr *DecodeError
		assert.True(t, errors.As(err, &decodeErr))
		assert.ErrorIs(t, err, ErrUnknownDiscriminant)
		assert.EqualValues(t, 7, decodeErr.Value)
	})
	t.Run("unknown inside a struct", func(t *testing.T) {
		_, err := Decode[testControl]([]byte{0x03, 0x00})
		assert.ErrorIs(t, err, ErrUnknownDiscriminant)
	})
	t.Run("catch all", func(t *testing.T) {
		v, err := Decode[testCode]([]byte{0x34, 0x80})
		assert.Nil(t, err)
		assert.EqualValues(t, 0x8034, v)
		assert.False(t, testCodeEnum.Known(v))
		assert.True(t, testCodeEnum.Known(testCodeBusy))
	})
	t.Run("lookup", func(t *testing.T) {
		v, err := testStateEnum.Lookup(2)
		assert.Nil(t, err)
		assert.Equal(t, testStatePreOp, v)
		assert.True(t, testFmmuEnum.Known(testFmmuOutput))
	})
}

func TestBufferLengths(t *testing.T) {
	_, err := Pack(testOuter{}, make([]byte, 5))
	assert.ErrorIs(t, err, ErrBufferTooShort)

	_, err = Decode[testOuter](make([]byte, 5))
	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
	assert.ErrorIs(t, err, ErrShortBuffer)
	assert.Equal(t, 6, decodeErr.Want)
	assert.Equal(t, 5, decodeErr.Got)

	// Extra trailing bytes are ignored
	buf := []byte{0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0xaa, 0xbb}
	out, err := Decode[testOuter](buf)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, out.Value)

	n, err := SizeOf[testMixed]()
	assert.Nil(t, err)
	assert.Equal(t, 13, n)

	// Nil pointers have nothing to pack
	_, err = Pack((*testSigned)(nil), make([]byte, 4))
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = Size((*testSigned)(nil))
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = Marshal(nil)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, ok := LayoutOf((*testSigned)(nil))
	assert.False(t, ok)
}

func TestInvalidLayouts(t *testing.T) {
	type crossing struct {
		A uint8 `wire:"bits=6"`
		B uint8 `wire:"bits=4"`
	}
	_, err := NewStruct[crossing](10)
	assert.ErrorIs(t, err, ErrInvalidLayout)

	type unaligned struct {
		A uint8  `wire:"bits=4"`
		B uint16 `wire:"bits=12"`
	}
	_, err = NewStruct[unaligned](16)
	assert.ErrorIs(t, err, ErrInvalidLayout)

	type wrongTotal struct {
		A uint16
	}
	_, err = NewStruct[wrongTotal](24)
	assert.ErrorIs(t, err, ErrInvalidLayout)

	type tooWide struct {
		A uint8 `wire:"bits=16"`
	}
	_, err = NewStruct[tooWide](16)
	assert.ErrorIs(t, err, ErrInvalidLayout)

	type boolNoWidth struct {
		A bool
	}
	_, err = NewStruct[boolNoWidth](8)
	assert.ErrorIs(t, err, ErrInvalidLayout)

	type nested struct {
		Inner testPoint
	}
	_, err = NewStruct[nested](32)
	assert.ErrorIs(t, err, ErrInvalidLayout)

	_, err = NewEnum(EnumSpec[testState]{Bits: 12})
	assert.ErrorIs(t, err, ErrInvalidLayout)

	type dupEnum uint8
	_, err = NewEnum(EnumSpec[dupEnum]{Bits: 8, Variants: []dupEnum{1}, Alternates: map[dupEnum][]uint64{1: {1}}})
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestLayoutOf(t *testing.T) {
	layout, ok := LayoutOf(testControl{})
	assert.True(t, ok)
	assert.Len(t, layout.Fields, 2)
	assert.Equal(t, Range{Start: 0, End: 1}, layout.Fields[0].Bytes)
	assert.Equal(t, 4, layout.Fields[1].BitOffset)
	assert.Equal(t, 11, layout.Fields[1].PostSkip)
	assert.Equal(t, KindInt, layout.Fields[0].Kind)
	assert.Equal(t, KindBool, layout.Fields[1].Kind)
	assert.Equal(t, 2, layout.Size())

	_, ok = LayoutOf(uint8(0))
	assert.False(t, ok)
}
