// Package wire packs and unpacks values to and from the bit packed, little
// endian layouts used by EtherCAT registers, frames and mailbox headers.
//
// Structs are described once with [MustStruct] using `wire` struct tags and
// enums with [MustEnum]. After that any value of these types, any fixed size
// primitive and any type implementing [Packer] / [Unpacker] can be used with
// [Pack], [Marshal], [Unpack] and [Decode].
package wire

import (
	"encoding/binary"
	"math"
	"reflect"
	"sync"
)

// Packer is implemented by types that encode themselves.
// PackTo must return [ErrBufferTooShort] when buf is smaller than PackedLen.
type Packer interface {
	PackedLen() int
	PackTo(buf []byte) (int, error)
}

// Unpacker is implemented by types that decode themselves.
type Unpacker interface {
	UnpackFrom(buf []byte) error
}

var (
	packerType   = reflect.TypeOf((*Packer)(nil)).Elem()
	unpackerType = reflect.TypeOf((*Unpacker)(nil)).Elem()
)

type codec interface {
	size() int
	pack(v reflect.Value, buf []byte) error
	unpack(buf []byte, v reflect.Value) error
}

// Declared struct layouts and enums
var registry sync.Map

// Codecs resolved for builtin kinds and custom types
var resolved sync.Map

func register(t reflect.Type, c codec) {
	registry.Store(t, c)
	resolved.Delete(t)
}

func codecFor(t reflect.Type) (codec, error) {
	if c, ok := registry.Load(t); ok {
		return c.(codec), nil
	}
	if c, ok := resolved.Load(t); ok {
		return c.(codec), nil
	}
	c, err := builtinCodec(t)
	if err != nil {
		return nil, err
	}
	resolved.Store(t, c)
	return c, nil
}

func builtinCodec(t reflect.Type) (codec, error) {
	if t.Implements(packerType) || reflect.PointerTo(t).Implements(packerType) {
		if reflect.PointerTo(t).Implements(unpackerType) {
			return newCustomCodec(t), nil
		}
	}
	switch t.Kind() {
	case reflect.Bool:
		return boolCodec{}, nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return intCodec{n: int(t.Size())}, nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intCodec{n: int(t.Size()), signed: true}, nil
	case reflect.Float32, reflect.Float64:
		return floatCodec{n: int(t.Size())}, nil
	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return bytesCodec{n: t.Len()}, nil
		}
	case reflect.Struct:
		if t.NumField() == 0 {
			return zeroCodec{}, nil
		}
	}
	return nil, ErrUnsupportedType
}

// Size returns the packed length in bytes of v.
func Size(v any) (int, error) {
	if p, ok := v.(Packer); ok {
		return p.PackedLen(), nil
	}
	rv := reflect.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return 0, ErrUnsupportedType
	}
	c, err := codecFor(rv.Type())
	if err != nil {
		return 0, err
	}
	return c.size(), nil
}

// SizeOf returns the packed length in bytes of any value of type T.
func SizeOf[T any]() (int, error) {
	var zero T
	return Size(&zero)
}

// Pack writes the packed representation of v at the start of buf and returns
// the number of bytes written.
func Pack(v any, buf []byte) (int, error) {
	if p, ok := v.(Packer); ok {
		return p.PackTo(buf)
	}
	rv := reflect.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return 0, ErrUnsupportedType
	}
	c, err := codecFor(rv.Type())
	if err != nil {
		return 0, err
	}
	n := c.size()
	if len(buf) < n {
		return 0, bufferTooShort(rv.Type().String(), n, len(buf))
	}
	return n, c.pack(rv, buf[:n])
}

// Marshal returns a newly allocated buffer holding the packed v.
func Marshal(v any) ([]byte, error) {
	n, err := Size(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	_, err = Pack(v, buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Unpack decodes the start of buf into v, which must be a non nil pointer.
func Unpack(buf []byte, v any) error {
	if u, ok := v.(Unpacker); ok {
		return u.UnpackFrom(buf)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrUnsupportedType
	}
	rv = rv.Elem()
	c, err := codecFor(rv.Type())
	if err != nil {
		return err
	}
	n := c.size()
	if len(buf) < n {
		return shortBuffer(rv.Type().String(), n, len(buf))
	}
	return c.unpack(buf[:n], rv)
}

// Decode is a typed shorthand for [Unpack].
func Decode[T any](buf []byte) (T, error) {
	var out T
	err := Unpack(buf, &out)
	return out, err
}

type boolCodec struct{}

func (boolCodec) size() int { return 1 }

func (boolCodec) pack(v reflect.Value, buf []byte) error {
	buf[0] = 0
	if v.Bool() {
		buf[0] = 1
	}
	return nil
}

func (boolCodec) unpack(buf []byte, v reflect.Value) error {
	v.SetBool(buf[0] == 1)
	return nil
}

type intCodec struct {
	n      int
	signed bool
}

func (c intCodec) size() int { return c.n }

func (c intCodec) pack(v reflect.Value, buf []byte) error {
	var raw uint64
	if c.signed {
		raw = uint64(v.Int())
	} else {
		raw = v.Uint()
	}
	putUint(buf[:c.n], raw)
	return nil
}

func (c intCodec) unpack(buf []byte, v reflect.Value) error {
	raw := getUint(buf[:c.n])
	if c.signed {
		// Sign extend from the stored width
		shift := 64 - 8*uint(c.n)
		v.SetInt(int64(raw<<shift) >> shift)
	} else {
		v.SetUint(raw)
	}
	return nil
}

type floatCodec struct {
	n int
}

func (c floatCodec) size() int { return c.n }

func (c floatCodec) pack(v reflect.Value, buf []byte) error {
	if c.n == 4 {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v.Float())))
	} else {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.Float()))
	}
	return nil
}

func (c floatCodec) unpack(buf []byte, v reflect.Value) error {
	if c.n == 4 {
		v.SetFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))))
	} else {
		v.SetFloat(math.Float64frombits(binary.LittleEndian.Uint64(buf)))
	}
	return nil
}

type bytesCodec struct {
	n int
}

func (c bytesCodec) size() int { return c.n }

func (c bytesCodec) pack(v reflect.Value, buf []byte) error {
	reflect.Copy(reflect.ValueOf(buf[:c.n]), v)
	return nil
}

func (c bytesCodec) unpack(buf []byte, v reflect.Value) error {
	reflect.Copy(v, reflect.ValueOf(buf[:c.n]))
	return nil
}

type zeroCodec struct{}

func (zeroCodec) size() int                         { return 0 }
func (zeroCodec) pack(reflect.Value, []byte) error   { return nil }
func (zeroCodec) unpack([]byte, reflect.Value) error { return nil }

type customCodec struct {
	typ reflect.Type
	n   int
}

func newCustomCodec(t reflect.Type) customCodec {
	zero := reflect.New(t)
	return customCodec{typ: t, n: asPacker(zero.Elem()).PackedLen()}
}

func (c customCodec) size() int { return c.n }

func (c customCodec) pack(v reflect.Value, buf []byte) error {
	_, err := asPacker(v).PackTo(buf)
	return err
}

func (c customCodec) unpack(buf []byte, v reflect.Value) error {
	return v.Addr().Interface().(Unpacker).UnpackFrom(buf)
}

func asPacker(v reflect.Value) Packer {
	if p, ok := v.Interface().(Packer); ok {
		return p
	}
	if v.CanAddr() {
		return v.Addr().Interface().(Packer)
	}
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	return ptr.Interface().(Packer)
}

func putUint(buf []byte, v uint64) {
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
}

func getUint(buf []byte) uint64 {
	var v uint64
	for i := range buf {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v
}
