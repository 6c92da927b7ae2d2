package wire

import (
	"fmt"
	"reflect"
)

type Integer interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64
}

// EnumSpec declares how an integer backed enum is represented on the wire.
type EnumSpec[T Integer] struct {
	// Width of the discriminant, one of 8, 16, 32 or 64
	Bits int
	// Declared variants, each encoded as its own value
	Variants []T
	// Extra raw values that decode to an existing variant
	Alternates map[T][]uint64
	// Unknown raw values decode to themselves instead of failing
	CatchAll bool
}

// Enum is the registered representation of T.
type Enum[T Integer] struct {
	typ      reflect.Type
	bytes    int
	decode   map[uint64]T
	catchAll bool
}

// NewEnum validates spec and registers it for T.
func NewEnum[T Integer](spec EnumSpec[T]) (*Enum[T], error) {
	t := reflect.TypeOf(T(0))
	name := t.String()
	switch spec.Bits {
	case 8, 16, 32, 64:
	default:
		return nil, invalidLayout(name, "enum width %d bits", spec.Bits)
	}
	if int(t.Size())*8 < spec.Bits {
		return nil, invalidLayout(name, "enum width %d bits wider than its type", spec.Bits)
	}
	e := &Enum[T]{
		typ:      t,
		bytes:    spec.Bits / 8,
		decode:   make(map[uint64]T),
		catchAll: spec.CatchAll,
	}
	for _, v := range spec.Variants {
		raw := e.raw(v)
		if _, exists := e.decode[raw]; exists {
			return nil, invalidLayout(name, "duplicate variant 0x%x", raw)
		}
		e.decode[raw] = v
	}
	for v, alts := range spec.Alternates {
		if _, declared := e.decode[e.raw(v)]; !declared {
			return nil, invalidLayout(name, "alternate for undeclared variant %v", v)
		}
		for _, alt := range alts {
			if alt != alt&e.mask() {
				return nil, invalidLayout(name, "alternate 0x%x does not fit %d bits", alt, spec.Bits)
			}
			if _, exists := e.decode[alt]; exists {
				return nil, invalidLayout(name, "alternate 0x%x already in use", alt)
			}
			e.decode[alt] = v
		}
	}
	register(t, e)
	return e, nil
}

// MustEnum is like [NewEnum] but panics on an invalid declaration.
func MustEnum[T Integer](spec EnumSpec[T]) *Enum[T] {
	e, err := NewEnum(spec)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Enum[T]) mask() uint64 {
	if e.bytes == 8 {
		return ^uint64(0)
	}
	return uint64(1)<<(8*e.bytes) - 1
}

func (e *Enum[T]) raw(v T) uint64 {
	return uint64(v) & e.mask()
}

// Lookup maps a raw discriminant to its variant.
func (e *Enum[T]) Lookup(raw uint64) (T, error) {
	if v, ok := e.decode[raw]; ok {
		return v, nil
	}
	if e.catchAll {
		return T(raw), nil
	}
	return 0, &DecodeError{Type: e.typ.String(), Err: ErrUnknownDiscriminant, Value: raw}
}

// Known reports whether v is a declared variant.
func (e *Enum[T]) Known(v T) bool {
	d, ok := e.decode[e.raw(v)]
	return ok && d == v
}

func (e *Enum[T]) size() int {
	return e.bytes
}

func (e *Enum[T]) pack(v reflect.Value, buf []byte) error {
	putUint(buf[:e.bytes], e.raw(v.Interface().(T)))
	return nil
}

func (e *Enum[T]) unpack(buf []byte, v reflect.Value) error {
	variant, err := e.Lookup(getUint(buf[:e.bytes]))
	if err != nil {
		return err
	}
	v.Set(reflect.ValueOf(variant))
	return nil
}

func (e *Enum[T]) String() string {
	return fmt.Sprintf("enum %s (%d variants)", e.typ, len(e.decode))
}
