package wire

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

type Kind uint8

const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindBytes
	KindNested
)

var kindNames = map[Kind]string{
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindBytes:  "bytes",
	KindNested: "nested",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Range is a half open byte range [Start, End).
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int {
	return r.End - r.Start
}

// FieldLayout describes where a single struct field lives inside the packed
// representation. BitOffset is relative to Bytes.Start, bit 0 being the least
// significant bit of that byte.
type FieldLayout struct {
	Name      string
	Index     int
	Bytes     Range
	BitOffset int
	Bits      int
	PreSkip   int
	PostSkip  int
	Skip      bool
	Kind      Kind
}

// StructLayout is the packed description of a struct type. It is built once
// by [NewStruct] and registered so that [Pack] and [Unpack] can find it.
type StructLayout struct {
	typ    reflect.Type
	Fields []FieldLayout
	Bits   int

	once   sync.Once
	codecs []codec
	err    error
}

// Size returns the packed length in bytes.
func (s *StructLayout) Size() int {
	return (s.Bits + 7) / 8
}

// Type is the go type described by the layout.
func (s *StructLayout) Type() reflect.Type {
	return s.typ
}

// NewStruct declares the packed layout of T, which must be a struct whose
// fields carry `wire` tags, and registers it. bits is the total packed width
// which must equal the sum of all field widths and skips.
//
// Supported tag keys, separated by commas :
//
//	bits=N       field width in bits
//	bytes=N      field width in bytes
//	pre_skip=N   bits left zero before the field
//	post_skip=N  bits left zero after the field
//	skip         field occupies its width but is never encoded
//	-            field is not part of the layout
//
// Untagged exported fields use the natural width of their type. Untagged
// unexported fields are ignored.
// Fields wider than 8 bits must start on a byte boundary and span whole bytes.
// Fields of 8 bits or less must not cross a byte boundary.
func NewStruct[T any](bits int) (*StructLayout, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	layout, err := buildLayout(t, bits)
	if err != nil {
		return nil, err
	}
	register(t, layout)
	return layout, nil
}

// MustStruct is like [NewStruct] but panics on an invalid declaration.
func MustStruct[T any](bits int) *StructLayout {
	layout, err := NewStruct[T](bits)
	if err != nil {
		panic(err)
	}
	return layout
}

// LayoutOf returns the registered layout for the type of v if any.
func LayoutOf(v any) (*StructLayout, bool) {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil, false
	}
	c, ok := registry.Load(rv.Type())
	if !ok {
		return nil, false
	}
	layout, ok := c.(*StructLayout)
	return layout, ok
}

type fieldTag struct {
	bits     int
	hasWidth bool
	preSkip  int
	postSkip int
	skip     bool
	ignore   bool
}

func parseTag(tag string) (fieldTag, error) {
	var ft fieldTag
	if tag == "-" {
		ft.ignore = true
		return ft, nil
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "skip" {
			ft.skip = true
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return ft, fmt.Errorf("unknown tag option %q", part)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return ft, fmt.Errorf("bad value for %s : %q", key, value)
		}
		switch key {
		case "bits":
			ft.bits = n
			ft.hasWidth = true
		case "bytes":
			ft.bits = n * 8
			ft.hasWidth = true
		case "pre_skip":
			ft.preSkip = n
		case "post_skip":
			ft.postSkip = n
		default:
			return ft, fmt.Errorf("unknown tag option %q", key)
		}
	}
	return ft, nil
}

func fieldKind(t reflect.Type) Kind {
	if t.Implements(packerType) || reflect.PointerTo(t).Implements(packerType) {
		return KindNested
	}
	switch t.Kind() {
	case reflect.Bool:
		return KindBool
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return KindInt
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindBytes
		}
	}
	return KindNested
}

func buildLayout(t reflect.Type, bits int) (*StructLayout, error) {
	name := t.String()
	if t.Kind() != reflect.Struct {
		return nil, invalidLayout(name, "not a struct")
	}
	if bits < 0 {
		return nil, invalidLayout(name, "negative width")
	}
	layout := &StructLayout{typ: t, Bits: bits}
	cursor := 0
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, tagged := sf.Tag.Lookup("wire")
		if !tagged && !sf.IsExported() {
			continue
		}
		ft, err := parseTag(tag)
		if err != nil {
			return nil, invalidLayout(name, "field %s: %v", sf.Name, err)
		}
		if ft.ignore {
			continue
		}
		kind := fieldKind(sf.Type)
		if !ft.hasWidth {
			switch kind {
			case KindInt, KindFloat, KindBytes:
				ft.bits = int(sf.Type.Size()) * 8
			default:
				return nil, invalidLayout(name, "field %s needs an explicit width", sf.Name)
			}
		}
		switch kind {
		case KindInt, KindBytes:
			if ft.bits > int(sf.Type.Size())*8 {
				return nil, invalidLayout(name, "field %s is %d bits, wider than its type", sf.Name, ft.bits)
			}
		case KindFloat:
			if ft.bits != int(sf.Type.Size())*8 {
				return nil, invalidLayout(name, "field %s must use the natural float width", sf.Name)
			}
		}

		cursor += ft.preSkip
		start := cursor / 8
		offset := cursor % 8
		if ft.bits > 8 {
			if offset != 0 {
				return nil, invalidLayout(name, "field %s is wider than a byte but starts at bit %d", sf.Name, offset)
			}
			if ft.bits%8 != 0 {
				return nil, invalidLayout(name, "field %s is wider than a byte but not a whole number of bytes", sf.Name)
			}
		} else if offset+ft.bits > 8 {
			return nil, invalidLayout(name, "field %s crosses a byte boundary", sf.Name)
		}
		// Padding fields never carry data
		skip := ft.skip || !sf.IsExported()
		layout.Fields = append(layout.Fields, FieldLayout{
			Name:      sf.Name,
			Index:     i,
			Bytes:     Range{Start: start, End: (cursor + ft.bits + 7) / 8},
			BitOffset: offset,
			Bits:      ft.bits,
			PreSkip:   ft.preSkip,
			PostSkip:  ft.postSkip,
			Skip:      skip,
			Kind:      kind,
		})
		cursor += ft.bits + ft.postSkip
	}
	if cursor != bits {
		return nil, invalidLayout(name, "declared %d bits but fields use %d", bits, cursor)
	}
	return layout, nil
}

// Nested codecs are only resolved on first use so that layouts may be
// declared in any order.
func (s *StructLayout) resolve() error {
	s.once.Do(func() {
		s.codecs = make([]codec, len(s.Fields))
		for i, f := range s.Fields {
			if f.Skip || f.Bits == 0 {
				continue
			}
			ft := s.typ.Field(f.Index).Type
			c, err := s.fieldCodec(f, ft)
			if err != nil {
				s.err = fmt.Errorf("%s.%s: %w", s.typ, f.Name, err)
				return
			}
			s.codecs[i] = c
		}
	})
	return s.err
}

func (s *StructLayout) fieldCodec(f FieldLayout, ft reflect.Type) (codec, error) {
	if c, ok := registry.Load(ft); ok {
		cc := c.(codec)
		if cc.size()*8 > roundUp(f.Bits) {
			return nil, invalidLayout(s.typ.String(), "field %s is %d bits, %s needs %d bytes", f.Name, f.Bits, ft, cc.size())
		}
		return cc, nil
	}
	if f.Kind == KindInt {
		// Narrower slots truncate to their own width
		return intCodec{n: roundUp(f.Bits) / 8, signed: ft.Kind() >= reflect.Int && ft.Kind() <= reflect.Int64}, nil
	}
	c, err := codecFor(ft)
	if err != nil {
		return nil, err
	}
	if c.size()*8 > roundUp(f.Bits) {
		return nil, invalidLayout(s.typ.String(), "field %s is %d bits, %s needs %d bytes", f.Name, f.Bits, ft, c.size())
	}
	return c, nil
}

func roundUp(bits int) int {
	return (bits + 7) / 8 * 8
}

func (s *StructLayout) size() int {
	return s.Size()
}

func (s *StructLayout) pack(v reflect.Value, buf []byte) error {
	if err := s.resolve(); err != nil {
		return err
	}
	n := s.Size()
	for i := range buf[:n] {
		buf[i] = 0
	}
	var scratch [8]byte
	for i, f := range s.Fields {
		c := s.codecs[i]
		if c == nil {
			continue
		}
		fv := v.Field(f.Index)
		if f.Bits > 8 {
			sub := buf[f.Bytes.Start:f.Bytes.End]
			if err := c.pack(fv, sub[:c.size()]); err != nil {
				return err
			}
			continue
		}
		tmp := scratch[:]
		if c.size() > len(tmp) {
			tmp = make([]byte, c.size())
		} else {
			tmp = tmp[:max(c.size(), 1)]
			clear(tmp)
		}
		if err := c.pack(fv, tmp); err != nil {
			return err
		}
		mask := byte(uint16(1)<<f.Bits-1) << f.BitOffset
		buf[f.Bytes.Start] |= (tmp[0] << f.BitOffset) & mask
	}
	return nil
}

func (s *StructLayout) unpack(buf []byte, v reflect.Value) error {
	if err := s.resolve(); err != nil {
		return err
	}
	var scratch [8]byte
	for i, f := range s.Fields {
		fv := v.Field(f.Index)
		c := s.codecs[i]
		if c == nil {
			if f.Skip && fv.CanSet() {
				fv.Set(reflect.Zero(fv.Type()))
			}
			continue
		}
		if f.Bits > 8 {
			sub := buf[f.Bytes.Start:f.Bytes.End]
			if err := c.unpack(sub[:c.size()], fv); err != nil {
				return fmt.Errorf("%s.%s: %w", s.typ, f.Name, err)
			}
			continue
		}
		tmp := scratch[:]
		if c.size() > len(tmp) {
			tmp = make([]byte, c.size())
		} else {
			tmp = tmp[:max(c.size(), 1)]
			clear(tmp)
		}
		mask := byte(uint16(1)<<f.Bits-1) << f.BitOffset
		tmp[0] = (buf[f.Bytes.Start] & mask) >> f.BitOffset
		if ic, ok := c.(intCodec); ok && ic.signed && f.Bits < 8 && tmp[0]&(1<<(f.Bits-1)) != 0 {
			// Sign extend from the field width
			tmp[0] |= 0xff << f.Bits
		}
		if err := c.unpack(tmp, fv); err != nil {
			return fmt.Errorf("%s.%s: %w", s.typ, f.Name, err)
		}
	}
	return nil
}
