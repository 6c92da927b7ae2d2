package wire

import (
	"errors"
	"fmt"
)

var (
	ErrBufferTooShort      = errors.New("buffer too short")
	ErrShortBuffer         = errors.New("not enough bytes to decode")
	ErrUnknownDiscriminant = errors.New("unknown enum discriminant")
	ErrUnsupportedType     = errors.New("type has no wire representation")
	ErrInvalidLayout       = errors.New("invalid wire layout")
)

// DecodeError is returned when a buffer cannot be turned back into a value.
// It wraps either [ErrShortBuffer] or [ErrUnknownDiscriminant].
type DecodeError struct {
	Type  string
	Err   error
	Want  int
	Got   int
	Value uint64
}

func (e *DecodeError) Error() string {
	if errors.Is(e.Err, ErrUnknownDiscriminant) {
		return fmt.Sprintf("wire: decode %s: %v 0x%x", e.Type, e.Err, e.Value)
	}
	return fmt.Sprintf("wire: decode %s: %v, want %d bytes got %d", e.Type, e.Err, e.Want, e.Got)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func shortBuffer(typ string, want int, got int) error {
	return &DecodeError{Type: typ, Err: ErrShortBuffer, Want: want, Got: got}
}

func bufferTooShort(typ string, want int, got int) error {
	return fmt.Errorf("wire: pack %s: %w, need %d bytes got %d", typ, ErrBufferTooShort, want, got)
}

func invalidLayout(typ string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidLayout, typ, fmt.Sprintf(format, args...))
}
