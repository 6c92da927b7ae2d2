package ethercat

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalArgument  = errors.New("error in function arguments")
	ErrTimeout          = errors.New("function timeout")
	ErrWorkingCounter   = errors.New("unexpected working counter")
	ErrNoResponse       = errors.New("no response received for datagram")
	ErrUnknownStation   = errors.New("no device at station address")
	ErrTransportClosed  = errors.New("transport is closed")
	ErrFrameTooLarge    = errors.New("datagram does not fit in a single frame")
	ErrInvalidFrame     = errors.New("received frame is malformed")
	ErrNoMailbox        = errors.New("slave has no mailbox configured")
	ErrProtocolNotFound = errors.New("slave does not support mailbox protocol")
)

// WorkingCounterError is returned when a datagram was not processed by the
// expected number of devices.
type WorkingCounterError struct {
	Expected uint16
	Received uint16
	Context  string
}

func (e *WorkingCounterError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("%v : expected %d, got %d", ErrWorkingCounter, e.Expected, e.Received)
	}
	return fmt.Sprintf("%v (%s) : expected %d, got %d", ErrWorkingCounter, e.Context, e.Expected, e.Received)
}

func (e *WorkingCounterError) Unwrap() error {
	return ErrWorkingCounter
}
