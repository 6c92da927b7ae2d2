package coe

import (
	"errors"
	"fmt"
)

var (
	ErrNotSupported = errors.New("only expedited SDO downloads of 4 bytes or less are supported")
	ErrNoCoE        = errors.New("slave does not support CoE")
)

// AbortError is returned when the slave aborted the transfer. It is never
// retried.
type AbortError struct {
	Code     AbortCode
	Index    uint16
	SubIndex uint8
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("sdo x%x:x%x aborted : %v", e.Index, e.SubIndex, e.Code)
}

func (e *AbortError) Unwrap() error {
	return e.Code
}

// ResponseInvalidError is returned when a response does not belong to the
// request that was sent, either because of its counter or its mailbox type.
type ResponseInvalidError struct {
	Index    uint16
	SubIndex uint8
	Reason   string
	Cause    error
}

func (e *ResponseInvalidError) Error() string {
	msg := fmt.Sprintf("invalid sdo response for x%x:x%x : %s", e.Index, e.SubIndex, e.Reason)
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

func (e *ResponseInvalidError) Unwrap() error {
	return e.Cause
}
