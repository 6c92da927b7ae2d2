package mailbox

import (
	"fmt"

	"github.com/samsamfire/goethercat/pkg/wire"
)

// ErrorDetail is sent by a slave in a mailbox of type [TypeError] when it
// could not process the previous request.
type ErrorDetail uint16

const (
	ErrorSyntax              ErrorDetail = 0x01
	ErrorUnsupportedProtocol ErrorDetail = 0x02
	ErrorInvalidChannel      ErrorDetail = 0x03
	ErrorServiceNotSupported ErrorDetail = 0x04
	ErrorInvalidHeader       ErrorDetail = 0x05
	ErrorSizeTooShort        ErrorDetail = 0x06
	ErrorNoMoreMemory        ErrorDetail = 0x07
	ErrorInvalidSize         ErrorDetail = 0x08
)

var errorDetailDescription = map[ErrorDetail]string{
	ErrorSyntax:              "syntax of 6 octet mailbox header is wrong",
	ErrorUnsupportedProtocol: "mailbox protocol is not supported",
	ErrorInvalidChannel:      "channel field contains wrong value",
	ErrorServiceNotSupported: "service in the mailbox protocol is not supported",
	ErrorInvalidHeader:       "mailbox protocol header is wrong",
	ErrorSizeTooShort:        "length of received mailbox data is too short",
	ErrorNoMoreMemory:        "mailbox protocol cannot be processed, not enough memory",
	ErrorInvalidSize:         "length of data is inconsistent",
}

func (d ErrorDetail) String() string {
	desc, ok := errorDetailDescription[d]
	if !ok {
		return fmt.Sprintf("unknown mailbox error x%x", uint16(d))
	}
	return desc
}

// ErrorReply is the body of a mailbox error message
type ErrorReply struct {
	Type   uint16      `wire:"bytes=2"`
	Detail ErrorDetail `wire:"bytes=2"`
}

func (e *ErrorReply) Error() string {
	return fmt.Sprintf("mailbox error reply : %v (x%x)", e.Detail, uint16(e.Detail))
}

// ParseErrorReply returns the error carried by frame if it is a mailbox
// error message.
func ParseErrorReply(frame []byte) (*ErrorReply, bool) {
	header, err := wire.Decode[Header](frame)
	if err != nil || header.Type != TypeError {
		return nil, false
	}
	reply, err := wire.Decode[ErrorReply](frame[HeaderLength:])
	if err != nil {
		return nil, false
	}
	return &reply, true
}
