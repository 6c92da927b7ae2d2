package mailbox

import "github.com/samsamfire/goethercat/pkg/wire"

// HeaderLength is the packed size of [Header]
const HeaderLength = 6

type MailboxType uint8

const (
	TypeError MailboxType = 0x00
	TypeAoE   MailboxType = 0x01
	TypeEoE   MailboxType = 0x02
	TypeCoE   MailboxType = 0x03
	TypeFoE   MailboxType = 0x04
	TypeSoE   MailboxType = 0x05
	TypeVoE   MailboxType = 0x0f
)

var typeNames = map[MailboxType]string{
	TypeError: "ERROR",
	TypeAoE:   "AoE",
	TypeEoE:   "EoE",
	TypeCoE:   "CoE",
	TypeFoE:   "FoE",
	TypeSoE:   "SoE",
	TypeVoE:   "VoE",
}

func (t MailboxType) String() string {
	name, ok := typeNames[t]
	if !ok {
		return "UNKNOWN"
	}
	return name
}

type Priority uint8

const (
	PriorityLowest  Priority = 0x00
	PriorityLow     Priority = 0x01
	PriorityHigh    Priority = 0x02
	PriorityHighest Priority = 0x03
)

// Header precedes every mailbox message. Length counts the bytes that
// follow the header.
type Header struct {
	Length   uint16      `wire:"bytes=2"`
	Address  uint16      `wire:"bytes=2"`
	Channel  uint8       `wire:"bits=6"`
	Priority Priority    `wire:"bits=2"`
	Type     MailboxType `wire:"bits=4"`
	Counter  uint8       `wire:"bits=3,post_skip=1"`
}

func init() {
	wire.MustEnum(wire.EnumSpec[MailboxType]{
		Bits:     8,
		Variants: []MailboxType{TypeError, TypeAoE, TypeEoE, TypeCoE, TypeFoE, TypeSoE, TypeVoE},
	})
	wire.MustEnum(wire.EnumSpec[Priority]{
		Bits:     8,
		Variants: []Priority{PriorityLowest, PriorityLow, PriorityHigh, PriorityHighest},
	})
	wire.MustStruct[Header](HeaderLength * 8)
	wire.MustStruct[ErrorReply](32)
}
