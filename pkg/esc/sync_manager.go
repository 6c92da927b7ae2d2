package esc

import "github.com/samsamfire/goethercat/pkg/wire"

type OperationMode uint8

const (
	OperationBuffered OperationMode = 0x00
	OperationMailbox  OperationMode = 0x02
)

type Direction uint8

const (
	DirectionMasterRead  Direction = 0x00
	DirectionMasterWrite Direction = 0x01
)

type BufferState uint8

const (
	BufferFirst  BufferState = 0x00
	BufferSecond BufferState = 0x01
	BufferThird  BufferState = 0x02
	BufferLocked BufferState = 0x03
)

type SyncManagerControl struct {
	OperationMode      OperationMode `wire:"bits=2"`
	Direction          Direction     `wire:"bits=2"`
	EcatEventEnable    bool          `wire:"bits=1"`
	DlsUserEventEnable bool          `wire:"bits=1"`
	WatchdogEnable     bool          `wire:"bits=1,post_skip=1"`
}

// SyncManagerStatus is the status byte of a sync manager channel. In mailbox
// mode MailboxFull tells whether the buffer has been written and not yet read.
type SyncManagerStatus struct {
	InterruptWrite  bool        `wire:"bits=1"`
	InterruptRead   bool        `wire:"bits=1,post_skip=1"`
	MailboxFull     bool        `wire:"bits=1"`
	BufferState     BufferState `wire:"bits=2"`
	ReadBufferOpen  bool        `wire:"bits=1"`
	WriteBufferOpen bool        `wire:"bits=1"`
}

type SyncManagerEnable struct {
	Enable     bool `wire:"bits=1"`
	Repeat     bool `wire:"bits=1,post_skip=4"`
	Dc0Event   bool `wire:"bits=1"`
	Dc1Event   bool `wire:"bits=1"`
	PdiDisable bool `wire:"bits=1"`
	Repeat2    bool `wire:"bits=1,post_skip=6"`
}

// SyncManagerChannel is the 8 byte configuration and status block of
// a sync manager, starting at [RegisterSyncManager0].
type SyncManagerChannel struct {
	PhysicalStart uint16             `wire:"bytes=2"`
	Length        uint16             `wire:"bytes=2"`
	Control       SyncManagerControl `wire:"bytes=1"`
	Status        SyncManagerStatus  `wire:"bytes=1"`
	Enable        SyncManagerEnable  `wire:"bytes=2"`
}

func init() {
	wire.MustEnum(wire.EnumSpec[OperationMode]{
		Bits:     8,
		Variants: []OperationMode{OperationBuffered, OperationMailbox},
		CatchAll: true,
	})
	wire.MustEnum(wire.EnumSpec[Direction]{
		Bits:     8,
		Variants: []Direction{DirectionMasterRead, DirectionMasterWrite},
		CatchAll: true,
	})
	wire.MustEnum(wire.EnumSpec[BufferState]{
		Bits:     8,
		Variants: []BufferState{BufferFirst, BufferSecond, BufferThird, BufferLocked},
	})
	wire.MustStruct[SyncManagerControl](8)
	wire.MustStruct[SyncManagerStatus](8)
	wire.MustStruct[SyncManagerEnable](16)
	wire.MustStruct[SyncManagerChannel](64)
}
