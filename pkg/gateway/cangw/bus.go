package cangw

import (
	sockcan "github.com/brutella/can"
)

const CanRtrFlag uint32 = 0x40000000
const CanSffMask uint32 = 0x000007FF

// A CAN frame
type Frame struct {
	ID    uint32
	Flags uint8
	DLC   uint8
	Data  [8]byte
}

// Interface for handling a received CAN frame
type FrameListener interface {
	Handle(frame Frame)
}

// Bus is the part of a CAN bus used by the gateway
type Bus interface {
	Send(frame Frame) error                 // Send a frame on the bus
	Subscribe(callback FrameListener) error // Subscribe to all received CAN frames
}

// SocketcanBus is a [Bus] on a linux socketcan interface, it uses the
// implementation that can be found here : https://github.com/brutella/can
type SocketcanBus struct {
	bus        *sockcan.Bus
	rxCallback FrameListener
}

func NewSocketcanBus(name string) (*SocketcanBus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, err
	}
	return &SocketcanBus{bus: bus}, nil
}

// Connect starts receiving frames in the background
func (socketcan *SocketcanBus) Connect() error {
	go func() {
		_ = socketcan.bus.ConnectAndPublish()
	}()
	return nil
}

func (socketcan *SocketcanBus) Disconnect() error {
	return socketcan.bus.Disconnect()
}

func (socketcan *SocketcanBus) Send(frame Frame) error {
	return socketcan.bus.Publish(
		sockcan.Frame{
			ID:     frame.ID,
			Length: frame.DLC,
			Flags:  frame.Flags,
			Data:   frame.Data,
		})
}

func (socketcan *SocketcanBus) Subscribe(rxCallback FrameListener) error {
	socketcan.rxCallback = rxCallback
	// brutella/can defines a "Handle" interface for handling received CAN frames
	socketcan.bus.Subscribe(socketcan)
	return nil
}

// brutella/can specific "Handle" implementation
func (socketcan *SocketcanBus) Handle(frame sockcan.Frame) {
	socketcan.rxCallback.Handle(Frame{ID: frame.ID, DLC: frame.Length, Flags: frame.Flags, Data: frame.Data})
}
