package cangw_test

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/coe"
	"github.com/samsamfire/goethercat/pkg/gateway/cangw"
	"github.com/samsamfire/goethercat/pkg/mailbox"
	"github.com/samsamfire/goethercat/pkg/slave"
	"github.com/samsamfire/goethercat/pkg/transport/virtual"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nodeId uint8 = 0x10

var testTimeouts = ethercat.Timeouts{
	StateTransition: 50 * time.Millisecond,
	Pdu:             10 * time.Millisecond,
	MailboxEcho:     20 * time.Millisecond,
	MailboxResponse: 40 * time.Millisecond,
	LoopTick:        time.Millisecond,
}

type fakeBus struct {
	sent     chan cangw.Frame
	listener cangw.FrameListener
}

func (b *fakeBus) Send(frame cangw.Frame) error {
	b.sent <- frame
	return nil
}

func (b *fakeBus) Subscribe(callback cangw.FrameListener) error {
	b.listener = callback
	return nil
}

// Send a request as a CANopen client would
func (b *fakeBus) request(t *testing.T, node uint8, data [8]byte) cangw.Frame {
	b.listener.Handle(cangw.Frame{ID: cangw.ServerRequestBase + uint32(node), DLC: 8, Data: data})
	select {
	case frame := <-b.sent:
		return frame
	case <-time.After(time.Second):
		t.Fatal("no response from gateway")
	}
	return cangw.Frame{}
}

func createGatewayTest(t *testing.T) (*fakeBus, *virtual.Device, *virtual.SdoServer) {
	network := virtual.NewNetwork(nil)
	device := network.AddDevice(0x1001)
	write := mailbox.Mailbox{Address: 0x1000, Length: 128, SyncManager: 0}
	read := mailbox.Mailbox{Address: 0x1080, Length: 128, SyncManager: 1}
	require.Nil(t, device.ConfigureMailbox(write, read))
	server := virtual.NewSdoServer(read.Length, nil)
	device.AttachSdoServer(server)
	s, err := slave.New(network, 0x1001,
		slave.WithTimeouts(testTimeouts),
		slave.WithMailbox(mailbox.Config{Write: &write, Read: &read, Protocols: mailbox.ProtocolCoE}),
	)
	require.Nil(t, err)

	bus := &fakeBus{sent: make(chan cangw.Frame, 8)}
	gw := cangw.New(bus, 0, nil)
	require.Nil(t, bus.Subscribe(gw))
	require.Nil(t, gw.Map(nodeId, s))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
	return bus, device, server
}

func upload(index uint16, subIndex uint8) [8]byte {
	data := [8]byte{0x40}
	binary.LittleEndian.PutUint16(data[1:3], index)
	data[3] = subIndex
	return data
}

func TestMap(t *testing.T) {
	gw := cangw.New(&fakeBus{}, 0, nil)
	s, err := slave.New(virtual.NewNetwork(nil), 0x1001)
	require.Nil(t, err)
	assert.ErrorIs(t, gw.Map(0, s), ethercat.ErrIllegalArgument)
	assert.ErrorIs(t, gw.Map(128, s), ethercat.ErrIllegalArgument)
	assert.ErrorIs(t, gw.Map(1, nil), ethercat.ErrIllegalArgument)
	assert.Nil(t, gw.Map(1, s))
	assert.ErrorIs(t, gw.Map(1, s), cangw.ErrIdConflict)
}

func TestUpload(t *testing.T) {
	bus, _, server := createGatewayTest(t)
	server.Set(0x6000, 1, []byte{0x11, 0x22})

	frame := bus.request(t, nodeId, upload(0x6000, 1))
	assert.EqualValues(t, cangw.ServerResponseBase+uint32(nodeId), frame.ID)
	assert.EqualValues(t, 8, frame.DLC)
	assert.Equal(t, [8]byte{0x4b, 0x00, 0x60, 0x01, 0x11, 0x22, 0x00, 0x00}, frame.Data)
}

func TestUploadAbort(t *testing.T) {
	bus, _, server := createGatewayTest(t)
	server.Set(0x1008, 0, []byte("a name longer than four bytes"))

	frame := bus.request(t, nodeId, upload(0x2000, 0))
	assert.Equal(t, [8]byte{0x80, 0x00, 0x20, 0x00}, [8]byte{frame.Data[0], frame.Data[1], frame.Data[2], frame.Data[3]})
	assert.EqualValues(t, coe.AbortNotExist, binary.LittleEndian.Uint32(frame.Data[4:]))

	frame = bus.request(t, nodeId, upload(0x1008, 0))
	assert.EqualValues(t, 0x80, frame.Data[0])
	assert.EqualValues(t, coe.AbortCmd, binary.LittleEndian.Uint32(frame.Data[4:]))

	// Nothing to put in an expedited response
	server.Set(0x2001, 0, []byte{})
	frame = bus.request(t, nodeId, upload(0x2001, 0))
	assert.Equal(t, [8]byte{0x80, 0x01, 0x20, 0x00, 0x24, 0x00, 0x00, 0x08}, frame.Data)
}

func TestUploadTimeout(t *testing.T) {
	bus, device, _ := createGatewayTest(t)
	device.MuteMailbox(true)
	frame := bus.request(t, nodeId, upload(0x6000, 1))
	assert.EqualValues(t, 0x80, frame.Data[0])
	assert.EqualValues(t, coe.AbortTimeout, binary.LittleEndian.Uint32(frame.Data[4:]))
}

func TestDownload(t *testing.T) {
	bus, _, server := createGatewayTest(t)
	server.Set(0x6040, 0, []byte{0x00, 0x00})
	server.SetReadOnly(0x6041, 0, []byte{0x00, 0x00})

	// Expedited, 2 bytes indicated
	frame := bus.request(t, nodeId, [8]byte{0x2b, 0x40, 0x60, 0x00, 0x0f, 0x00, 0xaa, 0xaa})
	assert.Equal(t, [8]byte{0x60, 0x40, 0x60, 0x00}, frame.Data)
	value, ok := server.Get(0x6040, 0)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x0f, 0x00}, value)

	frame = bus.request(t, nodeId, [8]byte{0x2b, 0x41, 0x60, 0x00, 0x0f, 0x00})
	assert.EqualValues(t, 0x80, frame.Data[0])
	assert.EqualValues(t, coe.AbortReadOnly, binary.LittleEndian.Uint32(frame.Data[4:]))

	// Segmented download initiate
	frame = bus.request(t, nodeId, [8]byte{0x21, 0x40, 0x60, 0x00, 0x10})
	assert.EqualValues(t, 0x80, frame.Data[0])
	assert.EqualValues(t, coe.AbortCmd, binary.LittleEndian.Uint32(frame.Data[4:]))
}

func TestIgnoredFrames(t *testing.T) {
	bus, _, _ := createGatewayTest(t)
	bus.listener.Handle(cangw.Frame{ID: cangw.ServerRequestBase + 0x20, DLC: 8, Data: upload(0x1000, 0)})
	bus.listener.Handle(cangw.Frame{ID: cangw.ServerRequestBase + uint32(nodeId), DLC: 4})
	bus.listener.Handle(cangw.Frame{ID: 0x181, DLC: 8})
	// Client abort does not get a response
	bus.listener.Handle(cangw.Frame{ID: cangw.ServerRequestBase + uint32(nodeId), DLC: 8, Data: [8]byte{0x80}})
	select {
	case frame := <-bus.sent:
		t.Fatalf("unexpected frame %v", frame)
	case <-time.After(50 * time.Millisecond):
	}
}
