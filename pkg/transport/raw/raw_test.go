package raw_test

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/esc"
	"github.com/samsamfire/goethercat/pkg/mailbox"
	"github.com/samsamfire/goethercat/pkg/slave"
	"github.com/samsamfire/goethercat/pkg/transport/raw"
	"github.com/samsamfire/goethercat/pkg/transport/virtual"
	"github.com/samsamfire/goethercat/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTimeouts = ethercat.Timeouts{
	StateTransition: 100 * time.Millisecond,
	Pdu:             20 * time.Millisecond,
	MailboxEcho:     50 * time.Millisecond,
	MailboxResponse: 100 * time.Millisecond,
	LoopTick:        time.Millisecond,
}

// Segment of simulated slaves behind a network interface. Frames go through
// the virtual devices and come back with the locally administered bit set.
type segmentConn struct {
	network *virtual.Network
	frames  chan []byte
	mu      sync.Mutex
	loop    bool
	drop    bool
	before  [][]byte
	closed  bool
}

func newSegmentConn(network *virtual.Network) *segmentConn {
	return &segmentConn{network: network, frames: make(chan []byte, 16)}
}

func (c *segmentConn) WritePacketData(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop {
		c.frames <- append([]byte(nil), data...)
	}
	for _, frame := range c.before {
		c.frames <- frame
	}
	c.before = nil
	if c.drop {
		return nil
	}
	eth, pdus, err := raw.ParseFrame(data)
	if err != nil {
		return err
	}
	for i, pdu := range pdus {
		var resp ethercat.Response
		switch pdu.Header.Command {
		case raw.CommandFprd:
			resp, err = c.network.Read(context.Background(), pdu.Header.Station, pdu.Header.Register, len(pdu.Data))
		case raw.CommandFpwr:
			resp, err = c.network.Write(context.Background(), pdu.Header.Station, pdu.Header.Register, pdu.Data)
		}
		if err != nil {
			return err
		}
		pdus[i].Data = resp.Data
		pdus[i].WorkingCounter += resp.WorkingCounter
	}
	source := append(net.HardwareAddr(nil), eth.SrcMAC...)
	source[0] |= 0x02
	frame, err := raw.MarshalFrame(source, pdus...)
	if err != nil {
		return err
	}
	c.frames <- frame
	return nil
}

func (c *segmentConn) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	select {
	case frame := <-c.frames:
		return frame, gopacket.CaptureInfo{Length: len(frame), CaptureLength: len(frame)}, nil
	case <-time.After(time.Millisecond):
		return nil, gopacket.CaptureInfo{}, raw.ErrNoPacket
	}
}

func (c *segmentConn) Close() error {
	c.closed = true
	return nil
}

func TestMarshalFrame(t *testing.T) {
	frame, err := raw.MarshalFrame(raw.DefaultSource,
		raw.Pdu{Header: raw.PduHeader{Command: raw.CommandFprd, Index: 7, Station: 0x1001, Register: 0x0130}, Data: make([]byte, 2)},
		raw.Pdu{Header: raw.PduHeader{Command: raw.CommandFpwr, Index: 8, Station: 0x1002, Register: 0x0120}, Data: []byte{0x02, 0x00, 0x00, 0x00}, WorkingCounter: 1},
	)
	require.Nil(t, err)
	// Padded to the minimum Ethernet frame
	assert.Len(t, frame, 60)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, frame[0:6])
	assert.Equal(t, []byte(raw.DefaultSource), frame[6:12])
	assert.Equal(t, []byte{0x88, 0xa4}, frame[12:14])
	assert.Equal(t, []byte{0x1e, 0x10}, frame[14:16])
	assert.Equal(t, []byte{0x04, 0x07, 0x01, 0x10, 0x30, 0x01, 0x02, 0x80, 0x00, 0x00}, frame[16:26])

	eth, pdus, err := raw.ParseFrame(frame)
	require.Nil(t, err)
	assert.Equal(t, raw.EtherTypeEtherCAT, eth.EthernetType)
	require.Len(t, pdus, 2)
	assert.True(t, pdus[0].Header.Flags.Next)
	assert.False(t, pdus[1].Header.Flags.Next)
	assert.Equal(t, raw.CommandFpwr, pdus[1].Header.Command)
	assert.EqualValues(t, 0x1002, pdus[1].Header.Station)
	assert.EqualValues(t, 4, pdus[1].Header.Flags.Length)
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x00}, pdus[1].Data)
	assert.EqualValues(t, 1, pdus[1].WorkingCounter)

	_, err = raw.MarshalFrame(raw.DefaultSource, raw.Pdu{Data: make([]byte, raw.MaxPduData+1)})
	assert.ErrorIs(t, err, ethercat.ErrFrameTooLarge)
	_, err = raw.MarshalFrame(raw.DefaultSource)
	assert.ErrorIs(t, err, ethercat.ErrIllegalArgument)
}

func TestParseInvalidFrame(t *testing.T) {
	buf := gopacket.NewSerializeBuffer()
	eth := &layers.Ethernet{SrcMAC: raw.DefaultSource, DstMAC: raw.DefaultSource, EthernetType: layers.EthernetTypeIPv4}
	require.Nil(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(make([]byte, 46))))
	_, _, err := raw.ParseFrame(buf.Bytes())
	assert.ErrorIs(t, err, ethercat.ErrInvalidFrame)

	frame, err := raw.MarshalFrame(raw.DefaultSource, raw.Pdu{Data: make([]byte, 40)})
	require.Nil(t, err)
	_, _, err = raw.ParseFrame(frame[:40])
	assert.ErrorIs(t, err, ethercat.ErrInvalidFrame)

	// Not a PDU frame
	binary.LittleEndian.PutUint16(frame[14:], 0x5000|54)
	_, _, err = raw.ParseFrame(frame)
	assert.ErrorIs(t, err, ethercat.ErrInvalidFrame)

	_, _, err = raw.ParseFrame([]byte{0x01})
	assert.ErrorIs(t, err, ethercat.ErrInvalidFrame)
}

func TestFrameHeader(t *testing.T) {
	buf, err := wire.Marshal(raw.FrameHeader{Length: 0x7ff, Type: 1})
	assert.Nil(t, err)
	assert.Equal(t, []byte{0xff, 0x17}, buf)
	header, err := wire.Decode[raw.FrameHeader]([]byte{0x0c, 0x18})
	assert.Nil(t, err)
	assert.Equal(t, raw.FrameHeader{Length: 0x00c, Type: 1}, header)

	_, err = raw.FrameHeader{}.PackTo(make([]byte, 1))
	assert.ErrorIs(t, err, wire.ErrBufferTooShort)
	_, err = raw.PduFlags{Length: 2}.PackTo(make([]byte, 1))
	assert.ErrorIs(t, err, wire.ErrBufferTooShort)
	_, err = wire.Decode[raw.FrameHeader]([]byte{0x0c})
	assert.ErrorIs(t, err, wire.ErrShortBuffer)
}

func TestTransport(t *testing.T) {
	network := virtual.NewNetwork(nil)
	device := network.AddDevice(0x1001)
	conn := newSegmentConn(network)
	transport := raw.New(conn, testTimeouts, nil)

	resp, err := transport.Read(context.Background(), 0x1001, esc.RegisterConfiguredAddress, 2)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, resp.WorkingCounter)
	assert.Equal(t, []byte{0x01, 0x10}, resp.Data)

	control, _ := wire.Marshal(esc.NewAlControl(esc.StatePreOp))
	resp, err = transport.Write(context.Background(), 0x1001, esc.RegisterAlControl, control)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, resp.WorkingCounter)
	assert.Equal(t, esc.StatePreOp, device.State())

	// Nobody answers at this address
	resp, err = transport.Read(context.Background(), 0x1005, esc.RegisterAlStatus, 2)
	assert.Nil(t, err)
	assert.EqualValues(t, 0, resp.WorkingCounter)

	_, err = transport.Read(context.Background(), 0x1001, 0, raw.MaxPduData+1)
	assert.ErrorIs(t, err, ethercat.ErrFrameTooLarge)
}

func TestTransportSkipsUnrelatedFrames(t *testing.T) {
	network := virtual.NewNetwork(nil)
	network.AddDevice(0x1001)
	conn := newSegmentConn(network)
	conn.loop = true
	stale, err := raw.MarshalFrame(net.HardwareAddr{0x03, 0x01, 0x01, 0x01, 0x01, 0x01},
		raw.Pdu{Header: raw.PduHeader{Command: raw.CommandFprd, Index: 0xaa, Station: 0x1001}, Data: make([]byte, 2), WorkingCounter: 1})
	require.Nil(t, err)
	conn.before = [][]byte{stale}
	transport := raw.New(conn, testTimeouts, nil)

	resp, err := transport.Read(context.Background(), 0x1001, esc.RegisterConfiguredAddress, 2)
	assert.Nil(t, err)
	assert.Equal(t, []byte{0x01, 0x10}, resp.Data)
}

func TestTransportNoResponse(t *testing.T) {
	conn := newSegmentConn(virtual.NewNetwork(nil))
	conn.drop = true
	transport := raw.New(conn, testTimeouts, nil)
	_, err := transport.Read(context.Background(), 0x1001, esc.RegisterAlStatus, 2)
	assert.ErrorIs(t, err, ethercat.ErrNoResponse)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = transport.Read(ctx, 0x1001, esc.RegisterAlStatus, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransportClose(t *testing.T) {
	conn := newSegmentConn(virtual.NewNetwork(nil))
	transport := raw.New(conn, testTimeouts, nil)
	assert.Nil(t, transport.Close())
	assert.True(t, conn.closed)
	assert.Nil(t, transport.Close())
	_, err := transport.Read(context.Background(), 0x1001, esc.RegisterAlStatus, 2)
	assert.ErrorIs(t, err, ethercat.ErrTransportClosed)
}

func TestSdoOverRawTransport(t *testing.T) {
	network := virtual.NewNetwork(nil)
	device := network.AddDevice(0x1001)
	write := mailbox.Mailbox{Address: 0x1000, Length: 128, SyncManager: 0}
	read := mailbox.Mailbox{Address: 0x1080, Length: 128, SyncManager: 1}
	require.Nil(t, device.ConfigureMailbox(write, read))
	server := virtual.NewSdoServer(read.Length, nil)
	server.Set(0x1008, 0, []byte("EL7031 Stepper motor terminal"))
	device.AttachSdoServer(server)

	transport := raw.New(newSegmentConn(network), testTimeouts, nil)
	s, err := slave.New(transport, 0x1001,
		slave.WithTimeouts(testTimeouts),
		slave.WithMailbox(mailbox.Config{Write: &write, Read: &read, Protocols: mailbox.ProtocolCoE}),
	)
	require.Nil(t, err)
	require.Nil(t, s.TransitionTo(context.Background(), esc.StatePreOp))
	name, err := s.ReadDeviceName(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, "EL7031 Stepper motor terminal", name)
}
