package virtual

import (
	"context"
	"encoding/binary"
	"testing"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/coe"
	"github.com/samsamfire/goethercat/pkg/esc"
	"github.com/samsamfire/goethercat/pkg/mailbox"
	"github.com/samsamfire/goethercat/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownStation(t *testing.T) {
	network := NewNetwork(nil)
	network.AddDevice(0x1001)
	resp, err := network.Read(context.Background(), 0x1002, esc.RegisterAlStatus, 2)
	assert.Nil(t, err)
	assert.EqualValues(t, 0, resp.WorkingCounter)
	_, err = resp.Wkc(1, "test")
	assert.ErrorIs(t, err, ethercat.ErrWorkingCounter)

	resp, err = network.Read(context.Background(), 0x1001, esc.RegisterConfiguredAddress, 2)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, resp.WorkingCounter)
	assert.Equal(t, []byte{0x01, 0x10}, resp.Data)
	assert.EqualValues(t, 2, network.Datagrams())
	assert.Equal(t, []uint16{0x1001}, network.Addresses())

	_, err = network.Read(context.Background(), 0x1001, 0xfffe, 4)
	assert.ErrorIs(t, err, ethercat.ErrIllegalArgument)
}

func TestStateMachine(t *testing.T) {
	network := NewNetwork(nil)
	device := network.AddDevice(0x1001)
	assert.Equal(t, esc.StateInit, device.State())

	control, _ := wire.Marshal(esc.NewAlControl(esc.StatePreOp))
	resp, err := network.Write(context.Background(), 0x1001, esc.RegisterAlControl, control)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, resp.WorkingCounter)
	assert.Equal(t, control, resp.Data)
	assert.Equal(t, esc.StatePreOp, device.State())

	resp, _ = network.Read(context.Background(), 0x1001, esc.RegisterAlStatus, 2)
	assert.Equal(t, []byte{0x02, 0x00}, resp.Data)

	device.RefuseState(esc.StateSafeOp, esc.AlInvalidOutputConfiguration)
	control, _ = wire.Marshal(esc.NewAlControl(esc.StateSafeOp))
	_, err = network.Write(context.Background(), 0x1001, esc.RegisterAlControl, control)
	assert.Nil(t, err)
	assert.Equal(t, esc.StatePreOp, device.State())
	resp, _ = network.Read(context.Background(), 0x1001, esc.RegisterAlStatus, 2)
	assert.Equal(t, []byte{0x12, 0x00}, resp.Data)
	resp, _ = network.Read(context.Background(), 0x1001, esc.RegisterAlStatusCode, 2)
	assert.EqualValues(t, esc.AlInvalidOutputConfiguration, binary.LittleEndian.Uint16(resp.Data))

	device.SetState(esc.StateOp)
	resp, _ = network.Read(context.Background(), 0x1001, esc.RegisterAlStatus, 2)
	assert.Equal(t, []byte{0x08, 0x00}, resp.Data)
}

func TestMailboxFlags(t *testing.T) {
	network := NewNetwork(nil)
	device := network.AddDevice(0x1001)
	write := mailbox.Mailbox{Address: 0x1000, Length: 32, SyncManager: 0}
	read := mailbox.Mailbox{Address: 0x1100, Length: 32, SyncManager: 1}
	require.Nil(t, device.ConfigureMailbox(write, read))

	readStatus := func(sm uint8) esc.SyncManagerChannel {
		resp, err := network.Read(context.Background(), 0x1001, esc.SyncManager(sm), esc.SyncManagerLength)
		require.Nil(t, err)
		channel, err := wire.Decode[esc.SyncManagerChannel](resp.Data)
		require.Nil(t, err)
		return channel
	}
	channel := readStatus(1)
	assert.EqualValues(t, 0x1100, channel.PhysicalStart)
	assert.Equal(t, esc.DirectionMasterRead, channel.Control.Direction)
	assert.Equal(t, esc.OperationMailbox, channel.Control.OperationMode)
	assert.False(t, channel.Status.MailboxFull)

	// Empty read mailbox is not acknowledged
	resp, _ := network.Read(context.Background(), 0x1001, read.Address, int(read.Length))
	assert.EqualValues(t, 0, resp.WorkingCounter)

	device.SetMailboxHandler(func(request []byte) [][]byte {
		return [][]byte{{0x01}, {0x02}}
	})
	resp, _ = network.Write(context.Background(), 0x1001, write.Address, make([]byte, 32))
	assert.EqualValues(t, 1, resp.WorkingCounter)
	assert.True(t, readStatus(1).Status.MailboxFull)

	resp, _ = network.Read(context.Background(), 0x1001, read.Address, int(read.Length))
	assert.EqualValues(t, 1, resp.WorkingCounter)
	assert.EqualValues(t, 0x01, resp.Data[0])
	// Second frame is loaded right after
	assert.True(t, readStatus(1).Status.MailboxFull)
	resp, _ = network.Read(context.Background(), 0x1001, read.Address, int(read.Length))
	assert.EqualValues(t, 0x02, resp.Data[0])
	assert.Equal(t, make([]byte, 31), resp.Data[1:])
	assert.False(t, readStatus(1).Status.MailboxFull)

	device.StallWriteMailbox(true)
	assert.True(t, readStatus(0).Status.MailboxFull)
	resp, _ = network.Write(context.Background(), 0x1001, write.Address, make([]byte, 32))
	assert.EqualValues(t, 0, resp.WorkingCounter)
	assert.Len(t, device.Requests(), 1)
}

func TestSdoServerErrors(t *testing.T) {
	server := NewSdoServer(128, nil)

	// Not CoE
	request, _ := wire.Marshal(mailbox.Header{Length: 10, Type: mailbox.TypeFoE, Counter: 2})
	responses := server.Handle(append(request, make([]byte, 10)...))
	require.Len(t, responses, 1)
	reply, ok := mailbox.ParseErrorReply(responses[0])
	assert.True(t, ok)
	assert.Equal(t, mailbox.ErrorUnsupportedProtocol, reply.Detail)

	// Segment without an upload in progress
	segment, _ := wire.Marshal(coe.NewUploadSegmentRequest(3, false))
	responses = server.Handle(segment)
	frame, err := wire.Decode[coe.SdoFrame](responses[0])
	assert.Nil(t, err)
	assert.EqualValues(t, coe.CommandAbort, frame.Sdo.Flags.Command)
	assert.EqualValues(t, 3, frame.Mailbox.Counter)
	assert.EqualValues(t, coe.AbortCmd, binary.LittleEndian.Uint32(frame.Data[:]))

	// Toggle must start at 0
	server.Set(0x2000, 0, make([]byte, 500))
	upload, _ := wire.Marshal(coe.NewUploadRequest(4, 0x2000, 0, false))
	responses = server.Handle(upload)
	frame, _ = wire.Decode[coe.SdoFrame](responses[0])
	assert.EqualValues(t, 10, frame.Mailbox.Length)
	assert.EqualValues(t, 500, binary.LittleEndian.Uint32(frame.Data[:]))
	segment, _ = wire.Marshal(coe.NewUploadSegmentRequest(5, true))
	responses = server.Handle(segment)
	frame, _ = wire.Decode[coe.SdoFrame](responses[0])
	assert.EqualValues(t, coe.AbortToggleBit, binary.LittleEndian.Uint32(frame.Data[:]))
}
