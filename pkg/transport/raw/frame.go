package raw

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/wire"
)

const (
	EtherTypeEtherCAT layers.EthernetType = 0x88a4

	frameHeaderLength = 2
	pduHeaderLength   = 10
	wkcLength         = 2
	maxFrameLength    = 1500
	// Largest datagram payload in a frame carrying a single PDU
	MaxPduData = maxFrameLength - frameHeaderLength - pduHeaderLength - wkcLength

	// Type of an EtherCAT frame carrying DL PDUs
	frameTypePdu = 0x01
)

var broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// DefaultSource is the source address put in frames sent by the master.
// Slaves set the locally administered bit of the first byte on the way back.
var DefaultSource = net.HardwareAddr{0x01, 0x01, 0x01, 0x01, 0x01, 0x01}

type Command uint8

const (
	CommandNop  Command = 0x00
	CommandAprd Command = 0x01
	CommandApwr Command = 0x02
	CommandAprw Command = 0x03
	CommandFprd Command = 0x04
	CommandFpwr Command = 0x05
	CommandFprw Command = 0x06
	CommandBrd  Command = 0x07
	CommandBwr  Command = 0x08
	CommandBrw  Command = 0x09
	CommandLrd  Command = 0x0a
	CommandLwr  Command = 0x0b
	CommandLrw  Command = 0x0c
	CommandArmw Command = 0x0d
	CommandFrmw Command = 0x0e
)

var commandNames = map[Command]string{
	CommandNop:  "NOP",
	CommandAprd: "APRD",
	CommandApwr: "APWR",
	CommandAprw: "APRW",
	CommandFprd: "FPRD",
	CommandFpwr: "FPWR",
	CommandFprw: "FPRW",
	CommandBrd:  "BRD",
	CommandBwr:  "BWR",
	CommandBrw:  "BRW",
	CommandLrd:  "LRD",
	CommandLwr:  "LWR",
	CommandLrw:  "LRW",
	CommandArmw: "ARMW",
	CommandFrmw: "FRMW",
}

func (c Command) String() string {
	name, ok := commandNames[c]
	if !ok {
		return fmt.Sprintf("UNKNOWN (x%x)", uint8(c))
	}
	return name
}

// FrameHeader precedes the PDUs of an EtherCAT frame :
// length:11, reserved:1, type:4.
type FrameHeader struct {
	Length uint16
	Type   uint8
}

func (h FrameHeader) PackedLen() int { return frameHeaderLength }

func (h FrameHeader) PackTo(buf []byte) (int, error) {
	if len(buf) < frameHeaderLength {
		return 0, wire.ErrBufferTooShort
	}
	binary.LittleEndian.PutUint16(buf, h.Length&0x07ff|uint16(h.Type&0x0f)<<12)
	return frameHeaderLength, nil
}

func (h *FrameHeader) UnpackFrom(buf []byte) error {
	if len(buf) < frameHeaderLength {
		return wire.ErrShortBuffer
	}
	raw := binary.LittleEndian.Uint16(buf)
	h.Length = raw & 0x07ff
	h.Type = uint8(raw >> 12)
	return nil
}

// PduFlags : length:11, reserved:3, circulated:1, next:1
type PduFlags struct {
	Length     uint16
	Circulated bool
	Next       bool
}

func (f PduFlags) PackedLen() int { return 2 }

func (f PduFlags) PackTo(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, wire.ErrBufferTooShort
	}
	raw := f.Length & 0x07ff
	if f.Circulated {
		raw |= 1 << 14
	}
	if f.Next {
		raw |= 1 << 15
	}
	binary.LittleEndian.PutUint16(buf, raw)
	return 2, nil
}

func (f *PduFlags) UnpackFrom(buf []byte) error {
	if len(buf) < 2 {
		return wire.ErrShortBuffer
	}
	raw := binary.LittleEndian.Uint16(buf)
	f.Length = raw & 0x07ff
	f.Circulated = raw&(1<<14) != 0
	f.Next = raw&(1<<15) != 0
	return nil
}

// PduHeader addresses a register of a station for configured address
// commands (FPRD, FPWR ...).
type PduHeader struct {
	Command  Command  `wire:"bytes=1"`
	Index    uint8    `wire:"bytes=1"`
	Station  uint16   `wire:"bytes=2"`
	Register uint16   `wire:"bytes=2"`
	Flags    PduFlags `wire:"bytes=2"`
	Irq      uint16   `wire:"bytes=2"`
}

func init() {
	wire.MustEnum(wire.EnumSpec[Command]{
		Bits: 8,
		Variants: []Command{
			CommandNop, CommandAprd, CommandApwr, CommandAprw, CommandFprd, CommandFpwr,
			CommandFprw, CommandBrd, CommandBwr, CommandBrw, CommandLrd, CommandLwr,
			CommandLrw, CommandArmw, CommandFrmw,
		},
	})
	wire.MustStruct[PduHeader](pduHeaderLength * 8)
}

// Pdu is a single datagram, its data length is given by Data.
type Pdu struct {
	Header         PduHeader
	Data           []byte
	WorkingCounter uint16
}

// MarshalFrame builds an Ethernet frame carrying pdus. Length and next
// flags are computed from the pdus.
func MarshalFrame(source net.HardwareAddr, pdus ...Pdu) ([]byte, error) {
	if len(pdus) == 0 {
		return nil, ethercat.ErrIllegalArgument
	}
	length := 0
	for _, pdu := range pdus {
		length += pduHeaderLength + len(pdu.Data) + wkcLength
	}
	if frameHeaderLength+length > maxFrameLength {
		return nil, fmt.Errorf("%w : %d bytes", ethercat.ErrFrameTooLarge, frameHeaderLength+length)
	}
	payload := make([]byte, frameHeaderLength+length)
	_, err := wire.Pack(FrameHeader{Length: uint16(length), Type: frameTypePdu}, payload)
	if err != nil {
		return nil, err
	}
	offset := frameHeaderLength
	for i, pdu := range pdus {
		header := pdu.Header
		header.Flags.Length = uint16(len(pdu.Data))
		header.Flags.Next = i < len(pdus)-1
		n, err := wire.Pack(header, payload[offset:])
		if err != nil {
			return nil, err
		}
		offset += n
		offset += copy(payload[offset:], pdu.Data)
		binary.LittleEndian.PutUint16(payload[offset:], pdu.WorkingCounter)
		offset += wkcLength
	}

	eth := &layers.Ethernet{
		SrcMAC:       source,
		DstMAC:       broadcast,
		EthernetType: EtherTypeEtherCAT,
	}
	buf := gopacket.NewSerializeBuffer()
	err = gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(payload))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseFrame decodes an Ethernet frame. Frames that are not EtherCAT fail
// with [ethercat.ErrInvalidFrame].
func ParseFrame(data []byte) (*layers.Ethernet, []Pdu, error) {
	eth := &layers.Ethernet{}
	err := eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback)
	if err != nil {
		return nil, nil, fmt.Errorf("%w : %v", ethercat.ErrInvalidFrame, err)
	}
	if eth.EthernetType != EtherTypeEtherCAT {
		return eth, nil, fmt.Errorf("%w : ethertype %v", ethercat.ErrInvalidFrame, eth.EthernetType)
	}
	payload := eth.Payload
	header, err := wire.Decode[FrameHeader](payload)
	if err != nil {
		return eth, nil, fmt.Errorf("%w : %v", ethercat.ErrInvalidFrame, err)
	}
	if header.Type != frameTypePdu {
		return eth, nil, fmt.Errorf("%w : frame type x%x", ethercat.ErrInvalidFrame, header.Type)
	}
	if int(header.Length) > len(payload)-frameHeaderLength {
		return eth, nil, fmt.Errorf("%w : frame length %d", ethercat.ErrInvalidFrame, header.Length)
	}
	payload = payload[frameHeaderLength : frameHeaderLength+int(header.Length)]
	pdus := []Pdu{}
	for {
		pduHeader, err := wire.Decode[PduHeader](payload)
		if err != nil {
			return eth, nil, fmt.Errorf("%w : %v", ethercat.ErrInvalidFrame, err)
		}
		end := pduHeaderLength + int(pduHeader.Flags.Length) + wkcLength
		if end > len(payload) {
			return eth, nil, fmt.Errorf("%w : pdu length %d", ethercat.ErrInvalidFrame, pduHeader.Flags.Length)
		}
		pdus = append(pdus, Pdu{
			Header:         pduHeader,
			Data:           append([]byte(nil), payload[pduHeaderLength:end-wkcLength]...),
			WorkingCounter: binary.LittleEndian.Uint16(payload[end-wkcLength:]),
		})
		payload = payload[end:]
		if !pduHeader.Flags.Next {
			return eth, pdus, nil
		}
	}
}
