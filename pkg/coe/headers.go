package coe

import (
	"github.com/samsamfire/goethercat/pkg/mailbox"
	"github.com/samsamfire/goethercat/pkg/wire"
)

// Service carried in the CoE header
type Service uint8

const (
	ServiceEmergency      Service = 0x01
	ServiceSdoRequest     Service = 0x02
	ServiceSdoResponse    Service = 0x03
	ServiceTxPdo          Service = 0x04
	ServiceRxPdo          Service = 0x05
	ServiceTxPdoRR        Service = 0x06
	ServiceRxPdoRR        Service = 0x07
	ServiceSdoInformation Service = 0x08
)

// SDO command specifiers. Requests and responses share values.
const (
	CommandUploadSegmentResponse uint8 = 0x00
	CommandDownloadRequest       uint8 = 0x01
	CommandUploadRequest         uint8 = 0x02
	CommandUploadResponse        uint8 = 0x02
	CommandUploadSegmentRequest  uint8 = 0x03
	CommandDownloadResponse      uint8 = 0x03
	CommandAbort                 uint8 = 0x04
)

const (
	// Mailbox length of every request sent by the master
	requestLength = 10
	// CoE and SDO headers plus the complete size
	normalOverhead = 10
	// CoE and segment headers
	segmentOverhead = 3
	// Smallest segment payload, shorter segments are padded
	minimumSegment = 7

	sdoHeadersLength     = mailbox.HeaderLength + 2 + 4
	segmentHeadersLength = mailbox.HeaderLength + 2 + 1
)

type Header struct {
	Service Service `wire:"pre_skip=12,bits=4"`
}

type SdoFlags struct {
	SizeIndicator  bool  `wire:"bits=1"`
	Expedited      bool  `wire:"bits=1"`
	Size           uint8 `wire:"bits=2"`
	CompleteAccess bool  `wire:"bits=1"`
	Command        uint8 `wire:"bits=3"`
}

type SdoHeader struct {
	Flags    SdoFlags `wire:"bytes=1"`
	Index    uint16   `wire:"bytes=2"`
	SubIndex uint8    `wire:"bytes=1"`
}

type SegmentHeader struct {
	LastSegment bool `wire:"bits=1"`
	// Number of unused bytes in a minimum sized segment
	SegmentDataSize uint8 `wire:"bits=3"`
	Toggle          bool  `wire:"bits=1"`
	Command         uint8 `wire:"bits=3"`
}

// SdoFrame is an initiate request or response, including the 4 data bytes
// that hold an expedited value, a complete size or an abort code.
type SdoFrame struct {
	Mailbox mailbox.Header `wire:"bytes=6"`
	Coe     Header         `wire:"bytes=2"`
	Sdo     SdoHeader      `wire:"bytes=4"`
	Data    [4]byte
}

type SegmentFrame struct {
	Mailbox mailbox.Header `wire:"bytes=6"`
	Coe     Header         `wire:"bytes=2"`
	Segment SegmentHeader  `wire:"bytes=1"`
	_       [7]byte        `wire:"bytes=7"`
}

// Headers of an initiate response, data follows
type sdoResponse struct {
	Mailbox mailbox.Header `wire:"bytes=6"`
	Coe     Header         `wire:"bytes=2"`
	Sdo     SdoHeader      `wire:"bytes=4"`
}

// Headers of a segment response, data follows
type segmentResponse struct {
	Mailbox mailbox.Header `wire:"bytes=6"`
	Coe     Header         `wire:"bytes=2"`
	Segment SegmentHeader  `wire:"bytes=1"`
}

func init() {
	wire.MustEnum(wire.EnumSpec[Service]{
		Bits: 8,
		Variants: []Service{
			ServiceEmergency, ServiceSdoRequest, ServiceSdoResponse, ServiceTxPdo,
			ServiceRxPdo, ServiceTxPdoRR, ServiceRxPdoRR, ServiceSdoInformation,
		},
	})
	wire.MustStruct[Header](16)
	wire.MustStruct[SdoFlags](8)
	wire.MustStruct[SdoHeader](32)
	wire.MustStruct[SegmentHeader](8)
	wire.MustStruct[SdoFrame](128)
	wire.MustStruct[SegmentFrame](128)
	wire.MustStruct[sdoResponse](96)
	wire.MustStruct[segmentResponse](72)
}

// NewUploadRequest builds an initiate upload request
func NewUploadRequest(counter uint8, index uint16, subIndex uint8, completeAccess bool) SdoFrame {
	return SdoFrame{
		Mailbox: mailbox.Header{Length: requestLength, Priority: mailbox.PriorityLowest, Type: mailbox.TypeCoE, Counter: counter},
		Coe:     Header{Service: ServiceSdoRequest},
		Sdo: SdoHeader{
			Flags:    SdoFlags{CompleteAccess: completeAccess, Command: CommandUploadRequest},
			Index:    index,
			SubIndex: subIndex,
		},
	}
}

// NewDownloadRequest builds an expedited download request carrying size
// bytes of data.
func NewDownloadRequest(counter uint8, index uint16, subIndex uint8, data [4]byte, size uint8) SdoFrame {
	return SdoFrame{
		Mailbox: mailbox.Header{Length: requestLength, Priority: mailbox.PriorityLowest, Type: mailbox.TypeCoE, Counter: counter},
		Coe:     Header{Service: ServiceSdoRequest},
		Sdo: SdoHeader{
			Flags: SdoFlags{
				SizeIndicator: true,
				Expedited:     true,
				Size:          4 - size,
				Command:       CommandDownloadRequest,
			},
			Index:    index,
			SubIndex: subIndex,
		},
		Data: data,
	}
}

// NewUploadSegmentRequest builds the request for the next segment of a
// segmented upload.
func NewUploadSegmentRequest(counter uint8, toggle bool) SegmentFrame {
	return SegmentFrame{
		Mailbox: mailbox.Header{Length: requestLength, Priority: mailbox.PriorityLowest, Type: mailbox.TypeCoE, Counter: counter},
		Coe:     Header{Service: ServiceSdoRequest},
		Segment: SegmentHeader{Toggle: toggle, Command: CommandUploadSegmentRequest},
	}
}
