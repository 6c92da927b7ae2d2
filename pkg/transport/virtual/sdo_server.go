package virtual

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/samsamfire/goethercat/pkg/coe"
	"github.com/samsamfire/goethercat/pkg/mailbox"
	"github.com/samsamfire/goethercat/pkg/wire"
	log "github.com/sirupsen/logrus"
)

// Bytes taken by the headers of a segment response
const segmentHeaders = mailbox.HeaderLength + 3

type entry struct {
	data     []byte
	readOnly bool
}

type uploadInProgress struct {
	index    uint16
	subIndex uint8
	data     []byte
	offset   int
	toggle   bool
}

// SdoServer answers CoE SDO requests from an in memory object dictionary.
// Objects that do not fit in the read mailbox are sent segmented.
type SdoServer struct {
	logger        *log.Entry
	mu            sync.Mutex
	objects       map[uint16]map[uint8]*entry
	mailboxLength int
	upload        *uploadInProgress
}

// NewSdoServer creates a server for a slave whose read mailbox is
// mailboxLength bytes long.
func NewSdoServer(mailboxLength uint16, logger *log.Entry) *SdoServer {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &SdoServer{
		logger:        logger.WithField("service", "[SERVER]"),
		objects:       make(map[uint16]map[uint8]*entry),
		mailboxLength: int(mailboxLength),
	}
}

// Set creates or replaces an object
func (s *SdoServer) Set(index uint16, subIndex uint8, data []byte) {
	s.set(index, subIndex, data, false)
}

// SetReadOnly creates or replaces an object that rejects downloads
func (s *SdoServer) SetReadOnly(index uint16, subIndex uint8, data []byte) {
	s.set(index, subIndex, data, true)
}

func (s *SdoServer) set(index uint16, subIndex uint8, data []byte, readOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, ok := s.objects[index]
	if !ok {
		subs = make(map[uint8]*entry)
		s.objects[index] = subs
	}
	subs[subIndex] = &entry{data: append([]byte(nil), data...), readOnly: readOnly}
}

func (s *SdoServer) Get(index uint16, subIndex uint8) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, ok := s.objects[index]
	if !ok {
		return nil, false
	}
	e, ok := subs[subIndex]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), e.data...), true
}

// Handle is a [MailboxHandler]
func (s *SdoServer) Handle(request []byte) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, err := wire.Decode[mailbox.Header](request)
	if err != nil {
		return [][]byte{errorReply(0, mailbox.ErrorSyntax)}
	}
	if header.Type != mailbox.TypeCoE {
		return [][]byte{errorReply(header.Counter, mailbox.ErrorUnsupportedProtocol)}
	}
	coeHeader, err := wire.Decode[coe.Header](request[mailbox.HeaderLength:])
	if err != nil || coeHeader.Service != coe.ServiceSdoRequest {
		return [][]byte{errorReply(header.Counter, mailbox.ErrorServiceNotSupported)}
	}
	command := request[mailbox.HeaderLength+2] >> 5

	switch command {
	case coe.CommandUploadRequest:
		frame, _ := wire.Decode[coe.SdoFrame](request)
		return [][]byte{s.initiateUpload(header.Counter, frame.Sdo)}
	case coe.CommandUploadSegmentRequest:
		frame, _ := wire.Decode[coe.SegmentFrame](request)
		return [][]byte{s.uploadSegment(header.Counter, frame.Segment)}
	case coe.CommandDownloadRequest:
		frame, _ := wire.Decode[coe.SdoFrame](request)
		return [][]byte{s.download(header.Counter, frame)}
	default:
		return [][]byte{abort(header.Counter, 0, 0, coe.AbortCmd)}
	}
}

func (s *SdoServer) lookup(index uint16, subIndex uint8, completeAccess bool) ([]byte, coe.AbortCode) {
	subs, ok := s.objects[index]
	if !ok {
		return nil, coe.AbortNotExist
	}
	if completeAccess {
		keys := make([]int, 0, len(subs))
		for sub := range subs {
			if sub >= subIndex {
				keys = append(keys, int(sub))
			}
		}
		sort.Ints(keys)
		data := []byte{}
		for _, sub := range keys {
			data = append(data, subs[uint8(sub)].data...)
		}
		return data, 0
	}
	e, ok := subs[subIndex]
	if !ok {
		return nil, coe.AbortSubUnknown
	}
	return e.data, 0
}

func (s *SdoServer) initiateUpload(counter uint8, sdo coe.SdoHeader) []byte {
	s.upload = nil
	data, code := s.lookup(sdo.Index, sdo.SubIndex, sdo.Flags.CompleteAccess)
	if code != 0 {
		return abort(counter, sdo.Index, sdo.SubIndex, code)
	}
	logger := s.logger.WithFields(log.Fields{
		"index":    fmt.Sprintf("x%x", sdo.Index),
		"subindex": fmt.Sprintf("x%x", sdo.SubIndex),
	})
	response := coe.SdoFrame{
		Mailbox: mailbox.Header{Length: 10, Type: mailbox.TypeCoE, Counter: counter},
		Coe:     coe.Header{Service: coe.ServiceSdoResponse},
		Sdo: coe.SdoHeader{
			Flags:    coe.SdoFlags{SizeIndicator: true, Command: coe.CommandUploadResponse},
			Index:    sdo.Index,
			SubIndex: sdo.SubIndex,
		},
	}
	// An empty object can not be expedited, size 4 does not fit the size code
	if len(data) > 0 && len(data) <= 4 && !sdo.Flags.CompleteAccess {
		logger.Debug("[TX] upload expedited")
		response.Sdo.Flags.Expedited = true
		response.Sdo.Flags.Size = uint8(4 - len(data))
		copy(response.Data[:], data)
		return pack(response)
	}

	binary.LittleEndian.PutUint32(response.Data[:], uint32(len(data)))
	// Room left after headers and complete size
	capacity := s.mailboxLength - mailbox.HeaderLength - 10
	if len(data) <= capacity {
		logger.Debug("[TX] upload normal")
		response.Mailbox.Length = uint16(10 + len(data))
		return append(pack(response), data...)
	}
	logger.Debug("[TX] upload segmented start")
	s.upload = &uploadInProgress{
		index:    sdo.Index,
		subIndex: sdo.SubIndex,
		data:     append([]byte(nil), data...),
	}
	return pack(response)
}

func (s *SdoServer) uploadSegment(counter uint8, segment coe.SegmentHeader) []byte {
	upload := s.upload
	if upload == nil {
		return abort(counter, 0, 0, coe.AbortCmd)
	}
	if segment.Toggle != upload.toggle {
		s.upload = nil
		return abort(counter, upload.index, upload.subIndex, coe.AbortToggleBit)
	}
	remaining := upload.data[upload.offset:]
	n := min(len(remaining), s.mailboxLength-segmentHeaders)
	last := n == len(remaining)
	header := coe.SegmentHeader{
		LastSegment: last,
		Toggle:      upload.toggle,
		Command:     coe.CommandUploadSegmentResponse,
	}
	length := 3 + n
	if n < 7 {
		header.SegmentDataSize = uint8(7 - n)
		length = 10
	}
	frame := pack(coe.SegmentFrame{
		Mailbox: mailbox.Header{Length: uint16(length), Type: mailbox.TypeCoE, Counter: counter},
		Coe:     coe.Header{Service: coe.ServiceSdoResponse},
		Segment: header,
	})
	frame = append(frame[:segmentHeaders], remaining[:n]...)
	s.logger.WithFields(log.Fields{
		"length": n,
		"last":   last,
	}).Debug("[TX] upload segment")
	upload.offset += n
	upload.toggle = !upload.toggle
	if last {
		s.upload = nil
	}
	return frame
}

func (s *SdoServer) download(counter uint8, frame coe.SdoFrame) []byte {
	sdo := frame.Sdo
	if !sdo.Flags.Expedited {
		return abort(counter, sdo.Index, sdo.SubIndex, coe.AbortCmd)
	}
	size := 4
	if sdo.Flags.SizeIndicator {
		size = 4 - int(sdo.Flags.Size)
	}
	subs, ok := s.objects[sdo.Index]
	if !ok {
		return abort(counter, sdo.Index, sdo.SubIndex, coe.AbortNotExist)
	}
	e, ok := subs[sdo.SubIndex]
	if !ok {
		return abort(counter, sdo.Index, sdo.SubIndex, coe.AbortSubUnknown)
	}
	if e.readOnly {
		return abort(counter, sdo.Index, sdo.SubIndex, coe.AbortReadOnly)
	}
	if len(e.data) > 0 && len(e.data) != size {
		if size > len(e.data) {
			return abort(counter, sdo.Index, sdo.SubIndex, coe.AbortDataLong)
		}
		return abort(counter, sdo.Index, sdo.SubIndex, coe.AbortDataShort)
	}
	e.data = append([]byte(nil), frame.Data[:size]...)
	s.logger.WithFields(log.Fields{
		"index":    fmt.Sprintf("x%x", sdo.Index),
		"subindex": fmt.Sprintf("x%x", sdo.SubIndex),
		"data":     e.data,
	}).Debug("[RX] download expedited")
	return pack(coe.SdoFrame{
		Mailbox: mailbox.Header{Length: 10, Type: mailbox.TypeCoE, Counter: counter},
		Coe:     coe.Header{Service: coe.ServiceSdoResponse},
		Sdo: coe.SdoHeader{
			Flags:    coe.SdoFlags{Command: coe.CommandDownloadResponse},
			Index:    sdo.Index,
			SubIndex: sdo.SubIndex,
		},
	})
}

func abort(counter uint8, index uint16, subIndex uint8, code coe.AbortCode) []byte {
	frame := coe.SdoFrame{
		Mailbox: mailbox.Header{Length: 10, Type: mailbox.TypeCoE, Counter: counter},
		Coe:     coe.Header{Service: coe.ServiceSdoRequest},
		Sdo: coe.SdoHeader{
			Flags:    coe.SdoFlags{Command: coe.CommandAbort},
			Index:    index,
			SubIndex: subIndex,
		},
	}
	binary.LittleEndian.PutUint32(frame.Data[:], uint32(code))
	return pack(frame)
}

func errorReply(counter uint8, detail mailbox.ErrorDetail) []byte {
	header := pack(mailbox.Header{Length: 4, Type: mailbox.TypeError, Counter: counter})
	return append(header, pack(mailbox.ErrorReply{Type: 0x01, Detail: detail})...)
}

// Frames built here always have a valid layout
func pack(v any) []byte {
	buf, err := wire.Marshal(v)
	if err != nil {
		panic(err)
	}
	return buf
}
