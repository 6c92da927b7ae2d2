package coe

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/samsamfire/goethercat/pkg/mailbox"
	"github.com/samsamfire/goethercat/pkg/wire"
	log "github.com/sirupsen/logrus"
)

type transferState uint8

const (
	stateIdle transferState = iota
	stateRequestSent
	stateResponseReceived
	stateSegmentedContinue
	stateComplete
	stateAborted
)

var transferStateNames = map[transferState]string{
	stateIdle:              "IDLE",
	stateRequestSent:       "REQUEST SENT",
	stateResponseReceived:  "RESPONSE RECEIVED",
	stateSegmentedContinue: "SEGMENTED CONTINUE",
	stateComplete:          "COMPLETE",
	stateAborted:           "ABORTED",
}

func (s transferState) String() string {
	return transferStateNames[s]
}

// A single SDO transfer, it only lives for the duration of one call.
type transfer struct {
	client         *Client
	index          uint16
	subIndex       uint8
	completeAccess bool
	state          transferState
	logger         *log.Entry
}

// Send a request and return the validated response
func (t *transfer) exchange(ctx context.Context, request any, counter uint8) ([]byte, error) {
	frame, err := wire.Marshal(request)
	if err != nil {
		return nil, err
	}
	t.state = stateRequestSent
	response, err := t.client.channel.Exchange(ctx, frame)
	if err != nil {
		t.state = stateAborted
		return nil, err
	}
	t.state = stateResponseReceived
	err = t.validate(response, counter)
	if err != nil {
		t.state = stateAborted
		return nil, err
	}
	return response, nil
}

func (t *transfer) invalid(reason string, cause error) error {
	t.logger.WithField("reason", reason).Error("invalid sdo response")
	return &ResponseInvalidError{Index: t.index, SubIndex: t.subIndex, Reason: reason, Cause: cause}
}

// The response must answer our request before anything else is looked at.
func (t *transfer) validate(response []byte, counter uint8) error {
	header, err := wire.Decode[mailbox.Header](response)
	if err != nil {
		return t.invalid("undecodable mailbox header", err)
	}
	if header.Type != mailbox.TypeCoE {
		if reply, ok := mailbox.ParseErrorReply(response); ok {
			return t.invalid("mailbox error reply", reply)
		}
		return t.invalid(fmt.Sprintf("mailbox type %v, expected %v", header.Type, mailbox.TypeCoE), nil)
	}
	if header.Counter != counter {
		return t.invalid(fmt.Sprintf("counter %d, expected %d", header.Counter, counter), nil)
	}
	// Aborts always carry the full SDO header followed by the code
	if len(response) < sdoHeadersLength+4 {
		return t.invalid("response too short", nil)
	}
	sdo, err := wire.Decode[SdoHeader](response[mailbox.HeaderLength+2:])
	if err != nil {
		return t.invalid("undecodable sdo header", err)
	}
	if sdo.Flags.Command == CommandAbort {
		code := AbortCode(binary.LittleEndian.Uint32(response[sdoHeadersLength:]))
		t.logger.WithField("code", fmt.Sprintf("x%x", uint32(code))).Errorf("[RX] server abort : %v", code.Description())
		return &AbortError{Code: code, Index: t.index, SubIndex: t.subIndex}
	}
	return nil
}

func (t *transfer) download(ctx context.Context, data []byte) error {
	counter := t.client.counter.Next()
	var raw [4]byte
	copy(raw[:], data)
	request := NewDownloadRequest(counter, t.index, t.subIndex, raw, uint8(len(data)))
	t.logger.WithField("data", data).Debug("[TX] download expedited")
	_, err := t.exchange(ctx, request, counter)
	if err != nil {
		return err
	}
	t.state = stateComplete
	return nil
}

// upload fills buf and returns the number of bytes written. Data is gathered
// in scratch storage so buf is only written once the whole transfer succeeded.
func (t *transfer) upload(ctx context.Context, buf []byte) (int, error) {
	counter := t.client.counter.Next()
	request := NewUploadRequest(counter, t.index, t.subIndex, t.completeAccess)
	t.logger.Debug("[TX] upload")
	response, err := t.exchange(ctx, request, counter)
	if err != nil {
		return 0, err
	}
	headers, err := wire.Decode[sdoResponse](response)
	if err != nil {
		return 0, t.invalid("undecodable upload response", err)
	}
	data := response[sdoHeadersLength:]

	if headers.Sdo.Flags.Expedited {
		size := 4 - int(headers.Sdo.Flags.Size)
		if size > len(buf) {
			return 0, t.tooShort(size, len(buf))
		}
		t.logger.WithField("data", data[:size]).Debug("[RX] upload expedited")
		t.state = stateComplete
		return copy(buf, data[:size]), nil
	}

	dataLength := int(headers.Mailbox.Length) - normalOverhead
	if dataLength < 0 || len(data) < 4+dataLength {
		return 0, t.invalid(fmt.Sprintf("inconsistent mailbox length %d", headers.Mailbox.Length), nil)
	}
	completeSize := int(binary.LittleEndian.Uint32(data))
	payload := data[4 : 4+dataLength]
	if completeSize > len(buf) {
		return 0, t.tooShort(completeSize, len(buf))
	}

	if completeSize <= dataLength {
		t.logger.WithField("size", completeSize).Debug("[RX] upload normal")
		t.state = stateComplete
		return copy(buf, payload[:completeSize]), nil
	}

	scratch := make([]byte, 0, completeSize)
	scratch = append(scratch, payload...)
	t.state = stateSegmentedContinue
	t.logger.WithFields(log.Fields{
		"size":    completeSize,
		"initial": len(payload),
	}).Debug("[RX] upload segmented start")

	toggle := false
	for {
		segment, last, err := t.uploadSegment(ctx, toggle)
		if err != nil {
			return 0, err
		}
		if len(scratch)+len(segment) > len(buf) {
			t.state = stateAborted
			return 0, t.tooShort(len(scratch)+len(segment), len(buf))
		}
		scratch = append(scratch, segment...)
		if last {
			break
		}
		toggle = !toggle
	}
	t.state = stateComplete
	t.logger.WithField("size", len(scratch)).Debug("[RX] upload segmented end")
	return copy(buf, scratch), nil
}

func (t *transfer) uploadSegment(ctx context.Context, toggle bool) ([]byte, bool, error) {
	counter := t.client.counter.Next()
	request := NewUploadSegmentRequest(counter, toggle)
	t.logger.WithField("toggle", toggle).Debug("[TX] upload segment")
	response, err := t.exchange(ctx, request, counter)
	if err != nil {
		return nil, false, err
	}
	headers, err := wire.Decode[segmentResponse](response)
	if err != nil {
		return nil, false, t.invalid("undecodable segment response", err)
	}
	if headers.Segment.Toggle != toggle {
		return nil, false, t.invalid("toggle bit not alternated", nil)
	}
	chunkLen := int(headers.Mailbox.Length) - segmentOverhead
	// Minimum sized segments tell how many of their bytes are unused
	if chunkLen == minimumSegment {
		chunkLen -= int(headers.Segment.SegmentDataSize)
	}
	data := response[segmentHeadersLength:]
	if chunkLen < 0 || chunkLen > len(data) {
		return nil, false, t.invalid(fmt.Sprintf("inconsistent segment length %d", headers.Mailbox.Length), nil)
	}
	t.logger.WithFields(log.Fields{
		"length": chunkLen,
		"last":   headers.Segment.LastSegment,
	}).Debug("[RX] upload segment")
	t.state = stateSegmentedContinue
	return data[:chunkLen], headers.Segment.LastSegment, nil
}

func (t *transfer) tooShort(needed int, available int) error {
	t.state = stateAborted
	t.logger.WithFields(log.Fields{
		"needed":    needed,
		"available": available,
	}).Error("destination buffer too short")
	return fmt.Errorf("sdo x%x:x%x : %w, need %d bytes got %d", t.index, t.subIndex, wire.ErrBufferTooShort, needed, available)
}
