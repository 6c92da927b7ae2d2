// Package raw sends EtherCAT datagrams directly in Ethernet frames.
// Any packet source able to read and write whole frames may be used, see
// package pcapconn for a live network interface.
package raw

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/gopacket"
	ethercat "github.com/samsamfire/goethercat"
	log "github.com/sirupsen/logrus"
)

// ErrNoPacket is returned by a [PacketConn] when no frame was received
// within its own read timeout. The transport keeps waiting.
var ErrNoPacket = errors.New("no packet available")

// PacketConn is implemented by *pcap.Handle
type PacketConn interface {
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
	WritePacketData(data []byte) error
}

// Transport implements [ethercat.Transport] with one frame in flight at
// a time. Responses are matched to requests with the PDU index.
type Transport struct {
	logger   *log.Entry
	conn     PacketConn
	source   net.HardwareAddr
	timeouts ethercat.Timeouts
	mu       sync.Mutex
	index    uint8
	closed   bool
}

func New(conn PacketConn, timeouts ethercat.Timeouts, logger *log.Entry) *Transport {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Transport{
		logger:   logger.WithField("service", "[RAW]"),
		conn:     conn,
		source:   DefaultSource,
		timeouts: timeouts,
	}
}

// SetSource changes the source address of sent frames
func (t *Transport) SetSource(source net.HardwareAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.source = source
}

func (t *Transport) Read(ctx context.Context, station uint16, register uint16, length int) (ethercat.Response, error) {
	if length < 0 || length > MaxPduData {
		return ethercat.Response{}, fmt.Errorf("%w : read of %d bytes", ethercat.ErrFrameTooLarge, length)
	}
	return t.exchange(ctx, CommandFprd, station, register, make([]byte, length))
}

func (t *Transport) Write(ctx context.Context, station uint16, register uint16, data []byte) (ethercat.Response, error) {
	if len(data) > MaxPduData {
		return ethercat.Response{}, fmt.Errorf("%w : write of %d bytes", ethercat.ErrFrameTooLarge, len(data))
	}
	return t.exchange(ctx, CommandFpwr, station, register, append([]byte(nil), data...))
}

// Close stops the transport and closes the underlying connection if it
// can be closed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if closer, ok := t.conn.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (t *Transport) exchange(ctx context.Context, command Command, station uint16, register uint16, data []byte) (ethercat.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ethercat.Response{}, ethercat.ErrTransportClosed
	}
	index := t.index
	t.index++
	header := PduHeader{Command: command, Index: index, Station: station, Register: register}
	frame, err := MarshalFrame(t.source, Pdu{Header: header, Data: data})
	if err != nil {
		return ethercat.Response{}, err
	}
	logger := t.logger.WithFields(log.Fields{
		"command":  command,
		"index":    index,
		"station":  fmt.Sprintf("x%x", station),
		"register": fmt.Sprintf("x%x", register),
	})
	logger.Trace("[TX] datagram")
	err = t.conn.WritePacketData(frame)
	if err != nil {
		return ethercat.Response{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeouts.Pdu)
	defer cancel()
	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				logger.Warn("no response to datagram")
				return ethercat.Response{}, fmt.Errorf("%w : %v", ethercat.ErrNoResponse, err)
			}
			return ethercat.Response{}, err
		}
		received, _, err := t.conn.ReadPacketData()
		if errors.Is(err, ErrNoPacket) {
			continue
		}
		if err != nil {
			return ethercat.Response{}, err
		}
		eth, pdus, err := ParseFrame(received)
		if err != nil {
			continue
		}
		// Frames we sent can be captured back before going through the slaves
		if bytes.Equal(eth.SrcMAC, t.source) {
			continue
		}
		pdu := pdus[0]
		if pdu.Header.Index != index || pdu.Header.Command != command {
			logger.WithField("received", pdu.Header.Index).Debug("skipping stale frame")
			continue
		}
		if len(pdu.Data) != len(data) {
			return ethercat.Response{}, fmt.Errorf("%w : expected %d bytes, got %d", ethercat.ErrInvalidFrame, len(data), len(pdu.Data))
		}
		logger.WithField("wkc", pdu.WorkingCounter).Trace("[RX] datagram")
		return ethercat.Response{Data: pdu.Data, WorkingCounter: pdu.WorkingCounter}, nil
	}
}
